package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"

	"baulot/internal/domain"
	"baulot/internal/engine/auth"
	"baulot/internal/events"
	"baulot/internal/repo"
	"baulot/internal/storage"
)

// photoTypes maps accepted photo content types to object key extensions.
var photoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

type PhotoUpload struct {
	Filename    string
	ContentType string
	Data        []byte
	Caption     string
	Visibility  domain.Visibility
}

// PhotoPatch changes only the non-nil fields.
type PhotoPatch struct {
	Caption    *string
	Visibility *domain.Visibility
}

type CommentInput struct {
	Content    string
	Visibility domain.Visibility
}

// photoContentType settles the content type of an upload. A declared
// type must be accepted; otherwise the type is sniffed from the data.
func photoContentType(declared string, data []byte) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	if _, ok := photoTypes[ct]; !ok {
		return "", invalid("file", "unsupported content type %q", ct)
	}
	return ct, nil
}

// UploadPhoto stores the object first and records the photo afterwards; a
// failed insert removes the object again.
func (e Engine) UploadPhoto(ctx context.Context, caller auth.Caller, taskID string, in PhotoUpload) (domain.Photo, error) {
	if caller.ID == "" || caller.Role == "" {
		return domain.Photo{}, auth.ErrUnauthorized
	}
	projectID, err := e.Repo.TaskProjectID(ctx, taskID)
	if err != nil {
		return domain.Photo{}, err
	}
	p, err := e.Repo.LoadProject(ctx, projectID)
	if err != nil {
		return domain.Photo{}, err
	}
	view, err := scope(caller, p)
	if err != nil {
		return domain.Photo{}, err
	}
	tr, _, ok := view.TaskByID(taskID)
	if !ok {
		return domain.Photo{}, repo.ErrNotFound
	}
	if err := auth.Require(auth.PhotoUpload, caller, auth.Facts{
		ProjectArchitectID: p.ArchitectID,
		TradeContractorID:  tr.ContractorID,
		PhotoUploadedBy:    caller.ID,
	}); err != nil {
		return domain.Photo{}, err
	}

	if len(in.Data) == 0 {
		return domain.Photo{}, invalid("file", "is empty")
	}
	limit := e.MaxPhotoSize
	if limit <= 0 {
		limit = DefaultMaxPhotoSize
	}
	if int64(len(in.Data)) > limit {
		return domain.Photo{}, invalid("file", "exceeds %d bytes", limit)
	}
	ct, err := photoContentType(in.ContentType, in.Data)
	if err != nil {
		return domain.Photo{}, err
	}
	if in.Visibility == "" {
		in.Visibility = domain.VisibilityInternal
	}
	if !in.Visibility.Valid() {
		return domain.Photo{}, invalid("visibility", "must be internal or client")
	}

	key := fmt.Sprintf("projects/%s/tasks/%s/%s%s", projectID, taskID, strings.ToLower(ulid.Make().String()), photoTypes[ct])
	if err := e.store().Upload(ctx, key, ct, in.Data); err != nil {
		return domain.Photo{}, err
	}
	ph := domain.Photo{
		ID:          newID(),
		TaskID:      taskID,
		UploadedBy:  caller.ID,
		Visibility:  in.Visibility,
		Caption:     strings.TrimSpace(in.Caption),
		StorageKey:  key,
		ContentType: ct,
		CreatedAt:   e.timestamp(),
	}
	if ph.URL, err = e.photoURL(ctx, ph); err != nil {
		e.removeObjects(ctx, []string{key})
		return domain.Photo{}, err
	}
	if err := e.insertPhoto(ctx, caller, projectID, ph, in.Filename); err != nil {
		e.removeObjects(ctx, []string{key})
		return domain.Photo{}, err
	}
	return ph, nil
}

func (e Engine) insertPhoto(ctx context.Context, caller auth.Caller, projectID string, ph domain.Photo, filename string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	// The task may have been deleted while the object was uploading.
	if _, err := e.Repo.GetTaskTx(ctx, tx, ph.TaskID); err != nil {
		return err
	}
	if err := e.Repo.InsertPhoto(ctx, tx, ph); err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.PhotoUploaded, ProjectID: projectID, EntityKind: "photo", EntityID: ph.ID, ActorID: caller.ID,
		Payload: events.Payload{"task_id": ph.TaskID, "visibility": ph.Visibility, "filename": filename, "content_type": ph.ContentType},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) UpdatePhoto(ctx context.Context, caller auth.Caller, photoID string, patch PhotoPatch) (domain.Photo, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Photo{}, err
	}
	defer tx.Rollback()

	p, tr, ph, err := e.photoScope(ctx, tx, caller, photoID)
	if err != nil {
		return domain.Photo{}, err
	}
	if err := auth.Require(auth.PhotoUpdate, caller, auth.Facts{
		ProjectArchitectID: p.ArchitectID,
		TradeContractorID:  tr.ContractorID,
		PhotoUploadedBy:    ph.UploadedBy,
	}); err != nil {
		return domain.Photo{}, err
	}
	changed := map[string]any{}
	if patch.Caption != nil {
		ph.Caption = strings.TrimSpace(*patch.Caption)
		changed["caption"] = ph.Caption
	}
	if patch.Visibility != nil {
		if !patch.Visibility.Valid() {
			return domain.Photo{}, invalid("visibility", "must be internal or client")
		}
		ph.Visibility = *patch.Visibility
		changed["visibility"] = ph.Visibility
	}
	if err := e.Repo.UpdatePhoto(ctx, tx, ph); err != nil {
		return domain.Photo{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.PhotoUpdated, ProjectID: p.ID, EntityKind: "photo", EntityID: ph.ID, ActorID: caller.ID,
		Payload: events.Payload(changed),
	}); err != nil {
		return domain.Photo{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Photo{}, err
	}
	if u, err := e.photoURL(ctx, ph); err == nil {
		ph.URL = u
	}
	return ph, nil
}

// OpenPhoto returns the photo and a reader over its bytes. A photo the
// caller cannot see is reported as not found, like any hidden record.
func (e Engine) OpenPhoto(ctx context.Context, caller auth.Caller, photoID string) (domain.Photo, io.ReadCloser, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Photo{}, nil, err
	}
	_, _, ph, err := e.photoScope(ctx, tx, caller, photoID)
	tx.Rollback()
	if err != nil {
		return domain.Photo{}, nil, err
	}
	r, err := e.store().Open(ctx, ph.StorageKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		e.logger().Warn("photo object missing", "photo_id", ph.ID, "key", ph.StorageKey)
		return domain.Photo{}, nil, repo.ErrNotFound
	}
	if err != nil {
		return domain.Photo{}, nil, err
	}
	return ph, r, nil
}

func (e Engine) DeletePhoto(ctx context.Context, caller auth.Caller, photoID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, tr, ph, err := e.photoScope(ctx, tx, caller, photoID)
	if err != nil {
		return err
	}
	if err := auth.Require(auth.PhotoDelete, caller, auth.Facts{
		ProjectArchitectID: p.ArchitectID,
		TradeContractorID:  tr.ContractorID,
		PhotoUploadedBy:    ph.UploadedBy,
	}); err != nil {
		return err
	}
	if err := e.Repo.DeletePhoto(ctx, tx, photoID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.PhotoDeleted, ProjectID: p.ID, EntityKind: "photo", EntityID: photoID, ActorID: caller.ID,
		Payload: events.Payload{"task_id": ph.TaskID},
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.removeObjects(ctx, []string{ph.StorageKey})
	return nil
}

// photoScope loads the project owning photoID inside tx and returns the
// full snapshot plus the photo and its trade as the caller sees them.
func (e Engine) photoScope(ctx context.Context, tx *sql.Tx, caller auth.Caller, photoID string) (domain.Project, domain.Trade, domain.Photo, error) {
	projectID, err := e.Repo.PhotoProjectIDTx(ctx, tx, photoID)
	if err != nil {
		return domain.Project{}, domain.Trade{}, domain.Photo{}, err
	}
	p, err := e.Repo.LoadProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, domain.Trade{}, domain.Photo{}, err
	}
	view, err := scope(caller, p)
	if err != nil {
		return domain.Project{}, domain.Trade{}, domain.Photo{}, err
	}
	tr, _, ph, ok := view.PhotoByID(photoID)
	if !ok {
		return domain.Project{}, domain.Trade{}, domain.Photo{}, repo.ErrNotFound
	}
	return p, tr, ph, nil
}

// CreateComment adds a comment authored by the caller. Comments are
// internal unless marked for the client.
func (e Engine) CreateComment(ctx context.Context, caller auth.Caller, taskID string, in CommentInput) (domain.Comment, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()

	p, _, _, err := e.taskScope(ctx, tx, caller, taskID)
	if err != nil {
		return domain.Comment{}, err
	}
	if err := auth.Require(auth.CommentCreate, caller, auth.Facts{ProjectArchitectID: p.ArchitectID}); err != nil {
		return domain.Comment{}, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return domain.Comment{}, invalid("content", "is required")
	}
	if in.Visibility == "" {
		in.Visibility = domain.VisibilityInternal
	}
	if !in.Visibility.Valid() {
		return domain.Comment{}, invalid("visibility", "must be internal or client")
	}
	c := domain.Comment{
		ID:         newID(),
		TaskID:     taskID,
		AuthorID:   caller.ID,
		AuthorRole: caller.Role,
		Visibility: in.Visibility,
		Content:    content,
		CreatedAt:  e.timestamp(),
	}
	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.CommentCreated, ProjectID: p.ID, EntityKind: "comment", EntityID: c.ID, ActorID: caller.ID,
		Payload: events.Payload{"task_id": taskID, "visibility": c.Visibility},
	}); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

// ListComments returns the task's comments visible to the caller.
func (e Engine) ListComments(ctx context.Context, caller auth.Caller, taskID string) ([]domain.Comment, error) {
	t, err := e.GetTask(ctx, caller, taskID)
	if err != nil {
		return nil, err
	}
	return t.Comments, nil
}
