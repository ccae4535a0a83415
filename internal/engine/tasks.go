package engine

import (
	"context"
	"fmt"
	"strings"

	"baulot/internal/domain"
	"baulot/internal/engine/auth"
	"baulot/internal/events"
	"baulot/internal/repo"
)

type TaskInput struct {
	Title         string
	Description   string
	Status        domain.Status
	BlockedReason *string
	DueDate       string
}

// TaskPatch changes only the non-nil fields.
type TaskPatch struct {
	Title         *string
	Description   *string
	Status        *domain.Status
	BlockedReason *string
	DueDate       *string
}

func (e Engine) CreateTask(ctx context.Context, caller auth.Caller, tradeID string, in TaskInput) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	projectID, err := e.Repo.TradeProjectIDTx(ctx, tx, tradeID)
	if err != nil {
		return domain.Task{}, err
	}
	p, err := e.Repo.LoadProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Task{}, err
	}
	view, err := scope(caller, p)
	if err != nil {
		return domain.Task{}, err
	}
	tr, ok := view.TradeByID(tradeID)
	if !ok {
		return domain.Task{}, repo.ErrNotFound
	}
	if err := auth.Require(auth.TaskCreate, caller, auth.Facts{
		ProjectArchitectID:     p.ArchitectID,
		TradeContractorID:      tr.ContractorID,
		TradeCanCreateSubtasks: tr.CanCreateSubtasks,
	}); err != nil {
		return domain.Task{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Task{}, invalid("title", "is required")
	}
	if in.Status == "" {
		in.Status = domain.StatusPending
	}
	if !in.Status.Valid() {
		return domain.Task{}, invalid("status", "unknown status %q", in.Status)
	}
	if err := validDate("due_date", in.DueDate); err != nil {
		return domain.Task{}, err
	}
	now := e.timestamp()
	t := domain.Task{
		ID:            newID(),
		TradeID:       tradeID,
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		Status:        in.Status,
		BlockedReason: blockedReason(in.Status, in.BlockedReason),
		DueDate:       in.DueDate,
		CreatedAt:     now,
		UpdatedAt:     now,
		Photos:        []domain.Photo{},
		Comments:      []domain.Comment{},
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.TaskCreated, ProjectID: projectID, EntityKind: "task", EntityID: t.ID, ActorID: caller.ID,
		Payload: events.Payload{"trade_id": tradeID, "title": t.Title, "status": t.Status},
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UpdateTask applies patch in one read-modify-write transaction. Leaving
// the blocked status clears the blocked reason.
func (e Engine) UpdateTask(ctx context.Context, caller auth.Caller, taskID string, patch TaskPatch) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	p, tr, t, err := e.taskScope(ctx, tx, caller, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := auth.Require(auth.TaskUpdate, caller, auth.Facts{
		ProjectArchitectID: p.ArchitectID,
		TradeContractorID:  tr.ContractorID,
	}); err != nil {
		return domain.Task{}, err
	}
	changed := map[string]any{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return domain.Task{}, invalid("title", "must not be empty")
		}
		t.Title = title
		changed["title"] = title
	}
	if patch.Description != nil {
		t.Description = strings.TrimSpace(*patch.Description)
		changed["description"] = t.Description
	}
	if patch.DueDate != nil {
		if err := validDate("due_date", *patch.DueDate); err != nil {
			return domain.Task{}, err
		}
		t.DueDate = *patch.DueDate
		changed["due_date"] = t.DueDate
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return domain.Task{}, invalid("status", "unknown status %q", *patch.Status)
		}
		changed["from_status"] = t.Status
		changed["status"] = *patch.Status
		t.Status = *patch.Status
	}
	prevReason := t.BlockedReason
	if patch.BlockedReason != nil {
		t.BlockedReason = patch.BlockedReason
	}
	t.BlockedReason = blockedReason(t.Status, t.BlockedReason)
	switch {
	case t.BlockedReason != nil:
		changed["blocked_reason"] = *t.BlockedReason
	case prevReason != nil:
		changed["blocked_reason"] = nil
	}
	t.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.TaskUpdated, ProjectID: p.ID, EntityKind: "task", EntityID: t.ID, ActorID: caller.ID,
		Payload: events.Payload(changed),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.resolveTaskPhotoURLs(ctx, &t)
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, caller auth.Caller, taskID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, tr, t, err := e.taskScope(ctx, tx, caller, taskID)
	if err != nil {
		return err
	}
	if err := auth.Require(auth.TaskDelete, caller, auth.Facts{
		ProjectArchitectID: p.ArchitectID,
		TradeContractorID:  tr.ContractorID,
	}); err != nil {
		return err
	}
	keys, err := e.Repo.StorageKeys(ctx, tx, repo.ScopeTask, taskID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.TaskDeleted, ProjectID: p.ID, EntityKind: "task", EntityID: taskID, ActorID: caller.ID,
		Payload: events.Payload{"title": t.Title, "trade_id": tr.ID},
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.removeObjects(ctx, keys)
	return nil
}

// GetTask returns the task as the caller sees it.
func (e Engine) GetTask(ctx context.Context, caller auth.Caller, taskID string) (domain.Task, error) {
	if caller.ID == "" || caller.Role == "" {
		return domain.Task{}, auth.ErrUnauthorized
	}
	projectID, err := e.Repo.TaskProjectID(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	view, err := e.GetProject(ctx, caller, projectID)
	if err != nil {
		return domain.Task{}, err
	}
	_, t, ok := view.TaskByID(taskID)
	if !ok {
		return domain.Task{}, repo.ErrNotFound
	}
	return t, nil
}

// blockedReason keeps a non-empty reason only while the task is blocked.
func blockedReason(status domain.Status, reason *string) *string {
	if status != domain.StatusBlocked || reason == nil {
		return nil
	}
	r := strings.TrimSpace(*reason)
	if r == "" {
		return nil
	}
	return &r
}
