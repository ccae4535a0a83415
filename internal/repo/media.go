package repo

import (
	"context"
	"database/sql"
	"fmt"

	"baulot/internal/domain"
)

const photoColumns = `p.id,p.task_id,p.uploaded_by,p.visibility,p.caption,p.storage_key,p.url,p.content_type,p.created_at`

func scanPhoto(row interface{ Scan(...any) error }) (domain.Photo, error) {
	var p domain.Photo
	err := row.Scan(&p.ID, &p.TaskID, &p.UploadedBy, &p.Visibility, &p.Caption, &p.StorageKey, &p.URL, &p.ContentType, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertPhoto(ctx context.Context, tx *sql.Tx, p domain.Photo) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO photos(id,task_id,uploaded_by,visibility,caption,storage_key,url,content_type,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.TaskID, p.UploadedBy, p.Visibility, p.Caption, p.StorageKey, p.URL, p.ContentType, p.CreatedAt)
	return err
}

func (r Repo) UpdatePhoto(ctx context.Context, tx *sql.Tx, p domain.Photo) error {
	return affectedOne(tx.ExecContext(ctx, `UPDATE photos SET visibility=?, caption=? WHERE id=?`, p.Visibility, p.Caption, p.ID))
}

func (r Repo) DeletePhoto(ctx context.Context, tx *sql.Tx, id string) error {
	return affectedOne(tx.ExecContext(ctx, `DELETE FROM photos WHERE id=?`, id))
}

// PhotoProjectIDTx resolves the project a photo belongs to.
func (r Repo) PhotoProjectIDTx(ctx context.Context, tx *sql.Tx, photoID string) (string, error) {
	return scanID(tx.QueryRowContext(ctx, `SELECT tr.project_id FROM photos p JOIN tasks t ON t.id=p.task_id JOIN trades tr ON tr.id=t.trade_id WHERE p.id=?`, photoID))
}

// Scopes for StorageKeys.
const (
	ScopeProject = "tr.project_id"
	ScopeTrade   = "tr.id"
	ScopeTask    = "t.id"
)

// StorageKeys lists the stored objects of every photo below a project,
// trade or task, selected by scope.
func (r Repo) StorageKeys(ctx context.Context, tx *sql.Tx, scope, id string) ([]string, error) {
	switch scope {
	case ScopeProject, ScopeTrade, ScopeTask:
	default:
		return nil, fmt.Errorf("unknown storage key scope %q", scope)
	}
	rows, err := tx.QueryContext(ctx, `SELECT p.storage_key FROM photos p JOIN tasks t ON t.id=p.task_id JOIN trades tr ON tr.id=t.trade_id WHERE `+scope+`=?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func listProjectPhotos(ctx context.Context, q queryer, projectID string) (map[string][]domain.Photo, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+photoColumns+` FROM photos p JOIN tasks t ON t.id=p.task_id JOIN trades tr ON tr.id=t.trade_id WHERE tr.project_id=? ORDER BY p.created_at, p.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]domain.Photo{}
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		res[p.TaskID] = append(res[p.TaskID], p)
	}
	return res, rows.Err()
}

const commentColumns = `c.id,c.task_id,c.author_id,c.author_role,c.visibility,c.content,c.created_at`

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,task_id,author_id,author_role,visibility,content,created_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.TaskID, c.AuthorID, c.AuthorRole, c.Visibility, c.Content, c.CreatedAt)
	return err
}

func listProjectComments(ctx context.Context, q queryer, projectID string) (map[string][]domain.Comment, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+commentColumns+` FROM comments c JOIN tasks t ON t.id=c.task_id JOIN trades tr ON tr.id=t.trade_id WHERE tr.project_id=? ORDER BY c.created_at, c.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.AuthorRole, &c.Visibility, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		res[c.TaskID] = append(res[c.TaskID], c)
	}
	return res, rows.Err()
}
