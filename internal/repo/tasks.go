package repo

import (
	"context"
	"database/sql"

	"baulot/internal/domain"
)

const taskColumns = `t.id,t.trade_id,t.title,t.description,t.status,t.blocked_reason,t.due_date,t.created_at,t.updated_at`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var reason, due sql.NullString
	err := row.Scan(&t.ID, &t.TradeID, &t.Title, &t.Description, &t.Status, &reason, &due, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.BlockedReason = stringPtr(reason)
	t.DueDate = due.String
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,trade_id,title,description,status,blocked_reason,due_date,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TradeID, t.Title, t.Description, t.Status, nullableStringPtr(t.BlockedReason), nullable(t.DueDate), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	return affectedOne(tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, blocked_reason=?, due_date=?, updated_at=? WHERE id=?`,
		t.Title, t.Description, t.Status, nullableStringPtr(t.BlockedReason), nullable(t.DueDate), t.UpdatedAt, t.ID))
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	return affectedOne(tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id=?`, id))
}

const taskProjectQuery = `SELECT tr.project_id FROM tasks t JOIN trades tr ON tr.id=t.trade_id WHERE t.id=?`

// TaskProjectID resolves the project a task belongs to through its trade.
func (r Repo) TaskProjectID(ctx context.Context, taskID string) (string, error) {
	return scanID(r.DB.QueryRowContext(ctx, taskProjectQuery, taskID))
}

func (r Repo) TaskProjectIDTx(ctx context.Context, tx *sql.Tx, taskID string) (string, error) {
	return scanID(tx.QueryRowContext(ctx, taskProjectQuery, taskID))
}

// CountTasksByStatus counts the project's tasks per status.
func (r Repo) CountTasksByStatus(ctx context.Context, projectID string) (map[domain.Status]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT t.status, COUNT(*) FROM tasks t JOIN trades tr ON tr.id=t.trade_id WHERE tr.project_id=? GROUP BY t.status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.Status]int{}
	for rows.Next() {
		var s domain.Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		res[s] = n
	}
	return res, rows.Err()
}

func listProjectTasks(ctx context.Context, q queryer, projectID string) ([]domain.Task, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks t JOIN trades tr ON tr.id=t.trade_id WHERE tr.project_id=? ORDER BY t.created_at, t.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
