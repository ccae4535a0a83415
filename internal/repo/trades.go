package repo

import (
	"context"
	"database/sql"

	"baulot/internal/domain"
)

const tradeColumns = `id,project_id,name,contractor_id,position,status,can_create_subtasks,start_date,end_date,created_at`

func scanTrade(row interface{ Scan(...any) error }) (domain.Trade, error) {
	var t domain.Trade
	var contractor, start, end sql.NullString
	var subtasks int
	err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &contractor, &t.Order, &t.Status, &subtasks, &start, &end, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.ContractorID = stringPtr(contractor)
	t.CanCreateSubtasks = subtasks != 0
	t.StartDate = start.String
	t.EndDate = end.String
	return t, nil
}

func (r Repo) InsertTrade(ctx context.Context, tx *sql.Tx, t domain.Trade) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO trades(`+tradeColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Name, nullableStringPtr(t.ContractorID), t.Order, t.Status, boolInt(t.CanCreateSubtasks),
		nullable(t.StartDate), nullable(t.EndDate), t.CreatedAt)
	return err
}

func (r Repo) UpdateTrade(ctx context.Context, tx *sql.Tx, t domain.Trade) error {
	return affectedOne(tx.ExecContext(ctx, `UPDATE trades SET name=?, contractor_id=?, position=?, status=?, can_create_subtasks=?, start_date=?, end_date=? WHERE id=?`,
		t.Name, nullableStringPtr(t.ContractorID), t.Order, t.Status, boolInt(t.CanCreateSubtasks),
		nullable(t.StartDate), nullable(t.EndDate), t.ID))
}

func (r Repo) SetTradeOrder(ctx context.Context, tx *sql.Tx, id string, order int) error {
	return affectedOne(tx.ExecContext(ctx, `UPDATE trades SET position=? WHERE id=?`, order, id))
}

func (r Repo) DeleteTrade(ctx context.Context, tx *sql.Tx, id string) error {
	return affectedOne(tx.ExecContext(ctx, `DELETE FROM trades WHERE id=?`, id))
}

func (r Repo) GetTradeTx(ctx context.Context, tx *sql.Tx, id string) (domain.Trade, error) {
	return scanTrade(tx.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id=?`, id))
}

// TradeProjectIDTx resolves the project a trade belongs to.
func (r Repo) TradeProjectIDTx(ctx context.Context, tx *sql.Tx, tradeID string) (string, error) {
	return scanID(tx.QueryRowContext(ctx, `SELECT project_id FROM trades WHERE id=?`, tradeID))
}

// NextTradeOrder returns one past the highest order in the project.
func (r Repo) NextTradeOrder(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM trades WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

func listTrades(ctx context.Context, q queryer, projectID string) ([]domain.Trade, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE project_id=? ORDER BY position, created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Trade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
