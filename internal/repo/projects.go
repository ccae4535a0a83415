package repo

import (
	"context"
	"database/sql"

	"baulot/internal/domain"
)

const projectColumns = `id,name,address,start_date,target_end_date,status,architect_id,client_id,created_at,updated_at`

func scanProject(row interface{ Scan(...any) error }) (domain.Project, error) {
	var p domain.Project
	var start, end, architect, client sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Address, &start, &end, &p.Status, &architect, &client, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.StartDate = start.String
	p.TargetEndDate = end.String
	p.ArchitectID = stringPtr(architect)
	p.ClientID = stringPtr(client)
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.Address, nullable(p.StartDate), nullable(p.TargetEndDate), p.Status,
		nullableStringPtr(p.ArchitectID), nullableStringPtr(p.ClientID), p.CreatedAt, p.UpdatedAt)
	return err
}

// UpdateProject writes every mutable column of p.
func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	return affectedOne(tx.ExecContext(ctx, `UPDATE projects SET name=?, address=?, start_date=?, target_end_date=?, status=?, architect_id=?, client_id=?, updated_at=? WHERE id=?`,
		p.Name, p.Address, nullable(p.StartDate), nullable(p.TargetEndDate), p.Status,
		nullableStringPtr(p.ArchitectID), nullableStringPtr(p.ClientID), p.UpdatedAt, p.ID))
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	return affectedOne(tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id))
}

// GetProject returns the project row without trades.
func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// ListProjects returns every project row, newest first.
func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return r.listProjects(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id`)
}

// ListProjectsFor returns the project rows a caller may read: projects they
// lead as architect, projects they are client of, or projects with at least
// one trade assigned to them as contractor.
func (r Repo) ListProjectsFor(ctx context.Context, role domain.Role, userID string) ([]domain.Project, error) {
	var query string
	switch role {
	case domain.RoleArchitect:
		query = `SELECT ` + projectColumns + ` FROM projects WHERE architect_id=? ORDER BY created_at DESC, id`
	case domain.RoleClient:
		query = `SELECT ` + projectColumns + ` FROM projects WHERE client_id=? ORDER BY created_at DESC, id`
	case domain.RoleContractor:
		query = `SELECT ` + projectColumns + ` FROM projects WHERE id IN (SELECT project_id FROM trades WHERE contractor_id=?) ORDER BY created_at DESC, id`
	default:
		return []domain.Project{}, nil
	}
	return r.listProjects(ctx, query, userID)
}

func (r Repo) listProjects(ctx context.Context, query string, args ...any) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		p.Trades = []domain.Trade{}
		res = append(res, p)
	}
	return res, rows.Err()
}

// LoadProject returns the full project snapshot: trades in display order,
// each with its tasks, photos and comments.
func (r Repo) LoadProject(ctx context.Context, id string) (domain.Project, error) {
	return loadProject(ctx, r.DB, id)
}

func (r Repo) LoadProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return loadProject(ctx, tx, id)
}

func loadProject(ctx context.Context, q queryer, id string) (domain.Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	trades, err := listTrades(ctx, q, id)
	if err != nil {
		return p, err
	}
	tasks, err := listProjectTasks(ctx, q, id)
	if err != nil {
		return p, err
	}
	photos, err := listProjectPhotos(ctx, q, id)
	if err != nil {
		return p, err
	}
	comments, err := listProjectComments(ctx, q, id)
	if err != nil {
		return p, err
	}
	for i := range tasks {
		tasks[i].Photos = photos[tasks[i].ID]
		if tasks[i].Photos == nil {
			tasks[i].Photos = []domain.Photo{}
		}
		tasks[i].Comments = comments[tasks[i].ID]
		if tasks[i].Comments == nil {
			tasks[i].Comments = []domain.Comment{}
		}
	}
	byTrade := map[string][]domain.Task{}
	for _, t := range tasks {
		byTrade[t.TradeID] = append(byTrade[t.TradeID], t)
	}
	for i := range trades {
		trades[i].Tasks = byTrade[trades[i].ID]
		if trades[i].Tasks == nil {
			trades[i].Tasks = []domain.Task{}
		}
	}
	p.Trades = trades
	return p, nil
}
