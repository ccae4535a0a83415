package engine

import (
	"context"
	"fmt"
	"strings"

	"baulot/internal/domain"
	"baulot/internal/engine/auth"
	"baulot/internal/events"
	"baulot/internal/progress"
	"baulot/internal/repo"
)

type ProjectInput struct {
	Name          string
	Address       string
	StartDate     string
	TargetEndDate string
	Status        domain.ProjectStatus
	ClientID      *string
}

// ProjectPatch changes only the non-nil fields. An empty ClientID clears
// the client.
type ProjectPatch struct {
	Name          *string
	Address       *string
	StartDate     *string
	TargetEndDate *string
	Status        *domain.ProjectStatus
	ClientID      *string
}

// CreateProject creates a project led by the calling architect.
func (e Engine) CreateProject(ctx context.Context, caller auth.Caller, in ProjectInput) (domain.Project, error) {
	if err := auth.Require(auth.ProjectCreate, caller, auth.Facts{}); err != nil {
		return domain.Project{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Project{}, invalid("name", "is required")
	}
	if in.Status == "" {
		in.Status = domain.ProjectActive
	}
	if !in.Status.Valid() {
		return domain.Project{}, invalid("status", "unknown project status %q", in.Status)
	}
	if err := validDate("start_date", in.StartDate); err != nil {
		return domain.Project{}, err
	}
	if err := validDate("target_end_date", in.TargetEndDate); err != nil {
		return domain.Project{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if in.ClientID != nil && *in.ClientID != "" {
		if err := e.requireUserRole(ctx, tx, "client_id", *in.ClientID, domain.RoleClient); err != nil {
			return domain.Project{}, err
		}
	} else {
		in.ClientID = nil
	}
	now := e.timestamp()
	architect := caller.ID
	p := domain.Project{
		ID:            newID(),
		Name:          name,
		Address:       strings.TrimSpace(in.Address),
		StartDate:     in.StartDate,
		TargetEndDate: in.TargetEndDate,
		Status:        in.Status,
		ArchitectID:   &architect,
		ClientID:      in.ClientID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Trades:        []domain.Trade{},
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.ProjectCreated, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: caller.ID,
		Payload: events.Payload{"name": p.Name, "status": p.Status},
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ListProjects returns the project rows the caller may read, without trades.
func (e Engine) ListProjects(ctx context.Context, caller auth.Caller) ([]domain.Project, error) {
	if caller.ID == "" || caller.Role == "" {
		return nil, auth.ErrUnauthorized
	}
	return e.Repo.ListProjectsFor(ctx, caller.Role, caller.ID)
}

// GetProject returns the caller's filtered view of the full project tree.
func (e Engine) GetProject(ctx context.Context, caller auth.Caller, id string) (domain.Project, error) {
	if caller.ID == "" || caller.Role == "" {
		return domain.Project{}, auth.ErrUnauthorized
	}
	p, err := e.Repo.LoadProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	view, err := scope(caller, p)
	if err != nil {
		return domain.Project{}, err
	}
	e.resolvePhotoURLs(ctx, &view)
	return view, nil
}

// Progress aggregates the trades visible to the caller.
func (e Engine) Progress(ctx context.Context, caller auth.Caller, id string) (progress.Summary, error) {
	view, err := e.GetProject(ctx, caller, id)
	if err != nil {
		return progress.Summary{}, err
	}
	return progress.Aggregate(view), nil
}

// UpdateProject applies patch. An architect updating a project without an
// architect becomes its architect.
func (e Engine) UpdateProject(ctx context.Context, caller auth.Caller, id string, patch ProjectPatch) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := auth.Require(auth.ProjectUpdate, caller, auth.Facts{ProjectArchitectID: p.ArchitectID}); err != nil {
		return domain.Project{}, err
	}
	changed := map[string]any{}
	if p.ArchitectID == nil {
		architect := caller.ID
		p.ArchitectID = &architect
		changed["architect_id"] = architect
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.Project{}, invalid("name", "must not be empty")
		}
		p.Name = name
		changed["name"] = name
	}
	if patch.Address != nil {
		p.Address = strings.TrimSpace(*patch.Address)
		changed["address"] = p.Address
	}
	if patch.StartDate != nil {
		if err := validDate("start_date", *patch.StartDate); err != nil {
			return domain.Project{}, err
		}
		p.StartDate = *patch.StartDate
		changed["start_date"] = p.StartDate
	}
	if patch.TargetEndDate != nil {
		if err := validDate("target_end_date", *patch.TargetEndDate); err != nil {
			return domain.Project{}, err
		}
		p.TargetEndDate = *patch.TargetEndDate
		changed["target_end_date"] = p.TargetEndDate
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return domain.Project{}, invalid("status", "unknown project status %q", *patch.Status)
		}
		p.Status = *patch.Status
		changed["status"] = p.Status
	}
	if patch.ClientID != nil {
		if *patch.ClientID == "" {
			p.ClientID = nil
		} else {
			if err := e.requireUserRole(ctx, tx, "client_id", *patch.ClientID, domain.RoleClient); err != nil {
				return domain.Project{}, err
			}
			client := *patch.ClientID
			p.ClientID = &client
		}
		changed["client_id"] = *patch.ClientID
	}
	p.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.ProjectUpdated, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: caller.ID,
		Payload: events.Payload(changed),
	}); err != nil {
		return domain.Project{}, err
	}
	full, err := e.Repo.LoadProjectTx(ctx, tx, p.ID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	e.resolvePhotoURLs(ctx, &full)
	return full, nil
}

// DeleteProject removes the project with all trades, tasks and photos.
func (e Engine) DeleteProject(ctx context.Context, caller auth.Caller, id string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := auth.Require(auth.ProjectDelete, caller, auth.Facts{ProjectArchitectID: p.ArchitectID}); err != nil {
		return err
	}
	keys, err := e.Repo.StorageKeys(ctx, tx, repo.ScopeProject, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.ProjectDeleted, ProjectID: id, EntityKind: "project", EntityID: id, ActorID: caller.ID,
		Payload: events.Payload{"name": p.Name},
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.removeObjects(ctx, keys)
	return nil
}

// ListEvents returns the project's audit log, newest first.
func (e Engine) ListEvents(ctx context.Context, caller auth.Caller, projectID string, before int64, limit int) ([]domain.Event, error) {
	if caller.ID == "" || caller.Role == "" {
		return nil, auth.ErrUnauthorized
	}
	p, err := e.Repo.LoadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := scope(caller, p); err != nil {
		return nil, err
	}
	if err := auth.Require(auth.ProjectAudit, caller, auth.Facts{ProjectArchitectID: p.ArchitectID}); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, repo.EventFilters{ProjectID: projectID, Before: before, Limit: limit})
}

// PublishCalendar pushes the project schedule to the configured calendar.
func (e Engine) PublishCalendar(ctx context.Context, caller auth.Caller, projectID string) (int, error) {
	if e.Calendar == nil {
		return 0, ErrCalendarNotConfigured
	}
	view, err := e.GetProject(ctx, caller, projectID)
	if err != nil {
		return 0, err
	}
	if err := auth.Require(auth.ProjectUpdate, caller, auth.Facts{ProjectArchitectID: view.ArchitectID}); err != nil {
		return 0, err
	}
	n, err := e.Calendar.Publish(ctx, view)
	if err != nil {
		return 0, fmt.Errorf("publish calendar: %w", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return n, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.CalendarPushed, ProjectID: projectID, EntityKind: "project", EntityID: projectID, ActorID: caller.ID,
		Payload: events.Payload{"entries": n},
	}); err != nil {
		return n, err
	}
	return n, tx.Commit()
}
