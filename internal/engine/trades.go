package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"baulot/internal/domain"
	"baulot/internal/engine/auth"
	"baulot/internal/events"
	"baulot/internal/repo"
)

type TradeInput struct {
	Name              string
	ContractorID      *string
	Order             *int
	Status            domain.Status
	CanCreateSubtasks bool
	StartDate         string
	EndDate           string
}

// TradePatch changes only the non-nil fields. An empty ContractorID
// unassigns the trade.
type TradePatch struct {
	Name              *string
	ContractorID      *string
	Order             *int
	Status            *domain.Status
	CanCreateSubtasks *bool
	StartDate         *string
	EndDate           *string
}

func (e Engine) CreateTrade(ctx context.Context, caller auth.Caller, projectID string, in TradeInput) (domain.Trade, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Trade{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Trade{}, err
	}
	if err := auth.Require(auth.TradeCreate, caller, auth.Facts{ProjectArchitectID: p.ArchitectID}); err != nil {
		return domain.Trade{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Trade{}, invalid("name", "is required")
	}
	if in.Status == "" {
		in.Status = domain.StatusPending
	}
	if !in.Status.Valid() {
		return domain.Trade{}, invalid("status", "unknown status %q", in.Status)
	}
	if err := validDate("start_date", in.StartDate); err != nil {
		return domain.Trade{}, err
	}
	if err := validDate("end_date", in.EndDate); err != nil {
		return domain.Trade{}, err
	}
	if in.ContractorID != nil && *in.ContractorID == "" {
		in.ContractorID = nil
	}
	if in.ContractorID != nil {
		if err := e.requireUserRole(ctx, tx, "contractor_id", *in.ContractorID, domain.RoleContractor); err != nil {
			return domain.Trade{}, err
		}
	}
	var order int
	if in.Order != nil {
		order = *in.Order
	} else if order, err = e.Repo.NextTradeOrder(ctx, tx, projectID); err != nil {
		return domain.Trade{}, err
	}
	tr := domain.Trade{
		ID:                newID(),
		ProjectID:         projectID,
		Name:              name,
		ContractorID:      in.ContractorID,
		Order:             order,
		Status:            in.Status,
		CanCreateSubtasks: in.CanCreateSubtasks,
		StartDate:         in.StartDate,
		EndDate:           in.EndDate,
		CreatedAt:         e.timestamp(),
		Tasks:             []domain.Task{},
	}
	if err := e.Repo.InsertTrade(ctx, tx, tr); err != nil {
		return domain.Trade{}, fmt.Errorf("insert trade: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.TradeCreated, ProjectID: projectID, EntityKind: "trade", EntityID: tr.ID, ActorID: caller.ID,
		Payload: events.Payload{"name": tr.Name, "order": tr.Order},
	}); err != nil {
		return domain.Trade{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Trade{}, err
	}
	return tr, nil
}

// tradeInProject loads a trade and its project inside tx, treating a trade
// of another project as absent.
func (e Engine) tradeInProject(ctx context.Context, tx *sql.Tx, projectID, tradeID string) (domain.Project, domain.Trade, error) {
	tr, err := e.Repo.GetTradeTx(ctx, tx, tradeID)
	if err != nil {
		return domain.Project{}, domain.Trade{}, err
	}
	if tr.ProjectID != projectID {
		return domain.Project{}, domain.Trade{}, repo.ErrNotFound
	}
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, domain.Trade{}, err
	}
	return p, tr, nil
}

func (e Engine) UpdateTrade(ctx context.Context, caller auth.Caller, projectID, tradeID string, patch TradePatch) (domain.Trade, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Trade{}, err
	}
	defer tx.Rollback()

	p, tr, err := e.tradeInProject(ctx, tx, projectID, tradeID)
	if err != nil {
		return domain.Trade{}, err
	}
	if err := auth.Require(auth.TradeUpdate, caller, auth.Facts{ProjectArchitectID: p.ArchitectID}); err != nil {
		return domain.Trade{}, err
	}
	changed := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.Trade{}, invalid("name", "must not be empty")
		}
		tr.Name = name
		changed["name"] = name
	}
	if patch.ContractorID != nil {
		if *patch.ContractorID == "" {
			tr.ContractorID = nil
		} else {
			if err := e.requireUserRole(ctx, tx, "contractor_id", *patch.ContractorID, domain.RoleContractor); err != nil {
				return domain.Trade{}, err
			}
			id := *patch.ContractorID
			tr.ContractorID = &id
		}
		changed["contractor_id"] = *patch.ContractorID
	}
	if patch.Order != nil {
		tr.Order = *patch.Order
		changed["order"] = tr.Order
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return domain.Trade{}, invalid("status", "unknown status %q", *patch.Status)
		}
		tr.Status = *patch.Status
		changed["status"] = tr.Status
	}
	if patch.CanCreateSubtasks != nil {
		tr.CanCreateSubtasks = *patch.CanCreateSubtasks
		changed["can_create_subtasks"] = tr.CanCreateSubtasks
	}
	if patch.StartDate != nil {
		if err := validDate("start_date", *patch.StartDate); err != nil {
			return domain.Trade{}, err
		}
		tr.StartDate = *patch.StartDate
		changed["start_date"] = tr.StartDate
	}
	if patch.EndDate != nil {
		if err := validDate("end_date", *patch.EndDate); err != nil {
			return domain.Trade{}, err
		}
		tr.EndDate = *patch.EndDate
		changed["end_date"] = tr.EndDate
	}
	if err := e.Repo.UpdateTrade(ctx, tx, tr); err != nil {
		return domain.Trade{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.TradeUpdated, ProjectID: projectID, EntityKind: "trade", EntityID: tr.ID, ActorID: caller.ID,
		Payload: events.Payload(changed),
	}); err != nil {
		return domain.Trade{}, err
	}
	full, err := e.Repo.LoadProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Trade{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Trade{}, err
	}
	if loaded, ok := full.TradeByID(tr.ID); ok {
		return loaded, nil
	}
	return tr, nil
}

func (e Engine) DeleteTrade(ctx context.Context, caller auth.Caller, projectID, tradeID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, tr, err := e.tradeInProject(ctx, tx, projectID, tradeID)
	if err != nil {
		return err
	}
	if err := auth.Require(auth.TradeDelete, caller, auth.Facts{ProjectArchitectID: p.ArchitectID}); err != nil {
		return err
	}
	keys, err := e.Repo.StorageKeys(ctx, tx, repo.ScopeTrade, tradeID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteTrade(ctx, tx, tradeID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.TradeDeleted, ProjectID: projectID, EntityKind: "trade", EntityID: tradeID, ActorID: caller.ID,
		Payload: events.Payload{"name": tr.Name},
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.removeObjects(ctx, keys)
	return nil
}

// ReorderTrades assigns order 0..n-1 following tradeIDs, which must list
// every trade of the project exactly once. The read and all writes share one
// transaction so concurrent reorders cannot interleave.
func (e Engine) ReorderTrades(ctx context.Context, caller auth.Caller, projectID string, tradeIDs []string) ([]domain.Trade, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p, err := e.Repo.LoadProjectTx(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(auth.TradeUpdate, caller, auth.Facts{ProjectArchitectID: p.ArchitectID}); err != nil {
		return nil, err
	}
	if len(tradeIDs) != len(p.Trades) {
		return nil, invalid("trade_ids", "expected %d trade ids, got %d", len(p.Trades), len(tradeIDs))
	}
	seen := make(map[string]bool, len(tradeIDs))
	for _, id := range tradeIDs {
		if seen[id] {
			return nil, invalid("trade_ids", "duplicate trade %s", id)
		}
		if _, ok := p.TradeByID(id); !ok {
			return nil, invalid("trade_ids", "trade %s is not part of project %s", id, projectID)
		}
		seen[id] = true
	}
	for i, id := range tradeIDs {
		if err := e.Repo.SetTradeOrder(ctx, tx, id, i); err != nil {
			return nil, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.TradesReordered, ProjectID: projectID, EntityKind: "project", EntityID: projectID, ActorID: caller.ID,
		Payload: events.Payload{"trade_ids": tradeIDs},
	}); err != nil {
		return nil, err
	}
	full, err := e.Repo.LoadProjectTx(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return full.Trades, nil
}
