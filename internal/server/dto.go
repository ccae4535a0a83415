package server

import (
	"encoding/json"

	"baulot/internal/domain"
	"baulot/internal/engine"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"1"`
}

type CreateProjectRequest struct {
	Name          string               `json:"name" minLength:"1"`
	Address       string               `json:"address,omitempty"`
	StartDate     string               `json:"start_date,omitempty" format:"date"`
	TargetEndDate string               `json:"target_end_date,omitempty" format:"date"`
	Status        domain.ProjectStatus `json:"status,omitempty" enum:"active,completed,paused,archived"`
	ClientID      *string              `json:"client_id,omitempty"`
}

type UpdateProjectRequest struct {
	Name          *string               `json:"name,omitempty"`
	Address       *string               `json:"address,omitempty"`
	StartDate     *string               `json:"start_date,omitempty"`
	TargetEndDate *string               `json:"target_end_date,omitempty"`
	Status        *domain.ProjectStatus `json:"status,omitempty" enum:"active,completed,paused,archived"`
	ClientID      *string               `json:"client_id,omitempty" doc:"empty string removes the client"`
}

type CreateTradeRequest struct {
	Name              string        `json:"name" minLength:"1"`
	ContractorID      *string       `json:"contractor_id,omitempty"`
	Order             *int          `json:"order,omitempty"`
	Status            domain.Status `json:"status,omitempty" enum:"pending,in_progress,done,blocked"`
	CanCreateSubtasks bool          `json:"can_create_subtasks,omitempty"`
	StartDate         string        `json:"start_date,omitempty" format:"date"`
	EndDate           string        `json:"end_date,omitempty" format:"date"`
}

type UpdateTradeRequest struct {
	Name              *string        `json:"name,omitempty"`
	ContractorID      *string        `json:"contractor_id,omitempty" doc:"empty string unassigns the trade"`
	Order             *int           `json:"order,omitempty"`
	Status            *domain.Status `json:"status,omitempty" enum:"pending,in_progress,done,blocked"`
	CanCreateSubtasks *bool          `json:"can_create_subtasks,omitempty"`
	StartDate         *string        `json:"start_date,omitempty"`
	EndDate           *string        `json:"end_date,omitempty"`
}

type ReorderTradesRequest struct {
	TradeIDs []string `json:"trade_ids"`
}

type CreateTaskRequest struct {
	Title         string        `json:"title" minLength:"1"`
	Description   string        `json:"description,omitempty"`
	Status        domain.Status `json:"status,omitempty" enum:"pending,in_progress,done,blocked"`
	BlockedReason *string       `json:"blocked_reason,omitempty"`
	DueDate       string        `json:"due_date,omitempty" format:"date"`
}

type UpdateTaskRequest struct {
	Title         *string        `json:"title,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Status        *domain.Status `json:"status,omitempty" enum:"pending,in_progress,done,blocked"`
	BlockedReason *string        `json:"blocked_reason,omitempty"`
	DueDate       *string        `json:"due_date,omitempty"`
}

type UpdatePhotoRequest struct {
	Caption    *string            `json:"caption,omitempty"`
	Visibility *domain.Visibility `json:"visibility,omitempty" enum:"internal,client"`
}

type CreateCommentRequest struct {
	Content    string            `json:"content" minLength:"1"`
	Visibility domain.Visibility `json:"visibility,omitempty" enum:"internal,client"`
}

// Response payloads

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at" format:"date-time"`
	User      domain.User `json:"user"`
}

type ProjectSummary struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Address       string               `json:"address"`
	StartDate     string               `json:"start_date,omitempty" format:"date"`
	TargetEndDate string               `json:"target_end_date,omitempty" format:"date"`
	Status        domain.ProjectStatus `json:"status" enum:"active,completed,paused,archived"`
	ArchitectID   *string              `json:"architect_id,omitempty"`
	ClientID      *string              `json:"client_id,omitempty"`
	CreatedAt     string               `json:"created_at" format:"date-time"`
	UpdatedAt     string               `json:"updated_at" format:"date-time"`
}

type PublishResponse struct {
	Published int `json:"published"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func projectSummary(p domain.Project) ProjectSummary {
	return ProjectSummary{
		ID:            p.ID,
		Name:          p.Name,
		Address:       p.Address,
		StartDate:     p.StartDate,
		TargetEndDate: p.TargetEndDate,
		Status:        p.Status,
		ArchitectID:   p.ArchitectID,
		ClientID:      p.ClientID,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func (r CreateProjectRequest) input() engine.ProjectInput {
	return engine.ProjectInput(r)
}

func (r UpdateProjectRequest) patch() engine.ProjectPatch {
	return engine.ProjectPatch(r)
}

func (r CreateTradeRequest) input() engine.TradeInput {
	return engine.TradeInput(r)
}

func (r UpdateTradeRequest) patch() engine.TradePatch {
	return engine.TradePatch(r)
}

func (r CreateTaskRequest) input() engine.TaskInput {
	return engine.TaskInput(r)
}

func (r UpdateTaskRequest) patch() engine.TaskPatch {
	return engine.TaskPatch(r)
}
