package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written to the audit log.
const (
	ProjectCreated  = "project.created"
	ProjectUpdated  = "project.updated"
	ProjectDeleted  = "project.deleted"
	TradeCreated    = "trade.created"
	TradeUpdated    = "trade.updated"
	TradeDeleted    = "trade.deleted"
	TradesReordered = "trade.reordered"
	TaskCreated     = "task.created"
	TaskUpdated     = "task.updated"
	TaskDeleted     = "task.deleted"
	PhotoUploaded   = "photo.uploaded"
	PhotoUpdated    = "photo.updated"
	PhotoDeleted    = "photo.deleted"
	CommentCreated  = "comment.created"
	UserCreated     = "user.created"
	CalendarPushed  = "calendar.published"
)

type Payload map[string]any

// Entry is one audit record before it is stored.
type Entry struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

// Writer appends entries inside the caller's transaction so the audit log
// commits or rolls back together with the mutation it describes.
type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	payload := e.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), e.Type, nullable(e.ProjectID), e.EntityKind, nullable(e.EntityID), e.ActorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", e.Type, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
