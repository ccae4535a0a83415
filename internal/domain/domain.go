package domain

// Role decides both write permissions and read visibility.
type Role string

const (
	RoleArchitect  Role = "architect"
	RoleContractor Role = "contractor"
	RoleClient     Role = "client"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleArchitect, RoleContractor, RoleClient:
		return true
	}
	return false
}

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectPaused    ProjectStatus = "paused"
	ProjectArchived  ProjectStatus = "archived"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectCompleted, ProjectPaused, ProjectArchived:
		return true
	}
	return false
}

// Status is shared by tasks and trades.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusBlocked:
		return true
	}
	return false
}

// Visibility marks photos and comments as client-facing or internal-only.
type Visibility string

const (
	VisibilityInternal Visibility = "internal"
	VisibilityClient   Visibility = "client"
)

func (v Visibility) Valid() bool {
	return v == VisibilityInternal || v == VisibilityClient
}

type Project struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Address       string        `json:"address"`
	StartDate     string        `json:"start_date,omitempty" format:"date"`
	TargetEndDate string        `json:"target_end_date,omitempty" format:"date"`
	Status        ProjectStatus `json:"status" enum:"active,completed,paused,archived"`
	ArchitectID   *string       `json:"architect_id,omitempty"`
	ClientID      *string       `json:"client_id,omitempty"`
	CreatedAt     string        `json:"created_at" format:"date-time"`
	UpdatedAt     string        `json:"updated_at" format:"date-time"`
	Trades        []Trade       `json:"trades"`
}

type Trade struct {
	ID                string  `json:"id"`
	ProjectID         string  `json:"project_id"`
	Name              string  `json:"name"`
	ContractorID      *string `json:"contractor_id,omitempty"`
	Order             int     `json:"order"`
	Status            Status  `json:"status" enum:"pending,in_progress,done,blocked"`
	CanCreateSubtasks bool    `json:"can_create_subtasks"`
	StartDate         string  `json:"start_date,omitempty" format:"date"`
	EndDate           string  `json:"end_date,omitempty" format:"date"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	Tasks             []Task  `json:"tasks"`
}

type Task struct {
	ID            string    `json:"id"`
	TradeID       string    `json:"trade_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Status        Status    `json:"status" enum:"pending,in_progress,done,blocked"`
	BlockedReason *string   `json:"blocked_reason,omitempty"`
	DueDate       string    `json:"due_date,omitempty" format:"date"`
	CreatedAt     string    `json:"created_at" format:"date-time"`
	UpdatedAt     string    `json:"updated_at" format:"date-time"`
	Photos        []Photo   `json:"photos"`
	Comments      []Comment `json:"comments"`
}

type Photo struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	UploadedBy  string     `json:"uploaded_by"`
	Visibility  Visibility `json:"visibility" enum:"internal,client"`
	Caption     string     `json:"caption,omitempty"`
	StorageKey  string     `json:"-"`
	URL         string     `json:"url"`
	ContentType string     `json:"content_type"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id"`
	AuthorID   string     `json:"author_id"`
	AuthorRole Role       `json:"author_role" enum:"architect,contractor,client"`
	Visibility Visibility `json:"visibility" enum:"internal,client"`
	Content    string     `json:"content"`
	CreatedAt  string     `json:"created_at" format:"date-time"`
}

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         Role   `json:"role" enum:"architect,contractor,client"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// TradeByID returns the trade with the given id from a loaded snapshot.
func (p Project) TradeByID(id string) (Trade, bool) {
	for _, t := range p.Trades {
		if t.ID == id {
			return t, true
		}
	}
	return Trade{}, false
}

// TaskByID searches all trades of a loaded snapshot for a task.
func (p Project) TaskByID(id string) (Trade, Task, bool) {
	for _, tr := range p.Trades {
		for _, t := range tr.Tasks {
			if t.ID == id {
				return tr, t, true
			}
		}
	}
	return Trade{}, Task{}, false
}

// PhotoByID searches all tasks of a loaded snapshot for a photo.
func (p Project) PhotoByID(id string) (Trade, Task, Photo, bool) {
	for _, tr := range p.Trades {
		for _, t := range tr.Tasks {
			for _, ph := range t.Photos {
				if ph.ID == id {
					return tr, t, ph, true
				}
			}
		}
	}
	return Trade{}, Task{}, Photo{}, false
}
