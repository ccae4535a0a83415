// Package auth holds the write-authorization policy for project resources.
//
// Decisions are pure functions over the caller and ownership facts loaded
// from the store. Reads are handled by the visibility package instead.
package auth

import (
	"errors"
	"fmt"

	"baulot/internal/domain"
)

// Action names a guarded mutation.
type Action string

const (
	ProjectCreate Action = "project.create"
	ProjectUpdate Action = "project.update"
	ProjectDelete Action = "project.delete"
	// ProjectAudit guards the audit log; only the assigned architect may read it.
	ProjectAudit Action = "project.audit"

	TradeCreate Action = "trade.create"
	TradeUpdate Action = "trade.update"
	TradeDelete Action = "trade.delete"

	TaskCreate Action = "task.create"
	TaskUpdate Action = "task.update"
	TaskDelete Action = "task.delete"

	PhotoUpload Action = "photo.upload"
	PhotoUpdate Action = "photo.update"
	PhotoDelete Action = "photo.delete"

	CommentCreate Action = "comment.create"
)

// Outcome is the result of a policy decision.
type Outcome int

const (
	Allow Outcome = iota
	Forbidden
	Unauthorized
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Forbidden:
		return "forbidden"
	case Unauthorized:
		return "unauthorized"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID   string
	Role domain.Role
}

// Facts carries the authoritative ownership fields of the target resource.
// Fields irrelevant to an action are ignored.
type Facts struct {
	ProjectArchitectID     *string
	TradeContractorID      *string
	TradeCanCreateSubtasks bool
	PhotoUploadedBy        string
}

// ErrUnauthorized indicates a request without a usable identity.
var ErrUnauthorized = errors.New("authentication required")

// ForbiddenError indicates an authenticated caller lacking permission.
type ForbiddenError struct {
	Action Action
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

// Decide applies the decision table to a single action.
func Decide(action Action, caller Caller, facts Facts) Outcome {
	if caller.ID == "" || caller.Role == "" {
		return Unauthorized
	}
	if !caller.Role.Valid() {
		return Forbidden
	}
	switch action {
	case ProjectCreate, ProjectUpdate, ProjectDelete:
		if caller.Role != domain.RoleArchitect {
			return Forbidden
		}
		return allowIf(facts.ProjectArchitectID == nil || *facts.ProjectArchitectID == caller.ID)
	case ProjectAudit, TradeCreate, TradeUpdate, TradeDelete:
		if caller.Role != domain.RoleArchitect {
			return Forbidden
		}
		return allowIf(is(facts.ProjectArchitectID, caller.ID))
	case TaskUpdate:
		switch caller.Role {
		case domain.RoleArchitect:
			return Allow
		case domain.RoleContractor:
			return allowIf(is(facts.TradeContractorID, caller.ID))
		}
		return Forbidden
	case TaskCreate:
		switch caller.Role {
		case domain.RoleArchitect:
			return Allow
		case domain.RoleContractor:
			return allowIf(is(facts.TradeContractorID, caller.ID) && facts.TradeCanCreateSubtasks)
		}
		return Forbidden
	case TaskDelete:
		return allowIf(caller.Role == domain.RoleArchitect)
	case PhotoUpload, PhotoUpdate, PhotoDelete:
		switch caller.Role {
		case domain.RoleArchitect:
			return Allow
		case domain.RoleContractor:
			return allowIf(facts.PhotoUploadedBy == caller.ID)
		}
		return Forbidden
	case CommentCreate:
		return allowIf(caller.Role == domain.RoleArchitect || caller.Role == domain.RoleContractor)
	}
	return Forbidden
}

// Require is Decide returning an error for every outcome except Allow.
func Require(action Action, caller Caller, facts Facts) error {
	switch Decide(action, caller, facts) {
	case Allow:
		return nil
	case Unauthorized:
		return ErrUnauthorized
	default:
		return ForbiddenError{Action: action}
	}
}

// CanViewProject reports whether the caller may read the project at all.
// Contractors qualify through any trade assigned to them.
func CanViewProject(caller Caller, p domain.Project) bool {
	if caller.ID == "" {
		return false
	}
	switch caller.Role {
	case domain.RoleArchitect:
		return is(p.ArchitectID, caller.ID)
	case domain.RoleClient:
		return is(p.ClientID, caller.ID)
	case domain.RoleContractor:
		for _, tr := range p.Trades {
			if is(tr.ContractorID, caller.ID) {
				return true
			}
		}
	}
	return false
}

func is(owner *string, id string) bool {
	return owner != nil && *owner == id
}

func allowIf(ok bool) Outcome {
	if ok {
		return Allow
	}
	return Forbidden
}
