package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"baulot/internal/domain"
	"baulot/internal/engine/auth"
	"baulot/internal/events"
	"baulot/internal/repo"
	"baulot/internal/storage"
	"baulot/internal/visibility"
)

// DefaultMaxPhotoSize bounds uploads when no limit is configured.
const DefaultMaxPhotoSize = 10 << 20

// Engine runs every use case against the store. Each mutation loads the
// authoritative records, applies the policy and writes its audit event in a
// single transaction.
type Engine struct {
	DB           *sql.DB
	Repo         repo.Repo
	Events       events.Writer
	Storage      storage.Store
	Calendar     CalendarPublisher
	MaxPhotoSize int64
	// PhotoBaseURL prefixes the API route that serves photos whose store
	// has no public URL.
	PhotoBaseURL string
	Now          func() time.Time
	Logger       *slog.Logger
}

// CalendarPublisher pushes a project schedule to an external calendar and
// returns the number of entries written.
type CalendarPublisher interface {
	Publish(ctx context.Context, p domain.Project) (int, error)
}

// ErrCalendarNotConfigured is returned when no calendar publisher is set.
var ErrCalendarNotConfigured = errors.New("calendar publishing not configured")

// ValidationError reports unusable input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func New(db *sql.DB, st storage.Store) Engine {
	if st == nil {
		st = storage.Noop{}
	}
	return Engine{
		DB:           db,
		Repo:         repo.Repo{DB: db},
		Events:       events.Writer{},
		Storage:      st,
		MaxPhotoSize: DefaultMaxPhotoSize,
		Now:          time.Now,
		Logger:       slog.Default(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) store() storage.Store {
	if e.Storage != nil {
		return e.Storage
	}
	return storage.Noop{}
}

func newID() string {
	return uuid.NewString()
}

// scope returns the caller's view of a fully loaded project. A project the
// caller may not read is reported as not found so its existence does not leak.
func scope(caller auth.Caller, p domain.Project) (domain.Project, error) {
	if err := canView(caller, p); err != nil {
		return domain.Project{}, err
	}
	return visibility.Project(caller.Role, caller.ID, p), nil
}

func canView(caller auth.Caller, p domain.Project) error {
	if caller.ID == "" || caller.Role == "" {
		return auth.ErrUnauthorized
	}
	if !auth.CanViewProject(caller, p) {
		return repo.ErrNotFound
	}
	return nil
}

// taskScope loads the project owning taskID inside tx and returns the full
// snapshot plus the trade and task as the caller sees them.
func (e Engine) taskScope(ctx context.Context, tx *sql.Tx, caller auth.Caller, taskID string) (domain.Project, domain.Trade, domain.Task, error) {
	projectID, err := e.Repo.TaskProjectIDTx(ctx, tx, taskID)
	if err != nil {
		return domain.Project{}, domain.Trade{}, domain.Task{}, err
	}
	p, err := e.Repo.LoadProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, domain.Trade{}, domain.Task{}, err
	}
	if err := canView(caller, p); err != nil {
		return domain.Project{}, domain.Trade{}, domain.Task{}, err
	}
	tr, t, ok := visibility.Task(caller.Role, caller.ID, p, taskID)
	if !ok {
		return domain.Project{}, domain.Trade{}, domain.Task{}, repo.ErrNotFound
	}
	return p, tr, t, nil
}

// removeObjects deletes stored photo objects after their rows are gone.
// Failures only leave orphaned objects, so they are logged and skipped.
func (e Engine) removeObjects(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := e.store().Remove(ctx, k); err != nil {
			e.logger().Warn("remove photo object", "key", k, "error", err)
		}
	}
}

// photoURL returns where the photo's bytes can be fetched: the store's
// direct URL when it has one, else the authenticated file route.
func (e Engine) photoURL(ctx context.Context, ph domain.Photo) (string, error) {
	u, err := e.store().PublicURL(ctx, ph.StorageKey)
	if errors.Is(err, storage.ErrNoPublicURL) {
		return strings.TrimSuffix(e.PhotoBaseURL, "/") + "/photos/" + ph.ID + "/file", nil
	}
	return u, err
}

// resolvePhotoURLs refreshes photo URLs from storage; pre-signed URLs expire
// so the stored value is only a fallback.
func (e Engine) resolvePhotoURLs(ctx context.Context, p *domain.Project) {
	for i := range p.Trades {
		for j := range p.Trades[i].Tasks {
			e.resolveTaskPhotoURLs(ctx, &p.Trades[i].Tasks[j])
		}
	}
}

func (e Engine) resolveTaskPhotoURLs(ctx context.Context, t *domain.Task) {
	for i := range t.Photos {
		if u, err := e.photoURL(ctx, t.Photos[i]); err == nil {
			t.Photos[i].URL = u
		}
	}
}

func validDate(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, v); err != nil {
		return invalid(field, "expected YYYY-MM-DD, got %q", v)
	}
	return nil
}

// requireUserRole checks that id names an existing user with the given role.
func (e Engine) requireUserRole(ctx context.Context, tx *sql.Tx, field, id string, role domain.Role) error {
	u, err := e.Repo.GetUserTx(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return invalid(field, "unknown user %s", id)
	}
	if err != nil {
		return err
	}
	if u.Role != role {
		return invalid(field, "user %s is not a %s", id, role)
	}
	return nil
}
