package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"baulot/internal/db"
	"baulot/internal/domain"
	"baulot/internal/engine"
	"baulot/internal/engine/auth"
	"baulot/internal/migrate"
	"baulot/internal/repo"
	"baulot/internal/storage"
)

type testEnv struct {
	Engine   engine.Engine
	Ctx      context.Context
	PhotoDir string

	Architect, OtherArchitect auth.Caller
	Con1, Con2, Client        auth.Caller
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Path: filepath.Join(dir, "baulot.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	photoDir := filepath.Join(dir, "photos")
	st, err := storage.NewLocal(photoDir)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	eng := engine.New(conn, st)
	// Each call advances the clock so created_at orders rows deterministically.
	var tick atomic.Int64
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return start.Add(time.Duration(tick.Add(1)) * time.Second) }

	env := testEnv{Engine: eng, Ctx: ctx, PhotoDir: photoDir}
	env.Architect = env.user(t, "arch@example.com", domain.RoleArchitect)
	env.OtherArchitect = env.user(t, "arch2@example.com", domain.RoleArchitect)
	env.Con1 = env.user(t, "elektro@example.com", domain.RoleContractor)
	env.Con2 = env.user(t, "sanitaer@example.com", domain.RoleContractor)
	env.Client = env.user(t, "bauherr@example.com", domain.RoleClient)
	return env
}

func (env testEnv) user(t *testing.T, email string, role domain.Role) auth.Caller {
	t.Helper()
	u, err := env.Engine.CreateUser(env.Ctx, engine.NewUser{Email: email, Name: email, Role: role, Password: "correct-horse"})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return auth.Caller{ID: u.ID, Role: u.Role}
}

type seeded struct {
	Project                     domain.Project
	Elektro, Sanitaer, Maler    domain.Trade
	ElektroTasks, SanitaerTasks []domain.Task
}

// seed builds a project with an electrical trade (Con1), a plumbing trade
// (Con2) and an unassigned painting trade.
func (env testEnv) seed(t *testing.T) seeded {
	t.Helper()
	var s seeded
	var err error
	s.Project, err = env.Engine.CreateProject(env.Ctx, env.Architect, engine.ProjectInput{
		Name: "Haus am See", Address: "Seeweg 1", StartDate: "2024-03-01", TargetEndDate: "2024-12-20",
		ClientID: &env.Client.ID,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	mkTrade := func(name string, contractor *string, subtasks bool) domain.Trade {
		tr, err := env.Engine.CreateTrade(env.Ctx, env.Architect, s.Project.ID, engine.TradeInput{
			Name: name, ContractorID: contractor, CanCreateSubtasks: subtasks,
			StartDate: "2024-04-01", EndDate: "2024-05-15",
		})
		if err != nil {
			t.Fatalf("create trade %s: %v", name, err)
		}
		return tr
	}
	s.Elektro = mkTrade("Elektro", &env.Con1.ID, true)
	s.Sanitaer = mkTrade("Sanitär", &env.Con2.ID, false)
	s.Maler = mkTrade("Maler", nil, false)

	mkTask := func(tr domain.Trade, title string, status domain.Status) domain.Task {
		task, err := env.Engine.CreateTask(env.Ctx, env.Architect, tr.ID, engine.TaskInput{Title: title, Status: status})
		if err != nil {
			t.Fatalf("create task %s: %v", title, err)
		}
		return task
	}
	s.ElektroTasks = []domain.Task{
		mkTask(s.Elektro, "Kabel ziehen", domain.StatusDone),
		mkTask(s.Elektro, "Dosen setzen", domain.StatusDone),
		mkTask(s.Elektro, "Verteiler", domain.StatusInProgress),
		mkTask(s.Elektro, "Abnahme", domain.StatusBlocked),
	}
	s.SanitaerTasks = []domain.Task{
		mkTask(s.Sanitaer, "Rohre", domain.StatusPending),
	}
	return s
}

func TestProgressIsWeightedAndRoleScoped(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)

	sum, err := env.Engine.Progress(env.Ctx, env.Architect, s.Project.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(sum.Trades) != 3 {
		t.Fatalf("architect should see 3 trades, got %d", len(sum.Trades))
	}
	// 2 done of 5 tasks.
	if sum.TotalPercentage != 40 || sum.BlockedCount != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Trades[0].TradeName != "Elektro" || sum.Trades[0].Percentage != 50 {
		t.Fatalf("unexpected first trade: %+v", sum.Trades[0])
	}

	con, err := env.Engine.Progress(env.Ctx, env.Con1, s.Project.ID)
	if err != nil {
		t.Fatalf("contractor progress: %v", err)
	}
	if len(con.Trades) != 1 || con.Trades[0].TradeID != s.Elektro.ID || con.TotalPercentage != 50 {
		t.Fatalf("contractor summary: %+v", con)
	}
}

func TestProjectReadAccess(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)

	for _, c := range []auth.Caller{env.Architect, env.Con1, env.Con2, env.Client} {
		if _, err := env.Engine.GetProject(env.Ctx, c, s.Project.ID); err != nil {
			t.Fatalf("%s should read project: %v", c.Role, err)
		}
	}
	if _, err := env.Engine.GetProject(env.Ctx, env.OtherArchitect, s.Project.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign architect: expected not found, got %v", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, auth.Caller{}, s.Project.ID); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("anonymous: expected unauthorized, got %v", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, env.Architect, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing project: expected not found, got %v", err)
	}

	list, err := env.Engine.ListProjects(env.Ctx, env.Con2)
	if err != nil || len(list) != 1 || list[0].ID != s.Project.ID {
		t.Fatalf("contractor list = %+v, %v", list, err)
	}
	list, err = env.Engine.ListProjects(env.Ctx, env.OtherArchitect)
	if err != nil || len(list) != 0 {
		t.Fatalf("foreign architect list = %+v, %v", list, err)
	}
}

func TestProjectMutationsRequireOwner(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)

	name := "Haus am Berg"
	var fe auth.ForbiddenError
	_, err := env.Engine.UpdateProject(env.Ctx, env.OtherArchitect, s.Project.ID, engine.ProjectPatch{Name: &name})
	if !errors.As(err, &fe) {
		t.Fatalf("foreign architect update: expected forbidden, got %v", err)
	}
	_, err = env.Engine.CreateProject(env.Ctx, env.Con1, engine.ProjectInput{Name: "x"})
	if !errors.As(err, &fe) {
		t.Fatalf("contractor create: expected forbidden, got %v", err)
	}
	status := domain.ProjectPaused
	p, err := env.Engine.UpdateProject(env.Ctx, env.Architect, s.Project.ID, engine.ProjectPatch{Name: &name, Status: &status})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if p.Name != name || p.Status != domain.ProjectPaused || len(p.Trades) != 3 {
		t.Fatalf("unexpected updated project: %+v", p)
	}
	bad := domain.ProjectStatus("demolished")
	var ve engine.ValidationError
	if _, err := env.Engine.UpdateProject(env.Ctx, env.Architect, s.Project.ID, engine.ProjectPatch{Status: &bad}); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	wrongClient := env.Con1.ID
	if _, err := env.Engine.UpdateProject(env.Ctx, env.Architect, s.Project.ID, engine.ProjectPatch{ClientID: &wrongClient}); !errors.As(err, &ve) || ve.Field != "client_id" {
		t.Fatalf("expected client_id validation error, got %v", err)
	}
}

func TestTradeMutationsAndReorder(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)

	if s.Elektro.Order != 0 || s.Sanitaer.Order != 1 || s.Maler.Order != 2 {
		t.Fatalf("unexpected default order: %d %d %d", s.Elektro.Order, s.Sanitaer.Order, s.Maler.Order)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.CreateTrade(env.Ctx, env.Con1, s.Project.ID, engine.TradeInput{Name: "Dach"}); !errors.As(err, &fe) {
		t.Fatalf("contractor create trade: expected forbidden, got %v", err)
	}
	if _, err := env.Engine.CreateTrade(env.Ctx, env.Architect, s.Project.ID, engine.TradeInput{Name: "Dach", ContractorID: &env.Client.ID}); err == nil {
		t.Fatalf("assigning a client as contractor should fail")
	}

	trades, err := env.Engine.ReorderTrades(env.Ctx, env.Architect, s.Project.ID, []string{s.Maler.ID, s.Elektro.ID, s.Sanitaer.ID})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if trades[0].ID != s.Maler.ID || trades[1].ID != s.Elektro.ID || trades[2].ID != s.Sanitaer.ID {
		t.Fatalf("unexpected order after reorder")
	}
	if trades[1].Order != 1 || len(trades[1].Tasks) != 4 {
		t.Fatalf("reordered trade lost data: %+v", trades[1])
	}

	var ve engine.ValidationError
	if _, err := env.Engine.ReorderTrades(env.Ctx, env.Architect, s.Project.ID, []string{s.Maler.ID, s.Maler.ID, s.Sanitaer.ID}); !errors.As(err, &ve) {
		t.Fatalf("duplicate ids: expected validation error, got %v", err)
	}
	if _, err := env.Engine.ReorderTrades(env.Ctx, env.Architect, s.Project.ID, []string{s.Maler.ID}); !errors.As(err, &ve) {
		t.Fatalf("partial ids: expected validation error, got %v", err)
	}
	if _, err := env.Engine.ReorderTrades(env.Ctx, env.OtherArchitect, s.Project.ID, []string{s.Maler.ID, s.Elektro.ID, s.Sanitaer.ID}); !errors.As(err, &fe) {
		t.Fatalf("foreign reorder: expected forbidden, got %v", err)
	}

	// A trade addressed through the wrong project does not exist.
	other, err := env.Engine.CreateProject(env.Ctx, env.Architect, engine.ProjectInput{Name: "Anbau"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTrade(env.Ctx, env.Architect, other.ID, s.Maler.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cross-project delete: expected not found, got %v", err)
	}
	if err := env.Engine.DeleteTrade(env.Ctx, env.Architect, s.Project.ID, s.Maler.ID); err != nil {
		t.Fatalf("delete trade: %v", err)
	}
}

func TestTaskUpdatePolicy(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)
	done := domain.StatusDone

	task, err := env.Engine.UpdateTask(env.Ctx, env.Con1, s.ElektroTasks[2].ID, engine.TaskPatch{Status: &done})
	if err != nil {
		t.Fatalf("assigned contractor update: %v", err)
	}
	if task.Status != domain.StatusDone {
		t.Fatalf("status = %s", task.Status)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, env.Con1, s.SanitaerTasks[0].ID, engine.TaskPatch{Status: &done}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("other contractor's task: expected not found, got %v", err)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.UpdateTask(env.Ctx, env.Client, s.SanitaerTasks[0].ID, engine.TaskPatch{Status: &done}); !errors.As(err, &fe) {
		t.Fatalf("client update: expected forbidden, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, env.Con1, s.ElektroTasks[0].ID); !errors.As(err, &fe) {
		t.Fatalf("contractor delete: expected forbidden, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, env.Architect, s.ElektroTasks[0].ID); err != nil {
		t.Fatalf("architect delete: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, env.Architect, s.ElektroTasks[0].ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted task still readable: %v", err)
	}
}

func TestContractorTaskCreationNeedsSubtaskFlag(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)

	if _, err := env.Engine.CreateTask(env.Ctx, env.Con1, s.Elektro.ID, engine.TaskInput{Title: "Zusatzdose"}); err != nil {
		t.Fatalf("contractor with flag: %v", err)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.CreateTask(env.Ctx, env.Con2, s.Sanitaer.ID, engine.TaskInput{Title: "Extra"}); !errors.As(err, &fe) {
		t.Fatalf("contractor without flag: expected forbidden, got %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, env.Con2, s.Elektro.ID, engine.TaskInput{Title: "Extra"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign trade: expected not found, got %v", err)
	}
	var ve engine.ValidationError
	if _, err := env.Engine.CreateTask(env.Ctx, env.Architect, s.Elektro.ID, engine.TaskInput{Title: "  "}); !errors.As(err, &ve) {
		t.Fatalf("empty title: expected validation error, got %v", err)
	}
}

func TestBlockedReasonFollowsStatus(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)
	id := s.SanitaerTasks[0].ID

	blocked := domain.StatusBlocked
	reason := "Material fehlt"
	task, err := env.Engine.UpdateTask(env.Ctx, env.Con2, id, engine.TaskPatch{Status: &blocked, BlockedReason: &reason})
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	if task.BlockedReason == nil || *task.BlockedReason != reason {
		t.Fatalf("reason not stored: %+v", task.BlockedReason)
	}

	title := "Rohre verlegen"
	task, err = env.Engine.UpdateTask(env.Ctx, env.Con2, id, engine.TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if task.BlockedReason == nil {
		t.Fatalf("reason dropped while still blocked")
	}

	done := domain.StatusDone
	task, err = env.Engine.UpdateTask(env.Ctx, env.Con2, id, engine.TaskPatch{Status: &done})
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if task.BlockedReason != nil {
		t.Fatalf("reason should be cleared when done, got %q", *task.BlockedReason)
	}

	evts, err := env.Engine.ListEvents(env.Ctx, env.Architect, s.Project.ID, 0, 1)
	if err != nil || len(evts) != 1 || evts[0].Type != "task.updated" {
		t.Fatalf("latest event = %+v, %v", evts, err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(evts[0].Payload), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if v, ok := payload["blocked_reason"]; !ok || v != nil {
		t.Fatalf("cleared reason not recorded: %s", evts[0].Payload)
	}

	// Blocked without a reason is accepted.
	task, err = env.Engine.UpdateTask(env.Ctx, env.Con2, id, engine.TaskPatch{Status: &blocked})
	if err != nil || task.BlockedReason != nil {
		t.Fatalf("blocked without reason: %+v, %v", task.BlockedReason, err)
	}
}

func TestConcurrentTaskUpdatesAllCommit(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)

	var wg sync.WaitGroup
	errs := make(chan error, len(s.ElektroTasks))
	for _, task := range s.ElektroTasks {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			st := domain.StatusDone
			_, err := env.Engine.UpdateTask(env.Ctx, env.Con1, id, engine.TaskPatch{Status: &st})
			errs <- err
		}(task.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}
	sum, err := env.Engine.Progress(env.Ctx, env.Con1, s.Project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Trades[0].Done != 4 || sum.Trades[0].Percentage != 100 {
		t.Fatalf("expected all done, got %+v", sum.Trades[0])
	}
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestPhotosVisibilityAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)
	taskID := s.ElektroTasks[0].ID

	internal, err := env.Engine.UploadPhoto(env.Ctx, env.Con1, taskID, engine.PhotoUpload{Filename: "a.png", Data: pngHeader})
	if err != nil {
		t.Fatalf("upload internal: %v", err)
	}
	if internal.Visibility != domain.VisibilityInternal || internal.ContentType != "image/png" {
		t.Fatalf("unexpected photo: %+v", internal)
	}
	if _, err := os.Stat(filepath.Join(env.PhotoDir, filepath.FromSlash(internal.StorageKey))); err != nil {
		t.Fatalf("object not stored: %v", err)
	}
	public, err := env.Engine.UploadPhoto(env.Ctx, env.Architect, taskID, engine.PhotoUpload{
		Filename: "b.jpg", ContentType: "image/jpeg", Data: []byte("jpeg"), Visibility: domain.VisibilityClient, Caption: "Fortschritt",
	})
	if err != nil {
		t.Fatalf("upload client photo: %v", err)
	}

	var fe auth.ForbiddenError
	if _, err := env.Engine.UploadPhoto(env.Ctx, env.Client, taskID, engine.PhotoUpload{Data: pngHeader}); !errors.As(err, &fe) {
		t.Fatalf("client upload: expected forbidden, got %v", err)
	}
	if _, err := env.Engine.UploadPhoto(env.Ctx, env.Con2, taskID, engine.PhotoUpload{Data: pngHeader}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign contractor upload: expected not found, got %v", err)
	}
	var ve engine.ValidationError
	if _, err := env.Engine.UploadPhoto(env.Ctx, env.Con1, taskID, engine.PhotoUpload{ContentType: "application/pdf", Data: []byte("%PDF")}); !errors.As(err, &ve) {
		t.Fatalf("pdf upload: expected validation error, got %v", err)
	}

	view, err := env.Engine.GetProject(env.Ctx, env.Client, s.Project.ID)
	if err != nil {
		t.Fatal(err)
	}
	_, task, _ := view.TaskByID(taskID)
	if len(task.Photos) != 1 || task.Photos[0].ID != public.ID {
		t.Fatalf("client should only see the client photo, got %+v", task.Photos)
	}
	if task.Photos[0].URL != "/photos/"+public.ID+"/file" {
		t.Fatalf("photo url = %q", task.Photos[0].URL)
	}

	// Photo bytes follow the same visibility as the metadata.
	if _, _, err := env.Engine.OpenPhoto(env.Ctx, env.Client, internal.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("client reading internal photo: expected not found, got %v", err)
	}
	if _, _, err := env.Engine.OpenPhoto(env.Ctx, env.Con2, public.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign contractor reading photo: expected not found, got %v", err)
	}
	if _, _, err := env.Engine.OpenPhoto(env.Ctx, auth.Caller{}, public.ID); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("anonymous read: expected unauthorized, got %v", err)
	}
	ph, r, err := env.Engine.OpenPhoto(env.Ctx, env.Client, public.ID)
	if err != nil {
		t.Fatalf("client reading client photo: %v", err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "jpeg" || ph.ContentType != "image/jpeg" {
		t.Fatalf("photo bytes = %q (%s)", data, ph.ContentType)
	}

	caption := "neu"
	if _, err := env.Engine.UpdatePhoto(env.Ctx, env.Con1, public.ID, engine.PhotoPatch{Caption: &caption}); !errors.As(err, &fe) {
		t.Fatalf("contractor editing architect photo: expected forbidden, got %v", err)
	}
	vis := domain.VisibilityClient
	updated, err := env.Engine.UpdatePhoto(env.Ctx, env.Con1, internal.ID, engine.PhotoPatch{Caption: &caption, Visibility: &vis})
	if err != nil || updated.Caption != "neu" || updated.Visibility != domain.VisibilityClient {
		t.Fatalf("uploader update: %+v, %v", updated, err)
	}

	if err := env.Engine.DeletePhoto(env.Ctx, env.Con1, internal.ID); err != nil {
		t.Fatalf("uploader delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.PhotoDir, filepath.FromSlash(internal.StorageKey))); !os.IsNotExist(err) {
		t.Fatalf("object should be removed, stat err = %v", err)
	}
}

func TestPhotoUploadWithoutStorage(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)
	env.Engine.Storage = storage.Noop{}
	_, err := env.Engine.UploadPhoto(env.Ctx, env.Architect, s.ElektroTasks[0].ID, engine.PhotoUpload{Data: pngHeader})
	if !errors.Is(err, storage.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDeleteProjectRemovesPhotoObjects(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)
	ph, err := env.Engine.UploadPhoto(env.Ctx, env.Architect, s.SanitaerTasks[0].ID, engine.PhotoUpload{Data: pngHeader})
	if err != nil {
		t.Fatal(err)
	}
	var fe auth.ForbiddenError
	if err := env.Engine.DeleteProject(env.Ctx, env.OtherArchitect, s.Project.ID); !errors.As(err, &fe) {
		t.Fatalf("foreign delete: expected forbidden, got %v", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, env.Architect, s.Project.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.PhotoDir, filepath.FromSlash(ph.StorageKey))); !os.IsNotExist(err) {
		t.Fatalf("object should be removed, stat err = %v", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, env.Architect, s.Project.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted project readable: %v", err)
	}
}

func TestCommentsFilteredByRole(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)
	taskID := s.ElektroTasks[1].ID

	if _, err := env.Engine.CreateComment(env.Ctx, env.Con1, taskID, engine.CommentInput{Content: "Leitung beschädigt"}); err != nil {
		t.Fatalf("internal comment: %v", err)
	}
	if _, err := env.Engine.CreateComment(env.Ctx, env.Architect, taskID, engine.CommentInput{Content: "Termin steht", Visibility: domain.VisibilityClient}); err != nil {
		t.Fatalf("client comment: %v", err)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.CreateComment(env.Ctx, env.Client, taskID, engine.CommentInput{Content: "Danke"}); !errors.As(err, &fe) {
		t.Fatalf("client comment: expected forbidden, got %v", err)
	}

	all, err := env.Engine.ListComments(env.Ctx, env.Con1, taskID)
	if err != nil || len(all) != 2 {
		t.Fatalf("contractor comments = %d, %v", len(all), err)
	}
	if all[0].AuthorRole != domain.RoleContractor {
		t.Fatalf("author role = %s", all[0].AuthorRole)
	}
	visible, err := env.Engine.ListComments(env.Ctx, env.Client, taskID)
	if err != nil || len(visible) != 1 || visible[0].Visibility != domain.VisibilityClient {
		t.Fatalf("client comments = %+v, %v", visible, err)
	}
	if _, err := env.Engine.ListComments(env.Ctx, env.Con2, taskID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign contractor: expected not found, got %v", err)
	}
}

func TestAuditLogOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)

	evts, err := env.Engine.ListEvents(env.Ctx, env.Architect, s.Project.ID, 0, 100)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	// 1 project + 3 trades + 5 tasks.
	if len(evts) != 9 {
		t.Fatalf("expected 9 events, got %d", len(evts))
	}
	if evts[0].Type != "task.created" || evts[len(evts)-1].Type != "project.created" {
		t.Fatalf("unexpected event order: first %s last %s", evts[0].Type, evts[len(evts)-1].Type)
	}
	page, err := env.Engine.ListEvents(env.Ctx, env.Architect, s.Project.ID, evts[3].ID, 2)
	if err != nil || len(page) != 2 || page[0].ID != evts[4].ID {
		t.Fatalf("paged events = %+v, %v", page, err)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.ListEvents(env.Ctx, env.Client, s.Project.ID, 0, 10); !errors.As(err, &fe) {
		t.Fatalf("client events: expected forbidden, got %v", err)
	}
	if _, err := env.Engine.ListEvents(env.Ctx, env.OtherArchitect, s.Project.ID, 0, 10); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign architect events: expected not found, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)

	u, err := env.Engine.Authenticate(env.Ctx, "ARCH@example.com", "correct-horse")
	if err != nil || u.ID != env.Architect.ID {
		t.Fatalf("authenticate: %+v, %v", u, err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "arch@example.com", "wrong-password"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "nobody@example.com", "correct-horse"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("unknown email: %v", err)
	}
	var ve engine.ValidationError
	if _, err := env.Engine.CreateUser(env.Ctx, engine.NewUser{Email: "arch@example.com", Role: domain.RoleArchitect, Password: "long-enough"}); !errors.As(err, &ve) {
		t.Fatalf("duplicate email: expected validation error, got %v", err)
	}
	if _, err := env.Engine.CreateUser(env.Ctx, engine.NewUser{Email: "x@example.com", Role: "admin", Password: "long-enough"}); !errors.As(err, &ve) {
		t.Fatalf("bad role: expected validation error, got %v", err)
	}
	if _, err := env.Engine.CreateUser(env.Ctx, engine.NewUser{Email: "x@example.com", Role: domain.RoleClient, Password: "short"}); !errors.As(err, &ve) {
		t.Fatalf("short password: expected validation error, got %v", err)
	}
}

type fakeCalendar struct {
	got domain.Project
}

func (f *fakeCalendar) Publish(_ context.Context, p domain.Project) (int, error) {
	f.got = p
	return len(p.Trades), nil
}

func TestPublishCalendar(t *testing.T) {
	env := newTestEnv(t)
	s := env.seed(t)

	if _, err := env.Engine.PublishCalendar(env.Ctx, env.Architect, s.Project.ID); !errors.Is(err, engine.ErrCalendarNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	cal := &fakeCalendar{}
	env.Engine.Calendar = cal
	n, err := env.Engine.PublishCalendar(env.Ctx, env.Architect, s.Project.ID)
	if err != nil || n != 3 || cal.got.ID != s.Project.ID {
		t.Fatalf("publish = %d, %v", n, err)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.PublishCalendar(env.Ctx, env.Client, s.Project.ID); !errors.As(err, &fe) {
		t.Fatalf("client publish: expected forbidden, got %v", err)
	}
}
