package export_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"baulot/internal/domain"
	"baulot/internal/export"
)

func strPtr(s string) *string { return &s }

func fixture() domain.Project {
	return domain.Project{
		ID: "p1", Name: "Haus am See", Address: "Seeweg 1, Köln", Status: domain.ProjectActive,
		StartDate: "2024-03-01", TargetEndDate: "2024-12-20",
		Trades: []domain.Trade{
			{
				ID: "t1", Name: "Elektro", StartDate: "2024-04-01", EndDate: "2024-04-05",
				Tasks: []domain.Task{
					{ID: "k1", Title: "Kabel ziehen", Status: domain.StatusDone},
					{ID: "k2", Title: "Abnahme", Status: domain.StatusBlocked, DueDate: "2024-04-03", BlockedReason: strPtr("Material; fehlt, bald")},
				},
			},
			{ID: "t2", Name: "Maler", Tasks: []domain.Task{{ID: "k3", Title: "Wände", Status: domain.StatusPending}}},
		},
	}
}

func TestEntriesFollowDates(t *testing.T) {
	entries := export.Entries(fixture())
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	trade := entries[0]
	if trade.UID != "trade-t1" || trade.End.Format(time.DateOnly) != "2024-04-06" {
		t.Fatalf("trade entry: %+v", trade)
	}
	if trade.Description != "1 of 2 tasks done (50%)" {
		t.Fatalf("trade description = %q", trade.Description)
	}
	task := entries[1]
	if task.UID != "task-k2" || task.Start.Format(time.DateOnly) != "2024-04-03" || !strings.Contains(task.Description, "Material") {
		t.Fatalf("task entry: %+v", task)
	}
}

func TestEntriesIgnoreEndBeforeStart(t *testing.T) {
	p := domain.Project{Trades: []domain.Trade{{ID: "t", Name: "x", StartDate: "2024-05-10", EndDate: "2024-05-01"}}}
	e := export.Entries(p)
	if len(e) != 1 || e[0].End.Format(time.DateOnly) != "2024-05-11" {
		t.Fatalf("unexpected entries: %+v", e)
	}
}

func TestWriteICS(t *testing.T) {
	var buf bytes.Buffer
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := export.WriteICS(&buf, fixture(), stamp); err != nil {
		t.Fatalf("write ics: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"BEGIN:VCALENDAR\r\n",
		"UID:trade-t1@baulot\r\n",
		"DTSTAMP:20240301T120000Z\r\n",
		"DTSTART;VALUE=DATE:20240401\r\n",
		"DTEND;VALUE=DATE:20240406\r\n",
		`Material\; fehlt\, bald`,
		"END:VCALENDAR\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("ics missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "BEGIN:VEVENT"); n != 2 {
		t.Fatalf("expected 2 events, got %d", n)
	}
}

func TestWriteICSFoldsLongLines(t *testing.T) {
	p := fixture()
	p.Name = strings.Repeat("Großbaustelle ", 12)
	var buf bytes.Buffer
	if err := export.WriteICS(&buf, p, time.Now()); err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(buf.String(), "\r\n") {
		if len(line) > 75 {
			t.Fatalf("line exceeds 75 octets: %q", line)
		}
	}
}

func TestWriteICSKeepsLineBreaksOutOfContentLines(t *testing.T) {
	p := fixture()
	p.Name = "Haus\rX"
	p.Trades[0].Tasks[1].BlockedReason = strPtr("Lieferung\rverspätet\r\nneu bestellt")
	var buf bytes.Buffer
	if err := export.WriteICS(&buf, p, time.Now()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, line := range strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n") {
		if strings.ContainsAny(line, "\r\n") {
			t.Fatalf("raw line break inside content line %q", line)
		}
	}
	if !strings.Contains(out, "Haus X: Elektro") {
		t.Fatalf("summary not flattened:\n%s", out)
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	if err := export.WriteReport(&buf, fixture(), time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("write report: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a pdf")
	}
	if !bytes.Contains(buf.Bytes(), []byte("%%EOF")) {
		t.Fatalf("pdf trailer missing")
	}
}

func TestWriteReportEmptyProject(t *testing.T) {
	var buf bytes.Buffer
	if err := export.WriteReport(&buf, domain.Project{Name: "Leer"}, time.Now()); err != nil {
		t.Fatalf("write report: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("empty output")
	}
}

// fakeCalendarAPI serves the subset of the Calendar v3 events API used by
// the publisher.
type fakeCalendarAPI struct {
	mu       sync.Mutex
	existing map[string]string // entry uid -> event id
	inserted []calendar.Event
	updated  []string
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events"):
		prop := r.URL.Query().Get("privateExtendedProperty")
		uid := strings.TrimPrefix(prop, "baulot_id=")
		items := []*calendar.Event{}
		if id, ok := f.existing[uid]; ok {
			items = append(items, &calendar.Event{Id: id})
		}
		json.NewEncoder(w).Encode(calendar.Events{Items: items})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/events"):
		var ev calendar.Event
		json.NewDecoder(r.Body).Decode(&ev)
		f.inserted = append(f.inserted, ev)
		ev.Id = "new"
		json.NewEncoder(w).Encode(ev)
	case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/events/"):
		f.updated = append(f.updated, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
		var ev calendar.Event
		json.NewDecoder(r.Body).Decode(&ev)
		json.NewEncoder(w).Encode(ev)
	default:
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}
}

func TestGoogleCalendarPublishUpserts(t *testing.T) {
	api := &fakeCalendarAPI{existing: map[string]string{"trade-t1": "ev-trade"}}
	ts := httptest.NewServer(api)
	defer ts.Close()

	ctx := context.Background()
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(ts.Client()), option.WithEndpoint(ts.URL+"/"))
	if err != nil {
		t.Fatalf("calendar service: %v", err)
	}
	pub := export.NewGoogleCalendarService(srv, "primary", "Europe/Berlin")

	n, err := pub.Publish(ctx, fixture())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 events written, got %d", n)
	}
	if len(api.updated) != 1 || api.updated[0] != "ev-trade" {
		t.Fatalf("expected trade event update, got %v", api.updated)
	}
	if len(api.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(api.inserted))
	}
	ev := api.inserted[0]
	if ev.Start.Date != "2024-04-03" || ev.ExtendedProperties.Private["baulot_id"] != "task-k2" || ev.ExtendedProperties.Private["baulot_project"] != "p1" {
		t.Fatalf("unexpected inserted event: %+v", ev)
	}
}

func TestGoogleCalendarPublishReportsAPIErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	}))
	defer ts.Close()
	ctx := context.Background()
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(ts.Client()), option.WithEndpoint(ts.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	n, err := export.NewGoogleCalendarService(srv, "primary", "").Publish(ctx, fixture())
	if err == nil || n != 0 {
		t.Fatalf("expected error with no writes, got %d, %v", n, err)
	}
}
