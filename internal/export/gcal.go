package export

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"baulot/internal/config"
	"baulot/internal/domain"
)

const (
	propEntry   = "baulot_id"
	propProject = "baulot_project"
)

// GoogleCalendar publishes project schedules to one Google calendar. Events
// carry the entry uid as a private extended property so republishing
// updates them in place.
type GoogleCalendar struct {
	srv        *calendar.Service
	calendarID string
	timeZone   string
}

// NewGoogleCalendar authenticates with the service-account or authorized
// user credentials in cfg.CredentialsFile.
func NewGoogleCalendar(ctx context.Context, cfg config.CalendarConfig) (*GoogleCalendar, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read calendar credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("parse calendar credentials: %w", err)
	}
	srv, err := calendar.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("unable to create calendar service: %w", err)
	}
	return NewGoogleCalendarService(srv, cfg.CalendarID, cfg.TimeZone), nil
}

func NewGoogleCalendarService(srv *calendar.Service, calendarID, timeZone string) *GoogleCalendar {
	return &GoogleCalendar{srv: srv, calendarID: calendarID, timeZone: timeZone}
}

// Publish creates or updates one event per schedule entry of p and returns
// the number of events written.
func (g *GoogleCalendar) Publish(ctx context.Context, p domain.Project) (int, error) {
	n := 0
	for _, e := range Entries(p) {
		ev := g.event(p, e)
		existing, err := g.find(ctx, e.UID)
		if err != nil {
			return n, fmt.Errorf("error searching for event %s: %w", e.UID, err)
		}
		if existing != nil {
			_, err = g.srv.Events.Update(g.calendarID, existing.Id, ev).Context(ctx).Do()
		} else {
			_, err = g.srv.Events.Insert(g.calendarID, ev).Context(ctx).Do()
		}
		if err != nil {
			return n, fmt.Errorf("write event %s: %w", e.UID, err)
		}
		n++
	}
	return n, nil
}

func (g *GoogleCalendar) find(ctx context.Context, uid string) (*calendar.Event, error) {
	events, err := g.srv.Events.List(g.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", propEntry, uid)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}

func (g *GoogleCalendar) event(p domain.Project, e Entry) *calendar.Event {
	return &calendar.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Location:    p.Address,
		Start:       &calendar.EventDateTime{Date: e.Start.Format("2006-01-02"), TimeZone: g.timeZone},
		End:         &calendar.EventDateTime{Date: e.End.Format("2006-01-02"), TimeZone: g.timeZone},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{propEntry: e.UID, propProject: p.ID},
		},
	}
}
