package repository

import (
	"context"
	"fmt"
	"time"

	"photomatch/src/app"
)

// Collection names in the document store.
const (
	EventsTable   = "events"
	UsersTable    = "users"
	MatchesTable  = "attendee_matches"
	OrgLinksTable = "org_links"
)

type (
	EventStore interface {
		// GetEvent reads by primary key, falling back to a scan on the
		// eventId attribute. Returns app.ErrNotFound when both miss.
		GetEvent(ctx context.Context, id string) (*app.Event, error)
		EventExists(ctx context.Context, id string) (bool, error)
		// CreateEvent fails with app.ErrConflict if the id is taken.
		CreateEvent(ctx context.Context, event *app.Event) error
		// SwapEvent replaces the event if its stored version equals
		// expected, writing version expected+1. Returns app.ErrConflict
		// otherwise.
		SwapEvent(ctx context.Context, event *app.Event, expected int64) (*app.Event, error)
		DeleteEvent(ctx context.Context, id string) error
		// ListEventsByField scans events whose attribute field equals value.
		ListEventsByField(ctx context.Context, field, value string) ([]app.Event, error)
		ListEvents(ctx context.Context) ([]app.Event, error)
	}

	MatchStore interface {
		GetMatch(ctx context.Context, userID, eventID string) (*app.AttendeeMatch, error)
		PutMatch(ctx context.Context, match *app.AttendeeMatch) error
		ListMatches(ctx context.Context, userID string) ([]app.AttendeeMatch, error)
		UpdateSelfie(ctx context.Context, userID, eventID, selfieURL string, at time.Time) error
	}

	UserStore interface {
		GetUser(ctx context.Context, id string) (*app.User, error)
		PutUser(ctx context.Context, user *app.User) error
		FindUserByOrganizationCode(ctx context.Context, code string) (*app.User, error)
	}

	OrgLinkStore interface {
		PutOrgLink(ctx context.Context, link app.OrgLink) error
		ListOrgLinks(ctx context.Context, userID string) ([]app.OrgLink, error)
	}

	Store interface {
		EventStore
		MatchStore
		UserStore
		OrgLinkStore
		Close(ctx context.Context) error
	}
)

// scannable attributes of the events collection.
var eventScanFields = map[string]bool{
	"eventId":          true,
	"ownerId":          true,
	"userEmail":        true,
	"organizerId":      true,
	"createdBy":        true,
	"organizationCode": true,
}

func checkScanField(field string) error {
	if !eventScanFields[field] {
		return &app.ValidationError{Field: field, Reason: "is not a scannable event attribute"}
	}
	return nil
}

func eventAttr(e *app.Event, field string) string {
	switch field {
	case "eventId":
		return e.ID
	case "ownerId":
		return e.OwnerID
	case "userEmail":
		return e.UserEmail
	case "organizerId":
		return e.OrganizerID
	case "createdBy":
		return e.CreatedBy
	case "organizationCode":
		return e.OrganizationCode
	}
	return ""
}

func validateEvent(e *app.Event) error {
	if e == nil {
		return &app.ValidationError{Field: "event"}
	}
	return app.Required("eventId", e.ID)
}

func validateMatch(m *app.AttendeeMatch) error {
	if m == nil {
		return &app.ValidationError{Field: "match"}
	}
	return app.Required("userId", m.UserID, "eventId", m.EventID)
}

func notFound(kind, key string) error {
	return fmt.Errorf("%s %s: %w", kind, key, app.ErrNotFound)
}
