package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"photomatch/src/app"
	cfg "photomatch/src/configuration"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go"
)

const documentStore = "document store"

// Legacy event records may be keyed by something other than their eventId,
// so every write and existence check addresses the eventId attribute.
const (
	eventIndexSQL  = "DEFINE INDEX IF NOT EXISTS events_event_id ON events FIELDS eventId"
	eventExistsSQL = "SELECT VALUE eventId FROM events WHERE eventId = $id LIMIT 1"
	swapEventSQL   = "UPDATE events CONTENT $doc WHERE eventId = $id AND version = $expected RETURN AFTER"
	deleteEventSQL = "DELETE events WHERE eventId = $id"
)

// SurrealStore is the Store backed by SurrealDB. Every query is
// parameterized; only whitelisted attribute names are interpolated.
type SurrealStore struct {
	db  *surrealdb.DB
	log zerolog.Logger
}

var _ Store = (*SurrealStore)(nil)

// NewSurrealStore connects, signs in when credentials are set, and selects
// the namespace and database.
func NewSurrealStore(ctx context.Context, props cfg.DocumentDBProperties, logger zerolog.Logger) (*SurrealStore, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, props.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store %s: %w", props.URL, err)
	}
	if props.User != "" && props.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": props.User,
			"pass": props.Password,
		}); err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}
	if err := db.Use(ctx, props.Namespace, props.Database); err != nil {
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}
	s := &SurrealStore{db: db, log: logger.With().Str("component", "surreal").Logger()}
	if err := exec(ctx, db, eventIndexSQL, nil); err != nil {
		s.log.Warn().Err(err).Msg("eventId index not defined; lookups scan the table")
	}
	return s, nil
}

func (s *SurrealStore) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

// queryAll runs sql and returns the rows of its last statement.
func queryAll[T any](ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) ([]T, error) {
	res, err := surrealdb.Query[[]T](ctx, db, sql, vars)
	if err != nil {
		return nil, app.External(documentStore, err)
	}
	if res == nil || len(*res) == 0 {
		return nil, nil
	}
	return (*res)[len(*res)-1].Result, nil
}

func exec(ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) error {
	if _, err := surrealdb.Query[any](ctx, db, sql, vars); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("%v: %w", err, app.ErrConflict)
		}
		return app.External(documentStore, err)
	}
	return nil
}

func (s *SurrealStore) GetEvent(ctx context.Context, id string) (*app.Event, error) {
	docs, err := queryAll[eventDoc](ctx, s.db, "SELECT * OMIT id FROM type::thing($tb, $id)", map[string]any{
		"tb": EventsTable,
		"id": id,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		// legacy records keyed by something other than their eventId
		docs, err = queryAll[eventDoc](ctx, s.db, "SELECT * OMIT id FROM events WHERE eventId = $id LIMIT 1", map[string]any{
			"id": id,
		})
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			s.log.Debug().Str("event", id).Msg("event found by attribute scan")
		}
	}
	if len(docs) == 0 {
		return nil, notFound("event", id)
	}
	e := docs[0].event()
	return &e, nil
}

func (s *SurrealStore) EventExists(ctx context.Context, id string) (bool, error) {
	ids, err := queryAll[string](ctx, s.db, eventExistsSQL, map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func (s *SurrealStore) CreateEvent(ctx context.Context, event *app.Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	return exec(ctx, s.db, "CREATE type::thing($tb, $id) CONTENT $doc RETURN NONE", map[string]any{
		"tb":  EventsTable,
		"id":  event.ID,
		"doc": toEventDoc(event),
	})
}

func (s *SurrealStore) SwapEvent(ctx context.Context, event *app.Event, expected int64) (*app.Event, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}
	doc := toEventDoc(event)
	doc.Version = expected + 1
	docs, err := queryAll[eventDoc](ctx, s.db, swapEventSQL, map[string]any{
		"id":       event.ID,
		"doc":      doc,
		"expected": expected,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		exists, err := s.EventExists(ctx, event.ID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, notFound("event", event.ID)
		}
		return nil, fmt.Errorf("event %s expected version %d: %w", event.ID, expected, app.ErrConflict)
	}
	e := docs[0].event()
	return &e, nil
}

func (s *SurrealStore) DeleteEvent(ctx context.Context, id string) error {
	return exec(ctx, s.db, deleteEventSQL, map[string]any{"id": id})
}

func (s *SurrealStore) ListEventsByField(ctx context.Context, field, value string) ([]app.Event, error) {
	if err := checkScanField(field); err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT * OMIT id FROM events WHERE %s = $value ORDER BY eventId", field)
	docs, err := queryAll[eventDoc](ctx, s.db, sql, map[string]any{"value": value})
	if err != nil {
		return nil, err
	}
	return eventsFrom(docs), nil
}

func (s *SurrealStore) ListEvents(ctx context.Context) ([]app.Event, error) {
	docs, err := queryAll[eventDoc](ctx, s.db, "SELECT * OMIT id FROM events ORDER BY eventId", nil)
	if err != nil {
		return nil, err
	}
	return eventsFrom(docs), nil
}

func eventsFrom(docs []eventDoc) []app.Event {
	events := make([]app.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.event())
	}
	return events
}

func (s *SurrealStore) GetMatch(ctx context.Context, userID, eventID string) (*app.AttendeeMatch, error) {
	docs, err := queryAll[matchDoc](ctx, s.db, "SELECT * OMIT id FROM type::thing($tb, [$user, $event])", map[string]any{
		"tb":    MatchesTable,
		"user":  userID,
		"event": eventID,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, notFound("match", userID+"/"+eventID)
	}
	m := docs[0].match()
	return &m, nil
}

func (s *SurrealStore) PutMatch(ctx context.Context, match *app.AttendeeMatch) error {
	if err := validateMatch(match); err != nil {
		return err
	}
	return exec(ctx, s.db, "UPSERT type::thing($tb, [$user, $event]) CONTENT $doc RETURN NONE", map[string]any{
		"tb":    MatchesTable,
		"user":  match.UserID,
		"event": match.EventID,
		"doc":   toMatchDoc(match),
	})
}

func (s *SurrealStore) ListMatches(ctx context.Context, userID string) ([]app.AttendeeMatch, error) {
	docs, err := queryAll[matchDoc](ctx, s.db, "SELECT * OMIT id FROM attendee_matches WHERE userId = $user ORDER BY eventId", map[string]any{
		"user": userID,
	})
	if err != nil {
		return nil, err
	}
	matches := make([]app.AttendeeMatch, 0, len(docs))
	for _, d := range docs {
		matches = append(matches, d.match())
	}
	return matches, nil
}

func (s *SurrealStore) UpdateSelfie(ctx context.Context, userID, eventID, selfieURL string, at time.Time) error {
	docs, err := queryAll[matchDoc](ctx, s.db,
		"UPDATE type::thing($tb, [$user, $event]) SET selfieURL = $url, lastUpdated = $at RETURN AFTER", map[string]any{
			"tb":    MatchesTable,
			"user":  userID,
			"event": eventID,
			"url":   selfieURL,
			"at":    formatTime(at),
		})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return notFound("match", userID+"/"+eventID)
	}
	return nil
}

func (s *SurrealStore) GetUser(ctx context.Context, id string) (*app.User, error) {
	docs, err := queryAll[userDoc](ctx, s.db, "SELECT * OMIT id FROM type::thing($tb, $id)", map[string]any{
		"tb": UsersTable,
		"id": id,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, notFound("user", id)
	}
	u := docs[0].user()
	return &u, nil
}

func (s *SurrealStore) PutUser(ctx context.Context, user *app.User) error {
	if user == nil {
		return &app.ValidationError{Field: "user"}
	}
	if err := app.Required("userId", user.ID); err != nil {
		return err
	}
	return exec(ctx, s.db, "UPSERT type::thing($tb, $id) CONTENT $doc RETURN NONE", map[string]any{
		"tb":  UsersTable,
		"id":  user.ID,
		"doc": toUserDoc(user),
	})
}

func (s *SurrealStore) FindUserByOrganizationCode(ctx context.Context, code string) (*app.User, error) {
	docs, err := queryAll[userDoc](ctx, s.db, "SELECT * OMIT id FROM users WHERE organizationCode = $code LIMIT 1", map[string]any{
		"code": code,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 || code == "" {
		return nil, notFound("organization", code)
	}
	u := docs[0].user()
	return &u, nil
}

func (s *SurrealStore) PutOrgLink(ctx context.Context, link app.OrgLink) error {
	if err := app.Required("userId", link.UserID, "organizationCode", link.OrganizationCode); err != nil {
		return err
	}
	return exec(ctx, s.db, "UPSERT type::thing($tb, [$user, $code]) CONTENT $doc RETURN NONE", map[string]any{
		"tb":   OrgLinksTable,
		"user": link.UserID,
		"code": link.OrganizationCode,
		"doc":  toOrgLinkDoc(link),
	})
}

func (s *SurrealStore) ListOrgLinks(ctx context.Context, userID string) ([]app.OrgLink, error) {
	docs, err := queryAll[orgLinkDoc](ctx, s.db, "SELECT * OMIT id FROM org_links WHERE userId = $user ORDER BY organizationCode", map[string]any{
		"user": userID,
	})
	if err != nil {
		return nil, err
	}
	links := make([]app.OrgLink, 0, len(docs))
	for _, d := range docs {
		links = append(links, d.link())
	}
	return links, nil
}

// IsConflict reports whether err is an optimistic-concurrency or duplicate
// key failure.
func IsConflict(err error) bool {
	return errors.Is(err, app.ErrConflict)
}
