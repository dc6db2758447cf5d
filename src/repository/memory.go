package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"photomatch/src/app"
)

// InMemoryDB is a process-local Store. Each collection is guarded by one
// mutex, which gives the same per-record atomicity the remote store offers.
type InMemoryDB struct {
	mu       sync.Mutex
	events   map[string]app.Event
	users    map[string]app.User
	matches  map[matchKey]app.AttendeeMatch
	orgLinks map[orgLinkKey]app.OrgLink
}

type matchKey struct{ user, event string }

type orgLinkKey struct{ user, code string }

var _ Store = (*InMemoryDB)(nil)

func NewInMemoryDB() *InMemoryDB {
	return &InMemoryDB{
		events:   make(map[string]app.Event),
		users:    make(map[string]app.User),
		matches:  make(map[matchKey]app.AttendeeMatch),
		orgLinks: make(map[orgLinkKey]app.OrgLink),
	}
}

func (i *InMemoryDB) Close(context.Context) error { return nil }

func copyEvent(e app.Event) app.Event {
	e.EmailAccess = append([]string(nil), e.EmailAccess...)
	return e
}

func copyMatch(m app.AttendeeMatch) app.AttendeeMatch {
	m.MatchedImages = append([]string(nil), m.MatchedImages...)
	return m
}

// SeedEvent stores e verbatim under key, which may differ from e.ID the way
// legacy records sometimes do.
func (i *InMemoryDB) SeedEvent(key string, e app.Event) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events[key] = copyEvent(e)
}

func (i *InMemoryDB) GetEvent(_ context.Context, id string) (*app.Event, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	key, ok := i.eventKey(id)
	if !ok {
		return nil, notFound("event", id)
	}
	out := copyEvent(i.events[key])
	return &out, nil
}

func (i *InMemoryDB) EventExists(_ context.Context, id string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.eventKey(id)
	return ok, nil
}

// eventKey resolves the map key holding event id, legacy keys included.
// Callers hold i.mu.
func (i *InMemoryDB) eventKey(id string) (string, bool) {
	if _, ok := i.events[id]; ok {
		return id, true
	}
	for k, e := range i.events {
		if e.ID == id {
			return k, true
		}
	}
	return "", false
}

func (i *InMemoryDB) CreateEvent(_ context.Context, event *app.Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.eventKey(event.ID); ok {
		return fmt.Errorf("event %s: %w", event.ID, app.ErrConflict)
	}
	i.events[event.ID] = copyEvent(*event)
	return nil
}

func (i *InMemoryDB) SwapEvent(_ context.Context, event *app.Event, expected int64) (*app.Event, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	key, ok := i.eventKey(event.ID)
	if !ok {
		return nil, notFound("event", event.ID)
	}
	current := i.events[key]
	if current.Version != expected {
		return nil, fmt.Errorf("event %s at version %d, expected %d: %w", event.ID, current.Version, expected, app.ErrConflict)
	}
	next := copyEvent(*event)
	next.Version = expected + 1
	i.events[key] = next
	out := copyEvent(next)
	return &out, nil
}

func (i *InMemoryDB) DeleteEvent(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if key, ok := i.eventKey(id); ok {
		delete(i.events, key)
	}
	return nil
}

func (i *InMemoryDB) ListEventsByField(_ context.Context, field, value string) ([]app.Event, error) {
	if err := checkScanField(field); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	result := make([]app.Event, 0)
	for _, e := range i.events {
		if eventAttr(&e, field) == value {
			result = append(result, copyEvent(e))
		}
	}
	sortEvents(result)
	return result, nil
}

func (i *InMemoryDB) ListEvents(context.Context) ([]app.Event, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	result := make([]app.Event, 0, len(i.events))
	for _, e := range i.events {
		result = append(result, copyEvent(e))
	}
	sortEvents(result)
	return result, nil
}

func sortEvents(events []app.Event) {
	sort.Slice(events, func(a, b int) bool { return events[a].ID < events[b].ID })
}

func (i *InMemoryDB) GetMatch(_ context.Context, userID, eventID string) (*app.AttendeeMatch, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	m, ok := i.matches[matchKey{userID, eventID}]
	if !ok {
		return nil, notFound("match", userID+"/"+eventID)
	}
	out := copyMatch(m)
	return &out, nil
}

func (i *InMemoryDB) PutMatch(_ context.Context, match *app.AttendeeMatch) error {
	if err := validateMatch(match); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.matches[matchKey{match.UserID, match.EventID}] = copyMatch(*match)
	return nil
}

func (i *InMemoryDB) ListMatches(_ context.Context, userID string) ([]app.AttendeeMatch, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	result := make([]app.AttendeeMatch, 0)
	for k, m := range i.matches {
		if k.user == userID {
			result = append(result, copyMatch(m))
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].EventID < result[b].EventID })
	return result, nil
}

func (i *InMemoryDB) UpdateSelfie(_ context.Context, userID, eventID, selfieURL string, at time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	key := matchKey{userID, eventID}
	m, ok := i.matches[key]
	if !ok {
		return notFound("match", userID+"/"+eventID)
	}
	m.SelfieURL = selfieURL
	m.LastUpdated = at
	i.matches[key] = m
	return nil
}

func (i *InMemoryDB) GetUser(_ context.Context, id string) (*app.User, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	u, ok := i.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

func (i *InMemoryDB) PutUser(_ context.Context, user *app.User) error {
	if user == nil {
		return &app.ValidationError{Field: "user"}
	}
	if err := app.Required("userId", user.ID); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.users[user.ID] = *user
	return nil
}

func (i *InMemoryDB) FindUserByOrganizationCode(_ context.Context, code string) (*app.User, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, u := range i.users {
		if code != "" && u.OrganizationCode == code {
			out := u
			return &out, nil
		}
	}
	return nil, notFound("organization", code)
}

func (i *InMemoryDB) PutOrgLink(_ context.Context, link app.OrgLink) error {
	if err := app.Required("userId", link.UserID, "organizationCode", link.OrganizationCode); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.orgLinks[orgLinkKey{link.UserID, link.OrganizationCode}] = link
	return nil
}

func (i *InMemoryDB) ListOrgLinks(_ context.Context, userID string) ([]app.OrgLink, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	result := make([]app.OrgLink, 0)
	for k, l := range i.orgLinks {
		if k.user == userID {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].OrganizationCode < result[b].OrganizationCode })
	return result, nil
}
