// Package events owns the Event lifecycle: creation with an allocated id,
// metadata edits, and stat updates that survive concurrent writers.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"photomatch/src/allocator"
	"photomatch/src/app"
	"photomatch/src/repository"

	"github.com/rs/zerolog"
)

const defaultStatsRetries = 5

type CreateInput struct {
	Name             string   `json:"name"`
	Date             string   `json:"date"`
	Description      string   `json:"description"`
	OwnerID          string   `json:"-"`
	OrganizationCode string   `json:"organizationCode"`
	EmailAccess      []string `json:"emailAccess"`
	AnyoneCanUpload  bool     `json:"anyoneCanUpload"`
}

// MetadataPatch changes only the fields that are set.
type MetadataPatch struct {
	Name            *string   `json:"name"`
	Date            *string   `json:"date"`
	Description     *string   `json:"description"`
	EmailAccess     *[]string `json:"emailAccess"`
	AnyoneCanUpload *bool     `json:"anyoneCanUpload"`
}

type Service struct {
	store   repository.EventStore
	ids     *allocator.EventIDs
	retries int
	now     func() time.Time
	log     zerolog.Logger
}

func NewService(store repository.EventStore, ids *allocator.EventIDs, statsRetries int, logger zerolog.Logger) *Service {
	if statsRetries <= 0 {
		statsRetries = defaultStatsRetries
	}
	return &Service{
		store:   store,
		ids:     ids,
		retries: statsRetries,
		now:     time.Now,
		log:     logger.With().Str("component", "events").Logger(),
	}
}

// Create allocates an id and stores a new event with zeroed stats.
func (s *Service) Create(ctx context.Context, in CreateInput) (*app.Event, error) {
	if err := app.Required("name", in.Name, "owner", in.OwnerID); err != nil {
		return nil, err
	}
	id, err := s.ids.Allocate(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate event id: %w", err)
	}
	now := s.now().UTC()
	event := &app.Event{
		ID:               id,
		Name:             strings.TrimSpace(in.Name),
		Date:             in.Date,
		Description:      in.Description,
		EventStats:       app.EventStats{TotalImageUnit: app.UnitMB},
		OwnerID:          in.OwnerID,
		OrganizationCode: in.OrganizationCode,
		EmailAccess:      normalizeEmails(in.EmailAccess),
		AnyoneCanUpload:  in.AnyoneCanUpload,
		FaceCollectionID: "event-" + id,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event %s: %w", id, err)
	}
	s.log.Info().Str("event", id).Str("owner", in.OwnerID).Msg("event created")
	return event, nil
}

func (s *Service) Get(ctx context.Context, id string) (*app.Event, error) {
	if err := app.Required("eventId", id); err != nil {
		return nil, err
	}
	return s.store.GetEvent(ctx, id)
}

// Update applies mutate to the current event and writes it back only if no
// other writer got there first, retrying from a fresh read on conflict.
func (s *Service) Update(ctx context.Context, id string, mutate func(*app.Event) error) (*app.Event, error) {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		current, err := s.store.GetEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := current.Version
		if err := mutate(current); err != nil {
			return nil, err
		}
		current.UpdatedAt = s.now().UTC()
		updated, err := s.store.SwapEvent(ctx, current, expected)
		if err == nil {
			return updated, nil
		}
		if !repository.IsConflict(err) {
			return nil, err
		}
		lastErr = err
		s.log.Debug().Str("event", id).Int("attempt", attempt+1).Msg("event update conflict, retrying")
	}
	return nil, fmt.Errorf("update event %s after %d attempts: %w", id, s.retries, lastErr)
}

// ApplyStats updates only the derived counters of an event.
func (s *Service) ApplyStats(ctx context.Context, id string, mutate func(*app.EventStats)) (*app.Event, error) {
	return s.Update(ctx, id, func(e *app.Event) error {
		mutate(&e.EventStats)
		clampStats(&e.EventStats)
		return nil
	})
}

// UpdateMetadata applies patch on behalf of actor, who must manage the event.
func (s *Service) UpdateMetadata(ctx context.Context, id, actor string, patch MetadataPatch) (*app.Event, error) {
	return s.Update(ctx, id, func(e *app.Event) error {
		if !CanManage(e, actor) {
			return fmt.Errorf("%s may not edit event %s: %w", actor, id, app.ErrForbidden)
		}
		if patch.Name != nil {
			if err := app.Required("name", *patch.Name); err != nil {
				return err
			}
			e.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Date != nil {
			e.Date = *patch.Date
		}
		if patch.Description != nil {
			e.Description = *patch.Description
		}
		if patch.EmailAccess != nil {
			e.EmailAccess = normalizeEmails(*patch.EmailAccess)
		}
		if patch.AnyoneCanUpload != nil {
			e.AnyoneCanUpload = *patch.AnyoneCanUpload
		}
		return nil
	})
}

// DeleteRecord removes only the event document. Blob cleanup is the
// catalog's job.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	s.log.Info().Str("event", id).Msg("event deleted")
	return nil
}

// ListOwned returns the events userID owns through any ownership field.
func (s *Service) ListOwned(ctx context.Context, userID string) ([]app.Event, error) {
	return repository.EventsOwnedBy(ctx, s.store, userID)
}

func (s *Service) List(ctx context.Context) ([]app.Event, error) {
	return s.store.ListEvents(ctx)
}

// CanManage reports whether userID owns the event under any ownership field.
func CanManage(e *app.Event, userID string) bool {
	if userID == "" {
		return false
	}
	for _, owner := range []string{e.OwnerID, e.UserEmail, e.OrganizerID, e.CreatedBy} {
		if strings.EqualFold(owner, userID) {
			return true
		}
	}
	return false
}

// CanUpload reports whether userID may add media to the event.
func CanUpload(e *app.Event, userID string) bool {
	if CanManage(e, userID) || (e.AnyoneCanUpload && userID != "") {
		return true
	}
	for _, email := range e.EmailAccess {
		if strings.EqualFold(email, userID) {
			return true
		}
	}
	return false
}

func clampStats(st *app.EventStats) {
	st.PhotoCount = max(st.PhotoCount, 0)
	st.VideoCount = max(st.VideoCount, 0)
	st.GuestCount = max(st.GuestCount, 0)
	if st.TotalImageSize < 0 {
		st.TotalImageSize = 0
	}
	if st.TotalImageUnit == "" {
		st.TotalImageUnit = app.UnitMB
	}
}

func normalizeEmails(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
