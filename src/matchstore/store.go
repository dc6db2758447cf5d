// Package matchstore persists which images matched a user for an event.
// Matched image sets only grow: every write is a union with what is stored.
package matchstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"photomatch/src/app"
	"photomatch/src/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultFanOutLimit = 8

var fanOutFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "photomatch",
	Subsystem: "matchstore",
	Name:      "selfie_fanout_failures_total",
	Help:      "The total number of match records a selfie update failed to reach",
})

// Entry is one match batch for a (user, event) pair.
type Entry struct {
	UserID        string
	EventID       string
	EventName     string
	CoverImage    string
	SelfieURL     string
	MatchedImages []string
	Timestamp     time.Time
}

// MatchStatistics summarize a user's matches outside the profile sentinel.
type MatchStatistics struct {
	EventCount int        `json:"eventCount"`
	ImageCount int        `json:"imageCount"`
	First      *time.Time `json:"first,omitempty"`
	Last       *time.Time `json:"last,omitempty"`
}

// FanOutReport lists which records a selfie propagation reached.
type FanOutReport struct {
	Updated []string         `json:"updated"`
	Failed  map[string]error `json:"-"`
}

// Err summarizes failures, nil when every record was updated.
func (r FanOutReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, id := range sortedKeys(r.Failed) {
		errs = append(errs, fmt.Errorf("event %s: %w", id, r.Failed[id]))
	}
	return &app.PartialFailure{
		Committed: fmt.Sprintf("%d selfie updates", len(r.Updated)),
		Failed:    fmt.Sprintf("%d selfie updates", len(r.Failed)),
		Err:       errors.Join(errs...),
	}
}

type Store struct {
	matches     repository.MatchStore
	fanOutLimit int
	now         func() time.Time
	log         zerolog.Logger
}

func New(matches repository.MatchStore, fanOutLimit int, logger zerolog.Logger) *Store {
	if fanOutLimit <= 0 {
		fanOutLimit = defaultFanOutLimit
	}
	return &Store{
		matches:     matches,
		fanOutLimit: fanOutLimit,
		now:         time.Now,
		log:         logger.With().Str("component", "matchstore").Logger(),
	}
}

// Merge folds entry into the stored record for its (user, event) pair,
// creating it on first use. created reports whether a new record was
// inserted.
func (s *Store) Merge(ctx context.Context, entry Entry) (match *app.AttendeeMatch, created bool, err error) {
	if err := app.Required("userId", entry.UserID, "eventId", entry.EventID); err != nil {
		return nil, false, err
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	existing, err := s.matches.GetMatch(ctx, entry.UserID, entry.EventID)
	switch {
	case errors.Is(err, app.ErrNotFound):
		match = &app.AttendeeMatch{
			UserID:        entry.UserID,
			EventID:       entry.EventID,
			EventName:     entry.EventName,
			CoverImage:    entry.CoverImage,
			SelfieURL:     entry.SelfieURL,
			MatchedImages: Union(nil, entry.MatchedImages),
			UploadedAt:    ts,
			LastUpdated:   ts,
		}
		created = true
	case err != nil:
		return nil, false, fmt.Errorf("read match: %w", err)
	default:
		match = existing
		match.MatchedImages = Union(existing.MatchedImages, entry.MatchedImages)
		match.SelfieURL = prefer(entry.SelfieURL, existing.SelfieURL)
		match.EventName = prefer(entry.EventName, existing.EventName)
		match.CoverImage = prefer(entry.CoverImage, existing.CoverImage)
		match.LastUpdated = ts
	}

	if err := s.matches.PutMatch(ctx, match); err != nil {
		return nil, false, fmt.Errorf("write match: %w", err)
	}
	s.log.Debug().Str("user", entry.UserID).Str("event", entry.EventID).
		Int("images", len(match.MatchedImages)).Bool("created", created).Msg("merged match")
	return match, created, nil
}

// SetProfileSelfie stores the user's profile selfie on the sentinel record.
func (s *Store) SetProfileSelfie(ctx context.Context, userID, selfieURL string) (*app.AttendeeMatch, error) {
	if err := app.Required("selfieURL", selfieURL); err != nil {
		return nil, err
	}
	match, _, err := s.Merge(ctx, Entry{UserID: userID, EventID: app.DefaultEventID, SelfieURL: selfieURL})
	return match, err
}

// FanOutSelfie points every record of userID at a new selfie. Updates run
// concurrently and independently; a failed record does not stop the others
// and nothing is rolled back.
func (s *Store) FanOutSelfie(ctx context.Context, userID, selfieURL string) (FanOutReport, error) {
	if err := app.Required("userId", userID, "selfieURL", selfieURL); err != nil {
		return FanOutReport{}, err
	}
	records, err := s.matches.ListMatches(ctx, userID)
	if err != nil {
		return FanOutReport{}, fmt.Errorf("list matches: %w", err)
	}

	at := s.now()
	var (
		mu     sync.Mutex
		report = FanOutReport{Updated: make([]string, 0, len(records)), Failed: make(map[string]error)}
	)
	var g errgroup.Group
	g.SetLimit(s.fanOutLimit)
	for _, r := range records {
		eventID := r.EventID
		g.Go(func() error {
			err := s.matches.UpdateSelfie(ctx, userID, eventID, selfieURL, at)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[eventID] = err
				return nil
			}
			report.Updated = append(report.Updated, eventID)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Updated)
	if len(report.Failed) > 0 {
		fanOutFailures.Add(float64(len(report.Failed)))
		s.log.Warn().Str("user", userID).Int("failed", len(report.Failed)).
			Int("updated", len(report.Updated)).Msg("selfie fan-out incomplete")
	}
	return report, nil
}

// List returns every match of userID, sentinel included.
func (s *Store) List(ctx context.Context, userID string) ([]app.AttendeeMatch, error) {
	return s.matches.ListMatches(ctx, userID)
}

// Statistics counts events and matched images for userID, ignoring the
// profile sentinel.
func (s *Store) Statistics(ctx context.Context, userID string) (MatchStatistics, error) {
	records, err := s.matches.ListMatches(ctx, userID)
	if err != nil {
		return MatchStatistics{}, err
	}
	var st MatchStatistics
	events := make(map[string]bool)
	for _, r := range records {
		if r.EventID == app.DefaultEventID {
			continue
		}
		events[r.EventID] = true
		st.ImageCount += len(r.MatchedImages)
		for _, ts := range []time.Time{r.UploadedAt, r.LastUpdated} {
			if ts.IsZero() {
				continue
			}
			if st.First == nil || ts.Before(*st.First) {
				t := ts
				st.First = &t
			}
			if st.Last == nil || ts.After(*st.Last) {
				t := ts
				st.Last = &t
			}
		}
	}
	st.EventCount = len(events)
	return st, nil
}

// Union returns the elements of a followed by the unseen elements of b,
// without duplicates or empty references.
func Union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func prefer(incoming, current string) string {
	if incoming != "" {
		return incoming
	}
	return current
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
