// Package facematch turns a face-search answer into stored attendee matches
// and refreshed event statistics.
package facematch

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"photomatch/src/app"
	"photomatch/src/events"
	"photomatch/src/facesearch"
	"photomatch/src/matchcache"
	"photomatch/src/matchstore"
	"photomatch/src/stats"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultThreshold is the minimum similarity, in percent, of a kept match.
const DefaultThreshold = 70

var (
	matchRequestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photomatch",
		Subsystem: "facematch",
		Name:      "requests_total",
		Help:      "The total number of selfie match requests by outcome",
	}, []string{"outcome"})

	matchedImagesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photomatch",
		Subsystem: "facematch",
		Name:      "matched_images_total",
		Help:      "The total number of images kept above the similarity threshold",
	})
)

// BlobRefs converts between bucket keys and absolute references.
type BlobRefs interface {
	ObjectURL(key string) string
	KeyFromURL(ref string) string
}

// Result is the outcome of one successful match attempt.
type Result struct {
	Images       []string       `json:"images"`
	Count        int            `json:"count"`
	TotalMatched int            `json:"totalMatched"`
	FirstMatch   bool           `json:"firstMatch"`
	OwnerSummary *stats.Summary `json:"ownerSummary,omitempty"`
}

type Orchestrator struct {
	search     facesearch.Searcher
	matches    *matchstore.Store
	events     *events.Service
	aggregator *stats.Aggregator
	misses     matchcache.MissCache
	refs       BlobRefs
	threshold  float64
	now        func() time.Time
	log        zerolog.Logger
}

type Options struct {
	Threshold float64
	// Misses may be nil to always ask the search host.
	Misses matchcache.MissCache
}

func New(
	search facesearch.Searcher,
	matches *matchstore.Store,
	svc *events.Service,
	aggregator *stats.Aggregator,
	refs BlobRefs,
	opts Options,
	logger zerolog.Logger,
) *Orchestrator {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Orchestrator{
		search:     search,
		matches:    matches,
		events:     svc,
		aggregator: aggregator,
		misses:     opts.Misses,
		refs:       refs,
		threshold:  opts.Threshold,
		now:        time.Now,
		log:        logger.With().Str("component", "facematch").Logger(),
	}
}

// MatchSelfieToEvent searches event for faces resembling the selfie at
// selfieRef and merges the hits into userID's match record. When nothing
// reaches the threshold it returns app.ErrNoMatchFound and writes nothing.
func (o *Orchestrator) MatchSelfieToEvent(ctx context.Context, userID, selfieRef string, event *app.Event) (Result, error) {
	if event == nil {
		return Result{}, &app.ValidationError{Field: "event"}
	}
	if err := app.Required("userId", userID, "selfie", selfieRef, "eventId", event.ID); err != nil {
		return Result{}, err
	}
	probeKey := o.refs.KeyFromURL(selfieRef)
	log := o.log.With().Str("user", userID).Str("event", event.ID).Logger()

	scope := matchcache.Scope(event.ID, event.Version)
	if o.recentMiss(ctx, probeKey, scope) {
		matchRequestCounter.WithLabelValues("cached_miss").Inc()
		return Result{}, fmt.Errorf("event %s: %w", event.ID, app.ErrNoMatchFound)
	}

	candidates, err := o.search.Search(ctx, event.CollectionID(), probeKey)
	if err != nil {
		matchRequestCounter.WithLabelValues("error").Inc()
		return Result{}, err
	}
	keys := o.filter(candidates)
	if len(keys) == 0 {
		matchRequestCounter.WithLabelValues("miss").Inc()
		o.recordMiss(ctx, probeKey, scope)
		log.Info().Int("candidates", len(candidates)).Msg("no face above threshold")
		return Result{}, fmt.Errorf("event %s: %w", event.ID, app.ErrNoMatchFound)
	}

	images := make([]string, 0, len(keys))
	for _, k := range keys {
		images = append(images, o.absolute(k))
	}
	match, created, err := o.matches.Merge(ctx, matchstore.Entry{
		UserID:        userID,
		EventID:       event.ID,
		EventName:     event.Name,
		CoverImage:    event.CoverImage,
		SelfieURL:     o.absolute(probeKey),
		MatchedImages: images,
		Timestamp:     o.now().UTC(),
	})
	if err != nil {
		matchRequestCounter.WithLabelValues("error").Inc()
		return Result{}, err
	}
	matchRequestCounter.WithLabelValues("matched").Inc()
	matchedImagesCounter.Add(float64(len(images)))

	result := Result{Images: images, Count: len(images), TotalMatched: len(match.MatchedImages), FirstMatch: created}
	if err := o.refresh(ctx, event, created, &result); err != nil {
		return result, &app.PartialFailure{Committed: "match merge", Failed: "statistics refresh", Err: err}
	}
	log.Info().Int("matched", result.Count).Int("total", result.TotalMatched).Bool("first", created).Msg("selfie matched")
	return result, nil
}

// refresh counts a first-time attendee as a guest and recomputes the
// owner's rollup.
func (o *Orchestrator) refresh(ctx context.Context, event *app.Event, created bool, result *Result) error {
	if created {
		if _, err := o.events.ApplyStats(ctx, event.ID, func(st *app.EventStats) { st.GuestCount++ }); err != nil {
			return fmt.Errorf("count guest: %w", err)
		}
	}
	owner := event.Owner()
	if owner == "" {
		return nil
	}
	summary, err := o.aggregator.ForUser(ctx, owner)
	if err != nil {
		return fmt.Errorf("aggregate owner %s: %w", owner, err)
	}
	result.OwnerSummary = &summary
	return nil
}

func (o *Orchestrator) filter(candidates []facesearch.Candidate) []string {
	seen := make(map[string]bool, len(candidates))
	keys := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity < o.threshold || c.ImageKey == "" || seen[c.ImageKey] {
			continue
		}
		seen[c.ImageKey] = true
		keys = append(keys, c.ImageKey)
	}
	return keys
}

func (o *Orchestrator) absolute(key string) string {
	if u, err := url.Parse(key); err == nil && u.Scheme != "" && u.Host != "" {
		return key
	}
	return o.refs.ObjectURL(key)
}

// The miss cache is advisory; its failures only cost an extra search.
func (o *Orchestrator) recentMiss(ctx context.Context, probeKey, scope string) bool {
	if o.misses == nil {
		return false
	}
	seen, err := o.misses.Seen(ctx, probeKey, scope)
	if err != nil {
		o.log.Warn().Err(err).Msg("miss cache lookup failed")
		return false
	}
	return seen
}

func (o *Orchestrator) recordMiss(ctx context.Context, probeKey, scope string) {
	if o.misses == nil {
		return
	}
	if err := o.misses.Record(ctx, probeKey, scope); err != nil {
		o.log.Warn().Err(err).Msg("miss cache write failed")
	}
}
