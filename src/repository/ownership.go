package repository

import (
	"context"
	"fmt"

	"photomatch/src/app"

	"github.com/rs/zerolog"
)

// OwnerFields are every event attribute that has ever linked an event to
// its owner. ownerId is canonical; the rest are legacy aliases of the same
// relation.
var OwnerFields = []string{"ownerId", "userEmail", "organizerId", "createdBy"}

// EventsOwnedBy returns the events owned by userID through any ownership
// field. An event reachable through several fields appears once, in the
// order it was first found.
func EventsOwnedBy(ctx context.Context, store EventStore, userID string) ([]app.Event, error) {
	if userID == "" {
		return nil, &app.ValidationError{Field: "userId"}
	}
	seen := make(map[string]bool)
	result := make([]app.Event, 0)
	for _, field := range OwnerFields {
		events, err := store.ListEventsByField(ctx, field, userID)
		if err != nil {
			return nil, fmt.Errorf("list events by %s: %w", field, err)
		}
		for _, e := range events {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			result = append(result, e)
		}
	}
	return result, nil
}

// MigrateOwners fills ownerId from the first non-empty legacy field on every
// event that lacks it. Events changed concurrently are counted as skipped;
// rerunning picks them up.
func MigrateOwners(ctx context.Context, store EventStore, logger zerolog.Logger) (migrated, skipped int, err error) {
	events, err := store.ListEvents(ctx)
	if err != nil {
		return 0, 0, err
	}
	for i := range events {
		e := events[i]
		if e.OwnerID != "" || e.Owner() == "" {
			continue
		}
		e.OwnerID = e.Owner()
		if _, err := store.SwapEvent(ctx, &e, e.Version); err != nil {
			logger.Warn().Err(err).Str("event", e.ID).Msg("owner migration skipped")
			skipped++
			continue
		}
		migrated++
	}
	logger.Info().Int("migrated", migrated).Int("skipped", skipped).Msg("owner migration done")
	return migrated, skipped, nil
}
