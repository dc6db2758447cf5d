package stats

import (
	"context"
	"testing"

	"photomatch/src/app"
	"photomatch/src/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorForUser(t *testing.T) {
	ctx := context.Background()

	t.Run("event under two ownership fields counts once", func(t *testing.T) {
		db := repository.NewInMemoryDB()
		db.SeedEvent("100001", app.Event{
			ID:          "100001",
			UserEmail:   "a@x.com",
			OrganizerID: "a@x.com",
			EventStats:  app.EventStats{PhotoCount: 7, GuestCount: 2, TotalImageSize: 10, TotalImageUnit: app.UnitMB},
		})

		summary, err := NewAggregator(db).ForUser(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, 1, summary.EventCount)
		assert.Equal(t, 7, summary.PhotoCount)
		assert.Equal(t, 2, summary.GuestCount)
		assert.Equal(t, 10.0, summary.TotalSize)
	})

	t.Run("sums across distinct events and units", func(t *testing.T) {
		db := repository.NewInMemoryDB()
		db.SeedEvent("100001", app.Event{ID: "100001", OwnerID: "a@x.com",
			EventStats: app.EventStats{PhotoCount: 1, VideoCount: 1, TotalImageSize: 1, TotalImageUnit: app.UnitGB}})
		db.SeedEvent("100002", app.Event{ID: "100002", CreatedBy: "a@x.com",
			EventStats: app.EventStats{PhotoCount: 2, TotalImageSize: 512, TotalImageUnit: app.UnitMB}})
		db.SeedEvent("100003", app.Event{ID: "100003", OwnerID: "b@x.com",
			EventStats: app.EventStats{PhotoCount: 100}})

		summary, err := NewAggregator(db).ForUser(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, Summary{
			EventCount: 2,
			PhotoCount: 3,
			VideoCount: 1,
			TotalSize:  1.5,
			TotalUnit:  app.UnitGB,
		}, summary)
	})

	t.Run("no events", func(t *testing.T) {
		summary, err := NewAggregator(repository.NewInMemoryDB()).ForUser(ctx, "nobody@x.com")
		require.NoError(t, err)
		assert.Zero(t, summary.EventCount)
		assert.Equal(t, app.UnitMB, summary.TotalUnit)
	})
}
