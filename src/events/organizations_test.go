package events

import (
	"context"
	"testing"

	"photomatch/src/allocator"
	"photomatch/src/app"
	"photomatch/src/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrganizations(t *testing.T) {
	ctx := context.Background()
	db := repository.NewInMemoryDB()
	codes := allocator.NewOrganizationCodes(db, allocator.Options{Generator: sequence("111111", "222222")}, zerolog.Nop())
	orgs := NewOrganizations(db, codes, zerolog.Nop())

	first, err := orgs.RegisterOrganizer(ctx, "org@x.com", "Studio")
	require.NoError(t, err)
	assert.Equal(t, "111111", first.OrganizationCode)
	assert.Equal(t, app.RoleOrganizer, first.Role)

	again, err := orgs.RegisterOrganizer(ctx, "org@x.com", "Studio Two")
	require.NoError(t, err)
	assert.Equal(t, "111111", again.OrganizationCode, "code is stable")
	assert.Equal(t, "Studio Two", again.OrganizationName)

	second, err := orgs.RegisterOrganizer(ctx, "other@x.com", "Other")
	require.NoError(t, err)
	assert.Equal(t, "222222", second.OrganizationCode, "taken code skipped")

	t.Run("Join", func(t *testing.T) {
		org, err := orgs.Join(ctx, "guest@x.com", "111111")
		require.NoError(t, err)
		assert.Equal(t, "org@x.com", org.ID)

		_, err = orgs.Join(ctx, "guest@x.com", "111111")
		require.NoError(t, err)

		links, err := orgs.ListLinks(ctx, "guest@x.com")
		require.NoError(t, err)
		assert.Len(t, links, 1)

		_, err = orgs.Join(ctx, "guest@x.com", "999999")
		assert.ErrorIs(t, err, app.ErrNotFound)
	})

	t.Run("EventsForOrganization", func(t *testing.T) {
		db.SeedEvent("100001", app.Event{ID: "100001", OrganizationCode: "111111"})
		db.SeedEvent("100002", app.Event{ID: "100002", OrganizationCode: "222222"})

		events, err := orgs.EventsForOrganization(ctx, "111111")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "100001", events[0].ID)

		_, err = orgs.EventsForOrganization(ctx, "")
		assert.Error(t, err)
	})
}
