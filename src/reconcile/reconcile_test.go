package reconcile

import (
	"context"
	"errors"
	"testing"

	"photomatch/src/allocator"
	"photomatch/src/app"
	mocking "photomatch/src/app/mock"
	"photomatch/src/catalog"
	"photomatch/src/events"
	"photomatch/src/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReconciler(t *testing.T) (*Reconciler, *repository.InMemoryDB, *mocking.MockClient) {
	t.Helper()
	db := repository.NewInMemoryDB()
	client := mocking.NewMockClient()
	s3 := app.NewMinioS3ClientWith(client, "s3.local", "photomatch", false, zerolog.Nop())
	svc := events.NewService(db, allocator.NewEventIDs(db, allocator.Options{}, zerolog.Nop()), 0, zerolog.Nop())
	return New(svc, catalog.New(s3, svc, 0, zerolog.Nop()), zerolog.Nop()), db, client
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	r, db, client := newReconciler(t)
	require.NoError(t, db.CreateEvent(ctx, &app.Event{ID: "100001", EventStats: app.EventStats{PhotoCount: 3}}))
	require.NoError(t, db.CreateEvent(ctx, &app.Event{ID: "100002"}))
	client.Seed("photomatch", catalog.ImagesPrefix("100001")+"1-a.jpg", 1024*1024)

	report, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, []string{"100001"}, report.Corrected)

	e, err := db.GetEvent(ctx, "100001")
	require.NoError(t, err)
	assert.Equal(t, 1, e.PhotoCount)
	assert.Equal(t, 1.0, e.TotalImageSize)
}

func TestRunOnceReportsFailures(t *testing.T) {
	ctx := context.Background()
	r, db, client := newReconciler(t)
	require.NoError(t, db.CreateEvent(ctx, &app.Event{ID: "100001"}))
	client.ListErr = errors.New("unavailable")

	report, err := r.RunOnce(ctx)
	var pf *app.PartialFailure
	require.ErrorAs(t, err, &pf)
	assert.Contains(t, report.Failed, "100001")
}

func TestSchedule(t *testing.T) {
	r, _, _ := newReconciler(t)
	s := NewScheduler(zerolog.Nop())

	_, err := s.Schedule(context.Background(), "not a schedule", r)
	assert.Error(t, err)

	id, err := s.Schedule(context.Background(), "@every 6h", r)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, s.Entries(), 1)

	s.Start()
	s.Shutdown()
}
