package catalog

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"photomatch/src/allocator"
	"photomatch/src/app"
	mocking "photomatch/src/app/mock"
	"photomatch/src/events"
	"photomatch/src/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bucket = "photomatch"

type fixture struct {
	catalog *Catalog
	client  *mocking.MockClient
	db      *repository.InMemoryDB
}

func newFixture(t *testing.T, pageSize int) fixture {
	t.Helper()
	db := repository.NewInMemoryDB()
	client := mocking.NewMockClient()
	s3 := app.NewMinioS3ClientWith(client, "s3.local", bucket, true, zerolog.Nop())
	svc := events.NewService(db, allocator.NewEventIDs(db, allocator.Options{}, zerolog.Nop()), 0, zerolog.Nop())
	c := New(s3, svc, pageSize, zerolog.Nop())
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return fixture{catalog: c, client: client, db: db}
}

func (f fixture) event(t *testing.T, e app.Event) {
	t.Helper()
	require.NoError(t, f.db.CreateEvent(context.Background(), &e))
}

func TestCanonicalIdentity(t *testing.T) {
	assert.Equal(t, "ts:a.jpg", CanonicalIdentity("events/shared/1/images/100-a.jpg"))
	assert.Equal(t, "ts:a.jpg", CanonicalIdentity("events/shared/1/images/200-A.JPG"))
	assert.Equal(t, "key:events/shared/1/images/a.jpg", CanonicalIdentity("events/shared/1/images/a.jpg"))
	assert.Equal(t, "key:x/abc-a.jpg", CanonicalIdentity("x/abc-a.jpg"))
}

func TestDeduplicate(t *testing.T) {
	in := []app.S3Image{
		{Key: "e/images/100-a.jpg"},
		{Key: "e/images/200-a.jpg"},
		{Key: "e/images/50-b.jpg"},
	}
	out := Deduplicate(in)
	require.Len(t, out, 2)
	assert.Equal(t, "e/images/100-a.jpg", out[0].Key)
	assert.Equal(t, "e/images/50-b.jpg", out[1].Key)

	plain := Deduplicate([]app.S3Image{{Key: "e/images/a.jpg"}, {Key: "f/images/a.jpg"}})
	assert.Len(t, plain, 2, "unprefixed keys never collide")
}

func TestList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	prefix := ImagesPrefix("100001")
	f.client.Seed(bucket, prefix+"100-a.jpg", 10)
	f.client.Seed(bucket, prefix+"200-a.jpg", 10)
	f.client.Seed(bucket, prefix+"300-b.png", 10)
	f.client.Seed(bucket, prefix+"notes.txt", 10)
	f.client.Seed(bucket, ImagesPrefix("100002")+"100-c.jpg", 10)

	first, err := f.catalog.List(ctx, "100001", "")
	require.NoError(t, err)
	require.Len(t, first.Images, 1, "second key of the page is a duplicate")
	assert.Equal(t, prefix+"100-a.jpg", first.Images[0].Key)
	assert.Contains(t, first.Images[0].URL, "https://example.com/")
	require.NotEmpty(t, first.NextPageToken)

	second, err := f.catalog.List(ctx, "100001", first.NextPageToken)
	require.NoError(t, err)
	require.Len(t, second.Images, 1)
	assert.Equal(t, prefix+"300-b.png", second.Images[0].Key)
	assert.Empty(t, second.NextPageToken)

	_, err = f.catalog.List(ctx, "100001", "!!not-base64")
	var verr *app.ValidationError
	assert.ErrorAs(t, err, &verr)

	f.client.ListErr = errors.New("boom")
	_, err = f.catalog.List(ctx, "100001", "")
	var ext *app.ExternalServiceError
	assert.ErrorAs(t, err, &ext)
}

func TestListDeduplicatesWithinPage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	prefix := ImagesPrefix("100001")
	f.client.Seed(bucket, prefix+"100-a.jpg", 10)
	f.client.Seed(bucket, prefix+"200-a.jpg", 10)

	first, err := f.catalog.List(ctx, "100001", "")
	require.NoError(t, err)
	require.Len(t, first.Images, 1)

	second, err := f.catalog.List(ctx, "100001", first.NextPageToken)
	require.NoError(t, err)
	require.Len(t, second.Images, 1)
	assert.Equal(t, prefix+"200-a.jpg", second.Images[0].Key)
}

func TestUploadAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.event(t, app.Event{ID: "100001", Name: "Gala"})

	body := bytes.Repeat([]byte{1}, 2*1024*1024)
	img, err := f.catalog.Upload(ctx, "100001", "my photo.JPG", bytes.NewReader(body), int64(len(body)), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, ImagesPrefix("100001")+"1700000000000-my_photo.JPG", img.Key)
	assert.Equal(t, "https://s3.local/photomatch/"+img.Key, img.URL)

	video, err := f.catalog.Upload(ctx, "100001", "clip.mp4", bytes.NewReader(body), int64(len(body)), "video/mp4")
	require.NoError(t, err)
	assert.Contains(t, video.Key, VideosPrefix("100001"))

	e, err := f.db.GetEvent(ctx, "100001")
	require.NoError(t, err)
	assert.Equal(t, 1, e.PhotoCount)
	assert.Equal(t, 1, e.VideoCount)
	assert.Equal(t, 4.0, e.TotalImageSize)
	assert.Equal(t, app.UnitMB, e.TotalImageUnit)

	require.NoError(t, f.catalog.Delete(ctx, "100001", img.URL))
	assert.False(t, f.client.Has(bucket, img.Key))
	require.NoError(t, f.catalog.Delete(ctx, "100001", video.Key))

	e, err = f.db.GetEvent(ctx, "100001")
	require.NoError(t, err)
	assert.Zero(t, e.PhotoCount)
	assert.Zero(t, e.VideoCount)
	assert.Zero(t, e.TotalImageSize)

	t.Run("Rejected", func(t *testing.T) {
		_, err := f.catalog.Upload(ctx, "100001", "notes.txt", bytes.NewReader(nil), 0, "")
		var verr *app.ValidationError
		assert.ErrorAs(t, err, &verr)

		assert.ErrorAs(t, f.catalog.Delete(ctx, "100001", ImagesPrefix("100002")+"1-a.jpg"), &verr)
		assert.ErrorIs(t, f.catalog.Delete(ctx, "100001", ImagesPrefix("100001")+"1-gone.jpg"), app.ErrNotFound)
	})
}

func TestDeleteRejectsNonMedia(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.client.Seed(bucket, ImagesPrefix("100001")+"1-a.jpg", 1024*1024)
	f.client.Seed(bucket, CoverKey("100001"), 1024*1024)
	f.client.Seed(bucket, ImagesPrefix("100001")+"1-clip.mp4", 1024*1024)
	f.event(t, app.Event{ID: "100001", CoverImage: "https://s3.local/photomatch/" + CoverKey("100001"),
		EventStats: app.EventStats{PhotoCount: 1, TotalImageSize: 1, TotalImageUnit: app.UnitMB}})

	for _, key := range []string{CoverKey("100001"), ImagesPrefix("100001") + "1-clip.mp4"} {
		var verr *app.ValidationError
		assert.ErrorAs(t, f.catalog.Delete(ctx, "100001", key), &verr, key)
		assert.True(t, f.client.Has(bucket, key), key)
	}

	e, err := f.db.GetEvent(ctx, "100001")
	require.NoError(t, err)
	assert.Equal(t, 1, e.PhotoCount)
	assert.Equal(t, 1.0, e.TotalImageSize)
}

func TestDeleteOneDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	prefix := ImagesPrefix("100001")
	f.client.Seed(bucket, prefix+"100-a.jpg", 1024*1024)
	f.client.Seed(bucket, prefix+"200-a.jpg", 1024*1024)
	f.event(t, app.Event{ID: "100001", EventStats: app.EventStats{PhotoCount: 2, TotalImageSize: 2, TotalImageUnit: app.UnitMB}})

	require.NoError(t, f.catalog.Delete(ctx, "100001", prefix+"100-a.jpg"))
	assert.True(t, f.client.Has(bucket, prefix+"200-a.jpg"))

	e, err := f.db.GetEvent(ctx, "100001")
	require.NoError(t, err)
	assert.Equal(t, 1, e.PhotoCount)
	assert.Equal(t, 1.0, e.TotalImageSize)
}

func TestUploadPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	_, err := f.catalog.Upload(ctx, "404404", "a.jpg", bytes.NewReader([]byte("x")), 1, "")
	require.Error(t, err)
	var pf *app.PartialFailure
	assert.ErrorAs(t, err, &pf)
	assert.ErrorIs(t, err, app.ErrNotFound)
	assert.True(t, f.client.Has(bucket, ImagesPrefix("404404")+"1700000000000-a.jpg"), "object kept")
}

func TestSetCover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.event(t, app.Event{ID: "100001"})

	e, err := f.catalog.SetCover(ctx, "100001", bytes.NewReader([]byte("jpg")), 3, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.local/photomatch/events/shared/100001/cover.jpg", e.CoverImage)
	assert.True(t, f.client.Has(bucket, CoverKey("100001")))
}

func TestUploadUserAsset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	key, ref, err := f.catalog.UploadUserAsset(ctx, SelfiePrefix("a@x.com"), "me.png", bytes.NewReader([]byte("png")), 3, "")
	require.NoError(t, err)
	assert.Regexp(t, `^users/a@x\.com/selfies/[0-9a-f-]{36}-me\.png$`, key)
	assert.Equal(t, "https://s3.local/photomatch/"+key, ref)

	_, _, err = f.catalog.UploadUserAsset(ctx, SelfiePrefix("a@x.com"), "me.mp4", bytes.NewReader(nil), 0, "")
	assert.Error(t, err)
}

func TestInUserPrefix(t *testing.T) {
	f := newFixture(t, 0)
	prefix := SelfiePrefix("a@x.com")

	assert.True(t, f.catalog.InUserPrefix("https://s3.local/photomatch/users/a@x.com/selfies/1-me.jpg", prefix))
	assert.True(t, f.catalog.InUserPrefix("users/a@x.com/selfies/1-me.jpg", prefix))
	assert.False(t, f.catalog.InUserPrefix("https://s3.local/photomatch/users/b@x.com/users/a@x.com/selfies/1-me.jpg", prefix))
	assert.False(t, f.catalog.InUserPrefix("users/a@x.com/selfies/../../b@x.com/selfies/1-me.jpg", prefix))
}

func TestDeleteEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.event(t, app.Event{ID: "100001"})
	f.client.Seed(bucket, ImagesPrefix("100001")+"1-a.jpg", 1)
	f.client.Seed(bucket, VideosPrefix("100001")+"1-a.mp4", 1)
	f.client.Seed(bucket, CoverKey("100001"), 1)
	f.client.Seed(bucket, ImagesPrefix("100002")+"1-a.jpg", 1)

	f.client.RemoveErr = errors.New("denied")
	require.Error(t, f.catalog.DeleteEvent(ctx, "100001"))
	_, err := f.db.GetEvent(ctx, "100001")
	require.NoError(t, err, "event kept while objects remain")

	f.client.RemoveErr = nil
	require.NoError(t, f.catalog.DeleteEvent(ctx, "100001"))
	assert.Equal(t, 3, f.client.Removes)
	assert.True(t, f.client.Has(bucket, ImagesPrefix("100002")+"1-a.jpg"))
	_, err = f.db.GetEvent(ctx, "100001")
	assert.ErrorIs(t, err, app.ErrNotFound)

	assert.ErrorIs(t, f.catalog.DeleteEvent(ctx, "100001"), app.ErrNotFound)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.event(t, app.Event{ID: "100001", EventStats: app.EventStats{PhotoCount: 9, TotalImageSize: 1, TotalImageUnit: app.UnitGB}})
	f.client.Seed(bucket, ImagesPrefix("100001")+"1-a.jpg", 1024*1024)
	f.client.Seed(bucket, ImagesPrefix("100001")+"2-a.jpg", 1024*1024)
	f.client.Seed(bucket, VideosPrefix("100001")+"1-a.mp4", 3*1024*1024)

	e, changed, err := f.catalog.Reconcile(ctx, "100001")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, e.PhotoCount)
	assert.Equal(t, 1, e.VideoCount)
	assert.Equal(t, 5.0, e.TotalImageSize)
	assert.Equal(t, app.UnitMB, e.TotalImageUnit)

	_, changed, err = f.catalog.Reconcile(ctx, "100001")
	require.NoError(t, err)
	assert.False(t, changed)

	t.Run("EmptyUnitReadsAsMB", func(t *testing.T) {
		f.event(t, app.Event{ID: "100002"})
		_, changed, err := f.catalog.Reconcile(ctx, "100002")
		require.NoError(t, err)
		assert.False(t, changed)

		e, err := f.db.GetEvent(ctx, "100002")
		require.NoError(t, err)
		assert.Zero(t, e.Version, "no write for matching counters")
	})
}
