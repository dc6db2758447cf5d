package matchstore

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"photomatch/src/app"
	"photomatch/src/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func sorted(v []string) []string {
	out := append([]string(nil), v...)
	sort.Strings(out)
	return out
}

func TestMerge(t *testing.T) {
	ctx := context.Background()

	t.Run("insert then union", func(t *testing.T) {
		s := New(repository.NewInMemoryDB(), 0, zerolog.Nop())

		m, created, err := s.Merge(ctx, Entry{
			UserID: "u@x.com", EventID: "100001", EventName: "Gala", SelfieURL: "s1",
			MatchedImages: []string{"a", "b", "a"}, Timestamp: t0,
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, []string{"a", "b"}, m.MatchedImages)
		assert.Equal(t, t0, m.UploadedAt)

		m, created, err = s.Merge(ctx, Entry{
			UserID: "u@x.com", EventID: "100001", CoverImage: "cover",
			MatchedImages: []string{"b", "c"}, Timestamp: t1,
		})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, []string{"a", "b", "c"}, m.MatchedImages)
		assert.Equal(t, "Gala", m.EventName, "empty incoming keeps existing")
		assert.Equal(t, "s1", m.SelfieURL)
		assert.Equal(t, "cover", m.CoverImage)
		assert.Equal(t, t0, m.UploadedAt)
		assert.Equal(t, t1, m.LastUpdated)
	})

	t.Run("union is order independent and idempotent", func(t *testing.T) {
		batches := [][]string{{"a", "b"}, {"c"}, {"b", "d", "a"}, {"d"}}
		orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1, 2, 0}}

		var results [][]string
		for _, order := range orders {
			s := New(repository.NewInMemoryDB(), 0, zerolog.Nop())
			var last *app.AttendeeMatch
			for _, i := range order {
				m, _, err := s.Merge(ctx, Entry{UserID: "u", EventID: "e", MatchedImages: batches[i], Timestamp: t0})
				require.NoError(t, err)
				last = m
			}
			results = append(results, sorted(last.MatchedImages))
		}
		for _, r := range results {
			assert.Equal(t, []string{"a", "b", "c", "d"}, r)
		}
	})

	t.Run("validation", func(t *testing.T) {
		s := New(repository.NewInMemoryDB(), 0, zerolog.Nop())
		_, _, err := s.Merge(ctx, Entry{EventID: "e"})
		var verr *app.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

type flakyMatches struct {
	*repository.InMemoryDB
	failFor map[string]bool
}

func (f *flakyMatches) UpdateSelfie(ctx context.Context, userID, eventID, url string, at time.Time) error {
	if f.failFor[eventID] {
		return errors.New("throttled")
	}
	return f.InMemoryDB.UpdateSelfie(ctx, userID, eventID, url, at)
}

func TestFanOutSelfie(t *testing.T) {
	ctx := context.Background()
	db := &flakyMatches{InMemoryDB: repository.NewInMemoryDB(), failFor: map[string]bool{"100002": true}}
	s := New(db, 2, zerolog.Nop())
	for _, id := range []string{"default", "100001", "100002", "100003"} {
		_, _, err := s.Merge(ctx, Entry{UserID: "u", EventID: id, SelfieURL: "old", Timestamp: t0})
		require.NoError(t, err)
	}

	report, err := s.FanOutSelfie(ctx, "u", "new")
	require.NoError(t, err)
	assert.Equal(t, []string{"100001", "100003", "default"}, report.Updated)
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed, "100002")

	var pf *app.PartialFailure
	assert.ErrorAs(t, report.Err(), &pf)

	m, err := db.GetMatch(ctx, "u", "100003")
	require.NoError(t, err)
	assert.Equal(t, "new", m.SelfieURL)

	m, err = db.GetMatch(ctx, "u", "100002")
	require.NoError(t, err)
	assert.Equal(t, "old", m.SelfieURL, "failed records are left as they were")

	clean, err := s.FanOutSelfie(ctx, "nobody", "new")
	require.NoError(t, err)
	assert.NoError(t, clean.Err())
	assert.Empty(t, clean.Updated)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	s := New(repository.NewInMemoryDB(), 0, zerolog.Nop())

	_, err := s.SetProfileSelfie(ctx, "u", "profile.jpg")
	require.NoError(t, err)
	_, _, err = s.Merge(ctx, Entry{UserID: "u", EventID: "100001", MatchedImages: []string{"a", "b"}, Timestamp: t1})
	require.NoError(t, err)
	_, _, err = s.Merge(ctx, Entry{UserID: "u", EventID: "100002", MatchedImages: []string{"c"}, Timestamp: t0})
	require.NoError(t, err)
	_, _, err = s.Merge(ctx, Entry{UserID: "u", EventID: "100002", MatchedImages: []string{"d"}, Timestamp: t2})
	require.NoError(t, err)

	st, err := s.Statistics(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 2, st.EventCount)
	assert.Equal(t, 4, st.ImageCount)
	require.NotNil(t, st.First)
	require.NotNil(t, st.Last)
	assert.Equal(t, t0, *st.First)
	assert.Equal(t, t2, *st.Last)

	empty, err := s.Statistics(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.EventCount)
	assert.Nil(t, empty.First)
}

func TestUnion(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Union([]string{"a", "b"}, []string{"", "c", "a"}))
	assert.Empty(t, Union(nil, nil))
}
