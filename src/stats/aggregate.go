package stats

import (
	"context"

	"photomatch/src/app"
	"photomatch/src/repository"
)

// Summary is a user's rollup across the events they own.
type Summary struct {
	EventCount int          `json:"eventCount"`
	PhotoCount int          `json:"photoCount"`
	VideoCount int          `json:"videoCount"`
	GuestCount int          `json:"guestCount"`
	TotalSize  float64      `json:"totalSize"`
	TotalUnit  app.SizeUnit `json:"totalUnit"`
}

type Aggregator struct {
	events repository.EventStore
}

func NewAggregator(events repository.EventStore) *Aggregator {
	return &Aggregator{events: events}
}

// ForUser sums the counters of every event userID owns. Events reachable
// through more than one ownership field are counted once.
func (a *Aggregator) ForUser(ctx context.Context, userID string) (Summary, error) {
	events, err := repository.EventsOwnedBy(ctx, a.events, userID)
	if err != nil {
		return Summary{}, err
	}
	return Sum(events), nil
}

// Sum totals already-deduplicated events.
func Sum(events []app.Event) Summary {
	s := Summary{TotalUnit: app.UnitMB}
	for _, e := range events {
		s.EventCount++
		s.PhotoCount += e.PhotoCount
		s.VideoCount += e.VideoCount
		s.GuestCount += e.GuestCount
		s.TotalSize, s.TotalUnit = AddSizes(s.TotalSize, s.TotalUnit, e.TotalImageSize, e.TotalImageUnit)
	}
	return s
}
