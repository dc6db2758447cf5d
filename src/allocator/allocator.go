// Package allocator hands out short numeric identifiers that are checked
// for uniqueness against the document store.
package allocator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"photomatch/src/app"
	"photomatch/src/repository"

	"github.com/rs/zerolog"
)

// ErrExhausted is returned when every attempted candidate already existed.
var ErrExhausted = errors.New("identifier allocation exhausted")

const (
	// DefaultAttempts bounds the candidates tried per allocation.
	DefaultAttempts = 10
	idDigits        = 6
)

type (
	// Generator produces a fresh candidate.
	Generator func() (string, error)
	// Exists reports whether a candidate is already taken.
	Exists func(ctx context.Context, candidate string) (bool, error)
)

// Allocate tries up to attempts candidates and returns the first one that
// does not exist. On exhaustion it returns the last candidate together with
// ErrExhausted so the caller can decide whether a possibly-colliding value
// is acceptable.
func Allocate(ctx context.Context, gen Generator, exists Exists, attempts int) (string, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var candidate string
	for i := 0; i < attempts; i++ {
		c, err := gen()
		if err != nil {
			return "", fmt.Errorf("generate candidate: %w", err)
		}
		candidate = c
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check candidate %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return candidate, fmt.Errorf("%d attempts: %w", attempts, ErrExhausted)
}

// RandomDigits returns a generator of n-digit decimal strings, leading zeros
// allowed.
func RandomDigits(n int) Generator {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	return func() (string, error) {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%0*d", n, v), nil
	}
}

// Options tune an allocator.
type Options struct {
	Attempts int
	// DegradedFallback returns the last colliding candidate instead of
	// failing once attempts run out.
	DegradedFallback bool
	// Generator overrides the random 6-digit generator.
	Generator Generator
}

type allocator struct {
	gen    Generator
	exists Exists
	opts   Options
	log    zerolog.Logger
	kind   string
}

func newAllocator(kind string, exists Exists, opts Options, logger zerolog.Logger) allocator {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	gen := opts.Generator
	if gen == nil {
		gen = RandomDigits(idDigits)
	}
	return allocator{gen: gen, exists: exists, opts: opts, log: logger, kind: kind}
}

func (a allocator) allocate(ctx context.Context) (string, error) {
	id, err := Allocate(ctx, a.gen, a.exists, a.opts.Attempts)
	if errors.Is(err, ErrExhausted) && a.opts.DegradedFallback {
		a.log.Warn().Str("kind", a.kind).Str("candidate", id).Int("attempts", a.opts.Attempts).
			Msg("degraded allocation: returning possibly colliding identifier")
		return id, nil
	}
	return id, err
}

// EventIDs allocates event ids checked against the Events collection.
type EventIDs struct{ allocator }

func NewEventIDs(events repository.EventStore, opts Options, logger zerolog.Logger) *EventIDs {
	return &EventIDs{newAllocator("event", events.EventExists, opts, logger)}
}

func (e *EventIDs) Allocate(ctx context.Context) (string, error) {
	return e.allocate(ctx)
}

// OrganizationCodes allocates organization codes checked against the codes
// already assigned to organizers.
type OrganizationCodes struct{ allocator }

func NewOrganizationCodes(users repository.UserStore, opts Options, logger zerolog.Logger) *OrganizationCodes {
	exists := func(ctx context.Context, code string) (bool, error) {
		_, err := users.FindUserByOrganizationCode(ctx, code)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, app.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return &OrganizationCodes{newAllocator("organization", exists, opts, logger)}
}

func (o *OrganizationCodes) Allocate(ctx context.Context) (string, error) {
	return o.allocate(ctx)
}
