package main

import (
	"context"
	"fmt"

	"photomatch/src/allocator"
	"photomatch/src/app"
	"photomatch/src/catalog"
	cfg "photomatch/src/configuration"
	"photomatch/src/events"
	"photomatch/src/facematch"
	"photomatch/src/facesearch"
	"photomatch/src/matchcache"
	"photomatch/src/matchstore"
	"photomatch/src/reconcile"
	"photomatch/src/repository"
	"photomatch/src/server"
	"photomatch/src/stats"

	"github.com/rs/zerolog"
)

// components is the wired application.
type components struct {
	store      repository.Store
	events     *events.Service
	reconciler *reconcile.Reconciler
	deps       server.Dependencies
	closers    []func(context.Context) error
}

func (c *components) Close(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i](ctx)
	}
}

func openStore(ctx context.Context, config *cfg.Properties, logger zerolog.Logger) (repository.Store, error) {
	if config.DB.InMemory {
		logger.Warn().Msg("using the in-memory document store, data is lost on exit")
		return repository.NewInMemoryDB(), nil
	}
	return repository.NewSurrealStore(ctx, config.DB, logger)
}

func openMissCache(ctx context.Context, config *cfg.Properties, logger zerolog.Logger) (matchcache.MissCache, func(context.Context) error, error) {
	if config.Redis.URL == "" {
		return matchcache.NewLRUCache(config.Match.MissCacheLen, config.Match.MissTTL), nil, nil
	}
	cache, err := matchcache.NewRedisCache(ctx, config.Redis.URL, config.Match.MissTTL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("miss cache backed by redis")
	return cache, func(context.Context) error { return cache.Close() }, nil
}

func openAuth(ctx context.Context, config *cfg.Properties, logger zerolog.Logger) (server.Authenticator, error) {
	if config.Auth.Host == "" {
		logger.Warn().Msg("no token issuer configured, trusting the X-User-Email header")
		return server.HeaderAuthenticator{}, nil
	}
	return server.NewOIDCAuthenticator(ctx, config.Auth)
}

// build wires every component. withHTTP skips the auth provider for the
// offline commands.
func build(ctx context.Context, config *cfg.Properties, logger zerolog.Logger, withHTTP bool) (*components, error) {
	c := &components{}
	store, err := openStore(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	c.store = store
	c.closers = append(c.closers, store.Close)

	s3, err := app.NewMinioS3Client(config.S3, logger)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	allocOpts := allocator.Options{Attempts: config.Allocator.Attempts, DegradedFallback: config.Allocator.DegradedFallback}
	c.events = events.NewService(store, allocator.NewEventIDs(store, allocOpts, logger), config.Allocator.StatsRetries, logger)
	cat := catalog.New(s3, c.events, config.Catalog.PageSize, logger)
	c.reconciler = reconcile.New(c.events, cat, logger)
	if !withHTTP {
		return c, nil
	}

	misses, closeMisses, err := openMissCache(ctx, config, logger)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	if closeMisses != nil {
		c.closers = append(c.closers, closeMisses)
	}
	auth, err := openAuth(ctx, config, logger)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	matches := matchstore.New(store, config.Match.FanOutLimit, logger)
	aggregator := stats.NewAggregator(store)
	orchestrator := facematch.New(
		facesearch.NewClient(config.Face, s3.Bucket(), logger),
		matches, c.events, aggregator, s3,
		facematch.Options{Threshold: config.Match.Threshold, Misses: misses},
		logger)

	c.deps = server.Dependencies{
		Events:        c.events,
		Organizations: events.NewOrganizations(store, allocator.NewOrganizationCodes(store, allocOpts, logger), logger),
		Catalog:       cat,
		Matches:       matches,
		Orchestrator:  orchestrator,
		Aggregator:    aggregator,
		Users:         store,
		Auth:          auth,
	}
	return c, nil
}
