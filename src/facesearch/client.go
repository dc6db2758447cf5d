// Package facesearch talks to the face-search host that indexes event
// photos and compares a probe selfie against them.
package facesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"photomatch/src/app"
	cfg "photomatch/src/configuration"

	"github.com/rs/zerolog"
)

const serviceName = "face search"

// Candidate is one indexed image resembling the probe. Similarity is a
// percentage in [0, 100].
type Candidate struct {
	ImageKey   string  `json:"imageKey"`
	Similarity float64 `json:"similarity"`
}

type searchRequest struct {
	CollectionID string `json:"collectionId"`
	Bucket       string `json:"bucket"`
	ProbeKey     string `json:"probeKey"`
}

type searchResponse struct {
	Matches []Candidate `json:"matches"`
}

// Searcher finds faces resembling a probe image within a collection.
type Searcher interface {
	Search(ctx context.Context, collectionID, probeKey string) ([]Candidate, error)
}

type Client struct {
	host     string
	bucket   string
	timeout  time.Duration
	pipeline requestPipeline
	log      zerolog.Logger
}

var _ Searcher = (*Client)(nil)

func NewClient(props cfg.FaceSearchProperties, bucket string, logger zerolog.Logger) *Client {
	return &Client{
		host:    strings.TrimRight(props.Host, "/"),
		bucket:  bucket,
		timeout: props.Timeout,
		pipeline: requestPipeline{
			client: &http.Client{Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    props.Timeout,
				DisableCompression: true,
			}},
			postProcess: decodeMatches,
		},
		log: logger.With().Str("component", "facesearch").Logger(),
	}
}

// Search asks the host for faces in collectionID resembling the image stored
// at probeKey. No retries are made; every failure is an ExternalServiceError.
func (c *Client) Search(ctx context.Context, collectionID, probeKey string) ([]Candidate, error) {
	if err := app.Required("collectionId", collectionID, "probeKey", probeKey); err != nil {
		return nil, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	started := time.Now()
	result, err := c.pipeline.execute(ctx, http.MethodPost, c.host+"/search", searchRequest{
		CollectionID: collectionID,
		Bucket:       c.bucket,
		ProbeKey:     probeKey,
	})
	if err != nil {
		c.log.Error().Err(err).Str("collection", collectionID).Msg("face search failed")
		return nil, &app.ExternalServiceError{Service: serviceName, Err: err}
	}
	candidates := result.([]Candidate)
	c.log.Debug().Str("collection", collectionID).Int("candidates", len(candidates)).
		Dur("took", time.Since(started)).Msg("face search done")
	return candidates, nil
}

func decodeMatches(body []byte) (any, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if resp.Matches == nil {
		resp.Matches = []Candidate{}
	}
	return resp.Matches, nil
}
