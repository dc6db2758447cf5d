// Package catalog lists, uploads and removes the media stored under an
// event prefix and keeps the event's counters in step with the bucket.
package catalog

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"photomatch/src/app"
	"photomatch/src/events"
	"photomatch/src/stats"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPageSize = 300
	deleteWorkers   = 8
)

var mediaCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "photomatch",
	Subsystem: "catalog",
	Name:      "media_operations_total",
	Help:      "The total number of media uploads and deletes by outcome",
}, []string{"op", "outcome"})

// Page is one listing page. NextPageToken is empty on the last page.
type Page struct {
	Images        []app.S3Image `json:"images"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

type Catalog struct {
	s3       *app.MinioS3Client
	events   *events.Service
	pageSize int
	now      func() time.Time
	log      zerolog.Logger
}

func New(s3 *app.MinioS3Client, svc *events.Service, pageSize int, logger zerolog.Logger) *Catalog {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Catalog{
		s3:       s3,
		events:   svc,
		pageSize: pageSize,
		now:      time.Now,
		log:      logger.With().Str("component", "catalog").Logger(),
	}
}

// List returns one page of an event's images with presigned URLs. Duplicates
// of an image already shown on the same page are hidden; pages are
// deduplicated independently, so a copy on a later page is listed again.
func (c *Catalog) List(ctx context.Context, eventID, pageToken string) (Page, error) {
	if err := app.Required("eventId", eventID); err != nil {
		return Page{}, err
	}
	startAfter, err := decodeToken(pageToken)
	if err != nil {
		return Page{}, err
	}
	objects, next, err := c.s3.ListPage(ctx, ImagesPrefix(eventID), startAfter, c.pageSize, imageExtensions)
	if err != nil {
		return Page{}, fmt.Errorf("list images of event %s: %w", eventID, err)
	}
	images := make([]app.S3Image, 0, len(objects))
	for _, o := range objects {
		images = append(images, app.S3Image{Key: o.Key, Size: o.Size, LastModified: o.LastModified})
	}
	images = Deduplicate(images)
	for i := range images {
		u, err := c.s3.PresignedURL(ctx, images[i].Key)
		if err != nil {
			return Page{}, err
		}
		images[i].URL = u
	}
	return Page{Images: images, NextPageToken: encodeToken(next)}, nil
}

// Deduplicate keeps the first image of each canonical identity, preserving
// listing order. Hidden duplicates stay in the bucket.
func Deduplicate(images []app.S3Image) []app.S3Image {
	seen := make(map[string]bool, len(images))
	result := make([]app.S3Image, 0, len(images))
	for _, img := range images {
		id := CanonicalIdentity(img.Key)
		if seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, img)
	}
	return result
}

// Upload stores a photo or video under the event and counts it. A stats
// failure after the object was stored is reported as a PartialFailure; the
// object is kept and the next reconcile corrects the counters.
func (c *Catalog) Upload(ctx context.Context, eventID, filename string, body io.Reader, size int64, contentType string) (app.S3Image, error) {
	name := cleanName(filename)
	if err := app.Required("eventId", eventID, "filename", name); err != nil {
		return app.S3Image{}, err
	}
	var prefix string
	kind := kindOf(name)
	switch kind {
	case mediaImage:
		prefix = ImagesPrefix(eventID)
	case mediaVideo:
		prefix = VideosPrefix(eventID)
	default:
		return app.S3Image{}, &app.ValidationError{Field: "filename", Reason: "has an unsupported extension"}
	}
	key := fmt.Sprintf("%s%d-%s", prefix, c.now().UnixMilli(), name)
	stored, err := c.s3.UploadFile(ctx, key, body, size, contentType)
	if err != nil {
		mediaCounter.WithLabelValues("upload", "error").Inc()
		return app.S3Image{}, fmt.Errorf("upload %s: %w", key, err)
	}
	_, err = c.events.ApplyStats(ctx, eventID, func(st *app.EventStats) {
		st.TotalImageSize, st.TotalImageUnit = stats.AddSizes(st.TotalImageSize, st.TotalImageUnit, stats.BytesToMB(stored), app.UnitMB)
		if kind == mediaVideo {
			st.VideoCount++
		} else {
			st.PhotoCount++
		}
	})
	if err != nil {
		mediaCounter.WithLabelValues("upload", "partial").Inc()
		c.log.Error().Err(err).Str("event", eventID).Str("key", key).Msg("stats update failed after upload")
		return app.S3Image{}, &app.PartialFailure{Committed: "upload " + key, Failed: "stats update", Err: err}
	}
	mediaCounter.WithLabelValues("upload", "ok").Inc()
	c.log.Info().Str("event", eventID).Str("key", key).Str("size", humanize.IBytes(uint64(stored))).Msg("media uploaded")
	return app.S3Image{Key: key, URL: c.s3.ObjectURL(key), Size: stored, LastModified: c.now().UTC()}, nil
}

// Delete removes one physical object and takes it off the event's counters.
// Other objects sharing its canonical identity are untouched.
func (c *Catalog) Delete(ctx context.Context, eventID, ref string) error {
	key := c.s3.KeyFromURL(ref)
	if err := app.Required("eventId", eventID, "key", key); err != nil {
		return err
	}
	if !strings.HasPrefix(key, EventPrefix(eventID)) {
		return &app.ValidationError{Field: "key", Reason: "is not stored under event " + eventID}
	}
	video, err := mediaOf(eventID, key)
	if err != nil {
		return err
	}
	size, err := c.s3.Stat(ctx, key)
	if err != nil {
		return err
	}
	if err := c.s3.DeleteFile(ctx, key); err != nil {
		mediaCounter.WithLabelValues("delete", "error").Inc()
		return err
	}
	_, err = c.events.ApplyStats(ctx, eventID, func(st *app.EventStats) {
		st.TotalImageSize, st.TotalImageUnit = stats.SubtractSizes(st.TotalImageSize, st.TotalImageUnit, stats.BytesToMB(size), app.UnitMB)
		if video {
			st.VideoCount--
		} else {
			st.PhotoCount--
		}
	})
	if err != nil {
		mediaCounter.WithLabelValues("delete", "partial").Inc()
		c.log.Error().Err(err).Str("event", eventID).Str("key", key).Msg("stats update failed after delete")
		return &app.PartialFailure{Committed: "delete " + key, Failed: "stats update", Err: err}
	}
	mediaCounter.WithLabelValues("delete", "ok").Inc()
	c.log.Info().Str("event", eventID).Str("key", key).Str("size", humanize.IBytes(uint64(size))).Msg("media deleted")
	return nil
}

// SetCover replaces the event's cover image.
func (c *Catalog) SetCover(ctx context.Context, eventID string, body io.Reader, size int64, contentType string) (*app.Event, error) {
	if err := app.Required("eventId", eventID); err != nil {
		return nil, err
	}
	key := CoverKey(eventID)
	if _, err := c.s3.UploadFile(ctx, key, body, size, contentType); err != nil {
		return nil, fmt.Errorf("upload cover: %w", err)
	}
	cover := c.s3.ObjectURL(key)
	event, err := c.events.Update(ctx, eventID, func(e *app.Event) error {
		e.CoverImage = cover
		return nil
	})
	if err != nil {
		return nil, &app.PartialFailure{Committed: "upload " + key, Failed: "cover update", Err: err}
	}
	return event, nil
}

// UploadUserAsset stores a selfie or logo under the user prefix and returns
// its absolute reference. Keys carry a random id so a re-upload never
// overwrites an object older match records still point at.
func (c *Catalog) UploadUserAsset(ctx context.Context, prefix, filename string, body io.Reader, size int64, contentType string) (key, ref string, err error) {
	name := cleanName(filename)
	if err := app.Required("filename", name); err != nil {
		return "", "", err
	}
	if kindOf(name) != mediaImage {
		return "", "", &app.ValidationError{Field: "filename", Reason: "is not an image"}
	}
	key = fmt.Sprintf("%s%s-%s", prefix, uuid.NewString(), name)
	if _, err := c.s3.UploadFile(ctx, key, body, size, contentType); err != nil {
		return "", "", err
	}
	return key, c.s3.ObjectURL(key), nil
}

// InUserPrefix reports whether ref names an object stored under prefix.
func (c *Catalog) InUserPrefix(ref, prefix string) bool {
	key := c.s3.KeyFromURL(ref)
	return path.Clean(key) == key && strings.HasPrefix(key, prefix)
}

// DeleteEvent removes every object under the event and then the event
// itself. If any object survives the event is kept so the call can be
// repeated.
func (c *Catalog) DeleteEvent(ctx context.Context, eventID string) error {
	if err := app.Required("eventId", eventID); err != nil {
		return err
	}
	if _, err := c.events.Get(ctx, eventID); err != nil {
		return err
	}
	objects, err := c.s3.ListAll(ctx, EventPrefix(eventID))
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteWorkers)
	for _, o := range objects {
		key := o.Key
		g.Go(func() error {
			return c.s3.DeleteFile(gctx, key)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("delete objects of event %s: %w", eventID, err)
	}
	c.log.Info().Str("event", eventID).Int("objects", len(objects)).Msg("event objects removed")
	return c.events.DeleteRecord(ctx, eventID)
}

// Reconcile recomputes an event's media counters from the bucket. It is the
// repair path for uploads and deletes that stopped between the two stores.
func (c *Catalog) Reconcile(ctx context.Context, eventID string) (*app.Event, bool, error) {
	images, err := c.s3.ListAll(ctx, ImagesPrefix(eventID))
	if err != nil {
		return nil, false, err
	}
	videos, err := c.s3.ListAll(ctx, VideosPrefix(eventID))
	if err != nil {
		return nil, false, err
	}
	var bytes int64
	photoCount, videoCount := 0, 0
	for _, o := range images {
		if kindOf(o.Key) == mediaImage {
			photoCount++
			bytes += o.Size
		}
	}
	for _, o := range videos {
		if kindOf(o.Key) == mediaVideo {
			videoCount++
			bytes += o.Size
		}
	}
	size, unit := stats.ToAppropriateUnit(bytes)

	current, err := c.events.Get(ctx, eventID)
	if err != nil {
		return nil, false, err
	}
	if current.PhotoCount == photoCount && current.VideoCount == videoCount &&
		current.TotalImageSize == size && unitOrMB(current.TotalImageUnit) == unit {
		return current, false, nil
	}
	updated, err := c.events.ApplyStats(ctx, eventID, func(st *app.EventStats) {
		st.PhotoCount, st.VideoCount = photoCount, videoCount
		st.TotalImageSize, st.TotalImageUnit = size, unit
	})
	if err != nil {
		return nil, false, err
	}
	c.log.Info().Str("event", eventID).
		Int("photos", photoCount).Int("videos", videoCount).
		Str("size", humanize.IBytes(uint64(bytes))).
		Msg("event counters reconciled")
	return updated, true, nil
}

// mediaOf accepts only photos under images/ and videos under videos/; the
// cover and anything else under the event are not counted media.
func mediaOf(eventID, key string) (video bool, err error) {
	switch {
	case strings.HasPrefix(key, ImagesPrefix(eventID)) && kindOf(key) == mediaImage:
		return false, nil
	case strings.HasPrefix(key, VideosPrefix(eventID)) && kindOf(key) == mediaVideo:
		return true, nil
	}
	return false, &app.ValidationError{Field: "key", Reason: "is not a photo or video of event " + eventID}
}

// Records written before units were tracked carry an empty unit, read as MB.
func unitOrMB(u app.SizeUnit) app.SizeUnit {
	if u == app.UnitGB {
		return u
	}
	return app.UnitMB
}

func encodeToken(key string) string {
	if key == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", &app.ValidationError{Field: "pageToken", Reason: "is malformed"}
	}
	return string(raw), nil
}
