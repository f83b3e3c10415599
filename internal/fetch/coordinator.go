// Package fetch orchestrates remote listing and image requests against the
// metadata store and the image cache. Work runs on a fixed worker pool and
// every completion is delivered exactly once on a single dispatcher
// goroutine.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/pders01/photorama/internal/config"
	"github.com/pders01/photorama/internal/debuglog"
	"github.com/pders01/photorama/internal/flickr"
	"github.com/pders01/photorama/internal/imagecache"
	"github.com/pders01/photorama/internal/storage"
)

const defaultWorkers = 4

type PhotoStore interface {
	UpsertPhotos(records []*storage.ParsedPhoto) ([]string, error)
	GetPhotos(ids []string) ([]*storage.Photo, error)
	FetchAll() ([]*storage.Photo, error)
	FetchFavorites() ([]*storage.Photo, error)
	PhotosForTag(name string) ([]*storage.Photo, error)
	FetchAllTags() ([]*storage.Tag, error)
	SetFavorite(id string, favorite bool) error
	IncrementViewCount(id string) (uint64, error)
	SaveIfDirty() error
}

type RemoteAPI interface {
	BuildListingURL(kind flickr.ListingKind) string
	BuildPublicFeedURL(tags ...string) string
	ParseListing(data []byte) ([]*storage.ParsedPhoto, error)
	ParsePublicFeed(r io.Reader) ([]*storage.ParsedPhoto, error)
	Get(ctx context.Context, url string) ([]byte, error)
}

type ImageCache interface {
	Lookup(key string) (*imagecache.Image, bool)
	Has(key string) bool
	Path(key string) string
	Store(key string, img *imagecache.Image) error
}

var (
	_ PhotoStore = (*storage.Store)(nil)
	_ RemoteAPI  = (*flickr.Client)(nil)
	_ ImageCache = (*imagecache.Cache)(nil)
)

// Listener is told about canonical photos after each successful listing
// fetch, before the caller's completion runs.
type Listener interface {
	PhotosUpdated(photos []*storage.Photo)
}

type PhotosResult struct {
	Photos []*storage.Photo
	Err    error
}

type ImageResult struct {
	Image *imagecache.Image
	Err   error
}

type TagsResult struct {
	Tags []*storage.Tag
	Err  error
}

type Coordinator struct {
	store PhotoStore
	api   RemoteAPI
	cache ImageCache

	dispatcher *Dispatcher
	jobs       chan func()
	workers    sync.WaitGroup
	pending    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	images singleflight.Group

	listenersMu sync.RWMutex
	listeners   []Listener

	registry *prometheus.Registry
	metrics  *Metrics
}

func NewCoordinator(store PhotoStore, api RemoteAPI, cache ImageCache, cfg *config.Config) *Coordinator {
	workers := defaultWorkers
	if cfg != nil && cfg.Fetch.Workers > 0 {
		workers = cfg.Fetch.Workers
	}

	registry := prometheus.NewRegistry()
	c := &Coordinator{
		store:      store,
		api:        api,
		cache:      cache,
		dispatcher: NewDispatcher(),
		jobs:       make(chan func(), workers*16),
		registry:   registry,
		metrics:    newMetrics(registry),
	}

	for i := 0; i < workers; i++ {
		c.workers.Add(1)
		go func() {
			defer c.workers.Done()
			for job := range c.jobs {
				job()
			}
		}()
	}

	return c
}

// Registry exposes the coordinator's metrics.
func (c *Coordinator) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Coordinator) Metrics() *Metrics {
	return c.metrics
}

func (c *Coordinator) AddListener(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Close waits for every accepted request to complete and its completion to
// run, then stops the workers and the dispatcher. It must not be called from
// inside a completion.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.pending.Wait()
	close(c.jobs)
	c.workers.Wait()
	c.dispatcher.Close()
}

// FetchListing downloads a listing, merges it into the store and completes
// with the canonical photos in listing order.
func (c *Coordinator) FetchListing(kind flickr.ListingKind, done func(PhotosResult)) {
	source := kind.String()
	c.runPhotos(done, func(ctx context.Context) ([]*storage.Photo, error) {
		return c.ingest(ctx, "fetch "+source+" photos", source, c.api.BuildListingURL(kind), c.api.ParseListing)
	})
}

// FetchPublicFeed is FetchListing for the public photos Atom feed.
func (c *Coordinator) FetchPublicFeed(tags []string, done func(PhotosResult)) {
	url := c.api.BuildPublicFeedURL(tags...)
	parse := func(data []byte) ([]*storage.ParsedPhoto, error) {
		return c.api.ParsePublicFeed(bytes.NewReader(data))
	}
	c.runPhotos(done, func(ctx context.Context) ([]*storage.Photo, error) {
		return c.ingest(ctx, "fetch public photos", "public", url, parse)
	})
}

func (c *Coordinator) ingest(
	ctx context.Context,
	op, source, url string,
	parse func([]byte) ([]*storage.ParsedPhoto, error),
) ([]*storage.Photo, error) {
	photos, err := c.ingestListing(ctx, op, url, parse)
	if err != nil {
		c.metrics.Listings.WithLabelValues(source, "error").Inc()
		c.metrics.recordFailure(err)
		debuglog.Warnf("%s: %v", op, err)
		return nil, err
	}

	c.metrics.Listings.WithLabelValues(source, "ok").Inc()
	debuglog.WithFields(map[string]any{
		"source": source,
		"photos": len(photos),
	}).Infof("listing stored")

	c.notify(photos)
	return photos, nil
}

func (c *Coordinator) ingestListing(
	ctx context.Context,
	op, url string,
	parse func([]byte) ([]*storage.ParsedPhoto, error),
) ([]*storage.Photo, error) {
	body, err := c.get(ctx, "listing", url)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Op: op, Err: err}
	}

	records, err := parse(body)
	if err != nil {
		return nil, &FetchError{Kind: KindParse, Op: op, Err: err}
	}

	ids, err := c.store.UpsertPhotos(records)
	if err != nil {
		return nil, &FetchError{Kind: KindStore, Op: op, Err: err}
	}

	photos, err := c.store.GetPhotos(ids)
	if err != nil {
		return nil, &FetchError{Kind: KindStore, Op: op, Err: err}
	}

	return photos, nil
}

// FetchImage completes with the image for photo. The cache is read on the
// worker pool; only a miss reaches the network, and concurrent calls for the
// same photo share one flight.
//
// FetchImage panics with ErrMissingImageURL when the image is not cached and
// the photo has no remote URL, and panics when photo has no id.
func (c *Coordinator) FetchImage(photo *storage.Photo, done func(ImageResult)) {
	if photo == nil || photo.ID == "" {
		panic("fetch: FetchImage requires a photo with an id")
	}

	if !c.begin() {
		if done != nil {
			done(ImageResult{Err: ErrClosed})
		}
		return
	}

	key := photo.ID
	url, ok := flickr.ImageURL(photo)
	if !ok && !c.cache.Has(key) {
		c.pending.Done()
		panic(fmt.Errorf("%w: photo %s", ErrMissingImageURL, key))
	}

	ch := c.images.DoChan(key, func() (any, error) {
		return c.onPool(func() (any, error) {
			return c.loadImage(key, url)
		})
	})

	go func() {
		res := <-ch
		if res.Shared {
			c.metrics.SharedImages.Inc()
		}

		result := ImageResult{Err: res.Err}
		if res.Err == nil {
			result.Image = res.Val.(*imagecache.Image)
		}
		c.complete(func() {
			if done != nil {
				done(result)
			}
		})
	}()
}

// CachedImagePath returns the cache file holding photo's image when it is
// present and decodes. It reads the file on the calling goroutine.
func (c *Coordinator) CachedImagePath(photo *storage.Photo) (string, bool) {
	if photo == nil || photo.ID == "" {
		return "", false
	}
	if _, ok := c.cache.Lookup(photo.ID); !ok {
		return "", false
	}
	return c.cache.Path(photo.ID), true
}

// loadImage serves key from the cache, downloading url on a miss.
func (c *Coordinator) loadImage(key, url string) (*imagecache.Image, error) {
	const op = "fetch image"

	if img, ok := c.cache.Lookup(key); ok {
		c.metrics.CacheHits.Inc()
		return img, nil
	}
	c.metrics.CacheMisses.Inc()

	// The entry existed when the call was made but no longer decodes.
	if url == "" {
		return nil, c.fail(&FetchError{Kind: KindCache, Op: op,
			Err: fmt.Errorf("%w: photo %s", ErrMissingImageURL, key)})
	}

	body, err := c.get(context.Background(), "image", url)
	if err != nil {
		return nil, c.fail(&FetchError{Kind: KindTransport, Op: op, Err: err})
	}

	img, err := imagecache.Decode(body)
	if err != nil {
		return nil, c.fail(&FetchError{Kind: KindDecode, Op: op, Err: err})
	}

	if err := c.cache.Store(key, img); err != nil {
		return nil, c.fail(&FetchError{Kind: KindCache, Op: op, Err: err})
	}

	debuglog.Debugf("cached image %s (%s %dx%d)", key, img.Format, img.Width, img.Height)
	return img, nil
}

func (c *Coordinator) FetchAllPhotos(done func(PhotosResult)) {
	c.runPhotos(done, func(context.Context) ([]*storage.Photo, error) {
		return c.read("fetch all photos", c.store.FetchAll)
	})
}

func (c *Coordinator) FetchFavoritePhotos(done func(PhotosResult)) {
	c.runPhotos(done, func(context.Context) ([]*storage.Photo, error) {
		return c.read("fetch favorite photos", c.store.FetchFavorites)
	})
}

func (c *Coordinator) FetchPhotos(ids []string, done func(PhotosResult)) {
	c.runPhotos(done, func(context.Context) ([]*storage.Photo, error) {
		return c.read("fetch photos", func() ([]*storage.Photo, error) {
			return c.store.GetPhotos(ids)
		})
	})
}

func (c *Coordinator) FetchPhotosForTag(name string, done func(PhotosResult)) {
	c.runPhotos(done, func(context.Context) ([]*storage.Photo, error) {
		return c.read("fetch photos for tag", func() ([]*storage.Photo, error) {
			return c.store.PhotosForTag(name)
		})
	})
}

func (c *Coordinator) FetchAllTags(done func(TagsResult)) {
	c.run(func() {
		tags, err := c.store.FetchAllTags()
		if err != nil {
			err = c.fail(&FetchError{Kind: KindStore, Op: "fetch all tags", Err: err})
		}
		c.complete(func() {
			if done != nil {
				done(TagsResult{Tags: tags, Err: err})
			}
		})
	}, func() {
		if done != nil {
			done(TagsResult{Err: ErrClosed})
		}
	})
}

// SetFavorite updates the flag and saves before completing.
func (c *Coordinator) SetFavorite(id string, favorite bool, done func(error)) {
	const op = "set favorite"
	c.run(func() {
		err := c.store.SetFavorite(id, favorite)
		if err == nil {
			err = c.store.SaveIfDirty()
		}
		if err != nil {
			err = c.fail(&FetchError{Kind: KindStore, Op: op, Err: err})
		}
		c.complete(func() {
			if done != nil {
				done(err)
			}
		})
	}, func() {
		if done != nil {
			done(ErrClosed)
		}
	})
}

// IncrementViewCount records one detail view and saves before completing
// with the new count.
func (c *Coordinator) IncrementViewCount(id string, done func(uint64, error)) {
	const op = "increment view count"
	c.run(func() {
		views, err := c.store.IncrementViewCount(id)
		if err == nil {
			err = c.store.SaveIfDirty()
		}
		if err != nil {
			views = 0
			err = c.fail(&FetchError{Kind: KindStore, Op: op, Err: err})
		}
		c.complete(func() {
			if done != nil {
				done(views, err)
			}
		})
	}, func() {
		if done != nil {
			done(0, ErrClosed)
		}
	})
}

func (c *Coordinator) read(op string, fn func() ([]*storage.Photo, error)) ([]*storage.Photo, error) {
	photos, err := fn()
	if err != nil {
		return nil, c.fail(&FetchError{Kind: KindStore, Op: op, Err: err})
	}
	return photos, nil
}

func (c *Coordinator) runPhotos(done func(PhotosResult), fn func(ctx context.Context) ([]*storage.Photo, error)) {
	c.run(func() {
		photos, err := fn(context.Background())
		c.complete(func() {
			if done != nil {
				done(PhotosResult{Photos: photos, Err: err})
			}
		})
	}, func() {
		if done != nil {
			done(PhotosResult{Err: ErrClosed})
		}
	})
}

// run queues job on the worker pool. When the coordinator is closed, rejected
// runs on the caller's goroutine instead.
func (c *Coordinator) run(job func(), rejected func()) {
	if !c.begin() {
		rejected()
		return
	}
	c.jobs <- job
}

// onPool runs fn on a worker and waits for its result.
func (c *Coordinator) onPool(fn func() (any, error)) (any, error) {
	type result struct {
		val any
		err error
	}
	out := make(chan result, 1)
	c.jobs <- func() {
		val, err := fn()
		out <- result{val: val, err: err}
	}
	r := <-out
	return r.val, r.err
}

// begin registers one request. Every successful begin is matched by exactly
// one complete.
func (c *Coordinator) begin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	c.pending.Add(1)
	return true
}

func (c *Coordinator) complete(fn func()) {
	defer c.pending.Done()
	if !c.dispatcher.Post(fn) {
		debuglog.Errorf("completion dropped: dispatcher closed")
	}
}

func (c *Coordinator) get(ctx context.Context, target, url string) ([]byte, error) {
	start := time.Now()
	c.metrics.Requests.WithLabelValues(target).Inc()
	body, err := c.api.Get(ctx, url)
	c.metrics.RequestDuration.WithLabelValues(target).Observe(time.Since(start).Seconds())
	return body, err
}

func (c *Coordinator) fail(err error) error {
	c.metrics.recordFailure(err)
	return err
}

func (c *Coordinator) notify(photos []*storage.Photo) {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, l := range c.listeners {
		l.PhotosUpdated(photos)
	}
}
