package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/pders01/photorama/internal/config"
	"github.com/pders01/photorama/internal/debuglog"
	"github.com/pders01/photorama/internal/fetch"
	"github.com/pders01/photorama/internal/flickr"
	"github.com/pders01/photorama/internal/imagecache"
	"github.com/pders01/photorama/internal/search"
	"github.com/pders01/photorama/internal/storage"
	"github.com/pders01/photorama/internal/validation"
)

// app holds everything a command needs for one run.
type app struct {
	cfg    *config.Config
	store  *storage.Store
	coord  *fetch.Coordinator
	search search.Searcher
}

func openApp(opts *rootOptions) (_ *app, err error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.dbPath != "" {
		if cfg.Database.Path, err = validation.ExpandPath(opts.dbPath); err != nil {
			return nil, err
		}
	}
	if opts.cacheDir != "" {
		if cfg.Cache.Dir, err = validation.ExpandPath(opts.cacheDir); err != nil {
			return nil, err
		}
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	if err := setupLogging(cfg); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = debuglog.Close()
		}
	}()

	if _, err := validation.EnsureDirectory(filepath.Dir(cfg.Database.Path)); err != nil {
		return nil, fmt.Errorf("database directory: %w", err)
	}
	store, err := storage.NewStoreWithTimeout(cfg.Database.Path, cfg.Database.Timeout)
	if err != nil {
		return nil, err
	}

	cache, err := imagecache.New(cfg.Cache.Dir)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	searcher, err := search.New(cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("opening search index: %w", err)
	}

	coord := fetch.NewCoordinator(store, flickr.NewClient(cfg), cache, cfg)
	if l, ok := searcher.(fetch.Listener); ok {
		coord.AddListener(l)
	}

	debuglog.WithFields(map[string]any{
		"db":      cfg.Database.Path,
		"cache":   cfg.Cache.Dir,
		"workers": cfg.Fetch.Workers,
	}).Debugf("photorama started")

	return &app{
		cfg:    cfg,
		store:  store,
		coord:  coord,
		search: searcher,
	}, nil
}

func setupLogging(cfg *config.Config) error {
	level := debuglog.ParseLogLevel(cfg.Log.Level)
	if level == debuglog.LevelOff {
		return debuglog.Setup(level)
	}
	if _, err := validation.EnsureDirectory(filepath.Dir(cfg.Log.File)); err != nil {
		return fmt.Errorf("log directory: %w", err)
	}
	return debuglog.Setup(level, cfg.Log.File)
}

// Close drains the coordinator before releasing the index and database.
func (a *app) Close() error {
	a.coord.Close()
	return errors.Join(
		a.search.Close(),
		a.store.Close(),
		debuglog.Close(),
	)
}

// withApp opens the application, runs fn and always closes it again.
func withApp(opts *rootOptions, fn func(a *app) error) (err error) {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer func() {
		if opts.stats {
			printStats(opts.out, a.coord)
		}
		err = errors.Join(err, a.Close())
	}()
	return fn(a)
}

// await turns a completion-callback call into a blocking one.
func await[T any](call func(done func(T))) T {
	ch := make(chan T, 1)
	call(func(v T) { ch <- v })
	return <-ch
}
