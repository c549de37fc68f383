package plancatalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ehr/riskadvisor/internal/domain/riskengine"
	"github.com/ehr/riskadvisor/internal/platform/telemetry"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 250 * time.Millisecond

// Provider holds the active catalog. A reload only replaces the active
// catalog after the new one validates; readers never see a broken catalog.
type Provider struct {
	source  Source
	current atomic.Pointer[riskengine.Catalog]
	logger  zerolog.Logger
}

// NewProvider loads the initial catalog from source and fails if it is
// invalid.
func NewProvider(ctx context.Context, source Source, logger zerolog.Logger) (*Provider, error) {
	p := &Provider{
		source: source,
		logger: logger.With().Str("component", "plancatalog").Str("source", source.Name()).Logger(),
	}
	if err := p.Reload(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// NewStaticProvider wraps an already validated catalog.
func NewStaticProvider(cat *riskengine.Catalog) *Provider {
	p := &Provider{source: EmbeddedSource{}, logger: zerolog.Nop()}
	p.current.Store(cat)
	return p
}

// Current returns the active catalog. Callers must treat it as read-only.
func (p *Provider) Current() *riskengine.Catalog {
	return p.current.Load()
}

// Reload fetches the catalog from the source again.
func (p *Provider) Reload(ctx context.Context) error {
	cat, err := p.source.Load(ctx)
	if err != nil {
		telemetry.CatalogReloads.WithLabelValues("failure").Inc()
		p.logger.Error().Err(err).Msg("catalog reload failed; keeping previous catalog")
		return fmt.Errorf("load catalog from %s: %w", p.source.Name(), err)
	}
	p.current.Store(cat)
	telemetry.CatalogReloads.WithLabelValues("success").Inc()
	p.logger.Info().Str("version", cat.Version).Int("plans", len(cat.Plans)).Msg("catalog loaded")
	return nil
}

// Watch reloads the catalog whenever the file at path is written, until ctx
// is cancelled. The parent directory is watched so atomic renames are seen.
func (p *Provider) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					_ = p.Reload(ctx)
				})
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warn().Err(werr).Msg("catalog watcher error")
			}
		}
	}()

	p.logger.Info().Str("path", target).Msg("watching catalog for changes")
	return nil
}
