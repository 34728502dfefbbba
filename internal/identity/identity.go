// Package identity derives a stable per-device client identifier.
//
// The identifier is a continuity aid, not a security credential: it is
// computed from low-entropy device characteristics, so it survives loss of
// the local cache, and two identically configured devices may collide.
package identity

import (
	"context"
	"errors"

	"github.com/bharatr21/clinical-trials-agent/internal/logging"
	"github.com/bharatr21/clinical-trials-agent/internal/storage"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Store.Get when no identity is cached.
var ErrNotFound = errors.New("identity not cached")

// Store is the persistent cache for the derived identity. Implementations
// must treat Remove of an absent value as a no-op.
type Store interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, id string) error
	Remove(ctx context.Context) error
}

// Provider computes and caches the device identity.
type Provider struct {
	store     Store
	collector Collector
	log       zerolog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithCollector overrides the device signal collector. Tests use this to fix
// the fingerprint.
func WithCollector(c Collector) Option {
	return func(p *Provider) { p.collector = c }
}

// NewProvider creates a Provider backed by the given store.
func NewProvider(store Store, opts ...Option) *Provider {
	p := &Provider{
		store:     store,
		collector: SystemCollector{},
		log:       logging.Component("identity"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the cached identity, deriving and caching one from the device
// fingerprint on a miss. Successive calls return the same value; even after
// cache loss the recomputed value is identical as long as the device
// characteristics are unchanged.
func (p *Provider) Get(ctx context.Context) (string, error) {
	if id, err := p.store.Get(ctx); err == nil && id != "" {
		return id, nil
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	id := Derive(p.collector.Collect())
	p.log.Debug().Str("client_id", id).Msg("derived device identity")

	if err := p.store.Set(ctx, id); err != nil {
		// Caching is best effort; the same value recomputes next time.
		p.log.Warn().Err(err).Msg("failed to cache identity")
	}
	return id, nil
}

// Set overwrites the cached identity unconditionally. The service may assign
// a replacement identity on first contact; a server-issued value always wins
// over the locally derived one.
func (p *Provider) Set(ctx context.Context, id string) error {
	return p.store.Set(ctx, id)
}

// Clear removes the cached identity. A later Get recomputes the same
// fingerprint-derived value, so clearing is recoverable rather than
// destructive.
func (p *Provider) Clear(ctx context.Context) error {
	return p.store.Remove(ctx)
}

// storage key for the cached identity, namespaced under settings.
var clientIDPath = []string{"settings", "client_id"}

// FileStore persists the identity through the file-backed JSON store.
type FileStore struct {
	store *storage.Storage
}

// NewFileStore wraps a storage.Storage as an identity Store.
func NewFileStore(s *storage.Storage) *FileStore {
	return &FileStore{store: s}
}

func (f *FileStore) Get(ctx context.Context) (string, error) {
	var id string
	if err := f.store.Get(ctx, clientIDPath, &id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return id, nil
}

func (f *FileStore) Set(ctx context.Context, id string) error {
	return f.store.Put(ctx, clientIDPath, id)
}

func (f *FileStore) Remove(ctx context.Context) error {
	return f.store.Delete(ctx, clientIDPath)
}
