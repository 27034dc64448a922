package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/inkfold/prepress/common/config"
	"github.com/inkfold/prepress/common/logger"
)

var (
	// ErrNotFound is returned when the object does not exist on the backend
	ErrNotFound = errors.New("object not found")
	// ErrNoBackend is returned when a key names a provider that is not configured
	ErrNoBackend = errors.New("no backend configured for provider")
)

// Store is the capability surface the pipeline depends on. Keys are raw
// backend-qualified strings; implementations resolve them per ParseKey.
type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Backend is one provider family implementation operating on parsed keys
type Backend interface {
	Get(ctx context.Context, key Key) (io.ReadCloser, error)
	Put(ctx context.Context, key Key, r io.Reader, contentType string) error
	SignedURL(ctx context.Context, key Key, ttl time.Duration) (string, error)
}

// Router dispatches raw keys to the configured backends. It implements
// Store with a process-wide default provider; For() scopes the default to
// a shop's configured backend.
type Router struct {
	backends map[Provider]Backend
	def      Provider
	log      *logger.Logger
}

// NewRouter builds backends from configuration. Only configured backends
// are registered; a key addressing an unregistered one fails fast.
func NewRouter(cfg config.StorageConfig, log *logger.Logger) (*Router, error) {
	backends := make(map[Provider]Backend)

	if cfg.S3.Bucket != "" {
		s3b, err := NewS3Backend(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("init s3 backend: %w", err)
		}
		backends[ProviderS3] = s3b
	}
	if cfg.CDN.EdgeURL != "" {
		backends[ProviderCDN] = NewCDNBackend(cfg.CDN)
	}
	if cfg.Local.Root != "" {
		backends[ProviderLocal] = NewLocalBackend(cfg.Local.Root)
	}

	def := Provider(cfg.DefaultProvider)
	if _, ok := backends[def]; !ok {
		return nil, fmt.Errorf("default storage provider %q is not configured", def)
	}

	log.Info("storage router ready", "default", def, "backends", len(backends))
	return &Router{backends: backends, def: def, log: log}, nil
}

// For returns a Store whose bare keys resolve against the given provider
// tag. Unknown tags fall back to the process default.
func (r *Router) For(provider string) Store {
	p := Provider(provider)
	if _, ok := r.backends[p]; !ok {
		p = r.def
	}
	return &scoped{router: r, def: p}
}

func (r *Router) resolve(raw string, def Provider) (Backend, Key, error) {
	key := ParseKey(raw, def)
	b, ok := r.backends[key.Provider]
	if !ok {
		return nil, key, fmt.Errorf("%w: %s", ErrNoBackend, key.Provider)
	}
	return b, key, nil
}

// Get implements Store with the process default provider
func (r *Router) Get(ctx context.Context, raw string) (io.ReadCloser, error) {
	return (&scoped{router: r, def: r.def}).Get(ctx, raw)
}

// Put implements Store with the process default provider
func (r *Router) Put(ctx context.Context, raw string, rd io.Reader, contentType string) error {
	return (&scoped{router: r, def: r.def}).Put(ctx, raw, rd, contentType)
}

// SignedURL implements Store with the process default provider
func (r *Router) SignedURL(ctx context.Context, raw string, ttl time.Duration) (string, error) {
	return (&scoped{router: r, def: r.def}).SignedURL(ctx, raw, ttl)
}

type scoped struct {
	router *Router
	def    Provider
}

func (s *scoped) Get(ctx context.Context, raw string) (io.ReadCloser, error) {
	b, key, err := s.router.resolve(raw, s.def)
	if err != nil {
		return nil, err
	}
	return b.Get(ctx, key)
}

func (s *scoped) Put(ctx context.Context, raw string, rd io.Reader, contentType string) error {
	b, key, err := s.router.resolve(raw, s.def)
	if err != nil {
		return err
	}
	return b.Put(ctx, key, rd, contentType)
}

func (s *scoped) SignedURL(ctx context.Context, raw string, ttl time.Duration) (string, error) {
	b, key, err := s.router.resolve(raw, s.def)
	if err != nil {
		return "", err
	}
	return b.SignedURL(ctx, key, ttl)
}
