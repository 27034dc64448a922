package storage

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/inkfold/prepress/common/config"
)

// CDNBackend serves CDN-backed storage. Reads resolve against the CDN edge
// (keys may be full URLs or cdn:<path> tokens); writes go to the origin
// storage API, never the edge.
type CDNBackend struct {
	edgeURL   string
	originURL string
	token     string
	client    *http.Client
}

// NewCDNBackend creates the backend from configuration
func NewCDNBackend(cfg config.CDNConfig) *CDNBackend {
	return &CDNBackend{
		edgeURL:   strings.TrimSuffix(cfg.EdgeURL, "/"),
		originURL: strings.TrimSuffix(cfg.OriginURL, "/"),
		token:     cfg.Token,
		client:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (b *CDNBackend) edgeFor(key Key) string {
	if key.IsURL {
		return key.Path
	}
	return b.edgeURL + "/" + strings.TrimPrefix(key.Path, "/")
}

// Get performs an HTTP GET against the CDN edge
func (b *CDNBackend) Get(ctx context.Context, key Key) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.edgeFor(key), nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, ErrNotFound
	case resp.StatusCode >= 300:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("cdn get %s: unexpected status %d", key.Path, resp.StatusCode)
	}
	return resp.Body, nil
}

// Put performs an authenticated PUT against the origin storage API
func (b *CDNBackend) Put(ctx context.Context, key Key, r io.Reader, contentType string) error {
	if key.IsURL {
		return fmt.Errorf("cdn put: refusing to write through a full URL key")
	}
	target := b.originURL + "/" + strings.TrimPrefix(key.Path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, r)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if b.token != "" {
		req.Header.Set("AccessKey", b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cdn put %s: unexpected status %d", key.Path, resp.StatusCode)
	}
	return nil
}

// SignedURL returns a token-authenticated edge URL. Without a token the
// edge is public and the plain URL is returned; ttl is then advisory.
func (b *CDNBackend) SignedURL(_ context.Context, key Key, ttl time.Duration) (string, error) {
	edge := b.edgeFor(key)
	if b.token == "" {
		return edge, nil
	}

	u, err := url.Parse(edge)
	if err != nil {
		return "", err
	}
	expires := time.Now().Add(ttl).Unix()

	// CDN edge token auth: base64url(sha256(token + path + expires))
	sum := sha256.Sum256([]byte(b.token + u.Path + strconv.FormatInt(expires, 10)))
	sig := base64.RawURLEncoding.EncodeToString(sum[:])

	q := u.Query()
	q.Set("token", sig)
	q.Set("expires", strconv.FormatInt(expires, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
