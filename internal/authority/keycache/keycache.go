// Package keycache fetches and memoizes peer services' Ed25519 verification
// keys. Each issuing service exposes GET /auth/public-key behind the service
// mesh; the X-App-ID header selects which issuer the gateway routes to. The
// cache is an explicitly constructed object owned by the composition root;
// there is no package-level state.
package keycache

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/crewpay/warden/pkg/cryptox"
	"github.com/crewpay/warden/pkg/httpx"
)

// AppIDHeader names the issuer whose key is requested. It is the same header
// the authn middleware reads when a peer token is presented.
const AppIDHeader = httpx.AppIDHeader

const maxKeyBodySize = 64 << 10

// DefaultTTL is how long a fetched key is served before re-fetching.
// Keys are immutable once correct, so a stale hit is harmless; the TTL just
// bounds how long a rotated peer key takes to propagate.
const DefaultTTL = 15 * time.Minute

type entry struct {
	key       ed25519.PublicKey
	fetchedAt time.Time
}

// Cache memoizes verification keys per issuer app id. Concurrent fetches of
// the same id may race to fill the slot; last fetch wins, which is safe
// because entries are immutable once correct.
type Cache struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration

	mu      sync.RWMutex
	entries map[string]entry
}

// New builds a cache fetching from baseURL. A nil client uses a default with
// a conservative timeout; a non-positive ttl uses DefaultTTL.
func New(baseURL string, client *http.Client, ttl time.Duration) *Cache {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		baseURL: baseURL,
		client:  client,
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// Fetch returns the verification key for appID, from cache when fresh,
// otherwise fetched over HTTP.
func (c *Cache) Fetch(ctx context.Context, appID string) (ed25519.PublicKey, error) {
	c.mu.RLock()
	e, ok := c.entries[appID]
	c.mu.RUnlock()

	if ok && time.Since(e.fetchedAt) < c.ttl {
		return e.key, nil
	}

	key, err := c.fetch(ctx, appID)
	if err != nil {
		if ok {
			// Serve the stale key rather than failing verification while
			// the peer is unreachable.
			return e.key, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[appID] = entry{key: key, fetchedAt: time.Now()}
	c.mu.Unlock()

	return key, nil
}

func (c *Cache) fetch(ctx context.Context, appID string) (ed25519.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/public-key", nil)
	if err != nil {
		return nil, fmt.Errorf("keycache: build request: %w", err)
	}
	req.Header.Set(AppIDHeader, appID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keycache: fetch key for %q: %w", appID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("keycache: fetch key for %q: unexpected status %d", appID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeyBodySize))
	if err != nil {
		return nil, fmt.Errorf("keycache: read key for %q: %w", appID, err)
	}

	key, err := cryptox.ParseEd25519PublicKey(body)
	if err != nil {
		return nil, fmt.Errorf("keycache: parse key for %q: %w", appID, err)
	}
	return key, nil
}
