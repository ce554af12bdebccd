// Package token caches OAuth2 bearer tokens per customer, fetching them via
// the client-credentials grant when absent or expired. Tokens live only in
// memory; they are never written to disk.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/fts-tools/ftsctl/internal/credstore"
)

// tokenEndpointPath is appended to the profile's OAuth base URL.
const tokenEndpointPath = "/oauth2/v1/token"

// defaultLifetime applies when the token response carries no expires_in.
const defaultLifetime = 3600 * time.Second

// ErrIncompleteCredentials means the selected profile is missing required
// fields and no token fetch was attempted.
var ErrIncompleteCredentials = errors.New("token: incomplete credentials")

// FetchError wraps a failed token-endpoint exchange. The failed attempt is
// never cached; the next Get retries from scratch.
type FetchError struct {
	Customer string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("token: fetching token for %q: %v", e.Customer, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SecretSource decrypts a profile's client secret at point of use.
// *credstore.Store satisfies it.
type SecretSource interface {
	Secret(p *credstore.CustomerProfile) (string, error)
}

// entry is one cached token. Usable iff now < expiresAt.
type entry struct {
	accessToken string
	expiresAt   time.Time
}

// Cache maps customer name to a cached bearer token. Entry access goes
// through the cache mutex, so a reader never observes a half-written
// entry; network fetches run under a per-customer lock instead, so one
// customer's slow token exchange never blocks another's cache hit.
// Keying by profile name (not derived credentials) means switching
// customers always re-evaluates the cache for the new key.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]entry
	fetchMus map[string]*sync.Mutex

	secrets    SecretSource
	httpClient *http.Client
	logger     *slog.Logger

	// now is replaceable in tests to drive expiry without sleeping.
	now func() time.Time
}

// NewCache creates a token cache. httpClient may be nil for the default.
func NewCache(secrets SecretSource, httpClient *http.Client, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Cache{
		entries:    make(map[string]entry),
		fetchMus:   make(map[string]*sync.Mutex),
		secrets:    secrets,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Get returns a usable bearer token for the profile, fetching a fresh one
// when the cache has no entry or the entry has expired. An expired token is
// never returned; a valid cached token never triggers a network call.
func (c *Cache) Get(ctx context.Context, profile *credstore.CustomerProfile) (string, error) {
	if missing := profile.MissingFields(); len(missing) > 0 {
		return "", fmt.Errorf("%w: missing %s", ErrIncompleteCredentials, strings.Join(missing, ", "))
	}

	if tok, ok := c.lookup(profile.Name); ok {
		return tok, nil
	}

	// Serialize per customer, not cache-wide: concurrent Gets for the same
	// key fetch at most once, while other customers proceed unblocked.
	fetchMu := c.fetchLock(profile.Name)
	fetchMu.Lock()
	defer fetchMu.Unlock()

	// Re-check under the fetch lock: a concurrent Get may have refreshed
	// the entry while this one waited.
	if tok, ok := c.lookup(profile.Name); ok {
		return tok, nil
	}

	tok, err := c.fetch(ctx, profile)
	if err != nil {
		// Failed attempts are not cached; the stale entry (if any) stays
		// expired and the next Get retries.
		return "", &FetchError{Customer: profile.Name, Err: err}
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = c.now().Add(defaultLifetime)
	}

	c.mu.Lock()
	c.entries[profile.Name] = entry{accessToken: tok.AccessToken, expiresAt: expiresAt}
	c.mu.Unlock()

	c.logger.Info("fetched access token",
		slog.String("customer", profile.Name),
		slog.Time("expires_at", expiresAt),
	)

	return tok.AccessToken, nil
}

// lookup returns the cached token for the name if it is still usable.
func (c *Cache) lookup(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok || !c.now().Before(e.expiresAt) {
		return "", false
	}

	c.logger.Debug("token cache hit",
		slog.String("customer", name),
		slog.Time("expires_at", e.expiresAt),
	)

	return e.accessToken, true
}

// fetchLock returns the per-customer fetch mutex, creating it on first use.
func (c *Cache) fetchLock(name string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.fetchMus[name]
	if !ok {
		m = &sync.Mutex{}
		c.fetchMus[name] = m
	}

	return m
}

// fetch performs the client-credentials exchange. Called with only the
// per-customer fetch lock held; entry mutation happens afterwards under
// the cache mutex, so readers never observe a half-written entry.
func (c *Cache) fetch(ctx context.Context, profile *credstore.CustomerProfile) (*oauth2.Token, error) {
	secret, err := c.secrets.Secret(profile)
	if err != nil {
		return nil, err
	}

	cfg := clientcredentials.Config{
		ClientID:     profile.ClientID,
		ClientSecret: secret,
		TokenURL:     strings.TrimSuffix(profile.OAuthBaseURL, "/") + tokenEndpointPath,
		Scopes:       []string{profile.OAuthScope},
		// The token endpoint expects client_id/client_secret in the
		// form-encoded body, not basic auth.
		AuthStyle: oauth2.AuthStyleInParams,
	}

	c.logger.Debug("requesting access token",
		slog.String("customer", profile.Name),
		slog.String("token_url", cfg.TokenURL),
	)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	return cfg.Token(ctx)
}

// Invalidate drops the cached token for one customer. Called when the
// profile's secret changes or the profile is deleted.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, name)
}

// Reset clears every cached token.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
}

// Source binds the cache to one profile as an fts.TokenSource.
func (c *Cache) Source(profile *credstore.CustomerProfile) *ProfileSource {
	return &ProfileSource{cache: c, profile: profile}
}

// ProfileSource adapts the cache to a per-customer token source for the
// transfer client.
type ProfileSource struct {
	cache   *Cache
	profile *credstore.CustomerProfile
}

// Token returns a usable bearer token for the bound profile.
func (s *ProfileSource) Token(ctx context.Context) (string, error) {
	return s.cache.Get(ctx, s.profile)
}
