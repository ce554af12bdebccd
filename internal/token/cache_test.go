package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fts-tools/ftsctl/internal/credstore"
)

// plainSecrets returns the stored ciphertext field as-is, standing in for
// a real store in tests.
type plainSecrets struct{}

func (plainSecrets) Secret(p *credstore.CustomerProfile) (string, error) {
	return p.ClientSecretEncrypted, nil
}

func testProfile(name, oauthURL string) *credstore.CustomerProfile {
	return &credstore.CustomerProfile{
		Name:                  name,
		HostBaseURL:           "https://fts.example",
		OAuthBaseURL:          oauthURL,
		OAuthScope:            "urn:opc:resource:consumer::all",
		ClientID:              "client-1",
		ClientSecretEncrypted: "secret-1",
	}
}

// newTokenServer serves the client-credentials exchange, counting calls.
func newTokenServer(t *testing.T, expiresIn string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/oauth2/v1/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostFormValue("grant_type"))
		assert.Equal(t, "client-1", r.PostFormValue("client_id"))
		assert.Equal(t, "secret-1", r.PostFormValue("client_secret"))
		assert.Equal(t, "urn:opc:resource:consumer::all", r.PostFormValue("scope"))

		w.Header().Set("Content-Type", "application/json")
		body := `{"access_token":"tok-` + expiresIn + `","token_type":"Bearer"`
		if expiresIn != "" {
			body += `,"expires_in":` + expiresIn
		}
		body += `}`
		_, _ = w.Write([]byte(body))
	}))

	t.Cleanup(srv.Close)

	return srv, &calls
}

func TestGet_CachesSecondCall(t *testing.T) {
	srv, calls := newTokenServer(t, "3600")
	cache := NewCache(plainSecrets{}, srv.Client(), nil)
	profile := testProfile("acme", srv.URL)

	tok1, err := cache.Get(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, "tok-3600", tok1)

	tok2, err := cache.Get(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, tok1, tok2)

	assert.Equal(t, int32(1), calls.Load(), "second Get must be a cache hit")
}

func TestGet_RefetchesAfterExpiry(t *testing.T) {
	srv, calls := newTokenServer(t, "60")
	cache := NewCache(plainSecrets{}, srv.Client(), nil)
	profile := testProfile("acme", srv.URL)

	now := time.Now()
	cache.now = func() time.Time { return now }

	_, err := cache.Get(context.Background(), profile)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	// Advance past expiry; the stale token must never be returned.
	now = now.Add(2 * time.Hour)

	_, err = cache.Get(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_DefaultLifetimeWhenExpiresInAbsent(t *testing.T) {
	srv, _ := newTokenServer(t, "")
	cache := NewCache(plainSecrets{}, srv.Client(), nil)
	profile := testProfile("acme", srv.URL)

	base := time.Now()
	cache.now = func() time.Time { return base }

	_, err := cache.Get(context.Background(), profile)
	require.NoError(t, err)

	e := cache.entries[profile.Name]
	assert.Equal(t, base.Add(defaultLifetime), e.expiresAt)
}

func TestGet_IncompleteProfile(t *testing.T) {
	cache := NewCache(plainSecrets{}, nil, nil)

	_, err := cache.Get(context.Background(), &credstore.CustomerProfile{Name: "acme"})
	assert.ErrorIs(t, err, ErrIncompleteCredentials)
}

func TestGet_FetchFailureNotCached(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	cache := NewCache(plainSecrets{}, srv.Client(), nil)
	profile := testProfile("acme", srv.URL)

	_, err := cache.Get(context.Background(), profile)

	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "acme", ferr.Customer)

	// A second Get retries rather than serving the failure from cache.
	_, err = cache.Get(context.Background(), profile)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_KeyedByCustomerName(t *testing.T) {
	srv, calls := newTokenServer(t, "3600")
	cache := NewCache(plainSecrets{}, srv.Client(), nil)

	_, err := cache.Get(context.Background(), testProfile("acme", srv.URL))
	require.NoError(t, err)

	// Different customer, same credentials: still a fresh fetch.
	_, err = cache.Get(context.Background(), testProfile("globex", srv.URL))
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidateAndReset(t *testing.T) {
	srv, calls := newTokenServer(t, "3600")
	cache := NewCache(plainSecrets{}, srv.Client(), nil)
	profile := testProfile("acme", srv.URL)

	_, err := cache.Get(context.Background(), profile)
	require.NoError(t, err)

	cache.Invalidate("acme")

	_, err = cache.Get(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	cache.Reset()

	_, err = cache.Get(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_SlowFetchDoesNotBlockOtherCustomers(t *testing.T) {
	fast, _ := newTokenServer(t, "3600")

	release := make(chan struct{})
	slowEntered := make(chan struct{}, 1)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		slowEntered <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-slow","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(slow.Close)
	t.Cleanup(func() { close(release) })

	cache := NewCache(plainSecrets{}, http.DefaultClient, nil)

	// Warm the cache for the fast customer.
	fastProfile := testProfile("fast-co", fast.URL)
	_, err := cache.Get(context.Background(), fastProfile)
	require.NoError(t, err)

	// Start a fetch and wait until it is blocked inside the exchange.
	go func() {
		_, _ = cache.Get(context.Background(), testProfile("slow-co", slow.URL))
	}()
	<-slowEntered

	// A cache hit for the other customer must return while the slow
	// fetch is still in flight.
	done := make(chan struct{})
	go func() {
		tok, hitErr := cache.Get(context.Background(), fastProfile)
		assert.NoError(t, hitErr)
		assert.Equal(t, "tok-3600", tok)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cache hit blocked behind another customer's token fetch")
	}
}
