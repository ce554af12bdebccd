// Package session owns the mutable state of one running client: the
// selected customer, its transfer client, the current file listing, and
// the shared token cache. Everything here is passed explicitly; there are
// no package-level globals.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/fts-tools/ftsctl/internal/credstore"
	"github.com/fts-tools/ftsctl/internal/fts"
	"github.com/fts-tools/ftsctl/internal/history"
	"github.com/fts-tools/ftsctl/internal/token"
)

// Session ties the credential store, token cache, and transfer log to a
// currently selected customer. Safe for concurrent use: batch workers read
// the selected client while the owner may switch customers between
// batches.
type Session struct {
	store      *credstore.Store
	tokens     *token.Cache
	log        *history.Log
	httpClient *http.Client
	logger     *slog.Logger
	workers    int

	mu      sync.RWMutex
	profile *credstore.CustomerProfile
	client  *fts.Client
	listing *Listing
}

// Options configures a Session.
type Options struct {
	// HTTPClient is shared by token fetches, API calls, and pre-signed
	// transfers. Nil means http.DefaultClient.
	HTTPClient *http.Client

	// Workers bounds per-batch transfer concurrency.
	Workers int
}

// New creates a session over an opened credential store and transfer log.
func New(store *credstore.Store, log *history.Log, logger *slog.Logger, opts Options) *Session {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Session{
		store:      store,
		tokens:     token.NewCache(store, httpClient, logger),
		log:        log,
		httpClient: httpClient,
		logger:     logger,
		workers:    opts.Workers,
	}
}

// Store exposes the credential store for profile management commands.
func (s *Session) Store() *credstore.Store {
	return s.store
}

// History exposes the transfer log for reporting commands.
func (s *Session) History() *history.Log {
	return s.log
}

// SelectCustomer loads the named profile and builds its transfer client.
// An incomplete profile is selectable for editing, but transfer
// operations will fail until it is completed.
func (s *Session) SelectCustomer(name string) error {
	profile, err := s.store.Get(name)
	if err != nil {
		return fmt.Errorf("selecting customer %q: %w", name, err)
	}

	client := fts.NewClient(profile.HostBaseURL, s.httpClient, s.tokens.Source(profile), s.logger)

	s.mu.Lock()
	s.profile = profile
	s.client = client
	s.listing = nil
	s.mu.Unlock()

	s.logger.Info("customer selected", "customer", name)

	return nil
}

// Customer returns the selected profile, or nil when none is selected.
func (s *Session) Customer() *credstore.CustomerProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Client returns the transfer client for the selected customer.
func (s *Session) Client() (*fts.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		return nil, fmt.Errorf("no customer selected")
	}

	return s.client, nil
}

// RefreshListing fetches the prefix's files and replaces the session's
// listing snapshot.
func (s *Session) RefreshListing(ctx context.Context, prefix string) (*Listing, error) {
	client, err := s.Client()
	if err != nil {
		return nil, err
	}

	files, err := client.ListFiles(ctx, prefix)
	if err != nil {
		return nil, err
	}

	listing := NewListing(prefix, files)

	s.mu.Lock()
	s.listing = listing
	s.mu.Unlock()

	return listing, nil
}

// Listing returns the current listing snapshot, or nil before the first
// refresh.
func (s *Session) Listing() *Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listing
}

// InvalidateToken drops the cached token for the named customer. Called
// after a profile's secret changes.
func (s *Session) InvalidateToken(name string) {
	s.tokens.Invalidate(name)
}

// Reset clears the selected customer, the listing, and every cached
// token. The credential store on disk is untouched.
func (s *Session) Reset() {
	s.tokens.Reset()

	s.mu.Lock()
	s.profile = nil
	s.client = nil
	s.listing = nil
	s.mu.Unlock()

	s.logger.Info("session reset")
}

// MaskSecret renders a secret for display without revealing it. Short
// secrets mask entirely.
func MaskSecret(s string) string {
	const visible = 4

	if len(s) <= visible*2 {
		return "********"
	}

	return s[:visible] + "…" + s[len(s)-visible:]
}
