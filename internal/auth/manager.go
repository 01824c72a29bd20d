package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cpmsync/internal/metrics"
	"cpmsync/internal/security"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Manager owns the process credential. It is constructed once and shared by
// reference with every component that talks to the remote API.
type Manager struct {
	source Source
	store  Persister
	skew   time.Duration
	now    func() time.Time

	flights singleflight.Group

	mu   sync.RWMutex
	cred Credential
}

type Option func(*Manager)

// WithStore persists every exchanged credential.
func WithStore(p Persister) Option {
	return func(m *Manager) { m.store = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(source Source, skew time.Duration, opts ...Option) *Manager {
	m := &Manager{source: source, skew: skew, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load installs the persisted credential when one exists and has not expired.
// It reports whether a credential was installed.
func (m *Manager) Load() (bool, error) {
	if m.store == nil {
		return false, nil
	}
	cred, err := m.store.Load()
	if errors.Is(err, ErrNoCredential) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !cred.ExpiresAt.After(m.now()) {
		log.Info().Str("component", "auth").Time("expired_at", cred.ExpiresAt).Msg("Persisted credential expired, ignoring")
		return false, nil
	}

	m.install(cred)
	log.Info().
		Str("component", "auth").
		Str("fingerprint", security.Fingerprint(cred.Token)).
		Time("expires_at", cred.ExpiresAt).
		Msg("Credential loaded from disk")
	return true, nil
}

// EnsureValid returns once the held credential is valid outside the skew
// window. Concurrent callers share a single exchange.
func (m *Manager) EnsureValid(ctx context.Context) error {
	if m.valid() {
		return nil
	}
	_, err, _ := m.flights.Do("ensure", func() (any, error) {
		// Callers arriving after a completed flight find the new credential.
		if m.valid() {
			return nil, nil
		}
		return nil, m.exchange(ctx, "expired")
	})
	return err
}

// ForceRefresh exchanges a new credential regardless of the current one,
// for when the server has rejected it.
func (m *Manager) ForceRefresh(ctx context.Context) error {
	_, err, _ := m.flights.Do("force", func() (any, error) {
		return nil, m.exchange(ctx, "rejected")
	})
	return err
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred.Token
}

func (m *Manager) Credential() Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred
}

func (m *Manager) valid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred.ValidAt(m.now(), m.skew)
}

func (m *Manager) install(c Credential) {
	m.mu.Lock()
	m.cred = c
	m.mu.Unlock()
}

func (m *Manager) exchange(ctx context.Context, reason string) error {
	// The flight is shared, so one caller giving up must not fail the others.
	ctx = context.WithoutCancel(ctx)

	log.Info().Str("component", "auth").Str("reason", reason).Msg("Exchanging credential")
	cred, err := m.source.Exchange(ctx)
	if err == nil && cred.Token == "" {
		err = errors.New("empty access token")
	}
	if err != nil {
		metrics.TokenExchangesTotal.WithLabelValues(reason, "error").Inc()
		return fmt.Errorf("credential exchange: %w", err)
	}
	metrics.TokenExchangesTotal.WithLabelValues(reason, "success").Inc()

	if m.store != nil {
		if err := m.store.Save(cred); err != nil {
			log.Warn().Err(err).Str("component", "auth").Msg("Failed to persist credential")
		}
	}
	m.install(cred)

	log.Info().
		Str("component", "auth").
		Str("fingerprint", security.Fingerprint(cred.Token)).
		Time("expires_at", cred.ExpiresAt).
		Msg("Credential exchanged")
	return nil
}
