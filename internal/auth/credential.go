// Package auth keeps the bearer credential used against the remote API valid,
// exchanging it at most once for any number of concurrent callers.
package auth

import (
	"context"
	"time"
)

// Credential is replaced wholesale on refresh and never mutated in place.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// ValidAt reports whether the credential can still be used at now, treating
// anything that expires within skew as already expired.
func (c Credential) ValidAt(now time.Time, skew time.Duration) bool {
	if c.Token == "" {
		return false
	}
	return now.Add(skew).Before(c.ExpiresAt)
}

// Source produces a fresh credential.
type Source interface {
	Exchange(ctx context.Context) (Credential, error)
}

// Persister stores the credential across restarts.
type Persister interface {
	Load() (Credential, error)
	Save(Credential) error
}
