// Package session keeps short, expiring conversation histories keyed by session ID.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrStore wraps failures of the backing store. Callers treat it as non-fatal.
var ErrStore = errors.New("session store error")

// Defaults for history window and lifetime.
const (
	DefaultWindow = 6
	DefaultTTL    = 30 * time.Minute
	IDPrefix      = "faqbot_"
)

// Store holds conversation turns per session.
type Store interface {
	// History returns the stored turns, oldest first. Unknown or expired sessions have none.
	History(ctx context.Context, sessionID string) ([]models.Turn, error)
	// Append adds turns, keeps only the most recent window and refreshes the TTL.
	Append(ctx context.Context, sessionID string, turns ...models.Turn) error
	Close() error
}

// NewID returns a fresh session ID: the prefix followed by 32 hex characters.
func NewID() string {
	return IDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func trim(turns []models.Turn, window int) []models.Turn {
	if window > 0 && len(turns) > window {
		return append([]models.Turn(nil), turns[len(turns)-window:]...)
	}
	return turns
}
