package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
)

// AdminGate compares a shared secret and counts consecutive failures.
type AdminGate struct {
	mu         sync.Mutex
	secretHash [sha256.Size]byte
	attempts   int
	logService LogWriter
}

func NewAdminGate(password string, logService LogWriter) (*AdminGate, error) {
	if password == "" {
		return nil, errors.New("admin password is empty")
	}

	return &AdminGate{
		secretHash: sha256.Sum256([]byte(password)),
		logService: logService,
	}, nil
}

// Authenticate reports whether input matches the secret. A match resets the
// failure counter; a mismatch increments it.
func (g *AdminGate) Authenticate(ctx context.Context, input string) bool {
	if g == nil {
		return false
	}

	inputHash := sha256.Sum256([]byte(input))
	ok := input != "" && subtle.ConstantTimeCompare(inputHash[:], g.secretHash[:]) == 1

	g.mu.Lock()
	if ok {
		g.attempts = 0
	} else {
		g.attempts++
	}
	attempts := g.attempts
	g.mu.Unlock()

	if !ok {
		logEvent(ctx, g.logService, nil, LogActionAdminAuth, LogOutcomeFail, fmt.Sprintf("attempts=%d", attempts))
	}
	return ok
}

func (g *AdminGate) Attempts() int {
	if g == nil {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}
