package attendance

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"time"

	"classroom/internal/apperr"
	"classroom/internal/metrics"
	"classroom/internal/sessions"
)

const keyBytes = 32

// SessionLookup is the read side of the session store.
type SessionLookup interface {
	GetSession(ctx context.Context, id string) (sessions.Session, error)
}

// TokenIssuer mints customer keys.
type TokenIssuer struct {
	store    Store
	sessions SessionLookup
	random   io.Reader
	clock    func() time.Time
	log      *slog.Logger
}

func NewTokenIssuer(store Store, lookup SessionLookup, logger *slog.Logger) *TokenIssuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenIssuer{store: store, sessions: lookup, random: rand.Reader, clock: time.Now, log: logger}
}

// Issue returns the customer key of (sessionID, studentID), minting one on
// the first request. Repeated and concurrent calls return the same key.
func (t *TokenIssuer) Issue(ctx context.Context, sessionID, studentID string) (string, error) {
	const op = "attendance.Issue"
	if sessionID == "" || studentID == "" {
		return "", apperr.New(apperr.Validation, op, "session id and student id are required")
	}

	existing, err := t.store.GetKey(ctx, sessionID, studentID)
	switch {
	case err == nil:
		metrics.TokensIssued.WithLabelValues("reused").Inc()
		return existing.Key, nil
	case !apperr.Is(err, apperr.NotFound):
		return "", err
	}

	if _, err := t.sessions.GetSession(ctx, sessionID); err != nil {
		return "", err
	}

	// A key collision is a Conflict; retry once with fresh bytes.
	for attempt := 0; ; attempt++ {
		key, err := t.newKey()
		if err != nil {
			return "", apperr.Wrap(apperr.Internal, op, err)
		}
		stored, err := t.store.CreateKey(ctx, CustomerKey{
			SessionID: sessionID,
			StudentID: studentID,
			Key:       key,
			CreatedAt: t.clock().UTC(),
		})
		if apperr.Is(err, apperr.Conflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return "", err
		}
		if stored.Key == key {
			metrics.TokensIssued.WithLabelValues("minted").Inc()
			t.log.InfoContext(ctx, "customer key minted",
				slog.String("session_id", sessionID), slog.String("student_id", studentID))
		} else {
			metrics.TokensIssued.WithLabelValues("reused").Inc()
		}
		return stored.Key, nil
	}
}

func (t *TokenIssuer) newKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := io.ReadFull(t.random, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
