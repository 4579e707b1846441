package auth

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"max.ks1230/beancount-bot/internal/entity/user"
	"max.ks1230/beancount-bot/internal/logger"
)

var (
	ErrWrongSecret = errors.New("wrong secret")
	ErrLockedOut   = errors.New("too many attempts, try later")
)

type userStorage interface {
	IsAuthorized(ctx context.Context, userID int64) (bool, error)
	Authorize(ctx context.Context, rec user.Record) error
}

type config interface {
	Secret() string
	SecretHash() string
	MaxAttempts() int
	Lockout() time.Duration
}

type attempts struct {
	failures    int
	lockedUntil time.Time
}

// Gate grants write access to users presenting the shared secret.
type Gate struct {
	storage     userStorage
	secret      []byte
	secretHash  []byte
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time

	mu       sync.Mutex
	attempts map[int64]*attempts
}

func NewGate(storage userStorage, cfg config) *Gate {
	return &Gate{
		storage:     storage,
		secret:      []byte(cfg.Secret()),
		secretHash:  []byte(cfg.SecretHash()),
		maxAttempts: cfg.MaxAttempts(),
		lockout:     cfg.Lockout(),
		now:         time.Now,
		attempts:    make(map[int64]*attempts),
	}
}

func (g *Gate) IsAuthorized(ctx context.Context, userID int64) (bool, error) {
	ok, err := g.storage.IsAuthorized(ctx, userID)
	return ok, errors.Wrap(err, "is authorized")
}

// Authenticate records u as authorized when secret is right. Wrong secrets count
// towards a lockout; once locked out the secret is not checked until the lockout ends.
func (g *Gate) Authenticate(ctx context.Context, u user.Record, secret string) error {
	if g.locked(u.ID) {
		logger.Warn("auth attempt while locked out", zap.Int64("userID", u.ID))
		return ErrLockedOut
	}

	if !g.check(secret) {
		g.fail(u.ID)
		logger.Warn("wrong secret", zap.Int64("userID", u.ID), zap.String("user", u.DisplayName()))
		return ErrWrongSecret
	}

	g.mu.Lock()
	delete(g.attempts, u.ID)
	g.mu.Unlock()

	if u.AuthorizedAt.IsZero() {
		u.AuthorizedAt = g.now()
	}
	if err := g.storage.Authorize(ctx, u); err != nil {
		return errors.Wrap(err, "authorize")
	}
	logger.Info("authorizing user", zap.Int64("userID", u.ID), zap.String("user", u.DisplayName()))
	return nil
}

func (g *Gate) check(secret string) bool {
	if len(g.secretHash) > 0 {
		return bcrypt.CompareHashAndPassword(g.secretHash, []byte(secret)) == nil
	}
	if len(g.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(g.secret, []byte(secret)) == 1
}

func (g *Gate) locked(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	a, ok := g.attempts[userID]
	if !ok || a.lockedUntil.IsZero() {
		return false
	}
	if g.now().Before(a.lockedUntil) {
		return true
	}
	delete(g.attempts, userID)
	return false
}

func (g *Gate) fail(userID int64) {
	if g.maxAttempts <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	a, ok := g.attempts[userID]
	if !ok {
		a = &attempts{}
		g.attempts[userID] = a
	}
	a.failures++
	if a.failures >= g.maxAttempts {
		a.lockedUntil = g.now().Add(g.lockout)
	}
}
