package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/nagham05/chatterly/internal/clock"
	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/store"
)

const (
	sessionPrefix    = "session:"
	resetTokenPrefix = "reset_token:"
	resetTokenTTL    = 30 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Manager owns the identity session lifecycle. It is constructed once and
// injected into every component that needs the current user; there is no
// process-wide current-user singleton.
type Manager struct {
	st        *store.Store
	rdb       *redis.Client
	jwtSecret []byte
	accessTTL time.Duration
	clk       clock.Clock
	log       *zap.SugaredLogger

	mu        sync.Mutex
	listeners map[int]func(*model.User)
	nextID    int
}

func NewManager(st *store.Store, rdb *redis.Client, jwtSecret string, accessTTL time.Duration, clk clock.Clock, log *zap.SugaredLogger) *Manager {
	return &Manager{
		st:        st,
		rdb:       rdb,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		clk:       clk,
		log:       log,
		listeners: make(map[int]func(*model.User)),
	}
}

func (m *Manager) SignUp(ctx context.Context, email, password, name string) (*model.User, string, error) {
	if _, err := m.st.UserByEmail(ctx, email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    model.TimestampFromTime(m.clk.Now()),
	}
	if err := m.st.InsertUser(ctx, u); err != nil {
		return nil, "", err
	}
	return m.openSession(ctx, u)
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (*model.User, string, error) {
	u, err := m.st.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	return m.openSession(ctx, u)
}

func (m *Manager) openSession(ctx context.Context, u *model.User) (*model.User, string, error) {
	now := m.clk.Now()
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"sub": u.ID,
		"jti": jti,
		"iat": now.Unix(),
		"exp": now.Add(m.accessTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.jwtSecret)
	if err != nil {
		return nil, "", fmt.Errorf("sign token: %w", err)
	}
	if err := m.rdb.Set(ctx, sessionPrefix+jti, u.ID, m.accessTTL).Err(); err != nil {
		return nil, "", fmt.Errorf("store session: %w", err)
	}
	m.notify(u)
	return u, token, nil
}

// SignOut revokes the token's session marker. The JWT itself stays valid
// until expiry, but Verify rejects it once the marker is gone.
func (m *Manager) SignOut(ctx context.Context, token string) error {
	jti, _, err := m.parse(token)
	if err != nil {
		return err
	}
	if err := m.rdb.Del(ctx, sessionPrefix+jti).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	m.notify(nil)
	return nil
}

// Verify checks the token signature and that its session has not been
// revoked, and returns the authenticated user.
func (m *Manager) Verify(ctx context.Context, token string) (*model.User, error) {
	jti, sub, err := m.parse(token)
	if err != nil {
		return nil, err
	}
	if err := m.rdb.Get(ctx, sessionPrefix+jti).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return m.st.UserByID(ctx, sub)
}

func (m *Manager) parse(token string) (jti, sub string, err error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return "", "", ErrInvalidToken
	}
	jti, _ = claims["jti"].(string)
	sub, _ = claims["sub"].(string)
	if jti == "" || sub == "" {
		return "", "", ErrInvalidToken
	}
	return jti, sub, nil
}

// SendPasswordReset issues a short-lived reset token. Delivery is left to
// the notification pipeline; the token is logged at debug for local setups.
func (m *Manager) SendPasswordReset(ctx context.Context, email string) error {
	u, err := m.st.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// do not leak which emails exist
			return nil
		}
		return err
	}
	token := uuid.NewString()
	if err := m.rdb.Set(ctx, resetTokenPrefix+token, u.ID, resetTokenTTL).Err(); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	m.log.Debugw("password reset token issued", "user_id", u.ID, "token", token)
	return nil
}

func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) error {
	key := resetTokenPrefix + token
	userID, err := m.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrInvalidToken
		}
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := m.st.UpdateUserProfile(ctx, userID, map[string]interface{}{"password_hash": string(hash)}); err != nil {
		return err
	}
	return m.rdb.Del(ctx, key).Err()
}

// OnSessionChange registers a callback fired with the user on sign-in and
// nil on sign-out. The returned func unsubscribes.
func (m *Manager) OnSessionChange(cb func(*model.User)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = cb
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) notify(u *model.User) {
	m.mu.Lock()
	cbs := make([]func(*model.User), 0, len(m.listeners))
	for _, cb := range m.listeners {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()
	for _, cb := range cbs {
		cb(u)
	}
}
