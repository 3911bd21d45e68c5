package session

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/transport"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"net/http"
	"strings"
	"time"
)

var Logger = logger.GetLogger("session")

const (
	// CookieName is the cookie carrying the session token
	CookieName = "session-token"
	// DefaultTTL is used if the manager is created with a ttl <= 0
	DefaultTTL = 30 * 24 * time.Hour

	issuer = "dlink"
)

var (
	// ErrNoSession is returned if a request carries no session token
	ErrNoSession = errors.New("no session")
	// ErrInvalidToken is returned for tokens that fail verification or are expired
	ErrInvalidToken = errors.New("invalid session token")
)

// Session is the identity of the current user
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// claims is the JWT representation of a Session
type claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Manager issues and verifies session tokens (HS256 signed JWTs)
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a manager. The secret must not be empty.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("session secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue creates a session for a user and returns the signed token
func (m *Manager) Issue(userID, name, email string) (string, Session, error) {
	if userID == "" {
		return "", Session{}, fmt.Errorf("user id must not be empty")
	}

	now := m.now()
	s := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Email:     email,
		ExpiresAt: now.Add(m.ttl).Truncate(time.Second),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
		Name:  name,
		Email: email,
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, s, nil
}

// Parse verifies a token and returns its session
func (m *Manager) Parse(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrNoSession
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.Subject == "" || parsed.ID == "" {
		return Session{}, fmt.Errorf("%w: missing subject or id", ErrInvalidToken)
	}

	return Session{
		ID:        parsed.ID,
		UserID:    parsed.Subject,
		Name:      parsed.Name,
		Email:     parsed.Email,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}

// --------------------------------------------------------------------------
// Provider
// --------------------------------------------------------------------------

type sessionKey struct{}

// WithSession returns a context carrying the session
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored in ctx
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// TokenFromHeaders extracts the session token from forwarded request headers:
// "authorization: Bearer <token>" first, then the session cookie.
// Header names are expected in lower case.
func TokenFromHeaders(headers map[string]string) string {
	if auth := headers["authorization"]; auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	if raw := headers["cookie"]; raw != "" {
		cookies, err := http.ParseCookie(raw)
		if err == nil {
			for _, c := range cookies {
				if c.Name == CookieName {
					return c.Value
				}
			}
		}
	}
	return ""
}

// Provide resolves the session from the request headers in ctx (see
// transport.HeadersFromContext) and stores it in the returned context.
// Requests without a valid token are passed on without a session.
func (m *Manager) Provide(ctx context.Context) context.Context {
	token := TokenFromHeaders(transport.HeadersFromContext(ctx))
	if token == "" {
		return ctx
	}
	s, err := m.Parse(token)
	if err != nil {
		Logger.Debugf("Ignoring session token: %v", err)
		return ctx
	}
	return WithSession(ctx, s)
}
