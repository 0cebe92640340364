package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/zhouzirui/solace/backend/pkg/utils"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

type userIDKey struct{}

// WithUserID returns a context carrying the authenticated caller.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the authenticated caller, or "" when the request was not authenticated.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// TokenVerifier checks HS256 bearer tokens and extracts the caller id.
type TokenVerifier struct {
	key    []byte
	logger *slog.Logger
}

func NewTokenVerifier(secret string, logger *slog.Logger) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenVerifier{key: []byte(secret), logger: logger.With("component", "auth")}, nil
}

// Verify validates signature and time claims and returns the userId claim, falling back to sub.
func (v *TokenVerifier) Verify(raw string) (string, error) {
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256(), v.key), jwt.WithValidate(true))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	var userID string
	if err := tok.Get("userId", &userID); err == nil && userID != "" {
		return userID, nil
	}
	if sub, ok := tok.Subject(); ok && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("%w: no user claim", ErrInvalidToken)
}

// Auth rejects requests without a valid token. The token is read from the
// Authorization header, or from the token query parameter for WebSocket upgrades.
func (v *TokenVerifier) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		userID, err := v.Verify(raw)
		if err != nil {
			v.logger.Debug("rejected token", "path", r.URL.Path, "error", err)
			utils.RespondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func bearerToken(r *http.Request) (string, error) {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", ErrMissingToken
		}
		return strings.TrimSpace(token), nil
	}
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}
