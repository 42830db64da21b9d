package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"

	"github.com/golang-jwt/jwt/v5"
)

// CallerClaims is the bearer token payload. Subject carries the user id.
type CallerClaims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type callerKey struct{}

func withCaller(ctx context.Context, caller entities.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func callerFromContext(ctx context.Context) (entities.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(entities.Caller)
	return caller, ok
}

// SignToken issues an HS256 token for caller. Used by the dev CLI and tests.
func SignToken(secret string, caller entities.Caller, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now().UTC()
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:  string(caller.Role),
		Email: caller.Email,
		Name:  caller.Name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticate(token string, secret string) (entities.Caller, error) {
	if strings.TrimSpace(secret) == "" {
		return entities.Caller{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &CallerClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return entities.Caller{}, err
	}
	if !parsed.Valid {
		return entities.Caller{}, errors.New("invalid token")
	}
	caller := entities.Caller{
		UserID: claims.Subject,
		Role:   entities.Role(strings.ToLower(strings.TrimSpace(claims.Role))),
		Email:  claims.Email,
		Name:   claims.Name,
	}
	if !caller.Valid() {
		return entities.Caller{}, errors.New("token subject or role is invalid")
	}
	return caller, nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func (s *Server) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authorization bearer token is required")
			return
		}
		caller, err := authenticate(token, s.jwtSecret)
		if err != nil {
			s.logger.Warn("bearer token rejected",
				"event", "http_auth_rejected",
				"module", "internal/platform/httpserver",
				"layer", "platform",
				"path", r.URL.Path,
				"error", err.Error(),
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "bearer token is invalid")
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}
