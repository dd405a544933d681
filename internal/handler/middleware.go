package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
)

type contextKey string

const subjectKey contextKey = "subject"

// ServiceClaims are the claims carried by service tokens.
type ServiceClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// ServiceTokenMiddleware validates HS256 Bearer tokens signed with secret
// and injects the token subject into the request context.
func ServiceTokenMiddleware(secret []byte, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r.Header.Get("Authorization"), secret)
			if err != nil {
				logger.Warn("auth: rejected token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				handleServiceError(w, err, logger)
				return
			}

			logger.Debug("auth: token accepted",
				zap.String("subject", claims.Subject),
				zap.String("scope", claims.Scope),
			)
			ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(authHeader string, secret []byte) (*ServiceClaims, error) {
	if authHeader == "" {
		return nil, &domain.ErrUnauthorized{Message: "missing bearer token"}
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, &domain.ErrUnauthorized{Message: "invalid authorization header"}
	}
	return validateServiceToken(parts[1], secret)
}

func validateServiceToken(tokenString string, secret []byte) (*ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "token has no subject"}
	}
	return claims, nil
}

// SubjectFromContext returns the authenticated caller, if any.
func SubjectFromContext(ctx context.Context) string {
	v, _ := ctx.Value(subjectKey).(string)
	return v
}
