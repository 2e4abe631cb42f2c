package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
)

type AuthConfig struct {
	// JWTSecret signs and verifies bearer tokens. When empty the server
	// runs in dev mode: the X-Actor-Id and X-Role headers are trusted and
	// missing headers fall back to a local admin principal.
	JWTSecret string
	Logger    *log.Logger
}

const (
	RoleAgency  = "agency"
	RoleOfficer = "officer"
	RoleAdmin   = "admin"
)

type Principal struct {
	ActorID string
	Role    string
	Source  string
}

type principalKey struct{}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p.ActorID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

// requireRole admits admins plus any of the listed roles.
func requireRole(ctx context.Context, roles ...string) huma.StatusError {
	p, ok := principalFromContext(ctx)
	if !ok || p.ActorID == "" {
		return newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	if p.Role == RoleAdmin {
		return nil
	}
	for _, r := range roles {
		if p.Role == r {
			return nil
		}
	}
	return newAPIError(http.StatusForbidden, "forbidden", "role "+p.Role+" cannot perform this operation", map[string]any{"required": roles})
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

func authenticateJWT(token, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	role := claims.Role
	if role == "" {
		role = RoleOfficer
	}
	return Principal{ActorID: claims.Subject, Role: role, Source: "jwt"}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	devMode := strings.TrimSpace(cfg.JWTSecret) == ""
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if req.URL.Path == healthPath {
				next.ServeHTTP(w, req)
				return
			}

			if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" && !devMode {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				principal, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if devMode {
				principal := Principal{
					ActorID: strings.TrimSpace(req.Header.Get("X-Actor-Id")),
					Role:    strings.TrimSpace(req.Header.Get("X-Role")),
					Source:  "dev",
				}
				if principal.ActorID == "" {
					principal.ActorID = "local-user"
				}
				if principal.Role == "" {
					principal.Role = RoleAdmin
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
