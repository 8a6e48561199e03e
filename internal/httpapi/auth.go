package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"opd/opd-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

type authContextKey struct{}

// Claims is the bearer token payload. Subject is the user id, or the patient
// id for patient tokens.
type Claims struct {
	jwt.RegisteredClaims
	Role       models.Role       `json:"role"`
	Department models.Department `json:"department,omitempty"`
}

type Actor struct {
	UserID     string
	Role       models.Role
	Department models.Department
}

func (a Actor) is(roles ...models.Role) bool {
	for _, role := range roles {
		if a.Role == role {
			return true
		}
	}
	return false
}

func (a Actor) staff() bool {
	return a.is(models.RoleAdmin, models.RoleDoctor, models.RoleReceptionist)
}

type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Sign mints a token for actor. The service only verifies tokens; Sign backs
// the dev-token command and tests.
func (a *Authenticator) Sign(actor Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:       actor.Role,
		Department: actor.Department,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Verify(raw string) (Actor, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Actor{}, err
	}
	if !token.Valid {
		return Actor{}, errors.New("invalid token")
	}
	role, ok := models.ParseRole(string(claims.Role))
	if !ok || claims.Subject == "" {
		return Actor{}, errors.New("token missing subject or role")
	}
	return Actor{UserID: claims.Subject, Role: role, Department: claims.Department}, nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		raw := bearerToken(r.Header.Get("Authorization"))
		if raw == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		actor, err := a.Verify(raw)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(authContextKey{}).(Actor)
	return actor, ok
}

// requireRole writes 401/403 and returns false unless the caller holds one of
// roles.
func requireRole(w http.ResponseWriter, r *http.Request, roles ...models.Role) (Actor, bool) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return Actor{}, false
	}
	if !actor.is(roles...) {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "role not allowed")
		return Actor{}, false
	}
	return actor, true
}

// patientScope resolves which patient a listing may cover. Patients only see
// their own records; staff may filter by any patient or none.
func patientScope(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor, models.RoleReceptionist, models.RolePatient)
	if !ok {
		return "", false
	}
	requested := strings.TrimSpace(r.URL.Query().Get("patient_id"))
	if actor.Role != models.RolePatient {
		return requested, true
	}
	if requested != "" && requested != actor.UserID {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "patients can only see their own records")
		return "", false
	}
	return actor.UserID, true
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	default:
		return r.Method == http.MethodOptions
	}
}
