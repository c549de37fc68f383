package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	PatientIDKey contextKey = "patient_id"
)

// Claims are the bearer token claims. PatientID is only present on tokens
// issued to patients and scopes them to their own records.
type Claims struct {
	jwt.RegisteredClaims
	Roles     []string `json:"roles"`
	PatientID string   `json:"patient_id,omitempty"`
}

// JWTConfig selects token verification: HS256 with SigningKey when it is
// set, otherwise RS256 against the keys published at JWKSURL.
type JWTConfig struct {
	Issuer     string
	Audience   string
	JWKSURL    string
	SigningKey []byte
}

// keyFuncFor returns the verification key lookup for one request.
type keyFuncFor func(ctx context.Context) jwt.Keyfunc

func (cfg JWTConfig) parser() (*jwt.Parser, keyFuncFor, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	if len(cfg.SigningKey) > 0 {
		key := cfg.SigningKey
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		return jwt.NewParser(opts...), func(context.Context) jwt.Keyfunc {
			return func(*jwt.Token) (interface{}, error) { return key, nil }
		}, nil
	}
	if cfg.JWKSURL == "" {
		return nil, nil, fmt.Errorf("no token verification key configured")
	}

	jwks := NewJWKSCache(cfg.JWKSURL, defaultJWKSCacheTTL)
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	keyFunc := func(ctx context.Context) jwt.Keyfunc {
		return func(t *jwt.Token) (interface{}, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, fmt.Errorf("token has no kid header")
			}
			return jwks.GetKey(ctx, kid)
		}
	}
	return jwt.NewParser(opts...), keyFunc, nil
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errors.New("invalid authorization format")
	}
	return token, nil
}

// JWTMiddleware authenticates every request with a bearer token and attaches
// the caller identity to the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	parser, keyFunc, cfgErr := cfg.parser()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfgErr != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "authentication is not configured").SetInternal(cfgErr)
			}
			raw, err := bearerToken(c.Request())
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			claims := &Claims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFunc(c.Request().Context())); err != nil {
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token expired"
				}
				return echo.NewHTTPError(http.StatusUnauthorized, msg).SetInternal(err)
			}

			ctx := WithIdentity(c.Request().Context(), claims.Subject, claims.Roles, claims.PatientID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development. Requests
// without a bearer token run as an admin; tokens signed with signingKey are
// honoured so other roles can be exercised locally.
func DevAuthMiddleware(signingKey []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		var validated echo.HandlerFunc
		if len(signingKey) > 0 {
			validated = JWTMiddleware(JWTConfig{SigningKey: signingKey})(next)
		}
		return func(c echo.Context) error {
			if validated != nil && c.Request().Header.Get(echo.HeaderAuthorization) != "" {
				return validated(c)
			}
			ctx := WithIdentity(c.Request().Context(), "dev-user", []string{RoleAdmin}, "")
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// WithIdentity attaches a caller identity to ctx. Used by the HTTP
// middleware and by CLI commands that act as a system user.
func WithIdentity(ctx context.Context, userID string, roles []string, patientID string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserRolesKey, roles)
	return context.WithValue(ctx, PatientIDKey, patientID)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

// PatientIDFromContext returns the patient the caller is bound to, if any.
func PatientIDFromContext(ctx context.Context) string {
	pid, _ := ctx.Value(PatientIDKey).(string)
	return pid
}
