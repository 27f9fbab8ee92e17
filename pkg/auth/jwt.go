package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/apperr"
)

// Claims is the token payload issued by the workspace's identity provider
type Claims struct {
	jwt.RegisteredClaims
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	Workspaces []string `json:"workspaces"`
}

// JWTVerifier validates signed tokens either with a shared HMAC secret or
// with public keys from a JWKS endpoint.
type JWTVerifier struct {
	keyfunc jwt.Keyfunc
	methods []string
	logger  *slog.Logger
}

// NewHMACVerifier accepts HS256 tokens signed with secret.
func NewHMACVerifier(secret string, logger *slog.Logger) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	key := []byte(secret)

	logger.Info("JWT verifier initialized", "mode", "hmac")
	return &JWTVerifier{
		keyfunc: func(*jwt.Token) (interface{}, error) { return key, nil },
		methods: []string{jwt.SigningMethodHS256.Alg()},
		logger:  logger,
	}, nil
}

// NewJWKSVerifier accepts RS256 and ES256 tokens whose keys are published at
// jwksURL. Keys are cached and refreshed by keyfunc.
func NewJWKSVerifier(ctx context.Context, jwksURL string, logger *slog.Logger) (*JWTVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "mode", "jwks", "jwks_url", jwksURL)
	return &JWTVerifier{
		keyfunc: jwks.Keyfunc,
		methods: []string{"RS256", "ES256"},
		logger:  logger,
	}, nil
}

// VerifyToken validates the token and extracts the identity.
func (v *JWTVerifier) VerifyToken(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: missing token", apperr.ErrUnauthorized)
	}

	// restricting methods prevents algorithm confusion
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyfunc, jwt.WithValidMethods(v.methods))
	if err != nil || !token.Valid {
		v.logger.Debug("token rejected", "error", err)
		return nil, fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		v.logger.Debug("token missing subject claim")
		return nil, fmt.Errorf("%w: token has no subject", apperr.ErrUnauthorized)
	}

	return &Identity{
		UserID:     claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
		Workspaces: claims.Workspaces,
	}, nil
}

// Close is a no-op; keyfunc manages its own refresh goroutine lifetime
// through the context passed to NewJWKSVerifier.
func (v *JWTVerifier) Close() error {
	v.logger.Info("JWT verifier closed")
	return nil
}

// DevVerifier trusts the token as a plain user id. It is only wired when
// authentication is disabled.
type DevVerifier struct{}

func (DevVerifier) VerifyToken(token string) (*Identity, error) {
	if token == "" {
		token = "anonymous"
	}
	return &Identity{UserID: token, Name: token, Workspaces: []string{AllWorkspaces}}, nil
}

func (DevVerifier) Close() error { return nil }

var (
	_ Verifier = (*JWTVerifier)(nil)
	_ Verifier = DevVerifier{}
)
