package access

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/yanqian/solar-forecast/pkg/errors"
)

const (
	defaultTokenTTL = 30 * 24 * time.Hour
	scopeForecast   = "forecast"
)

// Config drives token issuing. An empty secret disables the guard.
type Config struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

// Token is a freshly issued bearer token.
type Token struct {
	Token     string    `json:"token"`
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims are extracted from a validated token.
type Claims struct {
	ID        string
	Subject   string
	Scope     string
	ExpiresAt time.Time
}

// Service issues and validates API tokens for forecast consumers.
type Service interface {
	Enabled() bool
	Issue(ctx context.Context, subject string, ttl time.Duration) (Token, error)
	Validate(ctx context.Context, token string) (Claims, error)
}

type service struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the token service.
func NewService(cfg Config, logger *slog.Logger) Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &service{
		cfg:    cfg,
		logger: logger.With("component", "access.service"),
		now:    time.Now,
	}
}

func (s *service) Enabled() bool {
	return strings.TrimSpace(s.cfg.Secret) != ""
}

func (s *service) Issue(_ context.Context, subject string, ttl time.Duration) (Token, error) {
	if !s.Enabled() {
		return Token{}, apperrors.Wrap(apperrors.CodeInvalidInput, "token secret not configured", nil)
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Token{}, apperrors.Wrap(apperrors.CodeInvalidInput, "subject cannot be empty", nil)
	}
	if ttl <= 0 {
		ttl = s.cfg.TokenTTL
	}
	now := s.now()
	id := uuid.NewString()
	claims := tokenClaims{
		Scope: scopeForecast,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   subject,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return Token{}, apperrors.Wrap(apperrors.CodeInvalidToken, "failed to sign token", err)
	}
	s.logger.Info("access token issued", "subject", subject, "token_id", id, "expires_at", claims.ExpiresAt.Time)
	return Token{Token: signed, ID: id, Subject: subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *service) Validate(_ context.Context, token string) (Claims, error) {
	if strings.TrimSpace(token) == "" {
		return Claims{}, apperrors.Wrap(apperrors.CodeInvalidToken, "token missing", nil)
	}
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Claims{}, apperrors.Wrap(apperrors.CodeInvalidToken, "token validation failed", err)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Claims{}, apperrors.Wrap(apperrors.CodeInvalidToken, "token invalid", nil)
	}
	if claims.Scope != scopeForecast {
		return Claims{}, apperrors.Wrap(apperrors.CodeInvalidToken, "token scope mismatch", nil)
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return Claims{}, apperrors.Wrap(apperrors.CodeInvalidToken, "token id malformed", err)
	}
	return Claims{
		ID:        claims.ID,
		Subject:   claims.Subject,
		Scope:     claims.Scope,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}
