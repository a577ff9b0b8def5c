// Package service issues, validates, refreshes and revokes session tokens.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	principaldomain "chat-credential-engine/internal/principal/domain"
	revocationdomain "chat-credential-engine/internal/revocation/domain"
	revocationrepo "chat-credential-engine/internal/revocation/repository"
	"chat-credential-engine/internal/security"
	"chat-credential-engine/internal/session/domain"
	"chat-credential-engine/internal/telemetry"
)

var (
	// ErrInvalidRefreshToken is returned by Refresh for any token that cannot be exchanged:
	// invalid, revoked, expired, not a refresh token, or already rotated by a concurrent caller.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrInvalidPrincipal is returned by Issue when the principal has no id.
	ErrInvalidPrincipal = errors.New("principal id is required")
)

const tracerName = "chat-credential-engine/session"

// Config holds token issuance settings.
type Config struct {
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService issues and validates signed session tokens. It holds no mutable state and is safe
// for concurrent use; rotation safety comes from the revocation store's insert-if-absent.
type TokenService struct {
	keys        *security.KeyProvider
	revocations revocationrepo.Repository
	cfg         Config
	nowF        func() time.Time
	logger      *zap.Logger
	metrics     *telemetry.Metrics
	events      telemetry.EventEmitter
	tracer      trace.Tracer
}

// Option configures a TokenService.
type Option func(*TokenService)

// WithClock sets the time source used for issuance and validation.
func WithClock(nowF func() time.Time) Option {
	return func(s *TokenService) { s.nowF = nowF }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *TokenService) { s.logger = logger }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *TokenService) { s.metrics = m }
}

func WithEventEmitter(e telemetry.EventEmitter) Option {
	return func(s *TokenService) { s.events = e }
}

// NewTokenService returns a TokenService signing with keys and consulting revocations.
func NewTokenService(keys *security.KeyProvider, revocations revocationrepo.Repository, cfg Config, opts ...Option) (*TokenService, error) {
	if keys == nil {
		return nil, errors.New("session: key provider is required")
	}
	if revocations == nil {
		return nil, errors.New("session: revocation store is required")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("session: issuer and audience are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("session: token lifetimes must be positive")
	}
	s := &TokenService{
		keys:        keys,
		revocations: revocations,
		cfg:         cfg,
		nowF:        func() time.Time { return time.Now().UTC() },
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue mints an access and a refresh token for p bound to deviceID. Each token gets its own jti.
func (s *TokenService) Issue(ctx context.Context, p *principaldomain.Principal, deviceID string) (*domain.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "session.Issue")
	defer span.End()

	if p == nil || p.ID == "" {
		return nil, ErrInvalidPrincipal
	}
	now := s.nowF()
	access, accessExp, accessID, err := s.sign(p, deviceID, domain.TokenTypeAccess, now, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshExp, _, err := s.sign(p, deviceID, domain.TokenTypeRefresh, now, s.cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	span.SetAttributes(attribute.String("user_id", p.ID))
	s.metrics.TokenIssued(ctx)
	telemetry.EmitAsync(s.events, &telemetry.AuthEvent{
		Type: telemetry.EventTokenIssued, UserID: p.ID, DeviceID: deviceID, TokenID: accessID,
	}, s.logger)
	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *TokenService) sign(p *principaldomain.Principal, deviceID string, typ domain.TokenType, now time.Time, ttl time.Duration) (string, time.Time, string, error) {
	jti := uuid.NewString()
	exp := jwt.NewNumericDate(now.Add(ttl))
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   p.ID,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		DeviceID:    deviceID,
	}
	if typ == domain.TokenTypeRefresh {
		claims.TokenType = string(domain.TokenTypeRefresh)
	}
	token, err := s.keys.Sign(claims)
	return token, exp.Time, jti, err
}

// Validate checks token in order: empty input, revocation, then signature and claims
// (issuer, audience, exp, nbf, iat) with no clock-skew leeway. Failures are classified
// into a Reason; a revocation store error fails closed as ReasonInvalid.
func (s *TokenService) Validate(ctx context.Context, token string) domain.Validation {
	v := s.validate(ctx, token)
	if v.Valid {
		s.metrics.Validation(ctx, "valid")
	} else {
		s.metrics.Validation(ctx, string(v.Reason))
	}
	return v
}

func (s *TokenService) validate(ctx context.Context, token string) domain.Validation {
	if strings.TrimSpace(token) == "" {
		return domain.Invalid(domain.ReasonEmpty)
	}
	key := revocationKey(token)
	revoked, err := s.revocations.IsBlacklisted(ctx, key)
	if err != nil {
		s.logger.Warn("revocation lookup failed", zap.String("jti", key), zap.Error(err))
		return domain.Invalid(domain.ReasonInvalid)
	}
	if revoked {
		return domain.Invalid(domain.ReasonRevoked)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{s.keys.Algorithm()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(0),
		jwt.WithTimeFunc(s.nowF),
	)
	claims := &sessionClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, s.keys.Keyfunc)
	if err != nil {
		return domain.Invalid(classify(err))
	}
	if !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return domain.Invalid(domain.ReasonInvalid)
	}
	return domain.Validation{Valid: true, Claims: claims.toDomain()}
}

func classify(err error) domain.Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return domain.ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return domain.ReasonInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ReasonExpired
	default:
		return domain.ReasonInvalid
	}
}

// ValidateAccess is Validate restricted to access tokens: a valid refresh token yields
// ReasonWrongTokenType.
func (s *TokenService) ValidateAccess(ctx context.Context, token string) domain.Validation {
	v := s.Validate(ctx, token)
	if v.Valid && v.Claims.TokenType != domain.TokenTypeAccess {
		return domain.Invalid(domain.ReasonWrongTokenType)
	}
	return v
}

// Refresh exchanges a refresh token for a new pair. The presented token is blacklisted until its
// own expiry before the new pair is minted; if another caller already rotated it, Refresh returns
// ErrInvalidRefreshToken. Identity claims are copied from the refresh token, not reloaded.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "session.Refresh")
	defer span.End()

	v := s.Validate(ctx, refreshToken)
	if !v.Valid {
		s.metrics.Refresh(ctx, string(v.Reason))
		return nil, ErrInvalidRefreshToken
	}
	c := v.Claims
	if c.TokenType != domain.TokenTypeRefresh {
		s.metrics.Refresh(ctx, string(domain.ReasonWrongTokenType))
		return nil, ErrInvalidRefreshToken
	}
	p := &principaldomain.Principal{
		ID:          c.Subject,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		Role:        c.Role,
	}

	if err := s.revocations.Blacklist(ctx, c.TokenID, c.ExpiresAt); err != nil {
		if errors.Is(err, revocationdomain.ErrAlreadyRevoked) {
			s.metrics.Refresh(ctx, "replayed")
			s.logger.Info("refresh token replayed", zap.String("jti", c.TokenID), zap.String("user_id", c.Subject))
			return nil, ErrInvalidRefreshToken
		}
		if errors.Is(err, revocationdomain.ErrAlreadyExpired) {
			s.metrics.Refresh(ctx, string(domain.ReasonExpired))
			return nil, ErrInvalidRefreshToken
		}
		s.metrics.Refresh(ctx, "store_error")
		return nil, fmt.Errorf("blacklist refresh token: %w", err)
	}
	s.metrics.Revocation(ctx)

	pair, err := s.Issue(ctx, p, c.DeviceID)
	if err != nil {
		s.metrics.Refresh(ctx, "issue_error")
		return nil, err
	}
	s.metrics.Refresh(ctx, "ok")
	telemetry.EmitAsync(s.events, &telemetry.AuthEvent{
		Type: telemetry.EventTokenRefreshed, UserID: c.Subject, DeviceID: c.DeviceID, TokenID: c.TokenID,
	}, s.logger)
	return pair, nil
}

// Revoke blacklists an arbitrary token string until expiresAt. Revoking an already revoked or
// already expired token is not an error.
func (s *TokenService) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("session: token is required")
	}
	return s.revoke(ctx, revocationKey(token), expiresAt, "")
}

// RevokeClaims blacklists the token described by validated claims until its expiry.
func (s *TokenService) RevokeClaims(ctx context.Context, c *domain.Claims) error {
	if c == nil || c.TokenID == "" {
		return errors.New("session: token id is required")
	}
	return s.revoke(ctx, c.TokenID, c.ExpiresAt, c.Subject)
}

func (s *TokenService) revoke(ctx context.Context, key string, expiresAt time.Time, userID string) error {
	err := s.revocations.Blacklist(ctx, key, expiresAt)
	if err != nil && !errors.Is(err, revocationdomain.ErrAlreadyRevoked) && !errors.Is(err, revocationdomain.ErrAlreadyExpired) {
		return fmt.Errorf("blacklist token: %w", err)
	}
	if err == nil {
		s.metrics.Revocation(ctx)
		telemetry.EmitAsync(s.events, &telemetry.AuthEvent{
			Type: telemetry.EventTokenRevoked, UserID: userID, TokenID: key,
		}, s.logger)
	}
	return nil
}
