// Package service mints and consumes single-use passwordless login links.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"chat-credential-engine/internal/loginlink/domain"
	"chat-credential-engine/internal/loginlink/repository"
	"chat-credential-engine/internal/security"
	"chat-credential-engine/internal/telemetry"
)

// ErrInvalidInput is returned when Create is called without an email or device id.
var ErrInvalidInput = errors.New("email and device id are required")

// Service issues login links with a fixed validity window.
type Service struct {
	repo    repository.Repository
	ttl     time.Duration
	nowF    func() time.Time
	logger  *zap.Logger
	metrics *telemetry.Metrics
	events  telemetry.EventEmitter
}

// Option configures a Service.
type Option func(*Service)

func WithClock(nowF func() time.Time) Option {
	return func(s *Service) { s.nowF = nowF }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEventEmitter(e telemetry.EventEmitter) Option {
	return func(s *Service) { s.events = e }
}

// NewService returns a link service storing links in repo for ttl.
func NewService(repo repository.Repository, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		ttl:    ttl,
		nowF:   func() time.Time { return time.Now().UTC() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create mints a 256-bit random token, stores the link with a hard ttl and returns the token.
func (s *Service) Create(ctx context.Context, email, deviceID string) (string, error) {
	email = strings.TrimSpace(email)
	deviceID = strings.TrimSpace(deviceID)
	if email == "" || deviceID == "" {
		return "", ErrInvalidInput
	}
	token, err := security.RandomToken(security.TokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate login link: %w", err)
	}
	now := s.nowF()
	link := &domain.Link{
		Token:     token,
		Email:     email,
		DeviceID:  deviceID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.Put(ctx, link, s.ttl); err != nil {
		return "", fmt.Errorf("store login link: %w", err)
	}
	s.metrics.LinkCreated(ctx)
	telemetry.EmitAsync(s.events, &telemetry.AuthEvent{
		Type: telemetry.EventLinkCreated, DeviceID: deviceID, TokenID: security.Fingerprint(token),
	}, s.logger)
	return token, nil
}

// Consume redeems token once. It returns (nil, nil) if the link does not exist, was already
// consumed, or is past its expiry.
func (s *Service) Consume(ctx context.Context, token string) (*domain.Link, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	link, err := s.repo.GetAndDelete(ctx, token)
	if err != nil {
		s.metrics.LinkConsumption(ctx, "store_error")
		return nil, fmt.Errorf("consume login link: %w", err)
	}
	if link == nil {
		s.metrics.LinkConsumption(ctx, "not_found")
		return nil, nil
	}
	if link.Expired(s.nowF()) {
		s.metrics.LinkConsumption(ctx, "expired")
		s.logger.Debug("login link expired at consume", zap.String("link", security.Fingerprint(token)))
		return nil, nil
	}
	s.metrics.LinkConsumption(ctx, "ok")
	telemetry.EmitAsync(s.events, &telemetry.AuthEvent{
		Type: telemetry.EventLinkConsumed, DeviceID: link.DeviceID, TokenID: security.Fingerprint(token),
	}, s.logger)
	return link, nil
}
