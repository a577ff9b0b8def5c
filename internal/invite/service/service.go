// Package service generates, validates and redeems signed invite tokens.
package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"strings"
	"time"

	"go.uber.org/zap"

	"chat-credential-engine/internal/invite/domain"
	"chat-credential-engine/internal/invite/repository"
	"chat-credential-engine/internal/security"
	"chat-credential-engine/internal/telemetry"
)

var (
	// ErrInvalidExpiry is returned by Generate for an expiry outside 1..MaxExpiryHours.
	ErrInvalidExpiry = errors.New("invite expiry must be between 1 and 8760 hours")
	// ErrInvalidInviter is returned by Generate without an inviter id.
	ErrInvalidInviter = errors.New("inviter id is required")
)

// MaxExpiryHours is the longest invite lifetime Generate accepts (one year).
const MaxExpiryHours = 8760

// storagePrecision is the coarsest timestamp precision among the invite backends. Expiry is
// truncated to it before signing so the stored value reproduces the signed one exactly.
const storagePrecision = time.Millisecond

// Service issues invite tokens of the form secret.signature, where signature is an HMAC-SHA256
// over the secret, the inviter id and the expiry.
type Service struct {
	repo    repository.Repository
	key     []byte
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

// NewService returns an invite service whose signing key is derived from masterSecret.
func NewService(repo repository.Repository, masterSecret []byte, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("invite: repository is required")
	}
	key, err := security.DeriveKey(masterSecret, security.PurposeInviteHMAC, sha256.Size)
	if err != nil {
		return nil, fmt.Errorf("invite: derive signing key: %w", err)
	}
	s := &Service{
		repo:   repo,
		key:    key,
		nowF:   func() time.Time { return time.Now().UTC() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Generate creates and persists an unused invite from inviterID valid for expiryHours.
func (s *Service) Generate(ctx context.Context, inviterID string, expiryHours int) (string, error) {
	if strings.TrimSpace(inviterID) == "" {
		return "", ErrInvalidInviter
	}
	if expiryHours <= 0 || expiryHours > MaxExpiryHours {
		return "", ErrInvalidExpiry
	}
	secret, err := security.RandomToken(security.TokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate invite secret: %w", err)
	}
	now := s.nowF().UTC().Truncate(storagePrecision)
	expiresAt := now.Add(time.Duration(expiryHours) * time.Hour)
	token := secret + "." + base64.RawURLEncoding.EncodeToString(s.mac(secret, inviterID, expiresAt))

	if err := s.repo.Create(ctx, &domain.Invite{
		Token:     token,
		InviterID: inviterID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return "", fmt.Errorf("store invite: %w", err)
	}
	s.metrics.InviteCreated(ctx)
	telemetry.EmitAsync(s.events, &telemetry.AuthEvent{
		Type: telemetry.EventInviteCreated, UserID: inviterID, TokenID: security.Fingerprint(token),
	}, s.logger)
	return token, nil
}

// Validate checks token against its stored record: shape, existence, signature (constant-time),
// then expiry and use. The error return is reserved for storage failures.
func (s *Service) Validate(ctx context.Context, token string) (domain.Validation, error) {
	secret, sig, ok := split(token)
	if !ok {
		return domain.Validation{Reason: domain.ReasonMalformed}, nil
	}
	inv, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return domain.Validation{}, fmt.Errorf("load invite: %w", err)
	}
	if inv == nil {
		return domain.Validation{Reason: domain.ReasonNotFound}, nil
	}
	if !s.verify(secret, sig, inv) {
		s.logger.Warn("invite signature mismatch", zap.String("invite", security.Fingerprint(token)))
		return domain.Validation{Reason: domain.ReasonInvalidSignature}, nil
	}
	info := inv.Info()
	if !s.nowF().Before(inv.ExpiresAt) {
		return domain.Validation{Reason: domain.ReasonExpired, Info: info}, nil
	}
	if inv.Used {
		return domain.Validation{Reason: domain.ReasonUsed, Info: info}, nil
	}
	return domain.Validation{Valid: true, Info: info}, nil
}

// Redeem marks the invite used by userID. It returns true for exactly one caller per invite.
// The conditional update runs first; the signature is then re-checked against the stored
// record and the redemption is rolled back if it does not verify.
func (s *Service) Redeem(ctx context.Context, token, userID string) (bool, error) {
	secret, sig, ok := split(token)
	if !ok || strings.TrimSpace(userID) == "" {
		s.metrics.InviteRedemption(ctx, "invalid_input")
		return false, nil
	}
	n, err := s.repo.MarkUsed(ctx, token, userID, s.nowF())
	if err != nil {
		s.metrics.InviteRedemption(ctx, "store_error")
		return false, fmt.Errorf("redeem invite: %w", err)
	}
	if n == 0 {
		s.metrics.InviteRedemption(ctx, "not_redeemable")
		return false, nil
	}

	inv, err := s.repo.GetByToken(ctx, token)
	if err == nil && inv != nil && s.verify(secret, sig, inv) {
		s.metrics.InviteRedemption(ctx, "ok")
		telemetry.EmitAsync(s.events, &telemetry.AuthEvent{
			Type: telemetry.EventInviteRedeemed, UserID: userID, TokenID: security.Fingerprint(token),
		}, s.logger)
		return true, nil
	}

	s.metrics.InviteRedemption(ctx, "rolled_back")
	s.logger.Warn("invite failed verification after redemption; rolling back",
		zap.String("invite", security.Fingerprint(token)), zap.String("user_id", userID), zap.Error(err))
	telemetry.EmitAsync(s.events, &telemetry.AuthEvent{
		Type: telemetry.EventInviteRolledBack, UserID: userID, TokenID: security.Fingerprint(token),
	}, s.logger)
	if _, rbErr := s.repo.ResetUsed(ctx, token, userID); rbErr != nil {
		s.logger.Error("invite rollback failed", zap.String("invite", security.Fingerprint(token)),
			zap.String("user_id", userID), zap.Error(rbErr))
		return false, fmt.Errorf("roll back invite: %w", rbErr)
	}
	return false, nil
}

func (s *Service) verify(secret string, sig []byte, inv *domain.Invite) bool {
	return security.ConstantTimeEqual(sig, s.mac(secret, inv.InviterID, inv.ExpiresAt))
}

// mac computes the HMAC over length-prefixed fields so no two inputs share an encoding.
func (s *Service) mac(secret, inviterID string, expiresAt time.Time) []byte {
	m := hmac.New(sha256.New, s.key)
	writeField(m, []byte(secret))
	writeField(m, []byte(inviterID))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(expiresAt.Truncate(storagePrecision).UnixMilli()))
	writeField(m, ts[:])
	return m.Sum(nil)
}

func writeField(h hash.Hash, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	h.Write(n[:])
	h.Write(b)
}

// split parses secret.signature. Both segments must be non-empty URL-safe base64 and the
// signature must be a full HMAC-SHA256.
func split(token string) (string, []byte, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", nil, false
	}
	if _, err := base64.RawURLEncoding.DecodeString(parts[0]); err != nil {
		return "", nil, false
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || len(sig) != sha256.Size {
		return "", nil, false
	}
	return parts[0], sig, true
}
