// Package service orchestrates registration and sign-in on top of the token, login link and
// invite engines.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	invitedomain "chat-credential-engine/internal/invite/domain"
	linkdomain "chat-credential-engine/internal/loginlink/domain"
	policyengine "chat-credential-engine/internal/policy/engine"
	principaldomain "chat-credential-engine/internal/principal/domain"
	"chat-credential-engine/internal/security"
	"chat-credential-engine/internal/server/middleware"
	sessiondomain "chat-credential-engine/internal/session/domain"
	sessionservice "chat-credential-engine/internal/session/service"
	"chat-credential-engine/internal/telemetry"
)

// Sentinel errors for auth service; the HTTP handler maps them to status codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidRefreshToken    = errors.New("invalid or expired refresh token")
	ErrInvalidLoginLink       = errors.New("invalid or expired login link")
	ErrInviteRequired         = errors.New("an invite is required to register")
	ErrInvalidInvite          = errors.New("invite is invalid, expired or already used")
	ErrDeviceRequired         = errors.New("device id is required")
	ErrPrincipalNotFound      = errors.New("principal not found")
	ErrUnauthenticated        = errors.New("authentication required")
	// ErrRegistrationIncomplete means a principal was created but neither committed nor
	// removed. The inconsistency is logged for manual resolution.
	ErrRegistrationIncomplete = errors.New("registration could not be completed or rolled back")
)

const tracerName = "chat-credential-engine/identity"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// unknownPrincipalPassword is hashed once per service so logins for unknown or passwordless
// accounts pay the same bcrypt cost as real ones.
const unknownPrincipalPassword = "chat-credential-engine: no such principal"

// InputError is a request field the service rejected before doing any work.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func invalidInput(msg string) error { return &InputError{Message: msg} }

// AuthResult holds the outcome of Register, Login, LoginWithLink and Refresh.
type AuthResult struct {
	UserID string
	Email  string
	Tokens *sessiondomain.TokenPair
}

// RegisterInput is the registration request. Password is optional (passwordless accounts sign
// in with login links); InviteToken is required when registration policy says so.
type RegisterInput struct {
	Email       string
	DisplayName string
	Password    string
	InviteToken string
	DeviceID    string
}

// PrincipalRepo is the principal store needed by the auth service.
type PrincipalRepo interface {
	GetByID(ctx context.Context, id string) (*principaldomain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*principaldomain.Principal, error)
	Create(ctx context.Context, p *principaldomain.Principal) error
	Delete(ctx context.Context, id string) error
}

// TokenIssuer is the session token engine.
type TokenIssuer interface {
	Issue(ctx context.Context, p *principaldomain.Principal, deviceID string) (*sessiondomain.TokenPair, error)
	Validate(ctx context.Context, token string) sessiondomain.Validation
	Refresh(ctx context.Context, refreshToken string) (*sessiondomain.TokenPair, error)
	RevokeClaims(ctx context.Context, c *sessiondomain.Claims) error
}

// LinkIssuer is the login link engine.
type LinkIssuer interface {
	Create(ctx context.Context, email, deviceID string) (string, error)
	Consume(ctx context.Context, token string) (*linkdomain.Link, error)
}

// InviteManager is the invite engine.
type InviteManager interface {
	Generate(ctx context.Context, inviterID string, expiryHours int) (string, error)
	Validate(ctx context.Context, token string) (invitedomain.Validation, error)
	Redeem(ctx context.Context, token, userID string) (bool, error)
}

// AuthService implements registration, password and login link sign-in, refresh, logout and
// invite creation.
type AuthService struct {
	principals PrincipalRepo
	tokens     TokenIssuer
	links      LinkIssuer
	invites    InviteManager
	policy     policyengine.Evaluator
	sender     LinkSender
	hasher     *security.Hasher

	inviteExpiryHours int
	dummyOnce         sync.Once
	dummyHash         string
	nowF              func() time.Time
	logger            *zap.Logger
	events            telemetry.EventEmitter
	tracer            trace.Tracer
}

// Option configures an AuthService.
type Option func(*AuthService)

func WithClock(nowF func() time.Time) Option {
	return func(s *AuthService) { s.nowF = nowF }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *AuthService) { s.logger = logger }
}

func WithEventEmitter(e telemetry.EventEmitter) Option {
	return func(s *AuthService) { s.events = e }
}

// WithLinkSender sets how login links reach the user. Defaults to a LogSender.
func WithLinkSender(sender LinkSender) Option {
	return func(s *AuthService) { s.sender = sender }
}

// WithDefaultInviteExpiry sets the expiry used when CreateInvite gets no explicit hours.
func WithDefaultInviteExpiry(hours int) Option {
	return func(s *AuthService) { s.inviteExpiryHours = hours }
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	principals PrincipalRepo,
	tokens TokenIssuer,
	links LinkIssuer,
	invites InviteManager,
	policy policyengine.Evaluator,
	hasher *security.Hasher,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		principals:        principals,
		tokens:            tokens,
		links:             links,
		invites:           invites,
		policy:            policy,
		hasher:            hasher,
		inviteExpiryHours: 24,
		nowF:              func() time.Time { return time.Now().UTC() },
		logger:            zap.NewNop(),
		tracer:            otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sender == nil {
		s.sender = NewLogSender(s.logger, "", false)
	}
	return s
}

// Register creates a principal and, when an invite is required or supplied, redeems it bound to
// the new principal id before any session is issued. If redemption fails the principal is
// deleted again; if that delete also fails the error is ErrRegistrationIncomplete.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "identity.Register")
	defer span.End()

	email := principaldomain.NormalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	deviceID := strings.TrimSpace(in.DeviceID)
	if deviceID == "" {
		return nil, ErrDeviceRequired
	}
	if in.Password != "" {
		if err := validatePassword(in.Password); err != nil {
			return nil, err
		}
	}
	inviteToken := strings.TrimSpace(in.InviteToken)

	decision, err := s.policy.EvaluateRegistration(ctx, policyengine.RegistrationInput{
		Email: email, InviteSupplied: inviteToken != "",
	})
	if err != nil {
		s.logger.Warn("registration policy evaluation failed; using fallback", zap.Error(err))
	}
	if decision.InviteRequired && inviteToken == "" {
		return nil, ErrInviteRequired
	}
	if inviteToken != "" {
		v, err := s.invites.Validate(ctx, inviteToken)
		if err != nil {
			return nil, fmt.Errorf("validate invite: %w", err)
		}
		if !v.Valid {
			s.logger.Info("registration rejected: invite not valid", zap.String("reason", string(v.Reason)))
			return nil, fmt.Errorf("%w: %s", ErrInvalidInvite, v.Reason)
		}
	}

	existing, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	now := s.nowF()
	p := &principaldomain.Principal{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Role:        principaldomain.RoleMember,
		DeviceID:    deviceID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Password != "" {
		hashed, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		p.PasswordHash = hashed
	}
	if err := s.principals.Create(ctx, p); err != nil {
		if errors.Is(err, principaldomain.ErrEmailTaken) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", p.ID))

	if inviteToken != "" {
		ok, redeemErr := s.invites.Redeem(ctx, inviteToken, p.ID)
		if redeemErr != nil || !ok {
			return nil, s.compensate(ctx, p, redeemErr)
		}
	}

	pair, err := s.tokens.Issue(ctx, p, deviceID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	s.emit(ctx, telemetry.EventRegistered, p.ID, deviceID, "")
	return &AuthResult{UserID: p.ID, Email: p.Email, Tokens: pair}, nil
}

// compensate deletes a principal whose invite could not be redeemed. The returned error
// describes the registration outcome.
func (s *AuthService) compensate(ctx context.Context, p *principaldomain.Principal, redeemErr error) error {
	reason := "invite already redeemed"
	if redeemErr != nil {
		reason = "invite redemption failed"
	}
	if err := s.principals.Delete(ctx, p.ID); err != nil {
		s.logger.Error("registration unresolved: principal created but invite not redeemed and delete failed; manual cleanup required",
			zap.String("user_id", p.ID),
			zap.String("reason", reason),
			zap.NamedError("redeem_err", redeemErr),
			zap.Error(err),
		)
		s.emit(ctx, telemetry.EventRegistrationUnresolved, p.ID, p.DeviceID, reason)
		return fmt.Errorf("%w: user %s: %v", ErrRegistrationIncomplete, p.ID, err)
	}
	s.logger.Info("registration compensated", zap.String("user_id", p.ID), zap.String("reason", reason))
	s.emit(ctx, telemetry.EventRegistrationCompensated, p.ID, p.DeviceID, reason)
	if redeemErr != nil {
		return fmt.Errorf("redeem invite: %w", redeemErr)
	}
	return ErrInvalidInvite
}

// Login authenticates with email and password and issues a session for deviceID.
func (s *AuthService) Login(ctx context.Context, email, password, deviceID string) (*AuthResult, error) {
	email = principaldomain.NormalizeEmail(email)
	deviceID = strings.TrimSpace(deviceID)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if deviceID == "" {
		return nil, ErrDeviceRequired
	}
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if p == nil || p.PasswordHash == "" {
		s.compareDummy(password)
		s.emit(ctx, telemetry.EventLoginFailure, "", deviceID, "unknown principal")
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Verify(p.PasswordHash, password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			s.logger.Warn("stored password hash unusable", zap.String("principal_id", p.ID), zap.Error(err))
		}
		s.emit(ctx, telemetry.EventLoginFailure, p.ID, deviceID, "bad password")
		return nil, ErrInvalidCredentials
	}
	if s.hasher.NeedsRehash(p.PasswordHash) {
		s.logger.Info("password hash below configured cost", zap.String("principal_id", p.ID))
	}
	return s.startSession(ctx, p, deviceID)
}

// compareDummy runs a bcrypt comparison that always fails.
func (s *AuthService) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(unknownPrincipalPassword)
		if err != nil {
			s.logger.Warn("dummy password hash failed", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_ = s.hasher.Verify(s.dummyHash, password)
	}
}

// RequestLoginLink creates a login link for a registered email and hands it to the link sender.
// Unknown emails succeed silently so the endpoint does not reveal which addresses exist.
func (s *AuthService) RequestLoginLink(ctx context.Context, email, deviceID string) error {
	email = principaldomain.NormalizeEmail(email)
	deviceID = strings.TrimSpace(deviceID)
	if err := validateEmail(email); err != nil {
		return err
	}
	if deviceID == "" {
		return ErrDeviceRequired
	}
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if p == nil {
		s.logger.Debug("login link requested for unknown email")
		return nil
	}
	token, err := s.links.Create(ctx, email, deviceID)
	if err != nil {
		return err
	}
	if err := s.sender.SendLoginLink(ctx, email, token); err != nil {
		return fmt.Errorf("send login link: %w", err)
	}
	return nil
}

// LoginWithLink consumes a login link and issues a session for the device it was requested from.
func (s *AuthService) LoginWithLink(ctx context.Context, token string) (*AuthResult, error) {
	link, err := s.links.Consume(ctx, token)
	if err != nil {
		return nil, err
	}
	if link == nil {
		s.emit(ctx, telemetry.EventLoginFailure, "", "", "login link invalid")
		return nil, ErrInvalidLoginLink
	}
	p, err := s.principals.GetByEmail(ctx, link.Email)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrInvalidLoginLink
	}
	return s.startSession(ctx, p, link.DeviceID)
}

func (s *AuthService) startSession(ctx context.Context, p *principaldomain.Principal, deviceID string) (*AuthResult, error) {
	pair, err := s.tokens.Issue(ctx, p, deviceID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	s.emit(ctx, telemetry.EventLoginSuccess, p.ID, deviceID, "")
	return &AuthResult{UserID: p.ID, Email: p.Email, Tokens: pair}, nil
}

// Refresh rotates a refresh token into a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrInvalidRefreshToken
	}
	pair, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sessionservice.ErrInvalidRefreshToken) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	res := &AuthResult{Tokens: pair}
	if v := s.tokens.Validate(ctx, pair.AccessToken); v.Valid {
		res.UserID, res.Email = v.Claims.Subject, v.Claims.Email
	}
	return res, nil
}

// Logout revokes the access token in context and, if given, a refresh token of the same
// principal. An invalid refresh token is ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, ok := middleware.ClaimsFrom(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	if err := s.tokens.RevokeClaims(ctx, claims); err != nil {
		return err
	}
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		v := s.tokens.Validate(ctx, refreshToken)
		if v.Valid && v.Claims.TokenType == sessiondomain.TokenTypeRefresh && v.Claims.Subject == claims.Subject {
			if err := s.tokens.RevokeClaims(ctx, v.Claims); err != nil {
				return err
			}
		}
	}
	s.emit(ctx, telemetry.EventLogout, claims.Subject, claims.DeviceID, "")
	return nil
}

// Me returns the principal of the access token in context.
func (s *AuthService) Me(ctx context.Context) (*principaldomain.Principal, error) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	p, err := s.principals.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPrincipalNotFound
	}
	return p, nil
}

// CreateInvite mints an invite from the principal in context. expiryHours <= 0 selects the
// configured default.
func (s *AuthService) CreateInvite(ctx context.Context, expiryHours int) (string, error) {
	p, err := s.Me(ctx)
	if err != nil {
		return "", err
	}
	if expiryHours <= 0 {
		expiryHours = s.inviteExpiryHours
	}
	return s.invites.Generate(ctx, p.ID, expiryHours)
}

// ValidateInvite reports the public state of an invite.
func (s *AuthService) ValidateInvite(ctx context.Context, token string) (invitedomain.Validation, error) {
	return s.invites.Validate(ctx, strings.TrimSpace(token))
}

func (s *AuthService) emit(ctx context.Context, typ, userID, deviceID, reason string) {
	telemetry.EmitAsync(s.events, &telemetry.AuthEvent{
		Type:      typ,
		UserID:    userID,
		DeviceID:  deviceID,
		ClientIP:  middleware.ClientIP(ctx),
		Reason:    reason,
		CreatedAt: s.nowF(),
	}, s.logger)
}

func validateEmail(email string) error {
	if email == "" {
		return invalidInput("email is required")
	}
	if !emailPattern.MatchString(email) {
		return invalidInput("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return invalidInput("password must be at least 12 characters")
	}
	if len(password) > security.MaxPasswordBytes {
		return invalidInput("password must be at most 72 bytes")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return invalidInput("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return invalidInput("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return invalidInput("password must contain at least one number")
	}
	if !hasSymbol {
		return invalidInput("password must contain at least one symbol")
	}
	return nil
}
