package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

const (
	tokenTypeBearer         = "Bearer"
	defaultRecoveryTokenTTL = 24 * time.Hour
	msgInvalidCredentials   = "User or password incorrect"
	msgNoDefaultTenant      = "User does not have a default tenant"
	msgTenantAccessDenied   = "User does not have access to the requested tenant"
	msgUserNotFound         = "User not found"
	msgInvalidRecoveryToken = "Invalid or expired token"
	msgRecoveryTokenUsed    = "Token has already been used"
	msgRecoveryTokenExpired = "Token has expired"
	msgRecoveryInProgress   = "A password recovery request is already in progress"
	outcomeSuccess          = "success"
	outcomeFailure          = "failure"
	eventLogin              = "login"
	eventSwitchTenant       = "switch_tenant"
	eventLogout             = "logout"
	eventRecoveryRequested  = "recovery_requested"
	eventPasswordReset      = "password_reset"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(plaintext, hashed string) bool
}

// TokenSigner signs and verifies session tokens.
type TokenSigner interface {
	Sign(payload TokenPayload) (string, time.Time, error)
	Verify(token string) (*shared.Principal, error)
}

// Revoker records revoked session tokens.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// EventPublisher delivers domain events to asynchronous listeners.
type EventPublisher interface {
	PublishPasswordRecovery(ctx context.Context, event PasswordRecoveryRequested) error
}

// AuditRecorder persists security relevant events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventRecorder counts authentication outcomes.
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

// Config tunes the service.
type Config struct {
	RecoveryTokenTTL time.Duration
}

// Service implements login, tenant switching, logout and password recovery.
type Service struct {
	repo      Repository
	hasher    PasswordHasher
	signer    TokenSigner
	revoker   Revoker
	publisher EventPublisher
	audit     AuditRecorder
	events    EventRecorder
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

// Option customises the Service.
type Option func(*Service)

// WithAudit records password resets in the audit trail.
func WithAudit(a AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// WithEventRecorder counts outcomes of every flow.
func WithEventRecorder(r EventRecorder) Option {
	return func(s *Service) { s.events = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the auth service.
func NewService(repo Repository, hasher PasswordHasher, signer TokenSigner, revoker Revoker, publisher EventPublisher, logger *slog.Logger, cfg Config, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RecoveryTokenTTL <= 0 {
		cfg.RecoveryTokenTTL = defaultRecoveryTokenTTL
	}
	s := &Service{
		repo:      repo,
		hasher:    hasher,
		signer:    signer,
		revoker:   revoker,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates credentials and issues a token for the default tenant.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	session, err := s.login(ctx, strings.TrimSpace(username), password)
	s.record(eventLogin, err)
	return session, err
}

func (s *Service) login(ctx context.Context, username, password string) (Session, error) {
	acc, err := s.repo.FindAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Session{}, shared.Unauthorized(msgInvalidCredentials)
		}
		return Session{}, err
	}
	if !s.hasher.Compare(password, acc.PasswordHash) {
		return Session{}, shared.Unauthorized(msgInvalidCredentials)
	}
	tenantID, err := s.repo.FindDefaultTenant(ctx, acc.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Session{}, shared.Unauthorized(msgNoDefaultTenant)
		}
		return Session{}, err
	}
	return s.issue(acc.ID, tenantID)
}

// SwitchTenant issues a token scoped to tenantID without changing the default tenant.
func (s *Service) SwitchTenant(ctx context.Context, userID, tenantID string) (Session, error) {
	session, err := s.switchTenant(ctx, userID, tenantID)
	s.record(eventSwitchTenant, err)
	return session, err
}

func (s *Service) switchTenant(ctx context.Context, userID, tenantID string) (Session, error) {
	ok, err := s.repo.HasTenant(ctx, userID, tenantID)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, shared.Forbidden(msgTenantAccessDenied)
	}
	return s.issue(userID, tenantID)
}

func (s *Service) issue(userID, tenantID string) (Session, error) {
	token, expiresAt, err := s.signer.Sign(TokenPayload{UserID: userID, TenantID: tenantID})
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: token, TokenType: tokenTypeBearer, TenantID: tenantID, ExpiresAt: expiresAt}, nil
}

// Logout revokes the token identified by principal until it expires.
func (s *Service) Logout(ctx context.Context, principal *shared.Principal) error {
	if principal == nil {
		return shared.Unauthorized("No authentication token provided")
	}
	var err error
	if s.revoker != nil {
		err = s.revoker.Revoke(ctx, principal.TokenID, principal.ExpiresAt)
	}
	s.record(eventLogout, err)
	return err
}

// RequestRecovery replaces any outstanding recovery token of the user and publishes a new one.
func (s *Service) RequestRecovery(ctx context.Context, email string) (RecoveryToken, error) {
	token, err := s.requestRecovery(ctx, strings.TrimSpace(email))
	s.record(eventRecoveryRequested, err)
	return token, err
}

func (s *Service) requestRecovery(ctx context.Context, email string) (RecoveryToken, error) {
	acc, err := s.repo.FindAccountByUsername(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return RecoveryToken{}, shared.NotFound(msgUserNotFound)
		}
		return RecoveryToken{}, err
	}

	now := s.now().UTC()
	token := RecoveryToken{
		ID:        uuid.NewString(),
		Token:     uuid.NewString(),
		UserID:    acc.ID,
		ExpiresAt: now.Add(s.cfg.RecoveryTokenTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockAccount(ctx, acc.ID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.NotFound(msgUserNotFound)
			}
			return err
		}
		if err := tx.InvalidateUserTokens(ctx, acc.ID); err != nil {
			return err
		}
		return tx.CreateRecoveryToken(ctx, token)
	})
	if err != nil {
		return RecoveryToken{}, err
	}

	if s.publisher != nil {
		event := PasswordRecoveryRequested{Email: acc.Username, Token: token.Token, ExpiresAt: token.ExpiresAt}
		if err := s.publisher.PublishPasswordRecovery(ctx, event); err != nil {
			return RecoveryToken{}, err
		}
	}
	return token, nil
}

// ResetPassword consumes a recovery token and stores the new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	var userID string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rt, err := tx.FindRecoveryTokenForUpdate(ctx, token)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.BadRequest(msgInvalidRecoveryToken)
			}
			return err
		}
		if rt.IsUsed {
			return shared.BadRequest(msgRecoveryTokenUsed)
		}
		if !s.now().Before(rt.ExpiresAt) {
			return shared.BadRequest(msgRecoveryTokenExpired)
		}
		hashed, err := s.hasher.Hash(newPassword)
		if err != nil {
			return err
		}
		if err := tx.UpdatePassword(ctx, rt.UserID, hashed); err != nil {
			return err
		}
		userID = rt.UserID
		return tx.MarkTokenUsed(ctx, rt.ID)
	})
	s.record(eventPasswordReset, err)
	if err != nil {
		return err
	}
	if s.audit != nil {
		entry := shared.AuditLog{ActorID: userID, Action: "password.reset", Entity: "user", EntityID: userID}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Warn("audit password reset", slog.String("user_id", userID), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) record(event string, err error) {
	if s.events == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	s.events.AuthEvent(event, outcome)
}
