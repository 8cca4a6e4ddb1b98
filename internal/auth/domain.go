package auth

import "time"

// EventPasswordRecoveryRequested names the event emitted when a recovery token is issued.
const EventPasswordRecoveryRequested = "auth.password.recovery.requested"

// Account is the credential view of a user.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
}

// Session is a signed token scoped to one tenant.
type Session struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	TenantID    string    `json:"tenantId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// TokenPayload is the application data carried inside a session token.
type TokenPayload struct {
	UserID   string
	TenantID string
}

// RecoveryToken is a single-use password reset credential.
type RecoveryToken struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	IsUsed    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PasswordRecoveryRequested is published after a recovery token is stored.
type PasswordRecoveryRequested struct {
	Email     string
	Token     string
	ExpiresAt time.Time
}
