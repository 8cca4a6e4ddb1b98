package users

import "time"

// User is a stored identity. The password hash never leaves the package in JSON.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TenantMembership is one row of the user-tenant ledger joined with its tenant.
type TenantMembership struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	IsDefault bool   `json:"isDefault"`
}

// UserDetail is a user with its ledger relations.
type UserDetail struct {
	User
	Roles       []string           `json:"roles"`
	Permissions []string           `json:"permissions"`
	Tenants     []TenantMembership `json:"tenants"`
}

// Me is the profile of the authenticated caller.
type Me struct {
	User        User               `json:"user"`
	Roles       []string           `json:"roles"`
	Permissions []string           `json:"permissions"`
	Tenants     []TenantMembership `json:"tenants"`
}

// CreateUserInput provisions a user with tenants and the default role.
type CreateUserInput struct {
	Username        string   `json:"username" validate:"required,min=3,max=100"`
	Password        string   `json:"password" validate:"required,min=6"`
	TenantIDs       []string `json:"tenantIds" validate:"required,min=1,dive,uuid"`
	DefaultTenantID string   `json:"defaultTenantId" validate:"required,uuid"`
}

// TenantChanges describes membership deltas applied by UpdateUser.
type TenantChanges struct {
	AddTenantIDs    []string `json:"addTenantIds" validate:"omitempty,dive,uuid"`
	RemoveTenantIDs []string `json:"removeTenantIds" validate:"omitempty,dive,uuid"`
	DefaultTenantID *string  `json:"defaultTenantId" validate:"omitempty,uuid"`
}

func (c *TenantChanges) empty() bool {
	return c == nil || (len(c.AddTenantIDs) == 0 && len(c.RemoveTenantIDs) == 0 && c.DefaultTenantID == nil)
}

// UpdateUserInput carries optional user changes.
type UpdateUserInput struct {
	Username      *string        `json:"username" validate:"omitempty,min=3,max=100"`
	Password      *string        `json:"password" validate:"omitempty,min=6"`
	TenantChanges *TenantChanges `json:"tenantChanges" validate:"omitempty"`
}

// AssignTenantInput adds a tenant membership.
type AssignTenantInput struct {
	TenantID     string `json:"tenantId" validate:"required,uuid"`
	SetAsDefault bool   `json:"setAsDefault"`
}

// SuperUserInput configures CreateSuperUser. Empty fields take defaults.
type SuperUserInput struct {
	Username string
	Password string
}

// SuperUserResult reports the outcome of CreateSuperUser.
type SuperUserResult struct {
	UserID            string
	Username          string
	TenantID          string
	Created           bool
	GeneratedPassword string
}
