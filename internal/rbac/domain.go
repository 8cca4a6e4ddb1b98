package rbac

import "time"

// Role represents a named permission grouping.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Permission represents an atomic capability.
type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SyncReport summarises a synchronization run.
type SyncReport struct {
	PermissionsCreated int
	RolesCreated       int
	RolesUpdated       int
	FailedRoles        []string
}
