package users

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

const (
	defaultSuperUsername = "superadmin@node.com"
	systemTenantName     = "System"
	systemTenantSlug     = "system"
	generatedPasswordLen = 12
	passwordAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*()"
)

// PasswordHasher hashes plaintext passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// Permissions resolves and invalidates effective permission sets.
type Permissions interface {
	EffectivePermissions(ctx context.Context, userID string) ([]string, error)
	Invalidate(userID string)
}

// AuditRecorder persists user lifecycle events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements user provisioning and the user ledgers.
type Service struct {
	repo   Repository
	hasher PasswordHasher
	perms  Permissions
	audit  AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, hasher PasswordHasher, perms Permissions, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, hasher: hasher, perms: perms, audit: audit, logger: logger, now: time.Now}
}

// CreateUser provisions a user with its tenants and the default role in one transaction.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	username := strings.TrimSpace(in.Username)
	tenantIDs := unique(in.TenantIDs)
	if len(tenantIDs) == 0 {
		return User{}, shared.BadRequest("At least one tenant is required")
	}

	ts := s.now().UTC()
	user := User{ID: uuid.NewString(), Username: username, CreatedAt: ts, UpdatedAt: ts}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureUsernameFree(ctx, tx, username, ""); err != nil {
			return err
		}
		if err := ensureTenantsExist(ctx, tx, tenantIDs); err != nil {
			return err
		}
		if !slices.Contains(tenantIDs, in.DefaultTenantID) {
			return shared.BadRequest("Default tenant must be one of the assigned tenants")
		}

		hashed, err := s.hasher.Hash(in.Password)
		if err != nil {
			return fmt.Errorf("users: hash password: %w", err)
		}
		user.PasswordHash = hashed
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		for _, tenantID := range tenantIDs {
			if err := tx.AddMembership(ctx, user.ID, tenantID, tenantID == in.DefaultTenantID); err != nil {
				return err
			}
		}

		roleID, err := tx.FindRoleID(ctx, rbac.RoleUser)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.BadRequest("Default role '%s' not found. Make sure to run the sync:roles command first", rbac.RoleUser)
			}
			return err
		}
		_, err = tx.AddRole(ctx, user.ID, roleID)
		return err
	})
	if err != nil {
		return User{}, usernameConflict(err, username)
	}
	s.record(ctx, "user.created", user.ID, map[string]any{"username": username, "tenantIds": tenantIDs})
	return user, nil
}

// UpdateUser applies username, password and tenant membership changes atomically.
// All checks run before the first write.
func (s *Service) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (User, error) {
	if in.Username == nil && in.Password == nil && in.TenantChanges.empty() {
		return User{}, shared.BadRequest("At least one field must be provided for update")
	}

	var user User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := lockUser(ctx, tx, id)
		if err != nil {
			return err
		}
		user = current

		if in.Username != nil {
			username := strings.TrimSpace(*in.Username)
			if username != current.Username {
				if err := ensureUsernameFree(ctx, tx, username, id); err != nil {
					return err
				}
				user.Username = username
			}
		}

		var plan tenantPlan
		if !in.TenantChanges.empty() {
			if plan, err = planTenantChanges(ctx, tx, id, in.TenantChanges); err != nil {
				return err
			}
		}

		if in.Password != nil {
			hashed, err := s.hasher.Hash(*in.Password)
			if err != nil {
				return fmt.Errorf("users: hash password: %w", err)
			}
			user.PasswordHash = hashed
		}
		user.UpdatedAt = s.now().UTC()
		if err := tx.UpdateUser(ctx, user); err != nil {
			return err
		}
		return plan.apply(ctx, tx, id)
	})
	if err != nil {
		return User{}, usernameConflict(err, user.Username)
	}

	meta := map[string]any{"username": user.Username, "passwordChanged": in.Password != nil}
	if c := in.TenantChanges; !c.empty() {
		meta["addTenantIds"] = c.AddTenantIDs
		meta["removeTenantIds"] = c.RemoveTenantIDs
	}
	s.record(ctx, "user.updated", id, meta)
	return user, nil
}

// tenantPlan is a validated set of membership changes.
type tenantPlan struct {
	add           []string
	remove        []string
	defaultTenant string
}

func planTenantChanges(ctx context.Context, tx TxRepository, userID string, c *TenantChanges) (tenantPlan, error) {
	plan := tenantPlan{add: unique(c.AddTenantIDs), remove: unique(c.RemoveTenantIDs)}
	current, err := tx.TenantIDs(ctx, userID)
	if err != nil {
		return tenantPlan{}, err
	}

	if len(plan.add) > 0 {
		if err := ensureTenantsExist(ctx, tx, plan.add); err != nil {
			return tenantPlan{}, err
		}
		for _, tenantID := range plan.add {
			if slices.Contains(current, tenantID) {
				return tenantPlan{}, shared.Conflict("User is already assigned to tenant with ID %s", tenantID)
			}
		}
	}
	for _, tenantID := range plan.remove {
		if !slices.Contains(current, tenantID) {
			return tenantPlan{}, shared.BadRequest("User is not assigned to tenant with ID %s", tenantID)
		}
	}
	if c.DefaultTenantID != nil {
		d := *c.DefaultTenantID
		reachable := slices.Contains(current, d) || slices.Contains(plan.add, d)
		if !reachable || slices.Contains(plan.remove, d) {
			return tenantPlan{}, shared.BadRequest("Cannot set default tenant to %s as user does not have access to this tenant", d)
		}
		plan.defaultTenant = d
	}
	if len(current)-len(plan.remove)+len(plan.add) <= 0 {
		return tenantPlan{}, shared.BadRequest("User must have at least one tenant")
	}
	return plan, nil
}

func (p tenantPlan) apply(ctx context.Context, tx TxRepository, userID string) error {
	for _, tenantID := range p.add {
		if err := tx.AddMembership(ctx, userID, tenantID, false); err != nil {
			return err
		}
	}
	if len(p.remove) > 0 {
		if err := tx.RemoveMemberships(ctx, userID, p.remove); err != nil {
			return err
		}
	}
	if p.defaultTenant != "" {
		return swapDefault(ctx, tx, userID, p.defaultTenant)
	}
	return ensureDefault(ctx, tx, userID)
}

// AssignUserToTenant adds a membership, optionally making it the default.
func (s *Service) AssignUserToTenant(ctx context.Context, userID string, in AssignTenantInput) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		found, err := tx.ExistingTenantIDs(ctx, []string{in.TenantID})
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return shared.NotFound("Tenant with ID %s not found", in.TenantID)
		}
		current, err := tx.TenantIDs(ctx, userID)
		if err != nil {
			return err
		}
		if slices.Contains(current, in.TenantID) {
			return shared.Conflict("User is already assigned to this tenant")
		}
		// A first membership is always the default.
		if len(current) == 0 {
			return tx.AddMembership(ctx, userID, in.TenantID, true)
		}
		if err := tx.AddMembership(ctx, userID, in.TenantID, false); err != nil {
			return err
		}
		if in.SetAsDefault {
			return swapDefault(ctx, tx, userID, in.TenantID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, "user.tenant.assigned", userID, map[string]any{"tenantId": in.TenantID, "setAsDefault": in.SetAsDefault})
	return nil
}

// SetDefaultTenant moves the default flag to an existing membership.
func (s *Service) SetDefaultTenant(ctx context.Context, userID, tenantID string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		current, err := tx.TenantIDs(ctx, userID)
		if err != nil {
			return err
		}
		if !slices.Contains(current, tenantID) {
			return shared.NotFound("User is not assigned to this tenant")
		}
		return swapDefault(ctx, tx, userID, tenantID)
	})
}

// swapDefault clears every default flag of the user and sets the new one in the caller's transaction.
func swapDefault(ctx context.Context, tx TxRepository, userID, tenantID string) error {
	if err := tx.ClearDefaultTenant(ctx, userID); err != nil {
		return err
	}
	if err := tx.MarkDefaultTenant(ctx, userID, tenantID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("User is not assigned to this tenant")
		}
		return err
	}
	return nil
}

// ensureDefault promotes the oldest membership when the default was removed.
func ensureDefault(ctx context.Context, tx TxRepository, userID string) error {
	_, err := tx.DefaultTenantID(ctx, userID)
	if err == nil || !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	remaining, err := tx.TenantIDs(ctx, userID)
	if err != nil || len(remaining) == 0 {
		return err
	}
	return tx.MarkDefaultTenant(ctx, userID, remaining[0])
}

// GetUser returns a user with roles, direct permissions and tenants.
func (s *Service) GetUser(ctx context.Context, id string) (UserDetail, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return UserDetail{}, err
	}
	detail := UserDetail{User: user}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		detail.Roles, err = s.repo.RoleNames(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		detail.Permissions, err = s.repo.DirectPermissions(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		detail.Tenants, err = s.repo.Memberships(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return UserDetail{}, err
	}
	detail.Roles = nonNil(detail.Roles)
	detail.Permissions = nonNil(detail.Permissions)
	detail.Tenants = nonNil(detail.Tenants)
	return detail, nil
}

// GetMe returns the caller's profile with the effective permission set.
func (s *Service) GetMe(ctx context.Context, userID string) (Me, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return Me{}, err
	}
	me := Me{User: user}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		me.Roles, err = s.repo.RoleNames(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		me.Permissions, err = s.perms.EffectivePermissions(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		me.Tenants, err = s.repo.Memberships(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Me{}, err
	}
	me.Roles = nonNil(me.Roles)
	me.Permissions = slices.Sorted(slices.Values(nonNil(me.Permissions)))
	me.Tenants = nonNil(me.Tenants)
	return me, nil
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, c shared.Criteria) (shared.Page[User], error) {
	if err := c.Validate(ListRules); err != nil {
		return shared.Page[User]{}, err
	}
	items, total, err := s.repo.List(ctx, c)
	if err != nil {
		return shared.Page[User]{}, err
	}
	return shared.NewPage(items, c, total), nil
}

// CreateSuperUser provisions a super admin in the system tenant. It is a no-op
// when the username already exists.
func (s *Service) CreateSuperUser(ctx context.Context, in SuperUserInput) (SuperUserResult, error) {
	res := SuperUserResult{Username: strings.TrimSpace(in.Username)}
	if res.Username == "" {
		res.Username = defaultSuperUsername
	}
	password := in.Password
	if password == "" {
		generated, err := generatePassword(generatedPasswordLen)
		if err != nil {
			return SuperUserResult{}, err
		}
		password = generated
		res.GeneratedPassword = generated
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		roleID, err := tx.FindRoleID(ctx, rbac.RoleSuperAdmin)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.BadRequest("Super admin role not found. Make sure to run the sync:roles command first")
			}
			return err
		}

		res.TenantID, err = tx.FindTenantBySlug(ctx, systemTenantSlug)
		if errors.Is(err, shared.ErrNotFound) {
			res.TenantID = uuid.NewString()
			err = tx.CreateTenant(ctx, res.TenantID, systemTenantName, systemTenantSlug, "System tenant for super administrators")
		}
		if err != nil {
			return err
		}

		existing, err := tx.FindByUsername(ctx, res.Username)
		if err == nil {
			res.UserID = existing.ID
			return nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}

		hashed, err := s.hasher.Hash(password)
		if err != nil {
			return fmt.Errorf("users: hash password: %w", err)
		}
		ts := s.now().UTC()
		user := User{ID: uuid.NewString(), Username: res.Username, PasswordHash: hashed, CreatedAt: ts, UpdatedAt: ts}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		if err := tx.AddMembership(ctx, user.ID, res.TenantID, true); err != nil {
			return err
		}
		if _, err := tx.AddRole(ctx, user.ID, roleID); err != nil {
			return err
		}
		res.UserID = user.ID
		res.Created = true
		return nil
	})
	if err != nil {
		return SuperUserResult{}, err
	}

	if !res.Created {
		s.logger.Info("super user already exists", slog.String("username", res.Username))
		res.GeneratedPassword = ""
		return res, nil
	}
	if res.GeneratedPassword != "" {
		s.logger.Info("super user created, change this password after the first login",
			slog.String("username", res.Username), slog.String("password", res.GeneratedPassword))
	}
	s.record(ctx, "user.created", res.UserID, map[string]any{"username": res.Username, "role": rbac.RoleSuperAdmin})
	return res, nil
}

// AssignRole adds a role to the user.
func (s *Service) AssignRole(ctx context.Context, userID, roleName string) error {
	return s.changeLedger(ctx, userID, func(ctx context.Context, tx TxRepository) error {
		roleID, err := findNamed(ctx, tx.FindRoleID, "Role", roleName)
		if err != nil {
			return err
		}
		added, err := tx.AddRole(ctx, userID, roleID)
		if err == nil && !added {
			err = shared.Conflict("User already has role '%s'", roleName)
		}
		return err
	})
}

// RemoveRole removes a role from the user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleName string) error {
	return s.changeLedger(ctx, userID, func(ctx context.Context, tx TxRepository) error {
		roleID, err := findNamed(ctx, tx.FindRoleID, "Role", roleName)
		if err != nil {
			return err
		}
		removed, err := tx.RemoveRole(ctx, userID, roleID)
		if err == nil && !removed {
			err = shared.NotFound("User does not have role '%s'", roleName)
		}
		return err
	})
}

// GrantPermission grants a permission directly to the user.
func (s *Service) GrantPermission(ctx context.Context, userID, permission string) error {
	return s.changeLedger(ctx, userID, func(ctx context.Context, tx TxRepository) error {
		permID, err := findNamed(ctx, tx.FindPermissionID, "Permission", permission)
		if err != nil {
			return err
		}
		added, err := tx.AddPermission(ctx, userID, permID)
		if err == nil && !added {
			err = shared.Conflict("User already has permission '%s'", permission)
		}
		return err
	})
}

// RevokePermission removes a direct permission grant.
func (s *Service) RevokePermission(ctx context.Context, userID, permission string) error {
	return s.changeLedger(ctx, userID, func(ctx context.Context, tx TxRepository) error {
		permID, err := findNamed(ctx, tx.FindPermissionID, "Permission", permission)
		if err != nil {
			return err
		}
		removed, err := tx.RemovePermission(ctx, userID, permID)
		if err == nil && !removed {
			err = shared.NotFound("User does not have permission '%s'", permission)
		}
		return err
	})
}

func (s *Service) changeLedger(ctx context.Context, userID string, fn func(context.Context, TxRepository) error) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
	if err != nil {
		return err
	}
	if s.perms != nil {
		s.perms.Invalidate(userID)
	}
	return nil
}

func findNamed(ctx context.Context, find func(context.Context, string) (string, error), kind, name string) (string, error) {
	id, err := find(ctx, name)
	if errors.Is(err, shared.ErrNotFound) {
		return "", shared.NotFound("%s '%s' not found", kind, name)
	}
	return id, err
}

func (s *Service) findUser(ctx context.Context, id string) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return User{}, shared.NotFound("User with ID %s not found", id)
		}
		return User{}, err
	}
	return user, nil
}

func lockUser(ctx context.Context, tx TxRepository, id string) (User, error) {
	if err := tx.LockUser(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return User{}, shared.NotFound("User with ID %s not found", id)
		}
		return User{}, err
	}
	return tx.FindByID(ctx, id)
}

func ensureUsernameFree(ctx context.Context, tx TxRepository, username, selfID string) error {
	existing, err := tx.FindByUsername(ctx, username)
	switch {
	case err == nil && existing.ID != selfID:
		return shared.Conflict("User with username '%s' already exists", username)
	case err != nil && !errors.Is(err, shared.ErrNotFound):
		return err
	}
	return nil
}

func ensureTenantsExist(ctx context.Context, tx TxRepository, ids []string) error {
	found, err := tx.ExistingTenantIDs(ctx, ids)
	if err != nil {
		return err
	}
	var missing []string
	for _, id := range ids {
		if !slices.Contains(found, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return shared.BadRequest("Tenants with IDs %s not found", strings.Join(missing, ", "))
	}
	return nil
}

// usernameConflict maps a unique violation raised by a concurrent insert.
func usernameConflict(err error, username string) error {
	if db.IsUniqueViolation(err) {
		return shared.WithCause(shared.Conflict("User with username '%s' already exists", username), err)
	}
	return err
}

func (s *Service) record(ctx context.Context, action, userID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor, tenantID := shared.AuditActor(ctx)
	entry := shared.AuditLog{ActorID: actor, TenantID: tenantID, Action: action, Entity: "user", EntityID: userID, Meta: meta}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit user", slog.String("action", action), slog.Any("error", err))
	}
}

func generatePassword(n int) (string, error) {
	limit := big.NewInt(int64(len(passwordAlphabet)))
	var b strings.Builder
	for range n {
		i, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("users: generate password: %w", err)
		}
		b.WriteByte(passwordAlphabet[i.Int64()])
	}
	return b.String(), nil
}

func unique(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
