package tenants

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// AuditRecorder persists tenant lifecycle events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements the tenant directory use cases.
type Service struct {
	repo   Repository
	audit  AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the tenant service. audit may be nil.
func NewService(repo Repository, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// CreateTenant stores a new tenant with a slug derived from its name.
func (s *Service) CreateTenant(ctx context.Context, in CreateInput) (Tenant, error) {
	name := strings.TrimSpace(in.Name)
	ts := s.now().UTC()
	tenant := Tenant{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        shared.Slugify(name),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if tenant.Slug == "" {
		return Tenant{}, shared.BadRequest("Tenant name must contain letters or digits")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureUnique(ctx, tx, tenant); err != nil {
			return err
		}
		return tx.Create(ctx, tenant)
	})
	if err != nil {
		return Tenant{}, mapUniqueViolation(err, tenant)
	}
	s.record(ctx, "tenant.created", tenant)
	return tenant, nil
}

// UpdateTenant changes name and description; the slug follows the name.
func (s *Service) UpdateTenant(ctx context.Context, id string, in UpdateInput) (Tenant, error) {
	if in.Name == nil && in.Description == nil {
		return Tenant{}, shared.BadRequest("At least one field must be provided for update")
	}
	var updated Tenant
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.NotFound("Tenant with ID %s not found", id)
			}
			return err
		}
		updated = current
		if in.Name != nil {
			updated.Name = strings.TrimSpace(*in.Name)
			updated.Slug = shared.Slugify(updated.Name)
			if updated.Slug == "" {
				return shared.BadRequest("Tenant name must contain letters or digits")
			}
		}
		if in.Description != nil {
			updated.Description = strings.TrimSpace(*in.Description)
		}
		if err := ensureUnique(ctx, tx, updated); err != nil {
			return err
		}
		updated.UpdatedAt = s.now().UTC()
		return tx.Update(ctx, updated)
	})
	if err != nil {
		return Tenant{}, mapUniqueViolation(err, updated)
	}
	s.record(ctx, "tenant.updated", updated)
	return updated, nil
}

// GetTenant returns a tenant by id.
func (s *Service) GetTenant(ctx context.Context, id string) (Tenant, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Tenant{}, shared.NotFound("Tenant with ID %s not found", id)
		}
		return Tenant{}, err
	}
	return t, nil
}

// ListTenants returns one page of tenants.
func (s *Service) ListTenants(ctx context.Context, c shared.Criteria) (shared.Page[Tenant], error) {
	if err := c.Validate(ListRules); err != nil {
		return shared.Page[Tenant]{}, err
	}
	items, total, err := s.repo.List(ctx, c)
	if err != nil {
		return shared.Page[Tenant]{}, err
	}
	return shared.NewPage(items, c, total), nil
}

// ensureUnique rejects a name or slug owned by a different tenant.
func ensureUnique(ctx context.Context, tx TxRepository, t Tenant) error {
	if other, err := tx.FindByName(ctx, t.Name); err == nil && other.ID != t.ID {
		return shared.Conflict("Tenant with name '%s' already exists", t.Name)
	} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	if other, err := tx.FindBySlug(ctx, t.Slug); err == nil && other.ID != t.ID {
		return shared.Conflict("Tenant with slug '%s' already exists", t.Slug)
	} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	return nil
}

// mapUniqueViolation covers the race where a concurrent writer commits the same name first.
func mapUniqueViolation(err error, t Tenant) error {
	if db.IsUniqueViolation(err) {
		return shared.WithCause(shared.Conflict("Tenant with name '%s' already exists", t.Name), err)
	}
	return err
}

func (s *Service) record(ctx context.Context, action string, t Tenant) {
	if s.audit == nil {
		return
	}
	actor, tenantID := shared.AuditActor(ctx)
	entry := shared.AuditLog{
		ActorID:  actor,
		TenantID: tenantID,
		Action:   action,
		Entity:   "tenant",
		EntityID: t.ID,
		Meta:     map[string]any{"name": t.Name, "slug": t.Slug},
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit tenant", slog.String("action", action), slog.Any("error", err))
	}
}
