package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"live-survey-service/internal/domain"
	"live-survey-service/internal/identity"
	"live-survey-service/internal/keypath"
)

// AdminService is the admin directory keyed by escaped email.
type AdminService struct {
	*env
}

func adminKey(email string) (string, error) {
	key := identity.EmailKey(email)
	if key == "" || !keypath.ValidSegment(key) {
		return "", domain.ErrInvalidUser
	}
	return key, nil
}

// IsAdmin reports whether email has an admin entry of any role.
func (s *AdminService) IsAdmin(ctx context.Context, email string) (bool, error) {
	info, err := s.Info(ctx, email)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// Info returns the admin entry for email, nil when there is none.
func (s *AdminService) Info(ctx context.Context, email string) (*domain.Admin, error) {
	if strings.TrimSpace(email) == "" {
		return nil, nil
	}
	key, err := adminKey(email)
	if err != nil {
		return nil, err
	}
	v, err := s.store.Read(ctx, adminPath(key))
	if err != nil {
		return nil, fmt.Errorf("read admin: %w", err)
	}
	return decodeAdmin(key, v)
}

func decodeAdmin(key string, v any) (*domain.Admin, error) {
	if v == nil {
		return nil, nil
	}
	var r adminRecord
	if err := decode(v, &r); err != nil {
		return nil, err
	}
	return &domain.Admin{
		EmailKey: key,
		Role:     domain.Role(r.Role),
		Name:     r.Name,
		AddedAt:  fromMillis(r.AddedAt),
	}, nil
}

func (s *AdminService) requireSuperadmin(ctx context.Context, actor string) error {
	info, err := s.Info(ctx, actor)
	if err != nil {
		return err
	}
	if info == nil || info.Role != domain.RoleSuperadmin {
		s.log.Warn("admin change refused", zap.String("actor", identity.EmailKey(actor)))
		return domain.ErrUnauthorized
	}
	return nil
}

// Add grants role to email. Only a superadmin actor may do this.
func (s *AdminService) Add(ctx context.Context, actor, email, name string, role domain.Role) error {
	if role == "" {
		role = domain.RoleAdmin
	}
	if role != domain.RoleAdmin && role != domain.RoleSuperadmin {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	if err := s.requireSuperadmin(ctx, actor); err != nil {
		return err
	}
	key, err := adminKey(email)
	if err != nil {
		return err
	}
	record := adminRecord{Role: string(role), Name: strings.TrimSpace(name), AddedAt: millis(s.now())}
	if err := s.store.Write(ctx, adminPath(key), record); err != nil {
		return fmt.Errorf("add admin: %w", err)
	}
	s.log.Info("admin added", zap.String("admin", key), zap.String("role", string(role)))
	return nil
}

// Remove revokes email's admin entry. Only a superadmin actor may do this.
func (s *AdminService) Remove(ctx context.Context, actor, email string) error {
	if err := s.requireSuperadmin(ctx, actor); err != nil {
		return err
	}
	key, err := adminKey(email)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, adminPath(key)); err != nil {
		return fmt.Errorf("remove admin: %w", err)
	}
	s.log.Info("admin removed", zap.String("admin", key))
	return nil
}

// List returns the whole directory ordered by key.
func (s *AdminService) List(ctx context.Context) ([]domain.Admin, error) {
	v, err := s.store.Read(ctx, rootAdmins)
	if err != nil {
		return nil, fmt.Errorf("read admins: %w", err)
	}
	all := children(v)
	out := make([]domain.Admin, 0, len(all))
	for _, key := range keypath.SortedKeys(v) {
		a, err := decodeAdmin(key, all[key])
		if err != nil {
			s.log.Warn("skipping malformed admin", zap.String("admin", key), zap.Error(err))
			continue
		}
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

// Bootstrap seeds a superadmin without an actor check. It never overwrites an
// existing entry and reports whether it wrote one.
func (s *AdminService) Bootstrap(ctx context.Context, email, name string) (bool, error) {
	key, err := adminKey(email)
	if err != nil {
		return false, err
	}
	record := adminRecord{Role: string(domain.RoleSuperadmin), Name: strings.TrimSpace(name), AddedAt: millis(s.now())}
	created, err := s.store.Create(ctx, adminPath(key), record)
	if err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		s.log.Info("superadmin bootstrapped", zap.String("admin", key))
	}
	return created, nil
}
