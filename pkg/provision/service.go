package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatehouse/pkg/authn"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// ErrProvisioning is returned when the identity provider omits a claim this
// layer cannot work without (subject or email).
var ErrProvisioning = errors.New("provisioning failed")

// UserStore persists user records. Implementations must enforce uniqueness
// on email and on external subject. A lookup miss returns (nil, nil).
type UserStore interface {
	FindBySubject(ctx context.Context, subject string) (*UserRecord, error)
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	Create(ctx context.Context, user *UserRecord) error
	Update(ctx context.Context, user *UserRecord) error
}

// Service performs just-in-time user provisioning from validated identity
// claims
type Service struct {
	store   UserStore
	mapping RoleMapping
	logger  *observability.Logger
	now     func() time.Time
}

// NewService creates a provisioning service
func NewService(store UserStore, mapping RoleMapping, logger *observability.Logger) *Service {
	return &Service{
		store:   store,
		mapping: mapping,
		logger:  logger.WithComponent("provision"),
		now:     time.Now,
	}
}

// Provision creates or updates the local user for the given claims.
//
// Lookup goes by external subject first, falling back to email for accounts
// that predate subject tracking. Mutable attributes (display name, email,
// role) are refreshed on every login, so a role change at the provider takes
// effect on the next login rather than retroactively.
func (s *Service) Provision(ctx context.Context, claims *authn.IdentityClaims) (*UserRecord, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: identity provider returned no subject", ErrProvisioning)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: identity provider returned no email", ErrProvisioning)
	}

	user, err := s.store.FindBySubject(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("looking up user by subject: %w", err)
	}
	if user == nil {
		// First login for this subject; an account created under a prior
		// auth mechanism may still match by email.
		user, err = s.store.FindByEmail(ctx, claims.Email)
		if err != nil {
			return nil, fmt.Errorf("looking up user by email: %w", err)
		}
	}

	now := s.now()
	role := s.mapping.Resolve(claims.Groups)
	displayName := claims.DisplayName
	if displayName == "" {
		displayName = claims.Email
	}

	if user == nil {
		user = &UserRecord{
			LocalID:         uuid.New().String(),
			Email:           claims.Email,
			DisplayName:     displayName,
			Role:            role,
			ExternalSubject: claims.Subject,
			CreatedAt:       now,
			UpdatedAt:       now,
			LastLoginAt:     now,
		}
		if err := s.store.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
		s.logger.WithFields(map[string]interface{}{
			"local_id": user.LocalID,
			"role":     string(role),
		}).Info("new user provisioned")
		return user, nil
	}

	user.Email = claims.Email
	user.DisplayName = displayName
	user.Role = role
	user.ExternalSubject = claims.Subject
	user.UpdatedAt = now
	user.LastLoginAt = now

	if err := s.store.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return user, nil
}
