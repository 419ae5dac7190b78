package auth

import (
	"context"

	"github.com/stake-plus/trustink/src/apierr"
	"github.com/stake-plus/trustink/src/types"
	"go.uber.org/zap"
)

// SeedAccount is a demo account provisioned on an empty database.
type SeedAccount struct {
	Name             string
	Email            string
	Password         string
	Role             types.Role
	TrustScore       int
	IdentityVerified bool
}

var DemoAccounts = []SeedAccount{
	{Name: "Admin User", Email: "admin@trustink.local", Password: "admin12345", Role: types.RoleAdmin, TrustScore: 100, IdentityVerified: true},
	{Name: "Content Reviewer", Email: "reviewer@trustink.local", Password: "review12345", Role: types.RoleReviewer, TrustScore: 85},
	{Name: "Demo Creator", Email: "creator@trustink.local", Password: "creator12345", Role: types.RoleCreator, TrustScore: 50},
}

// Seed creates accounts only when the user table is empty and reports how
// many were created.
func (s *Service) Seed(ctx context.Context, accounts []SeedAccount) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&types.User{}).Count(&n).Error; err != nil {
		return 0, apierr.Internal(err)
	}
	if n > 0 {
		s.log.Info("Users exist, skipping seed", zap.Int64("users", n))
		return 0, nil
	}
	for _, a := range accounts {
		if _, err := s.CreateUser(ctx, a.Name, a.Email, a.Password, a.Role, a.TrustScore, a.IdentityVerified); err != nil {
			return 0, err
		}
		s.log.Info("Seeded account", zap.String("email", a.Email), zap.String("role", string(a.Role)))
	}
	return len(accounts), nil
}
