// Package auth manages accounts, bearer sessions and third-party API keys.
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stake-plus/trustink/src/apierr"
	"github.com/stake-plus/trustink/src/config"
	"github.com/stake-plus/trustink/src/logging"
	"github.com/stake-plus/trustink/src/sanitize"
	"github.com/stake-plus/trustink/src/trust"
	"github.com/stake-plus/trustink/src/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt input limit
	maxNameLength     = 128
	listUsersLimit    = 200
)

type Service struct {
	db        *gorm.DB
	tokens    *Tokens
	trust     *trust.Engine
	cfg       config.AuthConfig
	sanitizer *sanitize.Policy
	log       *zap.Logger
	now       func() time.Time
}

func NewService(db *gorm.DB, cfg config.AuthConfig, engine *trust.Engine, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		tokens:    NewTokens(cfg.JWTSecret, cfg.TokenTTL),
		trust:     engine,
		cfg:       cfg,
		sanitizer: sanitize.New(),
		log:       logging.Component(logger, "auth"),
		now:       time.Now,
	}
}

// UserView is a user as returned to clients, with its derived trust level.
type UserView struct {
	types.User
	TrustLevel types.TrustLevel `json:"trust_level"`
}

func (s *Service) View(u *types.User) UserView {
	return UserView{User: *u, TrustLevel: s.trust.Level(u.TrustScore)}
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserView  `json:"user"`
}

type RegisterRequest struct {
	Name     string     `json:"name"     binding:"required"`
	Email    string     `json:"email"    binding:"required"`
	Password string     `json:"password" binding:"required"`
	Role     types.Role `json:"role"`
}

// Register creates a creator account. Reviewer and admin accounts are
// provisioned by operators, never self-assigned.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	name := s.sanitizer.Text(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, apierr.Validation("name must be 1 to %d characters", maxNameLength)
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	if req.Role != "" && req.Role != types.RoleCreator {
		return nil, apierr.Validation("only creator accounts can self-register")
	}

	user, err := s.CreateUser(ctx, name, email, req.Password, types.RoleCreator, s.trust.Config().DefaultScore, false)
	if err != nil {
		return nil, err
	}
	s.log.Info("User registered", zap.String("user_id", user.ID))
	return s.session(user)
}

// CreateUser inserts an active account. Duplicate emails are a conflict.
func (s *Service) CreateUser(ctx context.Context, name, email, password string, role types.Role, score int, identityVerified bool) (*types.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	user := &types.User{
		ID:               uuid.NewString(),
		Name:             name,
		Email:            email,
		PasswordHash:     string(hash),
		Role:             role,
		Status:           types.UserActive,
		TrustScore:       trust.Clamp(score),
		IdentityVerified: identityVerified,
		CreatedAt:        s.now().UTC(),
	}
	// The unique email index settles concurrent registrations.
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apierr.Conflict("email already registered")
		}
		return nil, apierr.Internal(err)
	}
	return user, nil
}

type LoginRequest struct {
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	var user types.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, apierr.Unauthorized("invalid credentials")
	}
	if user.Status != types.UserActive {
		return nil, apierr.Forbidden("account %s", user.Status)
	}
	return s.session(&user)
}

// Authenticate resolves a bearer token to a current, active user.
func (s *Service) Authenticate(ctx context.Context, raw string) (*types.User, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, apierr.Unauthorized("invalid or expired token")
	}
	var user types.User
	err = s.db.WithContext(ctx).Where("id = ?", claims.Subject).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.Unauthorized("invalid or expired token")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if user.Status != types.UserActive {
		return nil, apierr.Forbidden("account %s", user.Status)
	}
	return &user, nil
}

// User loads a user by id.
func (s *Service) User(ctx context.Context, id string) (*types.User, error) {
	var user types.User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("user not found")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &user, nil
}

func (s *Service) session(u *types.User) (*Session, error) {
	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &Session{Token: token, ExpiresAt: exp, User: s.View(u)}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]UserView, error) {
	var users []types.User
	if err := s.db.WithContext(ctx).Order("created_at ASC").Limit(listUsersLimit).Find(&users).Error; err != nil {
		return nil, apierr.Internal(err)
	}
	out := make([]UserView, 0, len(users))
	for i := range users {
		out = append(out, s.View(&users[i]))
	}
	return out, nil
}

// SetStatus changes another user's account status.
func (s *Service) SetStatus(ctx context.Context, admin *types.User, userID string, status types.UserStatus) (*UserView, error) {
	if admin == nil || admin.Role != types.RoleAdmin {
		return nil, apierr.Forbidden("admin access required")
	}
	if !status.Valid() {
		return nil, apierr.Validation("status must be active, suspended or banned")
	}
	if userID == admin.ID {
		return nil, apierr.Validation("cannot change your own account status")
	}
	var user types.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&types.User{}).Where("id = ?", userID).Update("status", status).Error; err != nil {
			return apierr.Internal(err)
		}
		err := tx.Where("id = ?", userID).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.NotFound("user not found")
		}
		if err != nil {
			return apierr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("User status changed",
		zap.String("admin_id", admin.ID),
		zap.String("user_id", userID),
		zap.String("status", string(status)),
	)
	v := s.View(&user)
	return &v, nil
}

// SetTrust is the admin absolute trust override.
func (s *Service) SetTrust(ctx context.Context, admin *types.User, userID string, score int) (trust.Result, error) {
	if admin == nil || admin.Role != types.RoleAdmin {
		return trust.Result{}, apierr.Forbidden("admin access required")
	}
	res, err := s.trust.Set(ctx, userID, score)
	if err != nil {
		return res, err
	}
	s.log.Info("Trust score set",
		zap.String("admin_id", admin.ID),
		zap.String("user_id", userID),
		zap.Int("score", res.Score),
	)
	return res, nil
}

type AdminStats struct {
	TotalUsers        int64 `json:"total_users"`
	Creators          int64 `json:"creators"`
	Reviewers         int64 `json:"reviewers"`
	Suspended         int64 `json:"suspended"`
	Banned            int64 `json:"banned"`
	TotalSubmissions  int64 `json:"total_submissions"`
	TotalCertificates int64 `json:"total_certificates"`
	PendingReview     int64 `json:"pending_review"`
	APIKeysActive     int64 `json:"api_keys_active"`
}

func (s *Service) AdminStats(ctx context.Context) (*AdminStats, error) {
	db := s.db.WithContext(ctx)
	var st AdminStats
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&st.TotalUsers, db.Model(&types.User{})},
		{&st.Creators, db.Model(&types.User{}).Where("role = ?", types.RoleCreator)},
		{&st.Reviewers, db.Model(&types.User{}).Where("role = ?", types.RoleReviewer)},
		{&st.Suspended, db.Model(&types.User{}).Where("status = ?", types.UserSuspended)},
		{&st.Banned, db.Model(&types.User{}).Where("status = ?", types.UserBanned)},
		{&st.TotalSubmissions, db.Model(&types.Submission{})},
		{&st.TotalCertificates, db.Model(&types.Certificate{}).Where("status = ?", types.CertificateActive)},
		{&st.PendingReview, db.Model(&types.Submission{}).Where("status IN ?", types.OpenStatuses)},
		{&st.APIKeysActive, db.Model(&types.APIKey{}).Where("active = ?", true)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, apierr.Internal(err)
		}
	}
	return &st, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" || !strings.Contains(addr.Address, ".") {
		return "", apierr.Validation("invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLength || len(pw) > maxPasswordLength {
		return apierr.Validation("password must be %d to %d bytes", minPasswordLength, maxPasswordLength)
	}
	return nil
}
