package submissions

import (
	"context"
	"errors"
	"time"

	"github.com/stake-plus/trustink/src/apierr"
	"github.com/stake-plus/trustink/src/certify"
	"github.com/stake-plus/trustink/src/trust"
	"github.com/stake-plus/trustink/src/types"
	"gorm.io/gorm"
)

const (
	ownListLimit        = 200
	profileCertificates = 20
)

// Dashboard serves creator-facing reads.
type Dashboard struct {
	db       *gorm.DB
	registry *certify.Registry
	trust    *trust.Engine
}

func NewDashboard(deps Deps) *Dashboard {
	return &Dashboard{db: deps.DB, registry: deps.Registry, trust: deps.Trust}
}

// ListOwn returns the caller's submissions, newest first.
func (d *Dashboard) ListOwn(ctx context.Context, user *types.User) ([]types.Submission, error) {
	subs := []types.Submission{}
	err := d.db.WithContext(ctx).
		Where("creator_id = ?", user.ID).
		Order("created_at DESC").
		Limit(ownListLimit).
		Find(&subs).Error
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return subs, nil
}

// Get returns one submission. Creators only see their own; for anyone else
// the submission does not exist.
func (d *Dashboard) Get(ctx context.Context, viewer *types.User, id string) (*types.Submission, error) {
	var sub types.Submission
	err := d.db.WithContext(ctx).Where("id = ?", id).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("submission not found")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if sub.CreatorID != viewer.ID && !viewer.Role.CanReview() {
		return nil, apierr.NotFound("submission not found")
	}
	return &sub, nil
}

type CreatorStats struct {
	Total         int64            `json:"total"`
	Approved      int64            `json:"approved"`
	Pending       int64            `json:"pending"`
	Rejected      int64            `json:"rejected"`
	Flagged       int64            `json:"flagged"`
	TrustScore    int              `json:"trust_score"`
	TrustLevel    types.TrustLevel `json:"trust_level"`
	VerifiedPosts int              `json:"verified_posts"`
	RejectedPosts int              `json:"rejected_posts"`
}

// Stats aggregates the caller's submissions. Pending includes submissions
// sent back for revision.
func (d *Dashboard) Stats(ctx context.Context, user *types.User) (*CreatorStats, error) {
	counts, err := countByStatus(d.db.WithContext(ctx).Model(&types.Submission{}).Where("creator_id = ?", user.ID))
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return &CreatorStats{
		Total:         total,
		Approved:      counts[types.StatusApproved],
		Pending:       counts[types.StatusPending] + counts[types.StatusRevisionRequested],
		Rejected:      counts[types.StatusRejected],
		Flagged:       counts[types.StatusFlagged],
		TrustScore:    user.TrustScore,
		TrustLevel:    d.trust.Level(user.TrustScore),
		VerifiedPosts: user.VerifiedPosts,
		RejectedPosts: user.RejectedPosts,
	}, nil
}

type PublicCreator struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Role             types.Role       `json:"role"`
	TrustScore       int              `json:"trust_score"`
	TrustLevel       types.TrustLevel `json:"trust_level"`
	VerifiedPosts    int              `json:"verified_posts"`
	IdentityVerified bool             `json:"identity_verified"`
	CreatedAt        time.Time        `json:"created_at"`
}

type Profile struct {
	Creator          PublicCreator       `json:"creator"`
	Certificates     []types.Certificate `json:"certificates"`
	CertificateCount int                 `json:"certificate_count"`
}

// Profile is the public view of a creator and their active certificates.
func (d *Dashboard) Profile(ctx context.Context, creatorID string) (*Profile, error) {
	var u types.User
	err := d.db.WithContext(ctx).Where("id = ?", creatorID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("creator not found")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	certs, err := d.registry.ForCreator(ctx, u.ID, profileCertificates)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Creator: PublicCreator{
			ID:               u.ID,
			Name:             u.Name,
			Role:             u.Role,
			TrustScore:       u.TrustScore,
			TrustLevel:       d.trust.Level(u.TrustScore),
			VerifiedPosts:    u.VerifiedPosts,
			IdentityVerified: u.IdentityVerified,
			CreatedAt:        u.CreatedAt,
		},
		Certificates:     certs,
		CertificateCount: len(certs),
	}, nil
}
