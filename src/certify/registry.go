package certify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stake-plus/trustink/src/apierr"
	"github.com/stake-plus/trustink/src/cache"
	"github.com/stake-plus/trustink/src/config"
	"github.com/stake-plus/trustink/src/logging"
	"github.com/stake-plus/trustink/src/metrics"
	"github.com/stake-plus/trustink/src/notify"
	"github.com/stake-plus/trustink/src/sanitize"
	"github.com/stake-plus/trustink/src/trust"
	"github.com/stake-plus/trustink/src/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxIssueAttempts = 5

// Deps are the registry's optional collaborators; nil fields are skipped.
type Deps struct {
	Cache   *cache.Registry
	Trust   *trust.Engine
	Events  notify.Publisher
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type Registry struct {
	db        *gorm.DB
	signer    *Signer
	cfg       config.RegistryConfig
	cache     *cache.Registry
	trust     *trust.Engine
	events    notify.Publisher
	metrics   *metrics.Metrics
	sanitizer *sanitize.Policy
	log       *zap.Logger

	now    func() time.Time
	random io.Reader
}

func NewRegistry(db *gorm.DB, signer *Signer, cfg config.RegistryConfig, deps Deps) *Registry {
	return &Registry{
		db:        db,
		signer:    signer,
		cfg:       cfg,
		cache:     deps.Cache,
		trust:     deps.Trust,
		events:    deps.Events,
		metrics:   deps.Metrics,
		sanitizer: sanitize.New(),
		log:       logging.Component(deps.Logger, "registry"),
		now:       time.Now,
	}
}

// Issue creates the certificate for sub inside tx. The caller owns the
// transaction and must call Announce after it commits.
func (r *Registry) Issue(tx *gorm.DB, sub *types.Submission) (*types.Certificate, error) {
	now := r.now().UTC()
	hash := ContentHash(sub.ContentText)

	var vid string
	for attempt := 1; ; attempt++ {
		id, err := NewVerificationID(now, r.random)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		var n int64
		if err := tx.Model(&types.Certificate{}).Where("verification_id = ?", id).Count(&n).Error; err != nil {
			return nil, apierr.Internal(err)
		}
		if n == 0 {
			vid = id
			break
		}
		if attempt == maxIssueAttempts {
			return nil, apierr.Internal(fmt.Errorf("no free verification id after %d attempts", attempt))
		}
	}

	cert := &types.Certificate{
		ID:             uuid.NewString(),
		SubmissionID:   sub.ID,
		CreatorID:      sub.CreatorID,
		CreatorName:    sub.CreatorName,
		ContentTitle:   sub.Title,
		VerificationID: vid,
		ContentHash:    hash,
		Signature:      r.signer.Sign(hash, vid),
		Status:         types.CertificateActive,
		Timestamp:      now,
	}
	if err := tx.Create(cert).Error; err != nil {
		return nil, apierr.Internal(fmt.Errorf("create certificate: %w", err))
	}
	return cert, nil
}

// Announce runs the post-commit side effects of an issuance.
func (r *Registry) Announce(ctx context.Context, cert *types.Certificate, actorID string) {
	r.metrics.CertificateIssued()
	r.cache.Invalidate(ctx)
	r.publish(notify.Event{
		Type:           notify.CertificateIssued,
		SubmissionID:   cert.SubmissionID,
		CertificateID:  cert.ID,
		VerificationID: cert.VerificationID,
		CreatorID:      cert.CreatorID,
		ActorID:        actorID,
		Title:          cert.ContentTitle,
		Status:         string(cert.Status),
	})
	r.log.Info("Certificate issued",
		zap.String("certificate_id", cert.ID),
		zap.String("verification_id", cert.VerificationID),
		zap.String("submission_id", cert.SubmissionID),
	)
}

func (r *Registry) Lookup(ctx context.Context, verificationID string) (*types.Certificate, error) {
	return r.first(ctx, "verification_id = ?", strings.TrimSpace(verificationID))
}

func (r *Registry) Get(ctx context.Context, id string) (*types.Certificate, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *Registry) first(ctx context.Context, query string, arg string) (*types.Certificate, error) {
	var c types.Certificate
	err := r.db.WithContext(ctx).Where(query, arg).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("certificate not found")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &c, nil
}

type ListQuery struct {
	Search string
	Page   int
	Limit  int
}

type Page struct {
	Certificates []types.Certificate `json:"certificates"`
	Total        int64               `json:"total"`
	Page         int                 `json:"page"`
	Pages        int                 `json:"pages"`
}

// List returns active certificates, newest first, optionally filtered by a
// case-insensitive substring of the title or creator name.
func (r *Registry) List(ctx context.Context, q ListQuery) (*Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = r.cfg.DefaultPageSize
	}
	q.Limit = min(q.Limit, r.cfg.MaxPageSize)
	q.Search = strings.TrimSpace(q.Search)

	key := r.cache.Key(ctx, "list", strings.ToLower(q.Search), strconv.Itoa(q.Page), strconv.Itoa(q.Limit))
	var cached Page
	if r.cache.Load(ctx, key, &cached) {
		return &cached, nil
	}

	base := r.db.WithContext(ctx).Model(&types.Certificate{}).Where("status = ?", types.CertificateActive)
	if q.Search != "" {
		like := "%" + escapeLike(strings.ToLower(q.Search)) + "%"
		base = base.Where("(LOWER(content_title) LIKE ? ESCAPE '!' OR LOWER(creator_name) LIKE ? ESCAPE '!')", like, like)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, apierr.Internal(err)
	}
	out := &Page{Certificates: []types.Certificate{}, Total: total, Page: q.Page, Pages: int((total + int64(q.Limit) - 1) / int64(q.Limit))}
	// Past the last page the offset is never computed, so a huge page
	// number cannot overflow it. Such pages are not cached either.
	if q.Page > out.Pages {
		return out, nil
	}
	if total > 0 {
		err := base.Session(&gorm.Session{}).
			Order("timestamp DESC").Order("id").
			Offset((q.Page - 1) * q.Limit).Limit(q.Limit).
			Find(&out.Certificates).Error
		if err != nil {
			return nil, apierr.Internal(err)
		}
	}
	r.cache.Save(ctx, key, out)
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// Revoke marks an active certificate revoked. The row and its hash and
// signature are kept; the owning submission stays approved.
func (r *Registry) Revoke(ctx context.Context, admin *types.User, id, reason string) (*types.Certificate, error) {
	if admin == nil || admin.Role != types.RoleAdmin {
		return nil, apierr.Forbidden("admin access required")
	}
	reason = r.sanitizer.Text(reason)
	if reason == "" {
		return nil, apierr.Validation("revocation reason is required")
	}

	now := r.now().UTC()
	var cert types.Certificate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&types.Certificate{}).
			Where("id = ? AND status = ?", id, types.CertificateActive).
			Updates(map[string]any{
				"status":            types.CertificateRevoked,
				"revocation_reason": reason,
				"revoked_at":        now,
			})
		if res.Error != nil {
			return apierr.Internal(res.Error)
		}
		err := tx.Where("id = ?", id).Take(&cert).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.NotFound("certificate not found")
		}
		if err != nil {
			return apierr.Internal(err)
		}
		if res.RowsAffected == 0 {
			prev := ""
			if cert.RevocationReason != nil {
				prev = *cert.RevocationReason
			}
			return apierr.Conflict("certificate already revoked: %s", prev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.trust != nil {
		if _, err := r.trust.Record(ctx, cert.CreatorID, trust.OutcomeRevoked); err != nil {
			r.log.Warn("Trust adjustment after revocation failed", zap.String("user_id", cert.CreatorID), zap.Error(err))
		}
	}
	r.metrics.CertificateRevoked()
	r.cache.Invalidate(ctx)
	r.publish(notify.Event{
		Type:           notify.CertificateRevoked,
		SubmissionID:   cert.SubmissionID,
		CertificateID:  cert.ID,
		VerificationID: cert.VerificationID,
		CreatorID:      cert.CreatorID,
		ActorID:        admin.ID,
		Title:          cert.ContentTitle,
		Status:         string(cert.Status),
		Notes:          reason,
	})
	r.log.Info("Certificate revoked",
		zap.String("certificate_id", cert.ID),
		zap.String("admin_id", admin.ID),
		zap.String("reason", reason),
	)
	return &cert, nil
}

// Verification is the public view of a certificate. SignatureValid is
// asserted by this service; clients cannot recompute it.
type Verification struct {
	Valid            bool                    `json:"valid"`
	VerificationID   string                  `json:"verification_id"`
	Status           types.CertificateStatus `json:"status"`
	CertificateID    string                  `json:"certificate_id"`
	CreatorID        string                  `json:"creator_id"`
	CreatorName      string                  `json:"creator_name"`
	ContentTitle     string                  `json:"content_title"`
	ContentHash      string                  `json:"content_hash"`
	Signature        string                  `json:"signature"`
	SignatureValid   bool                    `json:"signature_valid"`
	HashAlgorithm    string                  `json:"hash_algorithm"`
	Timestamp        time.Time               `json:"timestamp"`
	RevokedAt        *time.Time              `json:"revoked_at"`
	RevocationReason *string                 `json:"revocation_reason"`
}

func (r *Registry) Verify(ctx context.Context, verificationID string) (*Verification, error) {
	c, err := r.Lookup(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	sigOK := r.signer.Verify(c.ContentHash, c.VerificationID, c.Signature)
	return &Verification{
		Valid:            c.Status == types.CertificateActive && sigOK,
		VerificationID:   c.VerificationID,
		Status:           c.Status,
		CertificateID:    c.ID,
		CreatorID:        c.CreatorID,
		CreatorName:      c.CreatorName,
		ContentTitle:     c.ContentTitle,
		ContentHash:      c.ContentHash,
		Signature:        c.Signature,
		SignatureValid:   sigOK,
		HashAlgorithm:    "sha256",
		Timestamp:        c.Timestamp,
		RevokedAt:        c.RevokedAt,
		RevocationReason: c.RevocationReason,
	}, nil
}

type Stats struct {
	TotalCertificates int64 `json:"total_certificates"`
	Revoked           int64 `json:"revoked"`
	TotalCreators     int64 `json:"total_creators"`
	TotalSubmissions  int64 `json:"total_submissions"`
	PendingReview     int64 `json:"pending_review"`
}

func (r *Registry) Stats(ctx context.Context) (*Stats, error) {
	db := r.db.WithContext(ctx)
	var s Stats
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&s.TotalCertificates, db.Model(&types.Certificate{}).Where("status = ?", types.CertificateActive)},
		{&s.Revoked, db.Model(&types.Certificate{}).Where("status = ?", types.CertificateRevoked)},
		{&s.TotalCreators, db.Model(&types.User{}).Where("role = ?", types.RoleCreator)},
		{&s.TotalSubmissions, db.Model(&types.Submission{})},
		{&s.PendingReview, db.Model(&types.Submission{}).Where("status IN ?", types.OpenStatuses)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, apierr.Internal(err)
		}
	}
	return &s, nil
}

// ForCreator returns up to limit active certificates of one creator, newest first.
func (r *Registry) ForCreator(ctx context.Context, creatorID string, limit int) ([]types.Certificate, error) {
	certs := []types.Certificate{}
	err := r.db.WithContext(ctx).
		Where("creator_id = ? AND status = ?", creatorID, types.CertificateActive).
		Order("timestamp DESC").Limit(limit).
		Find(&certs).Error
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return certs, nil
}

func (r *Registry) publish(e notify.Event) {
	if r.events != nil {
		r.events.Publish(e)
	}
}
