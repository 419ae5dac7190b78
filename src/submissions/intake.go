package submissions

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stake-plus/trustink/src/apierr"
	"github.com/stake-plus/trustink/src/certify"
	"github.com/stake-plus/trustink/src/config"
	"github.com/stake-plus/trustink/src/logging"
	"github.com/stake-plus/trustink/src/metrics"
	"github.com/stake-plus/trustink/src/notify"
	"github.com/stake-plus/trustink/src/sanitize"
	"github.com/stake-plus/trustink/src/scoring"
	"github.com/stake-plus/trustink/src/trust"
	"github.com/stake-plus/trustink/src/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are shared by Intake and Queue; nil optional fields are skipped.
type Deps struct {
	DB       *gorm.DB
	Registry *certify.Registry
	Trust    *trust.Engine
	Events   notify.Publisher
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type Intake struct {
	db            *gorm.DB
	oracle        scoring.Oracle
	oracleTimeout time.Duration
	registry      *certify.Registry
	trust         *trust.Engine
	policy        config.PolicyConfig
	events        notify.Publisher
	metrics       *metrics.Metrics
	sanitizer     *sanitize.Policy
	log           *zap.Logger
	now           func() time.Time
}

func NewIntake(deps Deps, oracle scoring.Oracle, policy config.PolicyConfig, oracleTimeout time.Duration) *Intake {
	return &Intake{
		db:            deps.DB,
		oracle:        oracle,
		oracleTimeout: oracleTimeout,
		registry:      deps.Registry,
		trust:         deps.Trust,
		policy:        policy,
		events:        deps.Events,
		metrics:       deps.Metrics,
		sanitizer:     sanitize.New(),
		log:           logging.Component(deps.Logger, "intake"),
		now:           time.Now,
	}
}

type SubmitRequest struct {
	Title       string  `json:"title"        binding:"required"`
	ContentText string  `json:"content_text" binding:"required"`
	ContentURL  *string `json:"content_url"`
}

// Submit validates, scores, routes and stores a submission. Auto-approved
// submissions get their certificate in the same transaction.
func (in *Intake) Submit(ctx context.Context, creator *types.User, req SubmitRequest) (*types.Submission, error) {
	if utf8.RuneCountInString(strings.TrimSpace(req.ContentText)) < in.policy.MinContentLength {
		return nil, apierr.Validation("content must be at least %d characters", in.policy.MinContentLength)
	}
	title := in.sanitizer.Text(req.Title)
	if title == "" {
		return nil, apierr.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > in.policy.MaxTitleLength {
		return nil, apierr.Validation("title must be at most %d characters", in.policy.MaxTitleLength)
	}
	contentURL, err := normalizeURL(req.ContentURL)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, apierr.Unauthorized("authentication required")
	}
	if creator.Status != types.UserActive {
		return nil, apierr.Forbidden("account is %s", creator.Status)
	}

	score := in.score(ctx, req.ContentText)
	features, styleScore := scoring.Stylometry(req.ContentText)
	level := in.trust.Level(creator.TrustScore)

	status := types.StatusPending
	if score.Confidence != scoring.ConfidenceUnavailable {
		status = Route(in.policy, score.HumanProbability, level)
	}

	sub := &types.Submission{
		ID:                 uuid.NewString(),
		CreatorID:          creator.ID,
		CreatorName:        creator.Name,
		Title:              title,
		ContentText:        req.ContentText,
		ContentURL:         contentURL,
		Status:             status,
		AIHumanProbability: score.HumanProbability,
		AIAIProbability:    score.AIProbability,
		AIConfidence:       score.Confidence,
		OracleSource:       score.Source,
		StylometryScore:    styleScore,
		Stylometry:         features,
		CreatedAt:          in.now().UTC(),
	}

	var cert *types.Certificate
	err = in.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return apierr.Internal(err)
		}
		if status != types.StatusApproved {
			return nil
		}
		var err error
		if cert, err = in.registry.Issue(tx, sub); err != nil {
			return err
		}
		return attachCertificate(tx, sub, cert)
	})
	if err != nil {
		return nil, err
	}

	in.log.Info("Submission received",
		zap.String("submission_id", sub.ID),
		zap.String("creator_id", creator.ID),
		zap.String("status", string(status)),
		zap.Float64("human_probability", score.HumanProbability),
		zap.String("trust_level", string(level)),
	)
	in.metrics.Submission(string(status))
	in.afterSubmit(ctx, sub, cert)
	return sub, nil
}

// score asks the oracle under a deadline. Failures never reach the caller:
// the submission is held for manual review instead.
func (in *Intake) score(ctx context.Context, text string) scoring.Score {
	octx, cancel := context.WithTimeout(ctx, in.oracleTimeout)
	defer cancel()

	start := time.Now()
	s, err := in.oracle.Score(octx, text)
	in.metrics.OracleLatency(time.Since(start))
	if err == nil {
		return s
	}

	reason := oracleFailureReason(err)
	in.metrics.OracleFailure(reason)
	in.log.Warn("Scoring oracle unavailable, routing to manual review",
		zap.String("oracle", in.oracle.Name()),
		zap.String("reason", reason),
		zap.Error(apierr.OracleTimeout(err)),
	)
	return scoring.Unavailable()
}

func oracleFailureReason(err error) string {
	switch {
	case logging.IsTimeout(err):
		return "timeout"
	case logging.IsRateLimit(err):
		return "rate_limited"
	}
	return "error"
}

func (in *Intake) afterSubmit(ctx context.Context, sub *types.Submission, cert *types.Certificate) {
	ev := notify.Event{
		SubmissionID: sub.ID,
		CreatorID:    sub.CreatorID,
		ActorID:      sub.CreatorID,
		Title:        sub.Title,
		Status:       string(sub.Status),
	}
	switch sub.Status {
	case types.StatusApproved:
		in.record(ctx, sub.CreatorID, trust.OutcomeApproved)
		in.registry.Announce(ctx, cert, sub.CreatorID)
		return
	case types.StatusFlagged:
		in.record(ctx, sub.CreatorID, trust.OutcomeFlagged)
		ev.Type = notify.SubmissionFlagged
	default:
		ev.Type = notify.SubmissionQueued
	}
	if in.events != nil {
		in.events.Publish(ev)
	}
}

func (in *Intake) record(ctx context.Context, userID string, outcome trust.Outcome) {
	if _, err := in.trust.Record(ctx, userID, outcome); err != nil {
		in.log.Warn("Trust adjustment failed",
			zap.String("user_id", userID),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
}

// attachCertificate stores the issued certificate's ids on the submission.
func attachCertificate(tx *gorm.DB, sub *types.Submission, cert *types.Certificate) error {
	sub.VerificationID = &cert.VerificationID
	sub.CertificateID = &cert.ID
	err := tx.Model(&types.Submission{}).Where("id = ?", sub.ID).Updates(map[string]any{
		"verification_id": cert.VerificationID,
		"certificate_id":  cert.ID,
	}).Error
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func normalizeURL(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil, nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apierr.Validation("content_url must be an absolute http(s) URL")
	}
	return &s, nil
}
