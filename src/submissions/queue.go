package submissions

import (
	"context"
	"errors"
	"time"

	"github.com/stake-plus/trustink/src/apierr"
	"github.com/stake-plus/trustink/src/certify"
	"github.com/stake-plus/trustink/src/logging"
	"github.com/stake-plus/trustink/src/metrics"
	"github.com/stake-plus/trustink/src/notify"
	"github.com/stake-plus/trustink/src/sanitize"
	"github.com/stake-plus/trustink/src/trust"
	"github.com/stake-plus/trustink/src/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Queue struct {
	db        *gorm.DB
	registry  *certify.Registry
	trust     *trust.Engine
	events    notify.Publisher
	metrics   *metrics.Metrics
	sanitizer *sanitize.Policy
	log       *zap.Logger
	limit     int
	now       func() time.Time
}

func NewQueue(deps Deps, limit int) *Queue {
	return &Queue{
		db:        deps.DB,
		registry:  deps.Registry,
		trust:     deps.Trust,
		events:    deps.Events,
		metrics:   deps.Metrics,
		sanitizer: sanitize.New(),
		log:       logging.Component(deps.Logger, "moderation"),
		limit:     limit,
		now:       time.Now,
	}
}

// QueueItem is an open submission with its creator's current trust.
type QueueItem struct {
	types.Submission
	CreatorTrustScore int              `json:"creator_trust_score"`
	CreatorTrustLevel types.TrustLevel `json:"creator_trust_level"`
}

// List returns open submissions, oldest first.
func (q *Queue) List(ctx context.Context) ([]QueueItem, error) {
	var subs []types.Submission
	err := q.db.WithContext(ctx).
		Where("status IN ?", types.OpenStatuses).
		Order("created_at ASC").Order("id ASC").
		Limit(q.limit).
		Find(&subs).Error
	if err != nil {
		return nil, apierr.Internal(err)
	}

	scores, err := q.creatorScores(ctx, subs)
	if err != nil {
		return nil, err
	}
	items := make([]QueueItem, 0, len(subs))
	for _, s := range subs {
		score, ok := scores[s.CreatorID]
		if !ok {
			score = q.trust.Config().DefaultScore
		}
		items = append(items, QueueItem{
			Submission:        s,
			CreatorTrustScore: score,
			CreatorTrustLevel: q.trust.Level(score),
		})
	}
	return items, nil
}

func (q *Queue) creatorScores(ctx context.Context, subs []types.Submission) (map[string]int, error) {
	out := make(map[string]int)
	if len(subs) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.CreatorID)
	}
	var users []types.User
	if err := q.db.WithContext(ctx).Select("id", "trust_score").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, apierr.Internal(err)
	}
	for _, u := range users {
		out[u.ID] = u.TrustScore
	}
	return out, nil
}

// Decide records a reviewer decision on an open submission. The status
// change only applies while the submission is still pending or flagged, so
// of two concurrent decisions exactly one wins and the other gets a
// conflict. Approval issues the certificate in the same transaction.
func (q *Queue) Decide(ctx context.Context, reviewer *types.User, id string, decision types.Decision, notes string) (*types.Submission, error) {
	if reviewer == nil || !reviewer.Role.CanReview() {
		return nil, apierr.Forbidden("reviewer access required")
	}
	if !types.ValidDecision(decision) {
		return nil, apierr.Validation("decision must be approved, rejected or revision_requested")
	}
	notes = q.sanitizer.Text(notes)
	now := q.now().UTC()

	var sub types.Submission
	var cert *types.Certificate
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&types.Submission{}).
			Where("id = ? AND status IN ?", id, types.OpenStatuses).
			Updates(map[string]any{
				"status":         decision,
				"reviewer_id":    reviewer.ID,
				"decision_notes": notes,
				"reviewed_at":    now,
			})
		if res.Error != nil {
			return apierr.Internal(res.Error)
		}
		err := tx.Where("id = ?", id).Take(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.NotFound("submission not found")
		}
		if err != nil {
			return apierr.Internal(err)
		}
		if res.RowsAffected == 0 {
			return apierr.Conflict("submission already %s", sub.Status)
		}
		if decision != types.StatusApproved {
			return nil
		}
		if cert, err = q.registry.Issue(tx, &sub); err != nil {
			return err
		}
		return attachCertificate(tx, &sub, cert)
	})
	if err != nil {
		return nil, err
	}

	q.log.Info("Submission decided",
		zap.String("submission_id", sub.ID),
		zap.String("reviewer_id", reviewer.ID),
		zap.String("decision", string(decision)),
	)
	q.metrics.Decision(string(decision))
	q.afterDecide(ctx, &sub, cert, reviewer.ID)
	return &sub, nil
}

func (q *Queue) afterDecide(ctx context.Context, sub *types.Submission, cert *types.Certificate, reviewerID string) {
	var outcome trust.Outcome
	switch sub.Status {
	case types.StatusApproved:
		outcome = trust.OutcomeApproved
	case types.StatusRejected:
		outcome = trust.OutcomeRejected
	}
	if outcome != "" {
		if _, err := q.trust.Record(ctx, sub.CreatorID, outcome); err != nil {
			q.log.Warn("Trust adjustment failed", zap.String("user_id", sub.CreatorID), zap.Error(err))
		}
	}
	if cert != nil {
		q.registry.Announce(ctx, cert, reviewerID)
	}
	if q.events != nil {
		ev := notify.Event{
			Type:         notify.SubmissionDecided,
			SubmissionID: sub.ID,
			CreatorID:    sub.CreatorID,
			ActorID:      reviewerID,
			Title:        sub.Title,
			Status:       string(sub.Status),
		}
		if sub.DecisionNotes != nil {
			ev.Notes = *sub.DecisionNotes
		}
		if sub.VerificationID != nil {
			ev.VerificationID = *sub.VerificationID
		}
		q.events.Publish(ev)
	}
}

type ModerationStats struct {
	Pending           int64 `json:"pending"`
	Flagged           int64 `json:"flagged"`
	Approved          int64 `json:"approved"`
	Rejected          int64 `json:"rejected"`
	RevisionRequested int64 `json:"revision_requested"`
}

func (q *Queue) Stats(ctx context.Context) (*ModerationStats, error) {
	counts, err := countByStatus(q.db.WithContext(ctx).Model(&types.Submission{}))
	if err != nil {
		return nil, err
	}
	return &ModerationStats{
		Pending:           counts[types.StatusPending],
		Flagged:           counts[types.StatusFlagged],
		Approved:          counts[types.StatusApproved],
		Rejected:          counts[types.StatusRejected],
		RevisionRequested: counts[types.StatusRevisionRequested],
	}, nil
}

func countByStatus(query *gorm.DB) (map[types.SubmissionStatus]int64, error) {
	var rows []struct {
		Status types.SubmissionStatus
		N      int64
	}
	if err := query.Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, apierr.Internal(err)
	}
	out := make(map[types.SubmissionStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
