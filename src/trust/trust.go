// Package trust maintains per-creator trust scores. Scores live on the user
// row; the level is always derived from the score by Level.
package trust

import (
	"context"
	"errors"

	"github.com/stake-plus/trustink/src/apierr"
	"github.com/stake-plus/trustink/src/config"
	"github.com/stake-plus/trustink/src/logging"
	"github.com/stake-plus/trustink/src/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MinScore = 0
	MaxScore = 100
)

// Outcome is a workflow event that moves a creator's score automatically.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	OutcomeFlagged  Outcome = "flagged"
	OutcomeRevoked  Outcome = "revoked"
)

// Level maps a score to its trust level.
func Level(score int, cfg config.TrustConfig) types.TrustLevel {
	switch {
	case score >= cfg.HighMin:
		return types.TrustHigh
	case score >= cfg.MediumMin:
		return types.TrustMedium
	default:
		return types.TrustLow
	}
}

// Clamp bounds score to [MinScore, MaxScore].
func Clamp(score int) int {
	return max(MinScore, min(MaxScore, score))
}

type Result struct {
	UserID string           `json:"user_id"`
	Score  int              `json:"trust_score"`
	Level  types.TrustLevel `json:"trust_level"`
}

type Engine struct {
	db  *gorm.DB
	cfg config.TrustConfig
	log *zap.Logger
}

func NewEngine(db *gorm.DB, cfg config.TrustConfig, logger *zap.Logger) *Engine {
	return &Engine{db: db, cfg: cfg, log: logging.Component(logger, "trust")}
}

func (e *Engine) Config() config.TrustConfig { return e.cfg }

// Level is Level with the engine's thresholds.
func (e *Engine) Level(score int) types.TrustLevel {
	return Level(score, e.cfg)
}

// Adjust moves the score by delta, clamped to [0,100]. The clamp runs inside
// a single UPDATE so concurrent adjusters serialize on the row lock instead
// of racing a read-modify-write.
func (e *Engine) Adjust(ctx context.Context, userID string, delta int) (Result, error) {
	return e.apply(ctx, userID, map[string]any{"trust_score": clampExpr(delta)})
}

// Set stores an absolute admin-chosen score. Out-of-range values are
// rejected, never clamped.
func (e *Engine) Set(ctx context.Context, userID string, score int) (Result, error) {
	if score < MinScore || score > MaxScore {
		return Result{}, apierr.Validation("trust score must be between %d and %d", MinScore, MaxScore)
	}
	return e.apply(ctx, userID, map[string]any{"trust_score": score})
}

// Record applies the automatic adjustment for a workflow outcome and bumps
// the creator's post counters. The score change is skipped when automatic
// adjustment is disabled; the counters are always kept.
func (e *Engine) Record(ctx context.Context, userID string, outcome Outcome) (Result, error) {
	updates := map[string]any{}
	switch outcome {
	case OutcomeApproved:
		updates["verified_posts"] = gorm.Expr("verified_posts + 1")
	case OutcomeRejected:
		updates["rejected_posts"] = gorm.Expr("rejected_posts + 1")
	case OutcomeFlagged, OutcomeRevoked:
	default:
		return Result{}, apierr.Validation("unknown trust outcome %q", outcome)
	}
	if e.cfg.AutoAdjust {
		if delta := e.delta(outcome); delta != 0 {
			updates["trust_score"] = clampExpr(delta)
		}
	}
	if len(updates) == 0 {
		return e.Get(ctx, userID)
	}
	res, err := e.apply(ctx, userID, updates)
	if err == nil {
		e.log.Debug("Trust recorded",
			zap.String("user_id", userID),
			zap.String("outcome", string(outcome)),
			zap.Int("score", res.Score),
		)
	}
	return res, err
}

func (e *Engine) Get(ctx context.Context, userID string) (Result, error) {
	var u types.User
	err := e.db.WithContext(ctx).Select("id", "trust_score").Where("id = ?", userID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{}, apierr.NotFound("user not found")
	}
	if err != nil {
		return Result{}, apierr.Internal(err)
	}
	return Result{UserID: u.ID, Score: u.TrustScore, Level: e.Level(u.TrustScore)}, nil
}

func (e *Engine) delta(outcome Outcome) int {
	switch outcome {
	case OutcomeApproved:
		return e.cfg.ApprovedDelta
	case OutcomeRejected:
		return e.cfg.RejectedDelta
	case OutcomeFlagged:
		return e.cfg.FlaggedDelta
	case OutcomeRevoked:
		return e.cfg.RevokedDelta
	}
	return 0
}

func (e *Engine) apply(ctx context.Context, userID string, updates map[string]any) (Result, error) {
	var out Result
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&types.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return apierr.Internal(err)
		}
		// mysql reports zero affected rows for no-op updates, so existence
		// is decided by the re-read.
		var u types.User
		err := tx.Select("id", "trust_score").Where("id = ?", userID).Take(&u).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.NotFound("user not found")
		}
		if err != nil {
			return apierr.Internal(err)
		}
		out = Result{UserID: u.ID, Score: u.TrustScore, Level: e.Level(u.TrustScore)}
		return nil
	})
	return out, err
}

func clampExpr(delta int) any {
	return gorm.Expr(
		"CASE WHEN trust_score + ? > ? THEN ? WHEN trust_score + ? < ? THEN ? ELSE trust_score + ? END",
		delta, MaxScore, MaxScore, delta, MinScore, MinScore, delta,
	)
}
