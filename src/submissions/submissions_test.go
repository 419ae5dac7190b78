package submissions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stake-plus/trustink/src/apierr"
	"github.com/stake-plus/trustink/src/cache"
	"github.com/stake-plus/trustink/src/certify"
	"github.com/stake-plus/trustink/src/config"
	"github.com/stake-plus/trustink/src/data/datatest"
	"github.com/stake-plus/trustink/src/notify"
	"github.com/stake-plus/trustink/src/scoring"
	"github.com/stake-plus/trustink/src/trust"
	"github.com/stake-plus/trustink/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubOracle struct {
	human float64
	err   error
	block bool
	calls atomic.Int32
}

func (o *stubOracle) Name() string { return "stub" }

func (o *stubOracle) Score(ctx context.Context, _ string) (scoring.Score, error) {
	o.calls.Add(1)
	if o.block {
		<-ctx.Done()
		return scoring.Score{}, ctx.Err()
	}
	if o.err != nil {
		return scoring.Score{}, o.err
	}
	return scoring.Score{HumanProbability: o.human, AIProbability: 1 - o.human, Confidence: scoring.ConfidenceHigh, Source: "stub"}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Publish(e notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []notify.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []notify.EventType
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	oracle    *stubOracle
	intake    *Intake
	queue     *Queue
	dashboard *Dashboard
	registry  *certify.Registry
	events    *eventLog
	reviewer  *types.User
}

func newFixture(t *testing.T, human float64) *fixture {
	db := datatest.DB(t)
	cfg := config.Defaults()
	events := &eventLog{}
	engine := trust.NewEngine(db, cfg.Trust, nil)
	registry := certify.NewRegistry(db, certify.NewSigner("secret"), cfg.Registry, certify.Deps{
		Cache:  cache.NewRegistry(cache.NewMemoryStore(), time.Minute, nil),
		Trust:  engine,
		Events: events,
	})
	deps := Deps{DB: db, Registry: registry, Trust: engine, Events: events}
	oracle := &stubOracle{human: human}
	return &fixture{
		db:        db,
		oracle:    oracle,
		intake:    NewIntake(deps, oracle, cfg.Policy, 100*time.Millisecond),
		queue:     NewQueue(deps, cfg.Policy.QueueLimit),
		dashboard: NewDashboard(deps),
		registry:  registry,
		events:    events,
		reviewer:  datatest.User(t, db, types.RoleReviewer, 85),
	}
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "word"
	}
	return strings.Join(w, " ") + "."
}

func (f *fixture) submit(t *testing.T, creator *types.User, title string) *types.Submission {
	t.Helper()
	sub, err := f.intake.Submit(context.Background(), creator, SubmitRequest{Title: title, ContentText: words(60)})
	require.NoError(t, err)
	return sub
}

func (f *fixture) certificateCount(t *testing.T, submissionID string) int64 {
	var n int64
	require.NoError(t, f.db.Model(&types.Certificate{}).Where("submission_id = ?", submissionID).Count(&n).Error)
	return n
}

func TestRoute(t *testing.T) {
	p := config.Defaults().Policy
	cases := []struct {
		human float64
		level types.TrustLevel
		want  types.SubmissionStatus
	}{
		{0.85, types.TrustHigh, types.StatusApproved},
		{0.70, types.TrustMedium, types.StatusApproved},
		{0.85, types.TrustLow, types.StatusPending},
		{0.69, types.TrustHigh, types.StatusPending},
		{0.50, types.TrustLow, types.StatusPending},
		{0.49, types.TrustHigh, types.StatusFlagged},
		{0.10, types.TrustLow, types.StatusFlagged},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Route(p, c.human, c.level), "human=%.2f level=%s", c.human, c.level)
	}

	p.MinTrustLevel = "high"
	assert.Equal(t, types.StatusPending, Route(p, 0.9, types.TrustMedium))
}

func TestShortContentRejectedBeforeScoring(t *testing.T) {
	f := newFixture(t, 0.9)
	creator := datatest.User(t, f.db, types.RoleCreator, 90)

	_, err := f.intake.Submit(context.Background(), creator, SubmitRequest{
		Title:       "Too short",
		ContentText: "   " + strings.Repeat("x", 49) + "   ",
	})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindValidation))
	assert.Zero(t, f.oracle.calls.Load())

	var n int64
	require.NoError(t, f.db.Model(&types.Submission{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, 0.9)
	creator := datatest.User(t, f.db, types.RoleCreator, 90)
	ctx := context.Background()

	_, err := f.intake.Submit(ctx, creator, SubmitRequest{Title: "<p></p>", ContentText: words(20)})
	assert.True(t, apierr.Is(err, apierr.KindValidation))

	bad := "ftp://example.com/x"
	_, err = f.intake.Submit(ctx, creator, SubmitRequest{Title: "ok", ContentText: words(20), ContentURL: &bad})
	assert.True(t, apierr.Is(err, apierr.KindValidation))

	_, err = f.intake.Submit(ctx, creator, SubmitRequest{Title: strings.Repeat("t", 256), ContentText: words(20)})
	assert.True(t, apierr.Is(err, apierr.KindValidation))
	assert.Zero(t, f.oracle.calls.Load())
}

func TestInactiveCreatorForbidden(t *testing.T) {
	f := newFixture(t, 0.9)
	creator := datatest.User(t, f.db, types.RoleCreator, 90)
	creator.Status = types.UserSuspended

	_, err := f.intake.Submit(context.Background(), creator, SubmitRequest{Title: "t", ContentText: words(20)})
	assert.True(t, apierr.Is(err, apierr.KindForbidden))
	assert.Zero(t, f.oracle.calls.Load())
}

func TestHighTrustHumanTextAutoApproved(t *testing.T) {
	f := newFixture(t, 0.85)
	creator := datatest.User(t, f.db, types.RoleCreator, 85)
	text := words(200)

	sub, err := f.intake.Submit(context.Background(), creator, SubmitRequest{Title: "Two hundred words", ContentText: text})
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, sub.Status)
	require.NotNil(t, sub.VerificationID)
	require.NotNil(t, sub.CertificateID)
	assert.Equal(t, 200, sub.Stylometry.WordCount)
	assert.Equal(t, int64(1), f.certificateCount(t, sub.ID))

	v, err := f.registry.Verify(context.Background(), *sub.VerificationID)
	require.NoError(t, err)
	assert.Equal(t, types.CertificateActive, v.Status)
	assert.True(t, v.Valid)
	assert.Equal(t, certify.ContentHash(text), v.ContentHash)

	var stored types.Submission
	require.NoError(t, f.db.First(&stored, "id = ?", sub.ID).Error)
	assert.Equal(t, *sub.VerificationID, *stored.VerificationID)

	var u types.User
	require.NoError(t, f.db.First(&u, "id = ?", creator.ID).Error)
	assert.Equal(t, 95, u.TrustScore)
	assert.Equal(t, 1, u.VerifiedPosts)
	assert.Contains(t, f.events.types(), notify.CertificateIssued)
}

func TestLowTrustAmbiguousGoesToQueueInOrder(t *testing.T) {
	f := newFixture(t, 0.55)
	creator := datatest.User(t, f.db, types.RoleCreator, 30)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := range 3 {
		f.intake.now = func() time.Time { return base.Add(time.Duration(2-i) * time.Minute) }
		sub := f.submit(t, creator, "entry")
		assert.Equal(t, types.StatusPending, sub.Status)
		assert.Nil(t, sub.VerificationID)
		ids = append(ids, sub.ID)
	}

	items, err := f.queue.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)
	// oldest first: the last submission was stamped earliest
	assert.Equal(t, ids[2], items[0].ID)
	assert.Equal(t, ids[1], items[1].ID)
	assert.Equal(t, ids[0], items[2].ID)
	assert.Equal(t, 30, items[0].CreatorTrustScore)
	assert.Equal(t, types.TrustLow, items[0].CreatorTrustLevel)
	assert.Contains(t, f.events.types(), notify.SubmissionQueued)
}

func TestStrongAISignalFlagged(t *testing.T) {
	f := newFixture(t, 0.2)
	creator := datatest.User(t, f.db, types.RoleCreator, 90)

	sub := f.submit(t, creator, "machine")
	assert.Equal(t, types.StatusFlagged, sub.Status)

	var u types.User
	require.NoError(t, f.db.First(&u, "id = ?", creator.ID).Error)
	assert.Equal(t, 85, u.TrustScore)
	assert.Contains(t, f.events.types(), notify.SubmissionFlagged)
}

func TestOracleTimeoutFallsBackToPending(t *testing.T) {
	f := newFixture(t, 0.99)
	f.oracle.block = true
	creator := datatest.User(t, f.db, types.RoleCreator, 100)

	sub, err := f.intake.Submit(context.Background(), creator, SubmitRequest{Title: "slow", ContentText: words(60)})
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, sub.Status)
	assert.Equal(t, scoring.ConfidenceUnavailable, sub.AIConfidence)
	assert.Zero(t, sub.AIHumanProbability)
	assert.Nil(t, sub.VerificationID)
}

func TestOracleRateLimitFallsBackToPending(t *testing.T) {
	f := newFixture(t, 0.99)
	f.oracle.err = errors.New("detector returned status 429")
	creator := datatest.User(t, f.db, types.RoleCreator, 100)

	sub, err := f.intake.Submit(context.Background(), creator, SubmitRequest{Title: "busy", ContentText: words(60)})
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, sub.Status)
	assert.Equal(t, scoring.ConfidenceUnavailable, sub.AIConfidence)
	assert.Nil(t, sub.VerificationID)
}

func TestOracleFailureReason(t *testing.T) {
	assert.Equal(t, "timeout", oracleFailureReason(fmt.Errorf("score: %w", context.DeadlineExceeded)))
	assert.Equal(t, "rate_limited", oracleFailureReason(errors.New("detector returned status 429")))
	assert.Equal(t, "rate_limited", oracleFailureReason(errors.New("rate_limit_exceeded")))
	assert.Equal(t, "error", oracleFailureReason(errors.New("connection refused")))
}

func TestRejectStoresNotesAndBlocksReReview(t *testing.T) {
	f := newFixture(t, 0.55)
	creator := datatest.User(t, f.db, types.RoleCreator, 50)
	sub := f.submit(t, creator, "essay")
	ctx := context.Background()

	got, err := f.queue.Decide(ctx, f.reviewer, sub.ID, types.StatusRejected, "insufficient originality")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, got.Status)
	require.NotNil(t, got.DecisionNotes)
	assert.Equal(t, "insufficient originality", *got.DecisionNotes)
	require.NotNil(t, got.ReviewerID)
	assert.Equal(t, f.reviewer.ID, *got.ReviewerID)
	assert.NotNil(t, got.ReviewedAt)
	assert.Nil(t, got.VerificationID)
	assert.Zero(t, f.certificateCount(t, sub.ID))

	_, err = f.queue.Decide(ctx, f.reviewer, sub.ID, types.StatusApproved, "")
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindConflict))
	assert.Zero(t, f.certificateCount(t, sub.ID))

	var u types.User
	require.NoError(t, f.db.First(&u, "id = ?", creator.ID).Error)
	assert.Equal(t, 30, u.TrustScore)
	assert.Equal(t, 1, u.RejectedPosts)
}

func TestApproveIssuesExactlyOneCertificate(t *testing.T) {
	f := newFixture(t, 0.55)
	creator := datatest.User(t, f.db, types.RoleCreator, 50)
	sub := f.submit(t, creator, "poem")
	ctx := context.Background()

	got, err := f.queue.Decide(ctx, f.reviewer, sub.ID, types.StatusApproved, "lovely")
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, got.Status)
	require.NotNil(t, got.VerificationID)
	assert.Equal(t, int64(1), f.certificateCount(t, sub.ID))

	_, err = f.queue.Decide(ctx, f.reviewer, sub.ID, types.StatusApproved, "")
	assert.True(t, apierr.Is(err, apierr.KindConflict))
	assert.Equal(t, int64(1), f.certificateCount(t, sub.ID))
}

func TestRevisionRequestedHasNoCertificate(t *testing.T) {
	f := newFixture(t, 0.55)
	creator := datatest.User(t, f.db, types.RoleCreator, 50)
	sub := f.submit(t, creator, "draft")

	got, err := f.queue.Decide(context.Background(), f.reviewer, sub.ID, types.StatusRevisionRequested, "cite sources")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRevisionRequested, got.Status)
	assert.Nil(t, got.VerificationID)
	assert.Zero(t, f.certificateCount(t, sub.ID))

	var u types.User
	require.NoError(t, f.db.First(&u, "id = ?", creator.ID).Error)
	assert.Equal(t, 50, u.TrustScore)
}

func TestConcurrentDecisionsOnlyOneWins(t *testing.T) {
	f := newFixture(t, 0.55)
	creator := datatest.User(t, f.db, types.RoleCreator, 50)
	sub := f.submit(t, creator, "race")

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision := types.StatusApproved
			if i%2 == 1 {
				decision = types.StatusRejected
			}
			_, err := f.queue.Decide(context.Background(), f.reviewer, sub.ID, decision, "")
			switch {
			case err == nil:
				wins.Add(1)
			case apierr.Is(err, apierr.KindConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(9), conflicts.Load())
	assert.LessOrEqual(t, f.certificateCount(t, sub.ID), int64(1))
}

func TestDecideErrors(t *testing.T) {
	f := newFixture(t, 0.55)
	creator := datatest.User(t, f.db, types.RoleCreator, 50)
	sub := f.submit(t, creator, "x")
	ctx := context.Background()

	_, err := f.queue.Decide(ctx, creator, sub.ID, types.StatusApproved, "")
	assert.True(t, apierr.Is(err, apierr.KindForbidden))

	_, err = f.queue.Decide(ctx, f.reviewer, sub.ID, types.StatusPending, "")
	assert.True(t, apierr.Is(err, apierr.KindValidation))

	_, err = f.queue.Decide(ctx, f.reviewer, "missing", types.StatusApproved, "")
	assert.True(t, apierr.Is(err, apierr.KindNotFound))

	admin := datatest.User(t, f.db, types.RoleAdmin, 100)
	_, err = f.queue.Decide(ctx, admin, sub.ID, types.StatusApproved, "")
	require.NoError(t, err)
}

func TestVerificationIDIffApproved(t *testing.T) {
	f := newFixture(t, 0.55)
	creator := datatest.User(t, f.db, types.RoleCreator, 50)
	ctx := context.Background()
	decisions := []types.Decision{types.StatusApproved, types.StatusRejected, types.StatusRevisionRequested, types.StatusApproved}
	for _, d := range decisions {
		sub := f.submit(t, creator, string(d))
		_, err := f.queue.Decide(ctx, f.reviewer, sub.ID, d, "")
		require.NoError(t, err)
	}
	f.submit(t, creator, "left pending")

	var subs []types.Submission
	require.NoError(t, f.db.Find(&subs).Error)
	for _, s := range subs {
		if s.Status == types.StatusApproved {
			require.NotNil(t, s.VerificationID, s.Title)
			assert.Equal(t, int64(1), f.certificateCount(t, s.ID))
		} else {
			assert.Nil(t, s.VerificationID, s.Title)
			assert.Zero(t, f.certificateCount(t, s.ID))
		}
	}
}

func TestModerationStats(t *testing.T) {
	f := newFixture(t, 0.55)
	creator := datatest.User(t, f.db, types.RoleCreator, 50)
	a := f.submit(t, creator, "a")
	f.submit(t, creator, "b")
	f.oracle.human = 0.1
	f.submit(t, creator, "c")
	_, err := f.queue.Decide(context.Background(), f.reviewer, a.ID, types.StatusRejected, "")
	require.NoError(t, err)

	s, err := f.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Pending)
	assert.Equal(t, int64(1), s.Flagged)
	assert.Equal(t, int64(1), s.Rejected)
	assert.Zero(t, s.Approved)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, 0.55)
	creator := datatest.User(t, f.db, types.RoleCreator, 50)
	other := datatest.User(t, f.db, types.RoleCreator, 50)
	ctx := context.Background()

	a := f.submit(t, creator, "a")
	b := f.submit(t, creator, "b")
	_, err := f.queue.Decide(ctx, f.reviewer, a.ID, types.StatusApproved, "")
	require.NoError(t, err)
	_, err = f.queue.Decide(ctx, f.reviewer, b.ID, types.StatusRevisionRequested, "")
	require.NoError(t, err)
	f.submit(t, other, "c")

	require.NoError(t, f.db.First(creator, "id = ?", creator.ID).Error)
	stats, err := f.dashboard.Stats(ctx, creator)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Approved)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, 60, stats.TrustScore)
	assert.Equal(t, types.TrustMedium, stats.TrustLevel)
	assert.Equal(t, 1, stats.VerifiedPosts)

	own, err := f.dashboard.ListOwn(ctx, creator)
	require.NoError(t, err)
	assert.Len(t, own, 2)

	_, err = f.dashboard.Get(ctx, other, a.ID)
	assert.True(t, apierr.Is(err, apierr.KindNotFound))
	got, err := f.dashboard.Get(ctx, f.reviewer, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	profile, err := f.dashboard.Profile(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.CertificateCount)
	assert.Equal(t, creator.Name, profile.Creator.Name)

	_, err = f.dashboard.Profile(ctx, "missing")
	assert.True(t, apierr.Is(err, apierr.KindNotFound))
}
