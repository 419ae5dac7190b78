package certify

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stake-plus/trustink/src/apierr"
	"github.com/stake-plus/trustink/src/cache"
	"github.com/stake-plus/trustink/src/config"
	"github.com/stake-plus/trustink/src/data/datatest"
	"github.com/stake-plus/trustink/src/notify"
	"github.com/stake-plus/trustink/src/trust"
	"github.com/stake-plus/trustink/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Publish(e notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

type fixture struct {
	db       *gorm.DB
	registry *Registry
	creator  *types.User
	admin    *types.User
	events   *eventLog
}

func newFixture(t *testing.T) *fixture {
	db := datatest.DB(t)
	cfg := config.Defaults()
	events := &eventLog{}
	reg := NewRegistry(db, NewSigner("test-secret"), cfg.Registry, Deps{
		Cache:  cache.NewRegistry(cache.NewMemoryStore(), time.Minute, nil),
		Trust:  trust.NewEngine(db, cfg.Trust, nil),
		Events: events,
	})
	return &fixture{
		db:       db,
		registry: reg,
		creator:  datatest.User(t, db, types.RoleCreator, 90),
		admin:    datatest.User(t, db, types.RoleAdmin, 100),
		events:   events,
	}
}

func (f *fixture) issue(t *testing.T, title, text string) *types.Certificate {
	t.Helper()
	sub := &types.Submission{
		ID:          uuid.NewString(),
		CreatorID:   f.creator.ID,
		CreatorName: f.creator.Name,
		Title:       title,
		ContentText: text,
		Status:      types.StatusApproved,
		CreatedAt:   time.Now().UTC(),
	}
	var cert *types.Certificate
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		var err error
		cert, err = f.registry.Issue(tx, sub)
		return err
	})
	require.NoError(t, err)
	f.registry.Announce(context.Background(), cert, "")
	return cert
}

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash("the same words")
	assert.Equal(t, a, ContentHash("the same words"))
	assert.NotEqual(t, a, ContentHash("the same words."))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHash(""))
}

func TestSignerVerify(t *testing.T) {
	s := NewSigner("k1")
	sig := s.Sign("abc", "VH-2026-0000000001")
	assert.Len(t, sig, 64)
	assert.True(t, s.Verify("abc", "VH-2026-0000000001", sig))
	assert.False(t, s.Verify("abd", "VH-2026-0000000001", sig))
	assert.False(t, s.Verify("abc", "VH-2026-0000000002", sig))
	assert.False(t, NewSigner("k2").Verify("abc", "VH-2026-0000000001", sig))
	assert.False(t, s.Verify("abc", "VH-2026-0000000001", "not-hex"))
}

var vidPattern = regexp.MustCompile(`^VH-\d{4}-[0-9A-F]{10}$`)

func TestVerificationIDFormat(t *testing.T) {
	id, err := NewVerificationID(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	assert.Regexp(t, vidPattern, id)
	assert.Equal(t, "VH-2026-", id[:8])
}

func TestIssueAndLookup(t *testing.T) {
	f := newFixture(t)
	text := "A certified paragraph that is long enough to matter for the test."
	cert := f.issue(t, "On Rivers", text)

	assert.Regexp(t, vidPattern, cert.VerificationID)
	assert.Equal(t, ContentHash(text), cert.ContentHash)
	assert.Equal(t, types.CertificateActive, cert.Status)

	got, err := f.registry.Lookup(context.Background(), cert.VerificationID)
	require.NoError(t, err)
	assert.Equal(t, cert.ID, got.ID)

	v, err := f.registry.Verify(context.Background(), cert.VerificationID)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.True(t, v.SignatureValid)
	assert.Equal(t, ContentHash(text), v.ContentHash)

	_, err = f.registry.Lookup(context.Background(), "VH-2026-FFFFFFFFFF")
	assert.True(t, apierr.Is(err, apierr.KindNotFound))

	require.Len(t, f.events.events, 1)
	assert.Equal(t, notify.CertificateIssued, f.events.events[0].Type)
}

func TestConcurrentIssuanceUniqueIDs(t *testing.T) {
	f := newFixture(t)
	const n = 120

	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := &types.Submission{ID: uuid.NewString(), CreatorID: f.creator.ID, Title: fmt.Sprintf("t%d", i), ContentText: "same text"}
			err := f.db.Transaction(func(tx *gorm.DB) error {
				cert, err := f.registry.Issue(tx, sub)
				if err == nil {
					ids <- cert.VerificationID
				}
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		require.False(t, seen[id], "duplicate verification id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	var count int64
	require.NoError(t, f.db.Model(&types.Certificate{}).Count(&count).Error)
	assert.Equal(t, int64(n), count)
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestIssueGivesUpOnRepeatedCollision(t *testing.T) {
	f := newFixture(t)
	f.registry.random = zeroReader{}
	f.issue(t, "first", "text one")

	sub := &types.Submission{ID: uuid.NewString(), CreatorID: f.creator.ID, ContentText: "text two"}
	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.registry.Issue(tx, sub)
		return err
	})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindInternal))
}

func TestListSearchAndPaging(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		f.registry.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		f.issue(t, fmt.Sprintf("Poem %d", i), "text")
	}
	f.issue(t, "100% Original_Essay", "text")
	ctx := context.Background()

	page, err := f.registry.List(ctx, ListQuery{Page: 1, Limit: 2, Search: "poem"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.Pages)
	require.Len(t, page.Certificates, 2)
	assert.Equal(t, "Poem 4", page.Certificates[0].ContentTitle)
	assert.Equal(t, "Poem 3", page.Certificates[1].ContentTitle)

	page, err = f.registry.List(ctx, ListQuery{Page: 3, Limit: 2, Search: "POEM"})
	require.NoError(t, err)
	require.Len(t, page.Certificates, 1)
	assert.Equal(t, "Poem 0", page.Certificates[0].ContentTitle)

	page, err = f.registry.List(ctx, ListQuery{Search: "100%"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = f.registry.List(ctx, ListQuery{Search: "m_0"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)

	page, err = f.registry.List(ctx, ListQuery{Search: f.creator.Name, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(6), page.Total)
	assert.Equal(t, 1, page.Pages)
}

func TestListPageBeyondLastIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "Only", "text")
	ctx := context.Background()

	for _, p := range []int{2, math.MaxInt / 2, math.MaxInt} {
		page, err := f.registry.List(ctx, ListQuery{Page: p, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
		assert.Equal(t, 1, page.Pages)
		assert.Equal(t, p, page.Page)
		assert.Empty(t, page.Certificates)
	}

	page, err := f.registry.List(ctx, ListQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Certificates, 1)
}

func TestListCacheInvalidatedByIssueAndRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.issue(t, "One", "text")

	page, err := f.registry.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	f.issue(t, "Two", "text")
	page, err = f.registry.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	_, err = f.registry.Revoke(ctx, f.admin, first.ID, "plagiarised")
	require.NoError(t, err)
	page, err = f.registry.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cert := f.issue(t, "Essay", "original text")

	_, err := f.registry.Revoke(ctx, f.creator, cert.ID, "nope")
	assert.True(t, apierr.Is(err, apierr.KindForbidden))

	_, err = f.registry.Revoke(ctx, f.admin, cert.ID, "  <b></b> ")
	assert.True(t, apierr.Is(err, apierr.KindValidation))

	got, err := f.registry.Revoke(ctx, f.admin, cert.ID, "AI generated after all")
	require.NoError(t, err)
	assert.Equal(t, types.CertificateRevoked, got.Status)
	require.NotNil(t, got.RevocationReason)
	assert.Equal(t, "AI generated after all", *got.RevocationReason)
	assert.NotNil(t, got.RevokedAt)
	assert.Equal(t, cert.ContentHash, got.ContentHash)
	assert.Equal(t, cert.Signature, got.Signature)

	_, err = f.registry.Revoke(ctx, f.admin, cert.ID, "second reason")
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindConflict))
	assert.Contains(t, apierr.Message(err), "AI generated after all")

	_, err = f.registry.Revoke(ctx, f.admin, "missing", "x")
	assert.True(t, apierr.Is(err, apierr.KindNotFound))

	v, err := f.registry.Verify(ctx, cert.VerificationID)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.True(t, v.SignatureValid)
	assert.Equal(t, types.CertificateRevoked, v.Status)

	var creator types.User
	require.NoError(t, f.db.First(&creator, "id = ?", f.creator.ID).Error)
	assert.Equal(t, 40, creator.TrustScore)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cert := f.issue(t, "A", "text")
	f.issue(t, "B", "text")
	_, err := f.registry.Revoke(ctx, f.admin, cert.ID, "dup")
	require.NoError(t, err)

	s, err := f.registry.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.TotalCertificates)
	assert.Equal(t, int64(1), s.Revoked)
	assert.Equal(t, int64(1), s.TotalCreators)
	assert.Equal(t, int64(2), s.TotalSubmissions)
	assert.Equal(t, int64(0), s.PendingReview)

	certs, err := f.registry.ForCreator(ctx, f.creator.ID, 20)
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}
