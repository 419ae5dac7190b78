// Package datatest opens migrated in-memory databases for package tests.
package datatest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stake-plus/trustink/src/data"
	"github.com/stake-plus/trustink/src/types"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// DB returns a fresh, migrated sqlite database private to the test.
func DB(t testing.TB) *gorm.DB {
	t.Helper()
	name := fmt.Sprintf("file:trustink_test_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{Logger: gormlogger.Discard, TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, data.Migrate(db))
	return db
}

// User inserts an active user with the given role and trust score.
func User(t testing.TB, db *gorm.DB, role types.Role, score int) *types.User {
	t.Helper()
	n := seq.Add(1)
	u := &types.User{
		ID:           uuid.NewString(),
		Name:         fmt.Sprintf("%s %d", role, n),
		Email:        fmt.Sprintf("%s%d@trustink.test", role, n),
		PasswordHash: "x",
		Role:         role,
		Status:       types.UserActive,
		TrustScore:   score,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, db.Create(u).Error)
	return u
}
