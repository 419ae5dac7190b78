package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/stake-plus/trustink/src/apierr"
	"github.com/stake-plus/trustink/src/config"
	"github.com/stake-plus/trustink/src/logging"
	"github.com/stake-plus/trustink/src/sanitize"
	"github.com/stake-plus/trustink/src/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	keyPrefix      = "tik_"
	keySecretBytes = 24
	maxKeyName     = 128
)

// APIKeys issues and checks third-party verification keys. Secrets are
// shown once at creation; only their SHA-256 is stored.
type APIKeys struct {
	db        *gorm.DB
	cfg       config.APIKeyConfig
	sanitizer *sanitize.Policy
	log       *zap.Logger
	random    io.Reader
	now       func() time.Time
}

func NewAPIKeys(db *gorm.DB, cfg config.APIKeyConfig, logger *zap.Logger) *APIKeys {
	return &APIKeys{
		db:        db,
		cfg:       cfg,
		sanitizer: sanitize.New(),
		log:       logging.Component(logger, "apikeys"),
		random:    rand.Reader,
		now:       time.Now,
	}
}

// CreatedKey carries the plaintext secret. It is never retrievable again.
type CreatedKey struct {
	types.APIKey
	Key string `json:"api_key"`
}

type CreateKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

func (k *APIKeys) Create(ctx context.Context, owner *types.User, name string) (*CreatedKey, error) {
	name = k.sanitizer.Text(name)
	if name == "" || utf8.RuneCountInString(name) > maxKeyName {
		return nil, apierr.Validation("key name must be 1 to %d characters", maxKeyName)
	}
	secret, err := k.newSecret()
	if err != nil {
		return nil, apierr.Internal(err)
	}
	key := &types.APIKey{
		ID:         uuid.NewString(),
		OwnerID:    owner.ID,
		OwnerName:  owner.Name,
		Name:       name,
		KeyHash:    hashKey(secret),
		KeyPreview: preview(secret),
		Active:     true,
		CreatedAt:  k.now().UTC(),
	}
	err = k.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&types.APIKey{}).
			Where("owner_id = ? AND active = ?", owner.ID, true).
			Count(&active).Error; err != nil {
			return apierr.Internal(err)
		}
		if k.cfg.MaxActivePerUser > 0 && active >= int64(k.cfg.MaxActivePerUser) {
			return apierr.Validation("maximum of %d active API keys reached", k.cfg.MaxActivePerUser)
		}
		if err := tx.Create(key).Error; err != nil {
			return apierr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	k.log.Info("API key created", zap.String("key_id", key.ID), zap.String("owner_id", owner.ID))
	return &CreatedKey{APIKey: *key, Key: secret}, nil
}

// List returns the owner's keys, newest first. Admins see every key.
func (k *APIKeys) List(ctx context.Context, viewer *types.User) ([]types.APIKey, error) {
	q := k.db.WithContext(ctx).Order("created_at DESC")
	if viewer.Role != types.RoleAdmin {
		q = q.Where("owner_id = ?", viewer.ID)
	}
	var keys []types.APIKey
	if err := q.Find(&keys).Error; err != nil {
		return nil, apierr.Internal(err)
	}
	return keys, nil
}

// Delete deactivates a key. Only its owner or an admin may do so.
func (k *APIKeys) Delete(ctx context.Context, actor *types.User, id string) error {
	var key types.APIKey
	err := k.db.WithContext(ctx).Where("id = ?", id).Take(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierr.NotFound("API key not found")
	}
	if err != nil {
		return apierr.Internal(err)
	}
	if key.OwnerID != actor.ID && actor.Role != types.RoleAdmin {
		return apierr.Forbidden("not your API key")
	}
	if err := k.db.WithContext(ctx).Model(&types.APIKey{}).
		Where("id = ?", id).
		Update("active", false).Error; err != nil {
		return apierr.Internal(err)
	}
	k.log.Info("API key deactivated", zap.String("key_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// Check resolves a presented secret to its active key and records the use.
func (k *APIKeys) Check(ctx context.Context, secret string) (*types.APIKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, apierr.Unauthorized("API key required")
	}
	var key types.APIKey
	err := k.db.WithContext(ctx).
		Where("key_hash = ? AND active = ?", hashKey(secret), true).
		Take(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.Forbidden("invalid API key")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	now := k.now().UTC()
	if err := k.db.WithContext(ctx).Model(&types.APIKey{}).
		Where("id = ?", key.ID).
		Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": now,
		}).Error; err != nil {
		k.log.Warn("API key usage not recorded", zap.String("key_id", key.ID), zap.Error(err))
	} else {
		key.UsageCount++
		key.LastUsedAt = &now
	}
	return &key, nil
}

func (k *APIKeys) newSecret() (string, error) {
	buf := make([]byte, keySecretBytes)
	if _, err := io.ReadFull(k.random, buf); err != nil {
		return "", err
	}
	return keyPrefix + base58.Encode(buf), nil
}

func hashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func preview(secret string) string {
	if len(secret) <= len(keyPrefix)+8 {
		return keyPrefix + "****"
	}
	return secret[:len(keyPrefix)+4] + "****" + secret[len(secret)-4:]
}
