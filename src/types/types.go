package types

import "time"

// Users
type User struct {
	ID               string     `gorm:"primaryKey;size:36"          json:"id"`
	Name             string     `gorm:"size:128;not null"           json:"name"`
	Email            string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash     string     `gorm:"size:100;not null"           json:"-"`
	Role             Role       `gorm:"size:16;index;not null"      json:"role"`
	Status           UserStatus `gorm:"size:16;index;not null"      json:"status"`
	TrustScore       int        `gorm:"not null"                    json:"trust_score"`
	VerifiedPosts    int        `gorm:"not null"                    json:"verified_posts"`
	RejectedPosts    int        `gorm:"not null"                    json:"rejected_posts"`
	IdentityVerified bool       `gorm:"not null"                    json:"identity_verified"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Stylometry features stored inline on the submission row
type StylometryFeatures struct {
	WordCount          int     `json:"word_count"`
	SentenceCount      int     `json:"sentence_count"`
	VocabularyRichness float64 `json:"vocabulary_richness"`
	AvgWordLength      float64 `json:"avg_word_length"`
	AvgSentenceLength  float64 `json:"avg_sentence_length"`
}

// Creator submissions and their review state
type Submission struct {
	ID                 string             `gorm:"primaryKey;size:36"      json:"id"`
	CreatorID          string             `gorm:"size:36;index;not null"  json:"creator_id"`
	CreatorName        string             `gorm:"size:128"                json:"creator_name"`
	Title              string             `gorm:"size:255;not null"       json:"title"`
	ContentText        string             `gorm:"type:text;not null"      json:"content_text"`
	ContentURL         *string            `gorm:"size:2048"               json:"content_url"`
	Status             SubmissionStatus   `gorm:"size:24;index;not null"  json:"status"`
	AIHumanProbability float64            `json:"ai_human_probability"`
	AIAIProbability    float64            `gorm:"column:ai_ai_probability" json:"ai_ai_probability"`
	AIConfidence       string             `gorm:"size:16"                 json:"ai_confidence"`
	OracleSource       string             `gorm:"size:64"                 json:"oracle_source"`
	StylometryScore    float64            `json:"stylometry_score"`
	Stylometry         StylometryFeatures `gorm:"embedded;embeddedPrefix:stylo_" json:"stylometry_features"`
	VerificationID     *string            `gorm:"size:32;index"           json:"verification_id"`
	CertificateID      *string            `gorm:"size:36"                 json:"certificate_id"`
	ReviewerID         *string            `gorm:"size:36"                 json:"reviewer_id"`
	DecisionNotes      *string            `gorm:"type:text"               json:"decision_notes"`
	ReviewedAt         *time.Time         `json:"reviewed_at"`
	CreatedAt          time.Time          `gorm:"index"                   json:"created_at"`
}

// Issued certificates. Rows are never deleted; revocation flips Status.
type Certificate struct {
	ID               string            `gorm:"primaryKey;size:36"          json:"id"`
	SubmissionID     string            `gorm:"size:36;uniqueIndex;not null" json:"submission_id"`
	CreatorID        string            `gorm:"size:36;index;not null"      json:"creator_id"`
	CreatorName      string            `gorm:"size:128;index"              json:"creator_name"`
	ContentTitle     string            `gorm:"size:255;index"              json:"content_title"`
	VerificationID   string            `gorm:"size:32;uniqueIndex;not null" json:"verification_id"`
	ContentHash      string            `gorm:"size:64;not null"            json:"content_hash"`
	Signature        string            `gorm:"size:64;not null"            json:"signature"`
	Status           CertificateStatus `gorm:"size:16;index;not null"      json:"status"`
	RevocationReason *string           `gorm:"type:text"                   json:"revocation_reason"`
	RevokedAt        *time.Time        `json:"revoked_at"`
	Timestamp        time.Time         `gorm:"index;not null"              json:"timestamp"`
}

// Third-party verification keys. Only the SHA-256 of the secret is stored.
type APIKey struct {
	ID         string     `gorm:"primaryKey;size:36"         json:"id"`
	OwnerID    string     `gorm:"size:36;index;not null"     json:"owner_id"`
	OwnerName  string     `gorm:"size:128"                   json:"owner_name"`
	Name       string     `gorm:"size:128;not null"          json:"name"`
	KeyHash    string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	KeyPreview string     `gorm:"size:32"                    json:"key_preview"`
	Active     bool       `gorm:"index;not null"             json:"is_active"`
	UsageCount int64      `gorm:"not null"                   json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// MigrateModels lists every table, in dependency order.
var MigrateModels = []any{
	&User{},
	&Submission{},
	&Certificate{},
	&APIKey{},
}
