package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// PolicyConfig holds the intake routing thresholds. A submission is
// auto-approved when its human probability is at least AutoApproveMin and
// the creator's trust level is at least MinTrustLevel; it is flagged when
// the probability is below FlagBelow; anything else waits in the queue.
type PolicyConfig struct {
	AutoApproveMin   float64 `yaml:"autoApproveMin"   split_words:"true"`
	FlagBelow        float64 `yaml:"flagBelow"        split_words:"true"`
	MinTrustLevel    string  `yaml:"minTrustLevel"    split_words:"true"`
	MinContentLength int     `yaml:"minContentLength" split_words:"true"`
	MaxTitleLength   int     `yaml:"maxTitleLength"   split_words:"true"`
	QueueLimit       int     `yaml:"queueLimit"       split_words:"true"`
}

func defaultPolicy() PolicyConfig {
	return PolicyConfig{
		AutoApproveMin:   0.70,
		FlagBelow:        0.50,
		MinTrustLevel:    "medium",
		MinContentLength: 50,
		MaxTitleLength:   255,
		QueueLimit:       100,
	}
}

func (p PolicyConfig) validate() error {
	if p.AutoApproveMin < 0 || p.AutoApproveMin > 1 || p.FlagBelow < 0 || p.FlagBelow > 1 {
		return errors.New("policy thresholds must be within [0,1]")
	}
	if p.FlagBelow > p.AutoApproveMin {
		return fmt.Errorf("policy flag threshold %.2f above auto-approve threshold %.2f", p.FlagBelow, p.AutoApproveMin)
	}
	switch p.MinTrustLevel {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("policy min trust level %q must be low, medium or high", p.MinTrustLevel)
	}
	if p.MinContentLength < 1 || p.MaxTitleLength < 1 || p.QueueLimit < 1 {
		return errors.New("policy lengths and queue limit must be positive")
	}
	return nil
}

// TrustConfig holds trust level thresholds and automatic adjustment deltas
type TrustConfig struct {
	DefaultScore  int  `yaml:"defaultScore"  split_words:"true"`
	HighMin       int  `yaml:"highMin"       split_words:"true"`
	MediumMin     int  `yaml:"mediumMin"     split_words:"true"`
	AutoAdjust    bool `yaml:"autoAdjust"    split_words:"true"`
	ApprovedDelta int  `yaml:"approvedDelta" split_words:"true"`
	RejectedDelta int  `yaml:"rejectedDelta" split_words:"true"`
	FlaggedDelta  int  `yaml:"flaggedDelta"  split_words:"true"`
	RevokedDelta  int  `yaml:"revokedDelta"  split_words:"true"`
}

func defaultTrust() TrustConfig {
	return TrustConfig{
		DefaultScore:  50,
		HighMin:       80,
		MediumMin:     50,
		AutoAdjust:    true,
		ApprovedDelta: 10,
		RejectedDelta: -20,
		FlaggedDelta:  -5,
		RevokedDelta:  -50,
	}
}

func (t TrustConfig) validate() error {
	if t.MediumMin < 0 || t.HighMin > 100 || t.MediumMin > t.HighMin {
		return errors.New("trust thresholds must satisfy 0 <= medium <= high <= 100")
	}
	if t.DefaultScore < 0 || t.DefaultScore > 100 {
		return errors.New("trust default score must be within [0,100]")
	}
	return nil
}

// RegistryConfig holds public registry paging and cache settings
type RegistryConfig struct {
	DefaultPageSize int           `yaml:"defaultPageSize" split_words:"true"`
	MaxPageSize     int           `yaml:"maxPageSize"     split_words:"true"`
	CacheTTL        time.Duration `yaml:"cacheTTL"        envconfig:"CACHE_TTL"`
}

func defaultRegistry() RegistryConfig {
	return RegistryConfig{
		DefaultPageSize: 20,
		MaxPageSize:     50,
		CacheTTL:        time.Minute,
	}
}

// APIKeyConfig bounds third-party verification keys
type APIKeyConfig struct {
	MaxActivePerUser int `yaml:"maxActivePerUser" split_words:"true"`
}
