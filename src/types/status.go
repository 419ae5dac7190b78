package types

type Role string

const (
	RoleCreator  Role = "creator"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCreator, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}

// CanReview reports whether the role may work the moderation queue.
func (r Role) CanReview() bool {
	return r == RoleReviewer || r == RoleAdmin
}

type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
	UserBanned    UserStatus = "banned"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserActive, UserSuspended, UserBanned:
		return true
	}
	return false
}

type TrustLevel string

const (
	TrustLow    TrustLevel = "low"
	TrustMedium TrustLevel = "medium"
	TrustHigh   TrustLevel = "high"
)

// Rank orders trust levels so policies can compare them; unknown levels rank lowest.
func (l TrustLevel) Rank() int {
	switch l {
	case TrustHigh:
		return 2
	case TrustMedium:
		return 1
	}
	return 0
}

type SubmissionStatus string

const (
	StatusPending           SubmissionStatus = "pending"
	StatusFlagged           SubmissionStatus = "flagged"
	StatusApproved          SubmissionStatus = "approved"
	StatusRejected          SubmissionStatus = "rejected"
	StatusRevisionRequested SubmissionStatus = "revision_requested"
)

// OpenStatuses are the states a reviewer may still decide.
var OpenStatuses = []SubmissionStatus{StatusPending, StatusFlagged}

// Decision is a reviewer verdict on an open submission.
type Decision = SubmissionStatus

func ValidDecision(d Decision) bool {
	switch d {
	case StatusApproved, StatusRejected, StatusRevisionRequested:
		return true
	}
	return false
}

type CertificateStatus string

const (
	CertificateActive  CertificateStatus = "active"
	CertificateRevoked CertificateStatus = "revoked"
)
