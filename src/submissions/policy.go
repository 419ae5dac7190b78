// Package submissions implements content intake, routing and the
// moderation queue.
package submissions

import (
	"github.com/stake-plus/trustink/src/config"
	"github.com/stake-plus/trustink/src/types"
)

// Route picks the intake outcome for a scored submission: auto-approve when
// the text reads as human and the creator is trusted enough, flag a strong
// AI signal, and queue everything else.
func Route(policy config.PolicyConfig, humanProbability float64, level types.TrustLevel) types.SubmissionStatus {
	switch {
	case humanProbability >= policy.AutoApproveMin && level.Rank() >= types.TrustLevel(policy.MinTrustLevel).Rank():
		return types.StatusApproved
	case humanProbability < policy.FlagBelow:
		return types.StatusFlagged
	default:
		return types.StatusPending
	}
}
