// Package mediation collects the policy→approval gate a capability service
// applies before it mutates anything. The file service calls Gate for its
// mutating operations; the command and git services apply the same
// decisions inline, and the snapshot service has no gate.
package mediation

import (
	"github.com/silexa/mcp-broker/internal/brokererr"
	"github.com/silexa/mcp-broker/internal/policy"
)

// Gate resolves a policy.Decision against a caller-supplied approval token
// and dry-run flag. It returns nil when the caller may proceed, or the
// *brokererr.Error to return from the tool call otherwise.
//
// dryRun bypasses the approval check entirely — callers must be able to
// preview a require-approval action without supplying consent — but a Deny
// still fails even in dry-run.
func Gate(decision policy.Decision, approvalToken string, dryRun bool, engine *policy.Engine, service, action string) *brokererr.Error {
	switch decision.Kind {
	case policy.Deny:
		return brokererr.PolicyViolation(service, action, "%s", decision.Reason)
	case policy.RequireApproval:
		if dryRun {
			return nil
		}
		if approvalToken == "" {
			return brokererr.ApprovalRequired(service, action, "approval required: %s", decision.Reason)
		}
		if !engine.ValidateApproval(approvalToken) {
			return brokererr.PolicyViolation(service, action, "invalid approval token")
		}
		return nil
	case policy.Allow:
		return nil
	default:
		return brokererr.Internal(service, action, errUnknownDecisionKind)
	}
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errUnknownDecisionKind = sentinelError("unknown policy decision kind")
