package policy

import (
	"encoding/json"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/pkg/utils"
)

const (
	Reason_UnsupportedIntent    = "Unsupported intent type"
	Reason_InvalidAmount        = "Amount must be a positive number of cents"
	Reason_InvalidDestination   = "Invalid destination address"
	Reason_Blocklisted          = "Destination is blocklisted"
	Reason_NotAllowlisted       = "Destination is not allowlisted"
	Reason_PerTxLimitExceeded   = "Per-transaction limit exceeded"
	Reason_DailyLimitExceeded   = "Daily limit exceeded"
	Reason_InsufficientSpend    = "Insufficient spend power"
	Reason_InvalidScopes        = "Agent scopes invalid"
	Reason_Allowed              = "Allowed"
	Reason_AllowedNeedsApproval = "Allowed with user approval"
)

type Intent struct {
	Type        string `json:"type"`
	To          string `json:"to"`
	AmountCents int64  `json:"amount_cents"`
}

// Scopes are the limits attached to an agent token.
type Scopes struct {
	PerTxLimitCents      int64    `json:"per_tx_limit_cents"`
	DailyLimitCents      int64    `json:"daily_limit_cents"`
	Allowlist            []string `json:"allowlist,omitempty"`
	Blocklist            []string `json:"blocklist,omitempty"`
	StepUpThresholdCents *int64   `json:"step_up_threshold_cents,omitempty"`
}

type Decision struct {
	Allowed        bool   `json:"allowed"`
	Reason         string `json:"reason"`
	RequiresStepUp bool   `json:"requires_step_up"`
}

// ParseScopes decodes scopes JSON. Both limits must be present and positive.
func ParseScopes(raw string) (*Scopes, bool) {
	scopes := &Scopes{}
	if err := json.Unmarshal([]byte(raw), scopes); err != nil {
		return nil, false
	}
	if scopes.PerTxLimitCents <= 0 || scopes.DailyLimitCents <= 0 {
		return nil, false
	}
	return scopes, true
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

func contains(list []string, address string) bool {
	for _, entry := range list {
		if utils.NormalizeAddress(entry) == address {
			return true
		}
	}
	return false
}

// Evaluate runs the checks in order and returns the first failure. It has no side effects.
func Evaluate(intent Intent, scopes *Scopes, spendPowerCents int64, dailySpentCents int64) Decision {
	if intent.Type != config.IntentType_SendUsdc {
		return deny(Reason_UnsupportedIntent)
	}
	if intent.AmountCents <= 0 {
		return deny(Reason_InvalidAmount)
	}

	to := utils.NormalizeAddress(intent.To)
	if to == "" {
		return deny(Reason_InvalidDestination)
	}
	if scopes == nil {
		return deny(Reason_InvalidScopes)
	}
	if contains(scopes.Blocklist, to) {
		return deny(Reason_Blocklisted)
	}
	if len(scopes.Allowlist) > 0 && !contains(scopes.Allowlist, to) {
		return deny(Reason_NotAllowlisted)
	}
	if intent.AmountCents > scopes.PerTxLimitCents {
		return deny(Reason_PerTxLimitExceeded)
	}
	if dailySpentCents+intent.AmountCents > scopes.DailyLimitCents {
		return deny(Reason_DailyLimitExceeded)
	}
	if intent.AmountCents > spendPowerCents {
		return deny(Reason_InsufficientSpend)
	}

	if scopes.StepUpThresholdCents != nil && intent.AmountCents >= *scopes.StepUpThresholdCents {
		return Decision{Allowed: true, Reason: Reason_AllowedNeedsApproval, RequiresStepUp: true}
	}
	return Decision{Allowed: true, Reason: Reason_Allowed}
}
