package models

// Reward is the payload granted by a rewarded ad.
type Reward struct {
	Amount int    `json:"amount"`
	Type   string `json:"type"`
}

// Reason explains why an ad was not shown.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonVIPExempt           Reason = "vip_exempt"
	ReasonCooldownActive      Reason = "cooldown_active"
	ReasonProviderUnavailable Reason = "provider_unavailable"
	ReasonInProgress          Reason = "in_progress"
	ReasonFailed              Reason = "failed"
)

// Outcome distinguishes "ad declined to run" from "ad ran". Policy refusals
// are outcomes, not errors.
type Outcome struct {
	Shown  bool   `json:"shown"`
	Reason Reason `json:"reason,omitempty"`
	// Mock is set when the simulated path stood in for the provider.
	Mock bool `json:"mock,omitempty"`
}

// Shown is the outcome of a show attempt that reached the provider (or mock).
func Shown() Outcome { return Outcome{Shown: true} }

// NotShown is a refusal with the given reason.
func NotShown(r Reason) Outcome { return Outcome{Reason: r} }

// Label returns a short metric/log label for the outcome.
func (o Outcome) Label() string {
	if o.Shown {
		if o.Mock {
			return "mock"
		}
		return "shown"
	}
	return string(o.Reason)
}

// RewardResult is the resolution of a rewarded show.
type RewardResult struct {
	Outcome Outcome `json:"outcome"`
	// Reward is nil when the user closed the ad before earning it.
	Reward *Reward `json:"reward,omitempty"`
}
