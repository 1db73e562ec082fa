package lifecycle

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickwarner/adshell/internal/models"
)

// Default policy values.
const (
	DefaultInterstitialCooldown = 60 * time.Second
	DefaultAppOpenCooldown      = 30 * time.Second
	DefaultInterstitialRetry    = 30 * time.Second
	DefaultRewardedRetry        = 30 * time.Second
	DefaultAppOpenRetry         = 60 * time.Second
	DefaultMockInterstitial     = 2 * time.Second
	DefaultMockRewarded         = 3 * time.Second
	DefaultRetryMaxInterval     = 10 * time.Minute
)

// DefaultMockReward is granted by the simulated rewarded ad.
var DefaultMockReward = models.Reward{Amount: 50, Type: "bullets"}

// Policy holds the timing rules of the manager. Zero fields take defaults.
type Policy struct {
	// InterstitialCooldown applies when remote config has no usable value.
	InterstitialCooldown time.Duration
	// AppOpenCooldown is fixed and not remote-config driven.
	AppOpenCooldown time.Duration

	InterstitialRetry time.Duration
	RewardedRetry     time.Duration
	AppOpenRetry      time.Duration
	// RetryMaxAttempts caps consecutive failed loads per slot. 0 retries
	// forever.
	RetryMaxAttempts int
	// RetryExponential doubles the retry delay after each consecutive
	// failure, up to RetryMaxInterval.
	RetryExponential bool
	RetryMaxInterval time.Duration

	MockInterstitialDelay time.Duration
	MockRewardedDelay     time.Duration
	MockReward            models.Reward
}

// DefaultPolicy returns the stock timing rules.
func DefaultPolicy() Policy {
	return Policy{}.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.InterstitialCooldown <= 0 {
		p.InterstitialCooldown = DefaultInterstitialCooldown
	}
	if p.AppOpenCooldown <= 0 {
		p.AppOpenCooldown = DefaultAppOpenCooldown
	}
	if p.InterstitialRetry <= 0 {
		p.InterstitialRetry = DefaultInterstitialRetry
	}
	if p.RewardedRetry <= 0 {
		p.RewardedRetry = DefaultRewardedRetry
	}
	if p.AppOpenRetry <= 0 {
		p.AppOpenRetry = DefaultAppOpenRetry
	}
	if p.RetryMaxInterval <= 0 {
		p.RetryMaxInterval = DefaultRetryMaxInterval
	}
	if p.MockInterstitialDelay <= 0 {
		p.MockInterstitialDelay = DefaultMockInterstitial
	}
	if p.MockRewardedDelay <= 0 {
		p.MockRewardedDelay = DefaultMockRewarded
	}
	if p.MockReward == (models.Reward{}) {
		p.MockReward = DefaultMockReward
	}
	return p
}

// RetryDelay returns the base retry delay for a kind.
func (p Policy) RetryDelay(kind models.AdKind) time.Duration {
	switch kind {
	case models.AdKindAppOpen:
		return p.AppOpenRetry
	case models.AdKindRewarded:
		return p.RewardedRetry
	default:
		return p.InterstitialRetry
	}
}

// newBackOff builds the per-slot retry schedule.
func (p Policy) newBackOff(kind models.AdKind) backoff.BackOff {
	base := p.RetryDelay(kind)
	var b backoff.BackOff
	if p.RetryExponential {
		exp := &backoff.ExponentialBackOff{
			InitialInterval:     base,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         p.RetryMaxInterval,
			MaxElapsedTime:      0,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		}
		exp.Reset()
		b = exp
	} else {
		b = backoff.NewConstantBackOff(base)
	}
	if p.RetryMaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.RetryMaxAttempts))
	}
	return b
}
