package models

import "fmt"

// AdKind identifies a category of ad placement. Each kind has its own
// lifecycle rules for preloading, cooldowns and fallbacks.
type AdKind string

const (
	AdKindInterstitial AdKind = "interstitial"
	AdKindRewarded     AdKind = "rewarded"
	AdKindAppOpen      AdKind = "app_open"
	AdKindNative       AdKind = "native"
	AdKindBanner       AdKind = "banner"
)

// Valid reports whether k is one of the known ad kinds.
func (k AdKind) Valid() bool {
	switch k {
	case AdKindInterstitial, AdKindRewarded, AdKindAppOpen, AdKindNative, AdKindBanner:
		return true
	}
	return false
}

// Environment selects which unit id table is consulted.
type Environment string

const (
	EnvironmentTest       Environment = "test"
	EnvironmentProduction Environment = "production"
)

// ParseEnvironment maps a config value to an Environment. Anything other
// than "production" (or "prod") selects the test table so a misconfigured
// build never requests live inventory.
func ParseEnvironment(s string) Environment {
	switch s {
	case "production", "prod":
		return EnvironmentProduction
	default:
		return EnvironmentTest
	}
}

// AdUnit identifies a purchasable ad slot. It is a value type and is never
// mutated after construction.
type AdUnit struct {
	// Surface is the logical placement name, e.g. "INTERSTITIAL_EXPORT_TRIM".
	Surface string `json:"surface"`
	// Kind is the ad category served by this unit.
	Kind AdKind `json:"kind"`
	// UnitID is the opaque identifier supplied by the ad network.
	UnitID string `json:"unit_id"`
	// Environment records which table the unit was resolved from.
	Environment Environment `json:"environment"`
}

// NewAdUnit constructs an AdUnit and validates its kind and id.
func NewAdUnit(surface string, kind AdKind, unitID string, env Environment) (AdUnit, error) {
	if !kind.Valid() {
		return AdUnit{}, fmt.Errorf("unknown ad kind %q", kind)
	}
	if unitID == "" {
		return AdUnit{}, fmt.Errorf("empty unit id for surface %q", surface)
	}
	return AdUnit{Surface: surface, Kind: kind, UnitID: unitID, Environment: env}, nil
}

func (u AdUnit) String() string {
	return fmt.Sprintf("%s/%s(%s)", u.Kind, u.Surface, u.UnitID)
}
