package models

import (
	"fmt"
	"sort"
)

// Logical surface names shared by both unit tables.
const (
	SurfaceNativeOnboarding       = "NATIVE_ONBOARDING"
	SurfaceNativeLanguage         = "NATIVE_LANGUAGE"
	SurfaceInterstitialExportTrim = "INTERSTITIAL_EXPORT_TRIM"
	SurfaceInterstitialSaveVideo  = "INTERSTITIAL_SAVE_VIDEO"
	SurfaceInterstitialSplash     = "INTERSTITIAL_SPLASH"
	SurfaceRewardedUnlock         = "REWARDED_UNLOCK"
	SurfaceAppOpenResume          = "APP_OPEN_RESUME"
	SurfaceBannerHome             = "BANNER_HOME"
)

type unitEntry struct {
	kind AdKind
	id   string
}

// testUnits holds the network's public sample identifiers. They always fill
// and never bill.
var testUnits = map[string]unitEntry{
	SurfaceNativeOnboarding:       {AdKindNative, "ca-app-pub-3940256099942544/2247696110"},
	SurfaceNativeLanguage:         {AdKindNative, "ca-app-pub-3940256099942544/2247696110"},
	SurfaceInterstitialExportTrim: {AdKindInterstitial, "ca-app-pub-3940256099942544/1033173712"},
	SurfaceInterstitialSaveVideo:  {AdKindInterstitial, "ca-app-pub-3940256099942544/1033173712"},
	SurfaceInterstitialSplash:     {AdKindInterstitial, "ca-app-pub-3940256099942544/1033173712"},
	SurfaceRewardedUnlock:         {AdKindRewarded, "ca-app-pub-3940256099942544/5224354917"},
	SurfaceAppOpenResume:          {AdKindAppOpen, "ca-app-pub-3940256099942544/9257395921"},
	SurfaceBannerHome:             {AdKindBanner, "ca-app-pub-3940256099942544/6300978111"},
}

var productionUnits = map[string]unitEntry{
	SurfaceNativeOnboarding:       {AdKindNative, "ca-app-pub-7208941695689653/4416524851"},
	SurfaceNativeLanguage:         {AdKindNative, "ca-app-pub-7208941695689653/8164198176"},
	SurfaceInterstitialExportTrim: {AdKindInterstitial, "ca-app-pub-7208941695689653/1790361512"},
	SurfaceInterstitialSaveVideo:  {AdKindInterstitial, "ca-app-pub-7208941695689653/6851116507"},
	SurfaceInterstitialSplash:     {AdKindInterstitial, "ca-app-pub-7208941695689653/5538034833"},
	SurfaceRewardedUnlock:         {AdKindRewarded, "ca-app-pub-7208941695689653/9225032791"},
	SurfaceAppOpenResume:          {AdKindAppOpen, "ca-app-pub-7208941695689653/3911951163"},
	SurfaceBannerHome:             {AdKindBanner, "ca-app-pub-7208941695689653/2598869497"},
}

// UnitTable resolves logical surface names to ad units for one environment.
type UnitTable struct {
	env     Environment
	entries map[string]unitEntry
}

// NewUnitTable returns the table for env.
func NewUnitTable(env Environment) *UnitTable {
	entries := testUnits
	if env == EnvironmentProduction {
		entries = productionUnits
	}
	return &UnitTable{env: env, entries: entries}
}

// NewCustomUnitTable builds a table from explicit units. Used by tests and
// by hosts that receive their ids from a remote source.
func NewCustomUnitTable(env Environment, units []AdUnit) *UnitTable {
	entries := make(map[string]unitEntry, len(units))
	for _, u := range units {
		entries[u.Surface] = unitEntry{kind: u.Kind, id: u.UnitID}
	}
	return &UnitTable{env: env, entries: entries}
}

// Environment returns the environment this table was built for.
func (t *UnitTable) Environment() Environment {
	return t.env
}

// Resolve returns the AdUnit for a surface name.
func (t *UnitTable) Resolve(surface string) (AdUnit, error) {
	e, ok := t.entries[surface]
	if !ok {
		return AdUnit{}, fmt.Errorf("unknown ad surface %q", surface)
	}
	return NewAdUnit(surface, e.kind, e.id, t.env)
}

// ByUnitID finds the first unit (in surface-name order) with the given id
// and kind.
func (t *UnitTable) ByUnitID(kind AdKind, unitID string) (AdUnit, bool) {
	for _, u := range t.UnitsOfKind(kind) {
		if u.UnitID == unitID {
			return u, true
		}
	}
	return AdUnit{}, false
}

// UnitsOfKind lists every unit of the given kind, sorted by surface name.
func (t *UnitTable) UnitsOfKind(kind AdKind) []AdUnit {
	var out []AdUnit
	for surface, e := range t.entries {
		if e.kind != kind {
			continue
		}
		out = append(out, AdUnit{Surface: surface, Kind: e.kind, UnitID: e.id, Environment: t.env})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Surface < out[j].Surface })
	return out
}

// First returns the first unit of a kind, used for the single-slot kinds
// (rewarded, app-open).
func (t *UnitTable) First(kind AdKind) (AdUnit, bool) {
	units := t.UnitsOfKind(kind)
	if len(units) == 0 {
		return AdUnit{}, false
	}
	return units[0], true
}

// DistinctUnitIDs returns the unique unit ids for a kind. Several surfaces
// may share one id, and preloading keys on the id.
func (t *UnitTable) DistinctUnitIDs(kind AdKind) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, u := range t.UnitsOfKind(kind) {
		if _, ok := seen[u.UnitID]; ok {
			continue
		}
		seen[u.UnitID] = struct{}{}
		ids = append(ids, u.UnitID)
	}
	return ids
}
