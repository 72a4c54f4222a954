package config

import (
	"fmt"
	"sort"
	"strings"
)

// ResolvePreset returns the active preset with unset fields filled from the built-in preset of the
// same name, falling back to the standard preset for custom names.
func (e ExtractionConfig) ResolvePreset() (PresetConfig, error) {
	name := strings.ToLower(strings.TrimSpace(e.Preset))
	if name == "" {
		name = PresetStandard
	}

	builtin := BuiltinPresets()
	base, isBuiltin := builtin[name]
	custom, isCustom := e.Presets[name]
	if !isBuiltin && !isCustom {
		return PresetConfig{}, fmt.Errorf("unknown extraction preset %q (known: %s)", name, strings.Join(e.presetNames(), ", "))
	}
	if !isBuiltin {
		base = builtin[PresetStandard]
	}

	return mergePreset(base, custom), nil
}

func mergePreset(base, override PresetConfig) PresetConfig {
	out := base
	if override.MaxImages > 0 {
		out.MaxImages = override.MaxImages
	}
	if override.MaxDimension > 0 {
		out.MaxDimension = override.MaxDimension
	}
	if override.Quality > 0 {
		out.Quality = override.Quality
	}
	if len(override.QualityLadder) > 0 {
		out.QualityLadder = append([]int(nil), override.QualityLadder...)
	}
	if override.ByteBudget != 0 {
		out.ByteBudget = override.ByteBudget
	}
	if out.ByteBudget < 0 {
		out.ByteBudget = 0
	}
	return out
}

func (e ExtractionConfig) presetNames() []string {
	seen := map[string]struct{}{}
	for name := range BuiltinPresets() {
		seen[name] = struct{}{}
	}
	for name := range e.Presets {
		seen[strings.ToLower(name)] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the numeric bounds of a resolved preset.
func (p PresetConfig) Validate() error {
	if p.MaxImages <= 0 {
		return fmt.Errorf("max_images must be positive, got %d", p.MaxImages)
	}
	if p.MaxDimension <= 0 {
		return fmt.Errorf("max_dimension must be positive, got %d", p.MaxDimension)
	}
	if p.Quality < 1 || p.Quality > 100 {
		return fmt.Errorf("quality must be within 1..100, got %d", p.Quality)
	}
	for i, q := range p.QualityLadder {
		if q < 1 || q > 100 {
			return fmt.Errorf("quality_ladder[%d] must be within 1..100, got %d", i, q)
		}
		if i > 0 && q >= p.QualityLadder[i-1] {
			return fmt.Errorf("quality_ladder must be strictly descending, got %v", p.QualityLadder)
		}
	}
	return nil
}
