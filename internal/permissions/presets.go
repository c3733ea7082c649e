package permissions

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ent0n29/financeai/internal/finance"
)

//go:embed presets.yaml
var presetsYAML []byte

// ErrUnknownPreset is returned for a preset id that is not defined.
var ErrUnknownPreset = errors.New("unknown privacy preset")

// Preset is a named permission configuration.
type Preset struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Permissions Set    `yaml:"permissions" json:"permissions"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

var (
	presetsOnce sync.Once
	presets     []Preset
	presetsErr  error
)

func loadPresets() {
	presets, presetsErr = parsePresets(presetsYAML)
}

func parsePresets(raw []byte) ([]Preset, error) {
	var f presetFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Presets))
	for _, p := range f.Presets {
		if p.ID == "" {
			return nil, errors.New("parse presets: preset without id")
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("parse presets: duplicate preset %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		for _, c := range finance.Categories() {
			if _, ok := p.Permissions[string(c)]; !ok {
				return nil, fmt.Errorf("parse presets: preset %q does not set %q", p.ID, c)
			}
		}
	}
	return f.Presets, nil
}

// Presets returns the built-in privacy presets.
func Presets() ([]Preset, error) {
	presetsOnce.Do(loadPresets)
	if presetsErr != nil {
		return nil, presetsErr
	}
	out := make([]Preset, len(presets))
	for i, p := range presets {
		p.Permissions = p.Permissions.Clone()
		out[i] = p
	}
	return out, nil
}

// PresetByID looks up a built-in preset.
func PresetByID(id string) (Preset, error) {
	all, err := Presets()
	if err != nil {
		return Preset{}, err
	}
	for _, p := range all {
		if p.ID == id {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, id)
}

// ApplyPreset overlays preset onto current and returns the new set together with one change
// entry per category whose visibility actually changed.
func ApplyPreset(current Set, preset Preset, now time.Time) (Set, []Change) {
	out := GetOrInit(current)
	var changes []Change
	for _, c := range finance.Categories() {
		key := string(c)
		want := preset.Permissions[key]
		if out[key] == want {
			continue
		}
		out[key] = want
		action := ActionRevoked
		if want {
			action = ActionGranted
		}
		changes = append(changes, Change{Category: key, Action: action, Source: "preset:" + preset.ID, At: now.UTC()})
	}
	return out, changes
}
