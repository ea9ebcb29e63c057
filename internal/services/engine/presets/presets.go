// Package presets loads community rule presets from YAML. Documents are
// validated against an embedded JSON schema before they are converted into
// domain rulesets.
package presets

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/louisbranch/moodring/internal/services/engine/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// DefaultPresetName names the preset used when no file is configured.
const DefaultPresetName = "default"

//go:embed schema.json
var schemaJSON string

var presetSchema = jsonschema.MustCompileString("presets.schema.json", schemaJSON)

// File is a decoded presets document.
type File struct {
	DefaultPreset string            `yaml:"default_preset" json:"default_preset,omitempty"`
	Communities   map[string]string `yaml:"communities" json:"communities,omitempty"`
	Presets       map[string]Preset `yaml:"presets" json:"presets"`
}

// Preset is one named rule configuration.
type Preset struct {
	Features FeatureFlags      `yaml:"features" json:"features"`
	Rules    Rules             `yaml:"rules" json:"rules"`
	Rewards  map[string]string `yaml:"rewards" json:"rewards,omitempty"`
}

// FeatureFlags are optional; an omitted flag is enabled.
type FeatureFlags struct {
	Stats        *bool `yaml:"stats" json:"stats,omitempty"`
	Chaos        *bool `yaml:"chaos" json:"chaos,omitempty"`
	Achievements *bool `yaml:"achievements" json:"achievements,omitempty"`
	Roles        *bool `yaml:"roles" json:"roles,omitempty"`
}

// Rules lists the role rules of a preset per category.
type Rules struct {
	Mood     []BandRule  `yaml:"mood" json:"mood,omitempty"`
	Energy   []BandRule  `yaml:"energy" json:"energy,omitempty"`
	Activity []BandRule  `yaml:"activity" json:"activity,omitempty"`
	Time     []TimeRule  `yaml:"time" json:"time,omitempty"`
	Chaos    []ChaosRule `yaml:"chaos" json:"chaos,omitempty"`
}

// BandRule claims a role for a stat band.
type BandRule struct {
	Role     string  `yaml:"role" json:"role,omitempty"`
	Name     string  `yaml:"name" json:"name"`
	Priority int     `yaml:"priority" json:"priority,omitempty"`
	Min      float64 `yaml:"min" json:"min"`
	Max      float64 `yaml:"max" json:"max"`
}

// TimeRule claims a role for a time-of-day period.
type TimeRule struct {
	Role     string `yaml:"role" json:"role,omitempty"`
	Name     string `yaml:"name" json:"name"`
	Priority int    `yaml:"priority" json:"priority,omitempty"`
	Period   string `yaml:"period" json:"period"`
}

// ChaosRule adds a role to the chaos pool.
type ChaosRule struct {
	Role      string `yaml:"role" json:"role,omitempty"`
	Name      string `yaml:"name" json:"name"`
	Priority  int    `yaml:"priority" json:"priority,omitempty"`
	Temporary bool   `yaml:"temporary" json:"temporary,omitempty"`
	Duration  string `yaml:"duration" json:"duration,omitempty"`
}

// Default returns a single preset with every feature on and no role rules.
func Default() File {
	return File{
		DefaultPreset: DefaultPresetName,
		Presets:       map[string]Preset{DefaultPresetName: {}},
	}
}

// Load reads and parses a presets file. An empty path returns Default.
func Load(path string) (File, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read presets: %w", err)
	}
	file, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Parse decodes a YAML document, validates it against the schema and checks
// that the default preset resolves.
func Parse(data []byte) (File, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return File{}, fmt.Errorf("decode presets yaml: %w", err)
	}
	if err := validateSchema(raw); err != nil {
		return File{}, err
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("decode presets yaml: %w", err)
	}
	if strings.TrimSpace(file.DefaultPreset) == "" && len(file.Presets) == 1 {
		for name := range file.Presets {
			file.DefaultPreset = name
		}
	}
	if _, ok := file.Presets[file.DefaultPreset]; !ok {
		return File{}, fmt.Errorf("default preset %q is not defined", file.DefaultPreset)
	}
	for communityID, name := range file.Communities {
		if _, ok := file.Presets[name]; !ok {
			return File{}, fmt.Errorf("community %s uses undefined preset %q", communityID, name)
		}
	}
	return file, nil
}

// validateSchema round-trips the YAML tree through JSON so the validator sees
// the same value types encoding/json would produce.
func validateSchema(raw any) error {
	encoded, err := json.Marshal(jsonCompatible(raw))
	if err != nil {
		return fmt.Errorf("encode presets for validation: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode presets for validation: %w", err)
	}
	if err := presetSchema.Validate(doc); err != nil {
		return fmt.Errorf("validate presets: %w", err)
	}
	return nil
}

// jsonCompatible stringifies non-string map keys, such as numeric community
// ids, which YAML allows and JSON does not.
func jsonCompatible(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for key, item := range value {
			out[key] = jsonCompatible(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(value))
		for key, item := range value {
			out[fmt.Sprint(key)] = jsonCompatible(item)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = jsonCompatible(item)
		}
		return out
	default:
		return v
	}
}

// PresetNames returns the defined preset names, sorted.
func (f File) PresetNames() []string {
	names := make([]string, 0, len(f.Presets))
	for name := range f.Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// PresetFor returns the preset name a community uses.
func (f File) PresetFor(communityID string) string {
	if name, ok := f.Communities[strings.TrimSpace(communityID)]; ok {
		return name
	}
	return f.DefaultPreset
}

// RoleNames returns the distinct rule names of a preset in category order.
func (f File) RoleNames(preset string) ([]string, error) {
	p, ok := f.Presets[preset]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", preset)
	}
	var names []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	for _, group := range [][]BandRule{p.Rules.Mood, p.Rules.Energy, p.Rules.Activity} {
		for _, rule := range group {
			add(rule.Name)
		}
	}
	for _, rule := range p.Rules.Time {
		add(rule.Name)
	}
	for _, rule := range p.Rules.Chaos {
		add(rule.Name)
	}
	return names, nil
}

// Ruleset converts a named preset into a validated domain ruleset.
func (f File) Ruleset(preset string) (domain.Ruleset, error) {
	p, ok := f.Presets[preset]
	if !ok {
		return domain.Ruleset{}, fmt.Errorf("unknown preset %q", preset)
	}
	var rules []domain.RoleRule
	bands := []struct {
		category domain.Category
		rules    []BandRule
	}{
		{domain.CategoryMood, p.Rules.Mood},
		{domain.CategoryEnergy, p.Rules.Energy},
		{domain.CategoryActivity, p.Rules.Activity},
	}
	for _, band := range bands {
		for _, rule := range band.rules {
			rules = append(rules, domain.RoleRule{
				Category: band.category,
				RoleID:   rule.Role,
				Name:     rule.Name,
				Priority: rule.Priority,
				Min:      rule.Min,
				Max:      rule.Max,
			})
		}
	}
	for _, rule := range p.Rules.Time {
		period, err := domain.ParsePeriod(rule.Period)
		if err != nil {
			return domain.Ruleset{}, fmt.Errorf("preset %s: time rule %s: %w", preset, rule.Name, err)
		}
		rules = append(rules, domain.RoleRule{
			Category: domain.CategoryTime,
			RoleID:   rule.Role,
			Name:     rule.Name,
			Priority: rule.Priority,
			Period:   period,
		})
	}
	for _, rule := range p.Rules.Chaos {
		var duration time.Duration
		if strings.TrimSpace(rule.Duration) != "" {
			parsed, err := time.ParseDuration(rule.Duration)
			if err != nil {
				return domain.Ruleset{}, fmt.Errorf("preset %s: chaos rule %s: %w", preset, rule.Name, err)
			}
			duration = parsed
		}
		rules = append(rules, domain.RoleRule{
			Category:  domain.CategoryChaos,
			RoleID:    rule.Role,
			Name:      rule.Name,
			Priority:  rule.Priority,
			Temporary: rule.Temporary,
			Duration:  duration,
		})
	}

	ruleset := domain.NewRuleset(preset, p.Features.resolve(), rules, p.Rewards)
	if err := ruleset.Validate(); err != nil {
		return domain.Ruleset{}, fmt.Errorf("preset %s: %w", preset, err)
	}
	return ruleset, nil
}

func (f FeatureFlags) resolve() domain.Features {
	on := func(flag *bool) bool { return flag == nil || *flag }
	return domain.Features{
		Stats:        on(f.Stats),
		Chaos:        on(f.Chaos),
		Achievements: on(f.Achievements),
		Roles:        on(f.Roles),
	}
}
