package presets

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/moodring/internal/services/engine/domain"
)

// Provider serves rulesets from a presets file. Every preset is converted and
// validated up front so a bad file fails at startup, not mid-cycle.
type Provider struct {
	file     File
	rulesets map[string]domain.Ruleset
}

// NewProvider converts every preset in file.
func NewProvider(file File) (*Provider, error) {
	rulesets := make(map[string]domain.Ruleset, len(file.Presets))
	for _, name := range file.PresetNames() {
		ruleset, err := file.Ruleset(name)
		if err != nil {
			return nil, err
		}
		rulesets[name] = ruleset
	}
	if _, ok := rulesets[file.DefaultPreset]; !ok {
		return nil, fmt.Errorf("default preset %q is not defined", file.DefaultPreset)
	}
	return &Provider{file: file, rulesets: rulesets}, nil
}

// Ruleset returns the ruleset of the community's preset.
func (p *Provider) Ruleset(ctx context.Context, communityID string) (domain.Ruleset, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ruleset{}, err
	}
	name := p.file.PresetFor(strings.TrimSpace(communityID))
	ruleset, ok := p.rulesets[name]
	if !ok {
		return domain.Ruleset{}, fmt.Errorf("community %s: unknown preset %q", communityID, name)
	}
	return ruleset, nil
}

// File returns the underlying presets document.
func (p *Provider) File() File {
	return p.file
}
