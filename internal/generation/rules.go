// File path: internal/generation/rules.go
package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/linkforge/linkforge/internal/scenario"
	validate "github.com/linkforge/linkforge/internal/validator"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// ErrInvalidRequest marks malformed start-generation payloads; handlers map
// it to a 400 before any run record exists.
var ErrInvalidRequest = errors.New("invalid request")

// ScenarioConfig is the per-scenario switch plus tuning parameters. In the
// request body a scenario value may be a bare boolean or a full object.
type ScenarioConfig struct {
	Enabled        bool     `json:"enabled"`
	TopN           int      `json:"top_n,omitempty" validate:"omitempty,min=1,max=50"`
	DepthThreshold int      `json:"depth_threshold,omitempty" validate:"omitempty,min=1,max=20"`
	DaysFresh      int      `json:"days_fresh,omitempty" validate:"omitempty,min=1,max=365"`
	LinksPerDonor  int      `json:"links_per_donor,omitempty" validate:"omitempty,min=1,max=10"`
	HubURLs        []string `json:"hub_urls,omitempty"`
}

func (c *ScenarioConfig) UnmarshalJSON(data []byte) error {
	var enabled bool
	if err := json.Unmarshal(data, &enabled); err == nil {
		*c = ScenarioConfig{Enabled: enabled}
		return nil
	}
	type plain ScenarioConfig
	var full plain
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	*c = ScenarioConfig(full)
	return nil
}

// CannibalizationRules configures the content-overlap gate.
type CannibalizationRules struct {
	Enabled bool   `json:"enabled"`
	Level   string `json:"level,omitempty" validate:"omitempty,oneof=low medium high"`
}

// Rules is the global rule set of a run.
type Rules struct {
	MaxLinks            int                  `json:"max_links" validate:"omitempty,min=1,max=20"`
	StopAnchors         []string             `json:"stop_anchors,omitempty" validate:"max=100"`
	MoneyPages          []string             `json:"money_pages,omitempty" validate:"max=500"`
	DedupeLinks         bool                 `json:"dedupe_links"`
	Cannibalization     CannibalizationRules `json:"cannibalization"`
	BrokenLinksPolicy   string               `json:"broken_links_policy,omitempty" validate:"omitempty,oneof=delete replace ignore"`
	SimilarityThreshold float64              `json:"similarity_threshold,omitempty" validate:"omitempty,min=0,max=1"`
}

// Request is the start-generation payload.
type Request struct {
	ProjectID string                    `json:"project_id" validate:"required,max=128"`
	Scenarios map[string]ScenarioConfig `json:"scenarios" validate:"required"`
	Rules     Rules                     `json:"rules"`
}

// Defaults applied by Normalize.
const (
	defaultMaxLinks            = 3
	defaultBrokenPolicy        = validate.BrokenDelete
	defaultSimilarityThreshold = 0.25
)

// Normalize trims identifiers and fills rule defaults.
func (r *Request) Normalize() {
	r.ProjectID = strings.TrimSpace(r.ProjectID)
	if r.Rules.MaxLinks <= 0 {
		r.Rules.MaxLinks = defaultMaxLinks
	}
	if strings.TrimSpace(r.Rules.BrokenLinksPolicy) == "" {
		r.Rules.BrokenLinksPolicy = defaultBrokenPolicy
	}
	r.Rules.BrokenLinksPolicy = strings.ToLower(strings.TrimSpace(r.Rules.BrokenLinksPolicy))
	if r.Rules.SimilarityThreshold <= 0 {
		r.Rules.SimilarityThreshold = defaultSimilarityThreshold
	}
	if strings.TrimSpace(r.Rules.Cannibalization.Level) == "" {
		r.Rules.Cannibalization.Level = validate.SensitivityMedium
	}
	r.Rules.Cannibalization.Level = strings.ToLower(strings.TrimSpace(r.Rules.Cannibalization.Level))
	cleaned := make([]string, 0, len(r.Rules.StopAnchors))
	for _, stop := range r.Rules.StopAnchors {
		if trimmed := strings.TrimSpace(stop); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	r.Rules.StopAnchors = cleaned
}

// Validate rejects malformed requests before any run record exists.
func (r *Request) Validate() error {
	if err := requestValidator.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	enabled := 0
	for name, cfg := range r.Scenarios {
		if !scenario.Known(name) {
			return fmt.Errorf("%w: unknown scenario %q", ErrInvalidRequest, name)
		}
		if cfg.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("%w: no scenario enabled", ErrInvalidRequest)
	}
	return nil
}

// EnabledScenarios returns the enabled scenario names in fixed execution
// order, so percent apportioning is deterministic.
func (r *Request) EnabledScenarios() []string {
	enabled := make([]string, 0, len(r.Scenarios))
	for _, name := range scenario.Names() {
		if cfg, ok := r.Scenarios[name]; ok && cfg.Enabled {
			enabled = append(enabled, name)
		}
	}
	return enabled
}

// ParamsFor builds the scenario engine parameters for one enabled scenario.
func (r *Request) ParamsFor(name string) scenario.Params {
	cfg := r.Scenarios[name]
	return scenario.Params{
		TopN:           cfg.TopN,
		Threshold:      r.Rules.SimilarityThreshold,
		DepthThreshold: cfg.DepthThreshold,
		DaysFresh:      cfg.DaysFresh,
		LinksPerDonor:  cfg.LinksPerDonor,
		HubURLs:        cfg.HubURLs,
		PriorityURLs:   r.Rules.MoneyPages,
	}
}

// ValidatorConfig maps the request rules onto the constraint gate.
func (r *Request) ValidatorConfig() validate.Config {
	return validate.Config{
		MaxLinks:             r.Rules.MaxLinks,
		DedupeLinks:          r.Rules.DedupeLinks,
		StopAnchors:          r.Rules.StopAnchors,
		Cannibalization:      r.Rules.Cannibalization.Enabled,
		CannibalizationLevel: r.Rules.Cannibalization.Level,
		BrokenLinksPolicy:    r.Rules.BrokenLinksPolicy,
	}
}
