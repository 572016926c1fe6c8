// File path: internal/generation/rules_test.go
package generation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/linkforge/linkforge/internal/scenario"
	validate "github.com/linkforge/linkforge/internal/validator"
)

func TestScenarioConfigAcceptsBoolOrObject(t *testing.T) {
	var req Request
	payload := `{
                "project_id": "proj",
                "scenarios": {
                        "orphan": true,
                        "cluster": {"enabled": true, "top_n": 7},
                        "freshness": false
                }
        }`
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !req.Scenarios[scenario.Orphan].Enabled {
		t.Fatalf("expected bare true to enable the orphan scenario")
	}
	cluster := req.Scenarios[scenario.Cluster]
	if !cluster.Enabled || cluster.TopN != 7 {
		t.Fatalf("expected object form parsed, got %+v", cluster)
	}
	if req.Scenarios[scenario.Freshness].Enabled {
		t.Fatalf("expected bare false to disable the freshness scenario")
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	req := Request{
		ProjectID: "  proj  ",
		Scenarios: map[string]ScenarioConfig{scenario.Orphan: {Enabled: true}},
		Rules:     Rules{StopAnchors: []string{" click here ", ""}},
	}
	req.Normalize()
	if req.ProjectID != "proj" {
		t.Fatalf("expected trimmed project id, got %q", req.ProjectID)
	}
	if req.Rules.MaxLinks != 3 {
		t.Fatalf("expected default max links 3, got %d", req.Rules.MaxLinks)
	}
	if req.Rules.BrokenLinksPolicy != validate.BrokenDelete {
		t.Fatalf("expected delete default, got %q", req.Rules.BrokenLinksPolicy)
	}
	if req.Rules.SimilarityThreshold != 0.25 {
		t.Fatalf("expected default threshold 0.25, got %f", req.Rules.SimilarityThreshold)
	}
	if req.Rules.Cannibalization.Level != validate.SensitivityMedium {
		t.Fatalf("expected medium default, got %q", req.Rules.Cannibalization.Level)
	}
	if len(req.Rules.StopAnchors) != 1 || req.Rules.StopAnchors[0] != "click here" {
		t.Fatalf("expected cleaned stop anchors, got %v", req.Rules.StopAnchors)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]Request{
		"missing project": {
			Scenarios: map[string]ScenarioConfig{scenario.Orphan: {Enabled: true}},
		},
		"unknown scenario": {
			ProjectID: "proj",
			Scenarios: map[string]ScenarioConfig{"page_rank_magic": {Enabled: true}},
		},
		"nothing enabled": {
			ProjectID: "proj",
			Scenarios: map[string]ScenarioConfig{scenario.Orphan: {Enabled: false}},
		},
		"bad policy": {
			ProjectID: "proj",
			Scenarios: map[string]ScenarioConfig{scenario.Orphan: {Enabled: true}},
			Rules:     Rules{BrokenLinksPolicy: "retry"},
		},
	}
	for name, req := range cases {
		req.Normalize()
		if err := req.Validate(); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: expected ErrInvalidRequest, got %v", name, err)
		}
	}
}

func TestEnabledScenariosFollowExecutionOrder(t *testing.T) {
	req := Request{
		ProjectID: "proj",
		Scenarios: map[string]ScenarioConfig{
			scenario.Freshness:  {Enabled: true},
			scenario.Orphan:     {Enabled: true},
			scenario.Depth:      {Enabled: true},
			scenario.Commercial: {Enabled: false},
		},
	}
	got := req.EnabledScenarios()
	want := []string{scenario.Orphan, scenario.Depth, scenario.Freshness}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestParamsForCarriesRulesIntoScenario(t *testing.T) {
	req := Request{
		ProjectID: "proj",
		Scenarios: map[string]ScenarioConfig{
			scenario.Freshness: {Enabled: true, DaysFresh: 14, LinksPerDonor: 2},
		},
		Rules: Rules{SimilarityThreshold: 0.4, MoneyPages: []string{"https://site.test/pricing"}},
	}
	params := req.ParamsFor(scenario.Freshness)
	if params.DaysFresh != 14 || params.LinksPerDonor != 2 {
		t.Fatalf("unexpected params %+v", params)
	}
	if params.Threshold != 0.4 {
		t.Fatalf("expected threshold from rules, got %f", params.Threshold)
	}
	if len(params.PriorityURLs) != 1 {
		t.Fatalf("expected money pages forwarded, got %v", params.PriorityURLs)
	}
}

func TestValidatorConfigMapping(t *testing.T) {
	req := Request{
		ProjectID: "proj",
		Scenarios: map[string]ScenarioConfig{scenario.Orphan: {Enabled: true}},
		Rules: Rules{
			MaxLinks:          5,
			DedupeLinks:       true,
			StopAnchors:       []string{"click here"},
			Cannibalization:   CannibalizationRules{Enabled: true, Level: "high"},
			BrokenLinksPolicy: validate.BrokenReplace,
		},
	}
	cfg := req.ValidatorConfig()
	if cfg.MaxLinks != 5 || !cfg.DedupeLinks || !cfg.Cannibalization {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.CannibalizationLevel != "high" || cfg.BrokenLinksPolicy != validate.BrokenReplace {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
