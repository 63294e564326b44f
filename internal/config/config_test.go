package config

import (
	"os"
	"testing"
)

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 0},
		Database: DatabaseConfig{
			Addrs: []string{"localhost:6379"},
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Addrs: []string{},
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_ScoreBounds(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"min_score above 1", func(c *Config) { c.Pipeline.MinScore = 1.5 }},
		{"evidence_threshold negative", func(c *Config) { c.Pipeline.EvidenceThreshold = -0.1 }},
		{"strong_match_score above 1", func(c *Config) { c.Pipeline.StrongMatchScore = 2 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{
				HTTP:     HTTPConfig{Port: 8080},
				Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
			}
			tc.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Database.KeyPrefix != "evidex:" {
		t.Errorf("expected KeyPrefix=evidex:, got %q", cfg.Database.KeyPrefix)
	}
	if cfg.Pipeline.MaxExpansions != 5 {
		t.Errorf("expected MaxExpansions=5, got %d", cfg.Pipeline.MaxExpansions)
	}
	if cfg.Pipeline.MinScore != 0.50 {
		t.Errorf("expected MinScore=0.50, got %g", cfg.Pipeline.MinScore)
	}
	if cfg.Pipeline.RelatedDocBoost != 0.10 {
		t.Errorf("expected RelatedDocBoost=0.10, got %g", cfg.Pipeline.RelatedDocBoost)
	}
	if cfg.Pipeline.ContextCharBudget != 7000 {
		t.Errorf("expected ContextCharBudget=7000, got %d", cfg.Pipeline.ContextCharBudget)
	}
	if cfg.Pipeline.EvidenceThreshold != 0.50 {
		t.Errorf("expected EvidenceThreshold=0.50, got %g", cfg.Pipeline.EvidenceThreshold)
	}
	if cfg.Pipeline.CacheTTL.LongSec != 7*24*3600 {
		t.Errorf("expected long TTL of 7 days, got %d", cfg.Pipeline.CacheTTL.LongSec)
	}
	if cfg.Lexicon.GraphKey != "graph:documents" {
		t.Errorf("expected GraphKey=graph:documents, got %q", cfg.Lexicon.GraphKey)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{
		Pipeline: PipelineConfig{
			MinScore:        0.65,
			RelatedDocBoost: 0.20,
		},
	}
	cfg.ApplyDefaults()

	if cfg.Pipeline.MinScore != 0.65 {
		t.Errorf("expected MinScore=0.65, got %g", cfg.Pipeline.MinScore)
	}
	if cfg.Pipeline.RelatedDocBoost != 0.20 {
		t.Errorf("expected RelatedDocBoost=0.20, got %g", cfg.Pipeline.RelatedDocBoost)
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("EVIDEX_TEST_KEY", "secret")
	defer os.Unsetenv("EVIDEX_TEST_KEY")

	in := []byte("api_key: ${EVIDEX_TEST_KEY}\nmodel: ${EVIDEX_TEST_MODEL:-fallback-model}\n")
	out := string(expandEnvVars(in))

	if out != "api_key: secret\nmodel: fallback-model\n" {
		t.Errorf("unexpected expansion: %q", out)
	}
}
