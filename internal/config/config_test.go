package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"briefline/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()
	if got := cfg.Threshold(); got != 0.90 {
		t.Fatalf("threshold = %v, want 0.90", got)
	}
	if !cfg.RequirePublished() {
		t.Fatalf("export gating should default to on")
	}
	if len(cfg.Export.DefaultFormats) == 0 {
		t.Fatalf("expected default export formats")
	}
	if !cfg.KnownRole("strategy-lead") {
		t.Fatalf("default catalog missing strategy-lead")
	}
	if cfg.KnownRole("astrologer") {
		t.Fatalf("unknown role accepted against a non-empty catalog")
	}
}

func TestEmptyCatalogAcceptsAnyRole(t *testing.T) {
	var cfg config.Config
	if !cfg.KnownRole("anything") {
		t.Fatalf("empty catalog should accept any role")
	}
}

func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
review:
  fact_check:
    threshold: 0.85
export:
  require_published: false
  default_formats: [text]
webhooks:
  - url: https://example.com/hook
    events: [deliverable.published]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Threshold() != 0.85 {
		t.Fatalf("threshold = %v", cfg.Threshold())
	}
	if cfg.RequirePublished() {
		t.Fatalf("require_published false not honored")
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].URL != "https://example.com/hook" {
		t.Fatalf("webhooks = %+v", cfg.Webhooks)
	}
}

func TestValidate(t *testing.T) {
	if _, err := config.FromYAML([]byte("review:\n  fact_check:\n    threshold: 1.5\n")); err == nil {
		t.Fatalf("threshold above 1 should fail validation")
	}
	if _, err := config.FromYAML([]byte("webhooks:\n  - events: [a]\n")); err == nil {
		t.Fatalf("webhook without url should fail validation")
	}
	if _, err := config.FromYAML([]byte("not yaml: [")); err == nil {
		t.Fatalf("malformed yaml should error")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional without file: %v", err)
	}
	if cfg.Threshold() != 0.90 {
		t.Fatalf("missing file should fall back to defaults")
	}

	path := filepath.Join(dir, "briefline.yml")
	if err := os.WriteFile(path, []byte("review:\n  fact_check:\n    threshold: 0.95\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional with file: %v", err)
	}
	if cfg.Threshold() != 0.95 {
		t.Fatalf("threshold = %v, want 0.95", cfg.Threshold())
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	if err != nil {
		t.Fatalf("default template invalid: %v", err)
	}
	if len(cfg.Roles.Catalog) == 0 {
		t.Fatalf("default template has empty role catalog")
	}
}
