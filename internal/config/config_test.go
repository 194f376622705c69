package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Marketplace.PageSize != 50 || cfg.Marketplace.MaxPageSize != 200 {
		t.Fatalf("unexpected defaults: %+v", cfg.Marketplace)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`marketplace:
  page_size: 25
  max_page_size: 100
webhooks:
  - url: https://example.com/hook
    events: [session.confirmed, application.accepted]
    timeout_seconds: 3
`)
	if err := os.WriteFile(filepath.Join(dir, "bookline.yml"), data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Marketplace.PageSize != 25 {
		t.Fatalf("page size not loaded: %+v", cfg.Marketplace)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].URL != "https://example.com/hook" {
		t.Fatalf("webhooks not loaded: %+v", cfg.Webhooks)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Marketplace.PageSize = 0
	if cfg.Validate() == nil {
		t.Fatal("zero page size accepted")
	}
	cfg = Default()
	cfg.Marketplace.MaxPageSize = 10
	if cfg.Validate() == nil {
		t.Fatal("max below page size accepted")
	}
	cfg = Default()
	cfg.Webhooks = []WebhookConfig{{URL: ""}}
	if cfg.Validate() == nil {
		t.Fatal("empty webhook url accepted")
	}
}
