package runner

import (
	"os"
	"path/filepath"
	"testing"

	"rfid_session_go/internal/config"
	"rfid_session_go/sdk"
)

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	planPath := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(planPath, []byte("antennas: [2]\nop:\n  kind: read\n  bank: tid\n  word_length: 6\n"), 0o600); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	aliasPath := filepath.Join(dir, "aliases.toml")
	if err := os.WriteFile(aliasPath, []byte("[models]\n\"Vega\" = \"fixed-reader\"\n"), 0o600); err != nil {
		t.Fatalf("write aliases: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Reader.PlanFile = planPath
	cfg.Reader.AliasFile = aliasPath
	cfg.Reader.Region = "eu"

	opts, err := FromConfig(cfg, "dock-1")
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if opts.URI != "sim://demo" || opts.Name != "dock-1" || opts.Region != sdk.RegionEU {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if len(opts.Plan.Antennas) != 1 || opts.Plan.Op == nil || opts.Plan.Op.Bank != sdk.BankTID {
		t.Fatalf("plan not loaded: %+v", opts.Plan)
	}
	if len(opts.Session) != len(cfg.SessionOptions())+1 {
		t.Fatalf("alias option not appended")
	}
}

func TestFromConfigRejectsEmptyMetadata(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Reader.Metadata = []string{"none"}
	if _, err := FromConfig(cfg, ""); err == nil {
		t.Fatalf("empty metadata accepted")
	}
}

func TestFromConfigMissingPlan(t *testing.T) {
	cfg, _ := config.Load("")
	cfg.Reader.PlanFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := FromConfig(cfg, ""); err == nil {
		t.Fatalf("missing plan accepted")
	}
}
