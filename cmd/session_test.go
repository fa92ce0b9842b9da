package cmd

import (
	"strings"
	"testing"

	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/spf13/cobra"
)

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("gallery", "", "")
	cmd.Flags().String("backend", "", "")
	cmd.Flags().Float64("threshold", 0.6, "")
	cmd.Flags().String("policy", "best", "")
	cmd.Flags().Bool("headless", false, "")
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return cmd
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	t.Setenv("FACEGATE_THRESHOLD", "0.5")
	t.Setenv("FACEGATE_GALLERY_DIR", "from-env")

	cmd := newFlagCommand(t, "--gallery", "from-flag", "--backend", "LBPH", "--policy", "first", "--headless")
	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Gallery.Dir != "from-flag" {
		t.Errorf("Gallery.Dir = %q, want flag value", cfg.Gallery.Dir)
	}
	if cfg.Model.Backend != config.BackendLBPH {
		t.Errorf("Model.Backend = %q, want %q", cfg.Model.Backend, config.BackendLBPH)
	}
	if cfg.Match.Policy != "first" {
		t.Errorf("Match.Policy = %q, want first", cfg.Match.Policy)
	}
	if cfg.Match.Threshold != 0.5 {
		t.Errorf("unchanged --threshold should keep env value, got %v", cfg.Match.Threshold)
	}
	if cfg.Camera.Window {
		t.Error("--headless should disable the preview window")
	}
}

func TestLoadConfigRejectsInvalidFlags(t *testing.T) {
	cmd := newFlagCommand(t, "--threshold", "1.5")
	_, err := loadConfig(cmd)
	if err == nil || !strings.Contains(err.Error(), "threshold") {
		t.Errorf("expected threshold validation error, got %v", err)
	}
}

func TestEnrollOptions(t *testing.T) {
	cfg := config.Defaults()

	opts := enrollOptions(&cfg, "Alice", false)
	if opts.Name != "Alice" || opts.DuplicateDistance != cfg.Gallery.DuplicateDistance {
		t.Errorf("unexpected options %+v", opts)
	}
	if forced := enrollOptions(&cfg, "", true); forced.DuplicateDistance >= 0 {
		t.Errorf("--force should disable the duplicate check, got %+v", forced)
	}
}
