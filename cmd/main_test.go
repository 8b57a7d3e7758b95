package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestRootCommand(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd should not be nil")
	}

	if rootCmd.Name() != "index-info" {
		t.Errorf("Expected root command name to be 'index-info', got '%s'", rootCmd.Name())
	}

	want := map[string]bool{
		"full-info":       false,
		"list-images":     false,
		"build-version":   false,
		"validate-images": false,
		"compare":         false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("%s command not found", name)
		}
	}
}

func TestSelectionFlags(t *testing.T) {
	for _, cmd := range []string{"full-info", "list-images", "build-version", "validate-images"} {
		c, _, err := rootCmd.Find([]string{cmd})
		if err != nil {
			t.Fatalf("Find(%s) failed: %v", cmd, err)
		}
		for _, flag := range []string{"channel", "bundle"} {
			if c.Flags().Lookup(flag) == nil {
				t.Errorf("%s is missing --%s", cmd, flag)
			}
		}
	}
	if rootCmd.Flags().ShorthandLookup("c") == nil || rootCmd.Flags().ShorthandLookup("b") == nil {
		t.Error("root command is missing -c/-b")
	}
}

func TestRootRequiresImage(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("Expected error without an index image")
	}
	if !strings.Contains(err.Error(), "accepts 1 arg(s)") {
		t.Errorf("Unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("Expected usage on a missing argument, got %q", out.String())
	}
	if strings.Contains(out.String(), "Error:") {
		t.Errorf("Error should only be printed by main, got %q", out.String())
	}
}

func TestCompareRejectsUnknownAction(t *testing.T) {
	err := compareCmd.Args(compareCmd, []string{"old", "new", "show-everything"})
	if err == nil || !strings.Contains(err.Error(), "invalid action") {
		t.Errorf("Expected invalid action error, got %v", err)
	}
	if err := compareCmd.Args(compareCmd, []string{"old", "new", "show-heads"}); err != nil {
		t.Errorf("show-heads rejected: %v", err)
	}
}

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addPersistentFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return fs
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newFlagSet(t))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Parallelism != 4 || cfg.Namespace != "quay.io/openshift-pipeline/" || !cfg.TLSVerify {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("parallelism: 8\npackage: from-file\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := loadConfig(newFlagSet(t, "--config", path, "--parallel", "2", "--tls-verify=false"))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Parallelism != 2 {
		t.Errorf("Parallelism = %d, want 2", cfg.Parallelism)
	}
	if cfg.Package != "from-file" {
		t.Errorf("Package = %q, want from-file", cfg.Package)
	}
	if cfg.TLSVerify {
		t.Error("TLSVerify should be false")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	if _, err := loadConfig(newFlagSet(t, "--parallel", "0")); err == nil {
		t.Error("Expected error for zero parallelism")
	}
}
