package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
)

const hotLog = "LIMIT_USAGE_FOR_NS|(default)|\n  Number of SOQL queries: 95 out of 100\n\n"

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		validateDump, validateYAML = false, false
		reportFormat, reportOut = "text", ""
		analyzeNamespace = ""
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseDuration(t *testing.T) {
	if got := parseDuration("90s", time.Minute); got != 90*time.Second {
		t.Errorf("Expected 90s, got %v", got)
	}
	if got := parseDuration("soon", time.Minute); got != time.Minute {
		t.Errorf("Expected fallback of 1m, got %v", got)
	}
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "07L1.log"), []byte(hotLog), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(t.TempDir(), "missing.yaml")

	out, err := runCLI(t, "-c", cfgPath, "analyze", dir, "--format", "markdown")
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !strings.Contains(out, "# Governor Limits Consumption") {
		t.Errorf("Expected markdown report, got:\n%s", out)
	}
	if !strings.Contains(out, "07L1.log") {
		t.Errorf("Expected log file in report, got:\n%s", out)
	}
}

func TestAnalyzeCommand_WritesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "07L1.log"), []byte(hotLog), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(t.TempDir(), "reports", "limits.html")

	out, err := runCLI(t, "-c", filepath.Join(dir, "none.yaml"), "analyze", dir, "-f", "html", "-o", target)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !strings.Contains(out, "Report written to") {
		t.Errorf("Expected confirmation, got %q", out)
	}
	body, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("Expected report file: %v", err)
	}
	if !strings.Contains(string(body), "<html") {
		t.Error("Expected HTML report body")
	}
}

func TestValidateCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "limitsmate.yaml")
	body := "report:\n  threshold: 75\n  treshold: 80\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "-c", cfgPath, "validate", "--dump")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "report.treshold") {
		t.Errorf("Expected unknown key warning, got:\n%s", out)
	}
	if !strings.Contains(out, "threshold: 75  # default: 50") {
		t.Errorf("Expected modified threshold, got:\n%s", out)
	}
}

func TestValidateCommand_Invalid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "limitsmate.yaml")
	if err := os.WriteFile(cfgPath, []byte("report:\n  threshold: 120\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "-c", cfgPath, "validate"); err == nil {
		t.Error("Expected invalid threshold to fail validation")
	}
}
