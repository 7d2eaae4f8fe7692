package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/dwalleck/cyril/exec"
)

func TestDefaultPrerequisites(t *testing.T) {
	linux := DefaultPrerequisites("linux")
	if len(linux) != 1 || linux[0].Name != "kiro-cli" || !linux[0].Required || linux[0].Via != "" {
		t.Errorf("linux prerequisites = %+v", linux)
	}

	windows := DefaultPrerequisites("windows")
	if len(windows) != 2 {
		t.Fatalf("windows prerequisites = %+v", windows)
	}
	if windows[0].Name != "wsl" || !windows[0].Required {
		t.Errorf("first windows prerequisite should be wsl, got %+v", windows[0])
	}
	if windows[1].Name != "kiro-cli" || windows[1].Via != "wsl" {
		t.Errorf("kiro-cli should be checked inside wsl, got %+v", windows[1])
	}
}

func TestCheck_Found(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddPath("kiro-cli", "/usr/local/bin/kiro-cli")
	mock.AddExactMatch("kiro-cli", []string{"--version"}, exec.MockResponse{Stdout: []byte("kiro-cli 1.4.2\nbuild abc\n")})

	result := NewChecker(mock).Check(context.Background(), Prerequisite{Name: "kiro-cli", Required: true})

	if !result.Found {
		t.Fatalf("expected found, got error %v", result.Error)
	}
	if result.Path != "/usr/local/bin/kiro-cli" {
		t.Errorf("Path = %q", result.Path)
	}
	if result.Version != "kiro-cli 1.4.2" {
		t.Errorf("Version = %q", result.Version)
	}
}

func TestCheck_VersionFallsBackToSubcommand(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddPath("tool", "/bin/tool")
	mock.AddExactMatch("tool", []string{"--version"}, exec.MockResponse{Err: &exec.MockExitError{Code: 2}})
	mock.AddExactMatch("tool", []string{"version"}, exec.MockResponse{Stdout: []byte("tool v9")})

	result := NewChecker(mock).Check(context.Background(), Prerequisite{Name: "tool"})
	if result.Version != "tool v9" {
		t.Errorf("Version = %q", result.Version)
	}
}

func TestCheck_LongVersionTruncated(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddPath("tool", "/bin/tool")
	mock.AddExactMatch("tool", []string{"--version"}, exec.MockResponse{Stdout: []byte(strings.Repeat("v", 150))})

	result := NewChecker(mock).Check(context.Background(), Prerequisite{Name: "tool"})
	if len(result.Version) != 103 || !strings.HasSuffix(result.Version, "...") {
		t.Errorf("Version not truncated: %d chars", len(result.Version))
	}
}

func TestCheck_NotFound(t *testing.T) {
	mock := exec.NewMockExecutor(nil)

	result := NewChecker(mock).Check(context.Background(), Prerequisite{Name: "definitely-not-a-real-command-12345", Required: true})

	if result.Found {
		t.Error("Check should return Found=false for non-existing command")
	}
	if result.Path != "" {
		t.Error("Check should return empty path for non-existing command")
	}
	if result.Error == nil {
		t.Error("Check should return error for non-existing command")
	}
}

func TestCheck_Via(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("wsl", []string{"which", "kiro-cli"}, exec.MockResponse{Stdout: []byte("/home/me/.local/bin/kiro-cli\n")})
	mock.AddExactMatch("wsl", []string{"kiro-cli", "--version"}, exec.MockResponse{Stdout: []byte("kiro-cli 1.4.2")})

	result := NewChecker(mock).Check(context.Background(), Prerequisite{Name: "kiro-cli", Via: "wsl"})

	if !result.Found {
		t.Fatalf("expected found, got %v", result.Error)
	}
	if result.Path != "/home/me/.local/bin/kiro-cli" {
		t.Errorf("Path = %q", result.Path)
	}
	if result.Version != "kiro-cli 1.4.2" {
		t.Errorf("Version = %q", result.Version)
	}
}

func TestCheck_ViaMissing(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("wsl", []string{"which", "kiro-cli"}, exec.MockResponse{Err: &exec.MockExitError{Code: 1}})

	result := NewChecker(mock).Check(context.Background(), Prerequisite{Name: "kiro-cli", Via: "wsl"})
	if result.Found {
		t.Error("kiro-cli should be missing")
	}
	if result.Error == nil || !strings.Contains(result.Error.Error(), "wsl") {
		t.Errorf("error should name wsl: %v", result.Error)
	}
}

func TestCheckAll(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddPath("echo", "/bin/echo")

	prereqs := []Prerequisite{
		{Name: "echo", Required: true, Description: "Echo"},
		{Name: "fake-cmd-xyz", Required: false, Description: "Fake"},
	}
	results := NewChecker(mock).CheckAll(context.Background(), prereqs)

	if len(results) != len(prereqs) {
		t.Fatalf("CheckAll returned %d results, want %d", len(results), len(prereqs))
	}
	if !results[0].Found {
		t.Error("echo should be found")
	}
	if results[1].Found {
		t.Error("Fake command should not be found")
	}
}

func TestValidateRequired(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddPath("echo", "/bin/echo")
	checker := NewChecker(mock)
	ctx := context.Background()

	if err := checker.ValidateRequired(ctx, []Prerequisite{
		{Name: "echo", Required: true},
		{Name: "fake-optional-cmd-xyz", Required: false},
	}); err != nil {
		t.Errorf("ValidateRequired should not error when only optional commands are missing: %v", err)
	}

	err := checker.ValidateRequired(ctx, []Prerequisite{
		{Name: "echo", Required: true},
		{Name: "fake-required-cmd-xyz", Required: true, Description: "Fake required", InstallURL: "http://example.com"},
	})
	if err == nil {
		t.Fatal("ValidateRequired should return error when required command is missing")
	}
	if !strings.Contains(err.Error(), "fake-required-cmd-xyz") || !strings.Contains(err.Error(), "http://example.com") {
		t.Errorf("Error should mention missing command and install URL: %v", err)
	}
}

func TestNewChecker_DefaultExecutor(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddPath("kiro-cli", "/opt/kiro-cli")
	prev := exec.GetDefaultExecutor()
	exec.SetDefaultExecutor(mock)
	t.Cleanup(func() { exec.SetDefaultExecutor(prev) })

	result := NewChecker(nil).Check(context.Background(), Prerequisite{Name: "kiro-cli"})
	if result.Path != "/opt/kiro-cli" {
		t.Errorf("nil executor should use the default, got %+v", result)
	}
}

func TestFormatCheckResults(t *testing.T) {
	results := []CheckResult{
		{
			Prerequisite: Prerequisite{Name: "found-cmd", Required: true, Description: "Found command"},
			Found:        true,
			Path:         "/usr/bin/found-cmd",
			Version:      "1.0.0",
		},
		{
			Prerequisite: Prerequisite{Name: "kiro-cli", Required: true, Via: "wsl"},
			Found:        false,
		},
		{
			Prerequisite: Prerequisite{Name: "missing-optional", Required: false, Description: "Missing optional"},
			Found:        false,
		},
	}

	output := FormatCheckResults(results)

	for _, want := range []string{"CLI Prerequisites", "✓ found-cmd 1.0.0", "✗ kiro-cli (in wsl) [REQUIRED]", "○ missing-optional [optional]"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestFormatCheckResults_Empty(t *testing.T) {
	output := FormatCheckResults([]CheckResult{})

	if !strings.Contains(output, "CLI Prerequisites") {
		t.Error("Empty results should still contain header")
	}
}
