// Package cli checks that the external tools cyril drives are installed.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dwalleck/cyril/exec"
)

// Prerequisite represents a required CLI tool
type Prerequisite struct {
	Name        string // Command name (e.g., "kiro-cli", "wsl")
	Required    bool   // Whether the tool is required to run the app
	Description string // Human-readable description
	InstallURL  string // URL for installation instructions
	// Via runs the check inside another command, e.g. "wsl" for a tool
	// installed in the Linux side of a Windows host.
	Via string
}

// DefaultPrerequisites returns the tools needed to run the agent on goos.
func DefaultPrerequisites(goos string) []Prerequisite {
	agent := Prerequisite{
		Name:        "kiro-cli",
		Required:    true,
		Description: "Kiro CLI (ACP agent)",
		InstallURL:  "https://kiro.dev/docs/cli/installation",
	}
	if goos != "windows" {
		return []Prerequisite{agent}
	}
	agent.Via = "wsl"
	return []Prerequisite{
		{
			Name:        "wsl",
			Required:    true,
			Description: "Windows Subsystem for Linux",
			InstallURL:  "https://learn.microsoft.com/windows/wsl/install",
		},
		agent,
	}
}

// CheckResult contains the result of checking a prerequisite
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string // Path to the executable if found
	Version      string // Version string if available
	Error        error
}

const probeTimeout = 10 * time.Second

// Checker looks tools up through an executor.
type Checker struct {
	executor exec.CommandExecutor
}

// NewChecker creates a Checker. A nil executor uses the default one.
func NewChecker(e exec.CommandExecutor) *Checker {
	if e == nil {
		e = exec.GetDefaultExecutor()
	}
	return &Checker{executor: e}
}

// Check verifies that a CLI tool is available.
func (c *Checker) Check(ctx context.Context, prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	if prereq.Via == "" {
		path, err := c.executor.LookPath(prereq.Name)
		if err != nil {
			result.Error = fmt.Errorf("%s not found in PATH", prereq.Name)
			return result
		}
		result.Path = path
	} else {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		out, err := c.executor.Output(pctx, "", prereq.Via, "which", prereq.Name)
		cancel()
		if err != nil {
			result.Error = fmt.Errorf("%s not found in %s", prereq.Name, prereq.Via)
			return result
		}
		result.Path = firstLine(out)
	}

	result.Found = true
	result.Version = c.version(ctx, prereq)
	return result
}

// CheckAll verifies all prerequisites and returns results
func (c *Checker) CheckAll(ctx context.Context, prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, prereq := range prereqs {
		results[i] = c.Check(ctx, prereq)
	}
	return results
}

// ValidateRequired checks that all required prerequisites are met
// Returns nil if all required tools are found, otherwise returns an error
// describing what's missing
func (c *Checker) ValidateRequired(ctx context.Context, prereqs []Prerequisite) error {
	var missing []string

	for _, prereq := range prereqs {
		if !prereq.Required {
			continue
		}
		result := c.Check(ctx, prereq)
		if !result.Found {
			missing = append(missing, fmt.Sprintf("  - %s (%s)\n    Install: %s",
				prereq.Name, prereq.Description, prereq.InstallURL))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required CLI tools:\n%s", strings.Join(missing, "\n"))
	}

	return nil
}

// version attempts to get the version of a CLI tool
func (c *Checker) version(ctx context.Context, prereq Prerequisite) string {
	// wsl itself has no cheap version flag on older builds
	if prereq.Name == "wsl" {
		return ""
	}
	for _, flag := range []string{"--version", "version"} {
		name, args := prereq.Name, []string{flag}
		if prereq.Via != "" {
			name, args = prereq.Via, []string{prereq.Name, flag}
		}
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		out, err := c.executor.Output(pctx, "", name, args...)
		cancel()
		if err == nil {
			if v := firstLine(out); v != "" {
				// Limit length to avoid overly long version strings
				if len(v) > 100 {
					v = v[:100] + "..."
				}
				return v
			}
		}
	}
	return ""
}

func firstLine(out []byte) string {
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line)
}

// FormatCheckResults formats check results for display
func FormatCheckResults(results []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("CLI Prerequisites:\n")
	for _, r := range results {
		status := "✓"
		if !r.Found {
			if r.Prerequisite.Required {
				status = "✗"
			} else {
				status = "○"
			}
		}

		sb.WriteString(fmt.Sprintf("  %s %s", status, r.Prerequisite.Name))
		if r.Prerequisite.Via != "" {
			sb.WriteString(fmt.Sprintf(" (in %s)", r.Prerequisite.Via))
		}
		if r.Found && r.Version != "" {
			sb.WriteString(fmt.Sprintf(" %s", r.Version))
		} else if !r.Found {
			if r.Prerequisite.Required {
				sb.WriteString(" [REQUIRED]")
			} else {
				sb.WriteString(" [optional]")
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
