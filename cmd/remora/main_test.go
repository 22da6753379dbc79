package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nugget/remora/internal/reminders"
)

const testConfigYAML = `
contexts:
  default:
    template: baseline
    injection_rate: 0.1
    temperature: 0.7
  deploy:
    template: deploy-safety
    injection_rate: 1.0
    priority: 10
    keywords: [deploy]
templates:
  baseline:
    type: base
    prompt: "Stay focused."
  deploy-safety:
    type: safety
    prompt: "Confirm rollback plan for {context}."
`

// writeTestConfig writes a config file into a temp dir and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(testConfigYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRun_NoArgsPrintsUsage(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, &buf, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(buf.String(), "Usage: remora") {
		t.Errorf("output missing usage text:\n%s", buf.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var buf bytes.Buffer
	err := run(context.Background(), &buf, &buf, []string{"bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("err = %v, want unknown command", err)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	var buf bytes.Buffer
	err := run(context.Background(), &buf, &buf, []string{"-bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Errorf("err = %v, want unknown flag", err)
	}
}

func TestRun_BadOutputFormat(t *testing.T) {
	var buf bytes.Buffer
	err := run(context.Background(), &buf, &buf, []string{"-o", "xml", "version"})
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("err = %v, want unknown output format", err)
	}
}

func TestRunVersion_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, &buf, []string{"version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Remora") {
		t.Errorf("output missing product name:\n%s", out)
	}
	if !strings.Contains(out, "go_version") {
		t.Errorf("output missing go_version field:\n%s", out)
	}
}

func TestRunVersion_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, &buf, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("decode version JSON: %v", err)
	}
	if info["version"] == "" {
		t.Error("version field missing from JSON output")
	}
}

func TestRunEval_JSON(t *testing.T) {
	cfgPath := writeTestConfig(t)

	var buf bytes.Buffer
	args := []string{"-config", cfgPath, "-o", "json", "eval", "time to deploy the release"}
	if err := run(context.Background(), &buf, &buf, args); err != nil {
		t.Fatalf("run: %v", err)
	}

	var ev reminders.Evaluation
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("decode evaluation: %v", err)
	}
	if ev.Decision.Context != "deploy" {
		t.Errorf("context = %q, want deploy", ev.Decision.Context)
	}
	if ev.Reminder == nil || *ev.Reminder != "Confirm rollback plan for deploy." {
		t.Errorf("reminder = %v, want rendered template", ev.Reminder)
	}
	// Rate 1.0 always injects regardless of the random draw.
	if !ev.Injected {
		t.Error("injected = false, want true at rate 1.0")
	}
}

func TestRunEval_TextOutput(t *testing.T) {
	cfgPath := writeTestConfig(t)

	var buf bytes.Buffer
	args := []string{"-config", cfgPath, "eval", "just saying hello"}
	if err := run(context.Background(), &buf, &buf, args); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "context:     default") {
		t.Errorf("output missing default context:\n%s", out)
	}
	if !strings.Contains(out, "temperature: 0.7") {
		t.Errorf("output missing temperature:\n%s", out)
	}
}

func TestRunEval_MissingMessage(t *testing.T) {
	var buf bytes.Buffer
	err := run(context.Background(), &buf, &buf, []string{"eval"})
	if err == nil || !strings.Contains(err.Error(), "usage: remora eval") {
		t.Errorf("err = %v, want usage error", err)
	}
}

func TestRunEval_MissingConfig(t *testing.T) {
	var buf bytes.Buffer
	args := []string{"-config", filepath.Join(t.TempDir(), "nope.yaml"), "eval", "hi"}
	err := run(context.Background(), &buf, &buf, args)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want config not found", err)
	}
}
