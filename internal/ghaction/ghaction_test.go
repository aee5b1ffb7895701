package ghaction

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LambdaLabsML/agentbeats-submission-action/internal/upload"
)

func TestWriteOutputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output")
	t.Setenv("GITHUB_OUTPUT", path)

	err := WriteOutputs([]KV{
		{Key: "status", Value: "success"},
		{Key: "submission_number", Value: "7"},
		{Key: "message", Value: "line one\nline two"},
	})
	if err != nil {
		t.Fatalf("WriteOutputs returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "status=success\nsubmission_number=7\nmessage=line one line two\n"
	if string(data) != want {
		t.Fatalf("unexpected output file:\n%s", data)
	}
}

func TestWriteOutputsOutsideActions(t *testing.T) {
	t.Setenv("GITHUB_OUTPUT", "")
	if err := WriteOutputs([]KV{{Key: "status", Value: "success"}}); err != nil {
		t.Fatalf("expected no-op without GITHUB_OUTPUT, got %v", err)
	}
}

func TestWriteSummaryAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary")
	t.Setenv("GITHUB_STEP_SUMMARY", path)

	if err := WriteSummary("first\n"); err != nil {
		t.Fatal(err)
	}
	if err := WriteSummary("second\n"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first\nsecond\n" {
		t.Fatalf("summary should append, got %q", data)
	}
}

func TestShouldSkip(t *testing.T) {
	if !ShouldSkip("wip: tuning prompts [skip submit]") {
		t.Fatalf("marker should skip")
	}
	if ShouldSkip("feat: better defender") {
		t.Fatalf("plain message should not skip")
	}
}

func TestSuccessSummary(t *testing.T) {
	info := &upload.SubmissionInfo{
		TeamName:             "lambda-raiders",
		Role:                 "attacker",
		SubmissionNumber:     7,
		AttackerSubmissions:  4,
		DefenderSubmissions:  3,
		RoleSubmissionNumber: 4,
		FileCount:            2,
		TotalSize:            2048,
		SubmissionTime:       "2025-06-01T12:00:00Z",
		Message:              "Submission received",
	}
	md := SuccessSummary(info, []string{"main.py", "lib/util.py"}, "agents/red/")

	for _, want := range []string{
		"## 🔴 Submission Successful!",
		"### Team: **lambda-raiders**",
		"| **Role** | ATTACKER |",
		"| **This Submission** | #4 |",
		"| **Total Size** | 2048 bytes |",
		"> 💡 Submission received",
		"agents/red/main.py",
		"agents/red/lib/util.py",
		"<details>",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("summary missing %q:\n%s", want, md)
		}
	}
}

func TestSuccessSummaryWithoutFiles(t *testing.T) {
	md := SuccessSummary(&upload.SubmissionInfo{Role: "defender"}, nil, "agents/blue")
	if strings.Contains(md, "<details>") {
		t.Fatalf("no file list expected:\n%s", md)
	}
	if !strings.Contains(md, "## 🔵 Submission Successful!") {
		t.Fatalf("defender emoji expected:\n%s", md)
	}
}

func TestFailureSummary(t *testing.T) {
	md := FailureSummary("Invalid API key", "status 403")
	if !strings.Contains(md, "## ❌ Submission Failed") || !strings.Contains(md, "```\nstatus 403\n```") {
		t.Fatalf("unexpected failure summary:\n%s", md)
	}
	plain := FailureSummary("boom", "")
	if strings.Contains(plain, "```") {
		t.Fatalf("no code fence expected without details:\n%s", plain)
	}
}
