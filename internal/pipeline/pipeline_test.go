package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/LambdaLabsML/agentbeats-submission-action/internal/archive"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/gitinfo"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/scenario"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/upload"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/validate"
)

type stubRunner struct {
	mu       sync.Mutex
	statuses map[string]scenario.Status
	calls    []string
}

func (r *stubRunner) Run(ctx context.Context, name string) scenario.Outcome {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
	status, ok := r.statuses[name]
	if !ok {
		status = scenario.StatusPassed
	}
	out := scenario.Outcome{ScenarioName: name, Status: status, DurationMS: 1}
	if status != scenario.StatusPassed {
		out.Diagnostics = "synthetic " + string(status)
	}
	return out
}

type stubPackager struct {
	called bool
	err    error
}

func (p *stubPackager) Build(sourcePath, outPath string, manifest []byte) (*archive.Artifact, error) {
	p.called = true
	if p.err != nil {
		return nil, p.err
	}
	return &archive.Artifact{Path: outPath, Digest: "abc123", FileCount: 1, TotalSize: 10, Files: []string{"main.py"}}, nil
}

type stubUploader struct {
	called  bool
	request upload.Request
	receipt *upload.Receipt
	err     error
}

func (u *stubUploader) Submit(ctx context.Context, req upload.Request) (*upload.Receipt, error) {
	u.called = true
	u.request = req
	if u.err != nil {
		return nil, u.err
	}
	if u.receipt != nil {
		return u.receipt, nil
	}
	return &upload.Receipt{
		Status:     upload.StatusSubmitted,
		HTTPStatus: 200,
		Info:       &upload.SubmissionInfo{Message: "Submission received"},
		Raw:        json.RawMessage(`{"message":"Submission received"}`),
	}, nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Role = "attacker"
	cfg.SubmissionPath = t.TempDir()
	cfg.APIKey = "key-123"
	cfg.Endpoint = "https://example.com/submit"
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.BaseURL = "https://llm.example.com/v1"
	cfg.ResultPath = filepath.Join(t.TempDir(), "submission_result.json")
	return cfg
}

func testPipeline(t *testing.T, cfg Config) (*Pipeline, *stubRunner, *stubPackager, *stubUploader) {
	t.Helper()
	p, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	runner := &stubRunner{statuses: map[string]scenario.Status{}}
	packager := &stubPackager{}
	uploader := &stubUploader{}
	p.scan = func(string) (validate.Result, error) {
		return validate.Result{OK: true, Files: []string{"main.py"}}, nil
	}
	p.collect = func(string) gitinfo.Info { return gitinfo.Info{} }
	p.runner = runner
	p.packager = packager
	p.uploader = uploader
	return p, runner, packager, uploader
}

func TestRunOffModeSkipsScenarios(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunTests = "false"
	p, runner, packager, uploader := testPipeline(t, cfg)

	report := p.Run(context.Background())

	if len(runner.calls) != 0 {
		t.Fatalf("no scenarios should run in off mode, saw %v", runner.calls)
	}
	if report.Verdict == nil || !report.Verdict.Proceed || len(report.Verdict.Outcomes) != 0 {
		t.Fatalf("off mode verdict should proceed with empty outcomes: %+v", report.Verdict)
	}
	if !packager.called || !uploader.called {
		t.Fatalf("packaging and upload must still happen in off mode")
	}
	if uploader.request.TestResults != nil {
		t.Fatalf("no test results should be sent in off mode")
	}
	if report.Stage != StageDone || report.UploadStatus != UploadSubmitted {
		t.Fatalf("expected done/submitted, got %s/%s", report.Stage, report.UploadStatus)
	}
	if report.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", report.ExitCode)
	}
	data, err := os.ReadFile(cfg.ResultPath)
	if err != nil {
		t.Fatalf("submission result not written: %v", err)
	}
	if !strings.Contains(string(data), "Submission received") {
		t.Fatalf("unexpected result file: %s", data)
	}
}

func TestRunValidationHaltsBeforeScenarios(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunTests = "required"
	p, runner, packager, uploader := testPipeline(t, cfg)
	p.scan = func(string) (validate.Result, error) {
		return validate.Result{
			OK:     false,
			Errors: []validate.Issue{{File: "main.py", Line: 3, Message: "unmatched ')'"}},
			Files:  []string{"main.py"},
		}, nil
	}

	report := p.Run(context.Background())

	if len(runner.calls) != 0 {
		t.Fatalf("validation failure must halt before any scenario: %v", runner.calls)
	}
	if packager.called || uploader.called {
		t.Fatalf("packaging/upload must never run after a validation halt")
	}
	if report.Stage != StageHalted || report.FailureStage != StageValidating {
		t.Fatalf("expected halt at validating, got %s/%s", report.Stage, report.FailureStage)
	}
	if report.Verdict != nil {
		t.Fatalf("no verdict should exist when validation halts")
	}
	if report.ExitCode != 1 {
		t.Fatalf("expected exit 1, got %d", report.ExitCode)
	}
}

func TestRunRequiredFailureBlocksPackaging(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunTests = "block"
	p, runner, packager, uploader := testPipeline(t, cfg)
	runner.statuses["extraction"] = scenario.StatusFailed

	report := p.Run(context.Background())

	if packager.called || uploader.called {
		t.Fatalf("packaging/upload must never be invoked when required tests block")
	}
	if report.Stage != StageHalted || report.FailureStage != StageDeciding {
		t.Fatalf("expected halt at deciding, got %s/%s", report.Stage, report.FailureStage)
	}
	if report.Verdict == nil || report.Verdict.Proceed || !report.Verdict.Blocking {
		t.Fatalf("expected blocking verdict: %+v", report.Verdict)
	}
	if !strings.Contains(report.FailureReason, "extraction") {
		t.Fatalf("failure reason should name the scenario, got %q", report.FailureReason)
	}
	if report.ExitCode != 1 {
		t.Fatalf("expected exit 1, got %d", report.ExitCode)
	}
}

func TestRunRequiredErroredBlocksLikeFailed(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunTests = "required"
	p, runner, _, _ := testPipeline(t, cfg)
	runner.statuses["roleplay"] = scenario.StatusErrored

	report := p.Run(context.Background())

	if report.Stage != StageHalted {
		t.Fatalf("an errored scenario must block like a failed one, got %s", report.Stage)
	}
	if report.Verdict.Outcomes[1].Status != scenario.StatusErrored {
		t.Fatalf("errored status must stay distinguishable in the report: %+v", report.Verdict.Outcomes)
	}
}

func TestRunWarnContinuesWithFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunTests = "true"
	p, _, packager, uploader := testPipeline(t, cfg)
	p.runner = &stubRunner{statuses: map[string]scenario.Status{"roleplay": scenario.StatusFailed}}

	report := p.Run(context.Background())

	verdict := report.Verdict
	if verdict == nil || !verdict.Proceed || verdict.Blocking {
		t.Fatalf("warn mode must proceed without blocking: %+v", verdict)
	}
	if len(verdict.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(verdict.Outcomes))
	}
	for i, name := range scenario.CanonicalOrder() {
		if verdict.Outcomes[i].ScenarioName != name {
			t.Fatalf("outcomes must be in canonical order, got %+v", verdict.Outcomes)
		}
	}
	if verdict.Outcomes[1].Status != scenario.StatusFailed {
		t.Fatalf("expected roleplay failed, got %+v", verdict.Outcomes[1])
	}
	if !packager.called || !uploader.called {
		t.Fatalf("warn failures must not stop packaging/upload")
	}
	if uploader.request.TestResults == nil || !strings.Contains(string(uploader.request.TestResults), "roleplay") {
		t.Fatalf("test results should accompany the upload: %s", uploader.request.TestResults)
	}
	if report.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", report.ExitCode)
	}
}

func TestRunUploadRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunTests = "true"
	p, _, _, _ := testPipeline(t, cfg)
	rejecting := &stubUploader{receipt: &upload.Receipt{
		Status:     upload.StatusRejected,
		Reason:     "Invalid API key",
		HTTPStatus: 403,
	}}
	p.uploader = rejecting

	report := p.Run(context.Background())

	if report.Stage != StageDone || report.UploadStatus != UploadRejected {
		t.Fatalf("expected done/rejected, got %s/%s", report.Stage, report.UploadStatus)
	}
	if report.ExitCode != 1 {
		t.Fatalf("rejected upload must exit nonzero, got %d", report.ExitCode)
	}
	if report.FailureReason != "Invalid API key" {
		t.Fatalf("rejection reason must be verbatim, got %q", report.FailureReason)
	}
	if report.Verdict == nil || !report.Verdict.Proceed {
		t.Fatalf("test phase was not the cause; verdict should still proceed: %+v", report.Verdict)
	}
}

func TestRunUploadTransportError(t *testing.T) {
	cfg := testConfig(t)
	p, _, _, _ := testPipeline(t, cfg)
	p.uploader = &stubUploader{receipt: &upload.Receipt{
		Status: upload.StatusTransportError,
		Reason: "API endpoint not found.",
	}}

	report := p.Run(context.Background())

	if report.UploadStatus != UploadTransportError || report.ExitCode != 1 {
		t.Fatalf("expected transport-error exit 1, got %s exit %d", report.UploadStatus, report.ExitCode)
	}
	if report.FailureStage != StageUploading {
		t.Fatalf("failure stage should be uploading, got %s", report.FailureStage)
	}
}

func TestRunEmptyDirectoryHaltsPackaging(t *testing.T) {
	cfg := testConfig(t)
	p, _, packager, uploader := testPipeline(t, cfg)
	packager.err = archive.ErrEmptyDirectory

	report := p.Run(context.Background())

	if report.Stage != StageHalted || report.FailureStage != StagePackaging {
		t.Fatalf("expected halt at packaging, got %s/%s", report.Stage, report.FailureStage)
	}
	if uploader.called {
		t.Fatalf("upload must not run after a packaging failure")
	}
}

func TestRunSingleScenarioSelector(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunTests = "warn"
	cfg.Scenario = "roleplay"
	p, runner, _, _ := testPipeline(t, cfg)

	report := p.Run(context.Background())

	if len(runner.calls) != 1 || runner.calls[0] != "roleplay" {
		t.Fatalf("only the selected scenario should run, saw %v", runner.calls)
	}
	if len(report.Verdict.Outcomes) != 1 || report.Verdict.Outcomes[0].ScenarioName != "roleplay" {
		t.Fatalf("unexpected outcomes: %+v", report.Verdict.Outcomes)
	}
}

func TestNewRejectsUnknownScenario(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scenario = "bogus"
	if _, err := New(cfg, nil); err == nil {
		t.Fatalf("expected error for unknown scenario")
	}
}

func TestNewRejectsBadTestMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunTests = "sometimes"
	if _, err := New(cfg, nil); err == nil {
		t.Fatalf("expected error for invalid run_tests value")
	}
}

func TestSkippedReport(t *testing.T) {
	cfg := testConfig(t)
	report := SkippedReport(cfg, "commit message contains [skip submit]")
	if report.ExitCode != 0 || report.UploadStatus != UploadSkipped || report.Stage != StageDone {
		t.Fatalf("unexpected skipped report: %+v", report)
	}
}
