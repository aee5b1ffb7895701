package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/LambdaLabsML/agentbeats-submission-action/internal/archive"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/gitinfo"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/openai"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/scenario"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/upload"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/validate"
)

// Packager turns a validated source tree into the single deterministic
// artifact the uploader sends.
type Packager interface {
	Build(sourcePath, outPath string, manifest []byte) (*archive.Artifact, error)
}

// Uploader hands the artifact to the competition endpoint exactly
// once.
type Uploader interface {
	Submit(ctx context.Context, req upload.Request) (*upload.Receipt, error)
}

// Pipeline sequences validation, optional scenario testing, packaging
// and upload into one run with a single consolidated report. Stages
// never overlap; only scenario runs inside the testing stage fan out.
type Pipeline struct {
	cfg   Config
	mode  TestMode
	names []string
	obs   *Observability

	scan     func(sourcePath string) (validate.Result, error)
	collect  func(dir string) gitinfo.Info
	runner   scenario.Runner
	packager Packager
	uploader Uploader
}

func New(cfg Config, obs *Observability) (*Pipeline, error) {
	mode, err := ParseTestMode(cfg.RunTests)
	if err != nil {
		return nil, err
	}
	names, err := scenario.Resolve(cfg.Scenario)
	if err != nil {
		return nil, err
	}

	runner := &scenario.MatchRunner{
		Client: openai.NewClient(openai.Config{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey.Reveal(),
		}),
		Launcher: scenario.PythonLauncher{
			SourcePath: cfg.SubmissionPath,
			Entrypoint: cfg.Match.Entrypoint,
			Python:     cfg.Match.Python,
			Env: []string{
				"OPENAI_API_KEY=" + cfg.LLM.APIKey.Reveal(),
				"OPENAI_BASE_URL=" + cfg.LLM.BaseURL,
			},
		},
		Config: scenario.MatchConfig{
			Role:     cfg.Role,
			Model:    cfg.LLM.Model,
			Timeout:  time.Duration(cfg.Match.TimeoutSec) * time.Second,
			MaxTurns: cfg.Match.MaxTurns,
		},
	}

	return &Pipeline{
		cfg:      cfg,
		mode:     mode,
		names:    names,
		obs:      obs,
		scan:     validate.Scan,
		collect:  gitinfo.Collect,
		runner:   runner,
		packager: packagerFunc(archive.Build),
		uploader: upload.NewClient(upload.Config{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey.Reveal(),
		}),
	}, nil
}

type packagerFunc func(sourcePath, outPath string, manifest []byte) (*archive.Artifact, error)

func (f packagerFunc) Build(sourcePath, outPath string, manifest []byte) (*archive.Artifact, error) {
	return f(sourcePath, outPath, manifest)
}

// Run drives the pipeline to a terminal state. It always returns a
// report; failures end up inside it, never as a returned error.
func (p *Pipeline) Run(ctx context.Context) *Report {
	ctx, span := otel.Tracer(p.cfg.Observer.ServiceName).Start(ctx, "submission.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("role", p.cfg.Role),
		attribute.String("test_mode", string(p.mode)),
	)

	report := &Report{
		Role:           p.cfg.Role,
		SubmissionPath: p.cfg.SubmissionPath,
		TestMode:       p.mode,
		Stage:          StageInit,
		UploadStatus:   UploadSkipped,
		StartedAt:      nowRFC3339(),
	}
	defer func() {
		report.FinishedAt = nowRFC3339()
		report.ExitCode = computeExit(report.Stage, report.UploadStatus)
		p.obs.MarkRun(ctx, report.Stage, report.UploadStatus)
	}()

	info := p.collect(p.cfg.SubmissionPath)
	if !info.Empty() {
		report.Git = &info
	}

	report.Stage = StageValidating
	result, err := p.scan(p.cfg.SubmissionPath)
	if err != nil {
		p.halt(report, StageValidating, "validation could not run: "+err.Error())
		return report
	}
	report.Validation = result
	if !result.OK {
		p.halt(report, StageValidating, fmt.Sprintf("validation found %d error(s)", len(result.Errors)))
		return report
	}
	slog.Info("validation passed", "files", len(result.Files), "warnings", len(result.Warnings))

	var outcomes []scenario.Outcome
	if p.mode == TestModeOff {
		report.Stage = StageSkipTesting
		slog.Info("scenario tests disabled")
	} else {
		report.Stage = StageTesting
		slog.Info("running scenarios", "scenarios", p.names, "mode", string(p.mode), "max_parallel", p.cfg.Match.MaxParallel)
		outcomes = scenario.RunAll(ctx, p.runner, p.names, p.cfg.Match.MaxParallel)
		for _, out := range outcomes {
			p.obs.MarkScenario(ctx, out.ScenarioName, string(out.Status), out.DurationMS)
			slog.Info("scenario finished", "scenario", out.ScenarioName, "status", string(out.Status), "turns", out.Turns, "duration_ms", out.DurationMS)
		}
	}

	report.Stage = StageDeciding
	verdict := Reduce(p.mode, outcomes)
	report.Verdict = &verdict
	if !verdict.Proceed {
		p.halt(report, StageDeciding, blockingReason(verdict))
		return report
	}
	for _, out := range verdict.Failing() {
		slog.Warn("scenario did not pass", "scenario", out.ScenarioName, "status", string(out.Status), "diagnostics", out.Diagnostics)
	}

	report.Stage = StagePackaging
	artifact, err := p.packager.Build(p.cfg.SubmissionPath, p.cfg.ArtifactPath, gitinfo.Marshal(info))
	if err != nil {
		p.halt(report, StagePackaging, "packaging failed: "+err.Error())
		return report
	}
	report.Artifact = artifact
	slog.Info("artifact packaged", "path", artifact.Path, "files", artifact.FileCount, "bytes", artifact.TotalSize, "digest", artifact.Digest)

	report.Stage = StageUploading
	receipt, err := p.uploader.Submit(ctx, upload.Request{
		Role:         p.cfg.Role,
		ArtifactPath: artifact.Path,
		TestResults:  marshalOutcomes(verdict.Outcomes),
	})
	if err != nil {
		p.halt(report, StageUploading, "upload could not start: "+err.Error())
		return report
	}
	report.Upload = receipt
	report.UploadStatus = mapUploadStatus(receipt.Status)
	p.obs.MarkUpload(ctx, report.UploadStatus)

	if receipt.Status == upload.StatusSubmitted {
		if receipt.Info != nil {
			report.Message = receipt.Info.Message
		}
		p.writeResult(receipt)
		slog.Info("submission accepted", "status", string(receipt.Status), "http_status", receipt.HTTPStatus)
	} else {
		report.FailureStage = StageUploading
		report.FailureReason = uploadFailureReason(receipt)
		slog.Error("submission not accepted", "status", string(receipt.Status), "reason", receipt.Reason, "http_status", receipt.HTTPStatus)
	}
	report.Stage = StageDone
	return report
}

func (p *Pipeline) halt(report *Report, at Stage, reason string) {
	report.Stage = StageHalted
	report.FailureStage = at
	report.FailureReason = reason
	slog.Error("pipeline halted", "stage", string(at), "reason", reason)
}

// writeResult persists the endpoint's accounting next to the artifact
// so CI steps after this one can read it. Failure to write is logged,
// not fatal: the submission already happened.
func (p *Pipeline) writeResult(receipt *upload.Receipt) {
	if len(receipt.Raw) == 0 {
		return
	}
	var pretty bytes.Buffer
	body := []byte(receipt.Raw)
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		body = pretty.Bytes()
	}
	if err := os.WriteFile(p.cfg.ResultPath, body, 0o644); err != nil {
		slog.Warn("could not write submission result", "path", p.cfg.ResultPath, "error", err)
	}
}

func blockingReason(verdict Verdict) string {
	failing := verdict.Failing()
	names := make([]string, 0, len(failing))
	for _, out := range failing {
		names = append(names, fmt.Sprintf("%s (%s)", out.ScenarioName, out.Status))
	}
	return fmt.Sprintf("required tests blocked the submission: %d of %d scenario(s) did not pass: %s",
		len(failing), len(verdict.Outcomes), strings.Join(names, ", "))
}

func uploadFailureReason(receipt *upload.Receipt) string {
	if receipt.Reason != "" {
		return receipt.Reason
	}
	return string(receipt.Status)
}

func mapUploadStatus(status upload.Status) UploadStatus {
	switch status {
	case upload.StatusSubmitted:
		return UploadSubmitted
	case upload.StatusRejected:
		return UploadRejected
	default:
		return UploadTransportError
	}
}

func marshalOutcomes(outcomes []scenario.Outcome) json.RawMessage {
	if len(outcomes) == 0 {
		return nil
	}
	data, err := json.Marshal(outcomes)
	if err != nil {
		return nil
	}
	return data
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
