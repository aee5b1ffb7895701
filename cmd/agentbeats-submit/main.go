package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/LambdaLabsML/agentbeats-submission-action/internal/ghaction"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/gitinfo"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/pipeline"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/upload"
)

func main() {
	configPath := flag.String("config", envOr("SUBMIT_CONFIG", ""), "Path to config YAML/JSON")
	role := flag.String("role", envOr("INPUT_ROLE", ""), "Submission role: attacker or defender")
	submissionPath := flag.String("submission-path", envOr("INPUT_SUBMISSION_PATH", ""), "Directory containing the agent source")
	apiKey := flag.String("api-key", envOr("INPUT_API_KEY", ""), "Competition API key")
	endpoint := flag.String("endpoint", envOr("INPUT_SUBMISSION_ENDPOINT", ""), "Submission endpoint URL")
	runTests := flag.String("run-tests", envOr("INPUT_RUN_TESTS", ""), "Test mode: off|false|warn|true|required|block")
	scenarioName := flag.String("scenario", envOr("INPUT_SCENARIO", ""), "Scenario to run before submitting: catalog name or all")
	openaiKey := flag.String("openai-api-key", envOr("OPENAI_API_KEY", ""), "OpenAI-compatible API key for scenario runs")
	openaiBase := flag.String("openai-base-url", envOr("OPENAI_BASE_URL", ""), "OpenAI-compatible base URL for scenario runs")
	model := flag.String("model", envOr("OPENAI_MODEL", ""), "Opponent model for scenario runs")
	printInfo := flag.Bool("print-info", envBool("INPUT_PRINT_INFO"), "Print detailed submission info after upload")
	reportPath := flag.String("report", "", "Write full pipeline report JSON to this file")
	format := flag.String("format", "text", "Output format: text|json")
	flag.Parse()

	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		exitWith("load config: " + err.Error())
	}
	if *role != "" {
		cfg.Role = *role
	}
	if *submissionPath != "" {
		cfg.SubmissionPath = *submissionPath
	}
	if *apiKey != "" {
		cfg.APIKey = pipeline.Secret(*apiKey)
	}
	if *endpoint != "" {
		cfg.Endpoint = *endpoint
	}
	if *runTests != "" {
		cfg.RunTests = *runTests
	}
	if *scenarioName != "" {
		cfg.Scenario = *scenarioName
	}
	if *openaiKey != "" {
		cfg.LLM.APIKey = pipeline.Secret(*openaiKey)
	}
	if *openaiBase != "" {
		cfg.LLM.BaseURL = *openaiBase
	}
	if *model != "" {
		cfg.LLM.Model = *model
	}
	cfg.PrintInfo = cfg.PrintInfo || *printInfo
	cfg.Role = strings.ToLower(strings.TrimSpace(cfg.Role))

	if err := cfg.Validate(); err != nil {
		exitWith(err.Error())
	}

	commitMessage := envOr("COMMIT_MESSAGE", "")
	if commitMessage == "" {
		commitMessage = gitinfo.Collect(cfg.SubmissionPath).Message
	}
	if ghaction.ShouldSkip(commitMessage) {
		report := pipeline.SkippedReport(cfg, "commit message contains "+ghaction.SkipMarker)
		slog.Info("submission skipped", "marker", ghaction.SkipMarker)
		emit(report, cfg, *format, *reportPath)
		os.Exit(report.ExitCode)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := pipeline.SetupObservability(rootCtx, cfg.Observer)
	if err != nil {
		slog.Error("setup observability failed", "error", err)
		os.Exit(1)
	}

	p, err := pipeline.New(cfg, obs)
	if err != nil {
		exitWith(err.Error())
	}

	report := p.Run(rootCtx)
	emit(report, cfg, *format, *reportPath)

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = obs.Shutdown(shutdownCtx)
	cancel()

	os.Exit(report.ExitCode)
}

func emit(report *pipeline.Report, cfg pipeline.Config, format, reportPath string) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		printJSON(report)
	default:
		printText(report, cfg.PrintInfo)
	}
	if strings.TrimSpace(reportPath) != "" {
		if err := writeReport(reportPath, report); err != nil {
			slog.Warn("could not write report", "path", reportPath, "error", err)
		}
	}
	writeActionFiles(report, cfg)
}

func printText(report *pipeline.Report, verbose bool) {
	fmt.Printf("Role: %s\n", report.Role)
	fmt.Printf("Test mode: %s\n", report.TestMode)

	if len(report.Validation.Files) > 0 || len(report.Validation.Errors) > 0 {
		fmt.Printf("Validation: %d file(s), %d error(s), %d warning(s)\n",
			len(report.Validation.Files), len(report.Validation.Errors), len(report.Validation.Warnings))
		for _, issue := range report.Validation.Errors {
			fmt.Printf("  %s:%d: %s\n", issue.File, issue.Line, issue.Message)
		}
		for _, warning := range report.Validation.Warnings {
			fmt.Printf("  warning: %s\n", warning)
		}
	}

	if report.Verdict != nil && len(report.Verdict.Outcomes) > 0 {
		fmt.Println("Scenarios:")
		for _, out := range report.Verdict.Outcomes {
			fmt.Printf("  [%s] %s - %s (%dms)\n", strings.ToUpper(string(out.Status)), out.ScenarioName, out.Diagnostics, out.DurationMS)
		}
	}

	if report.Artifact != nil {
		fmt.Printf("Artifact: %s (%d files, %d bytes, blake3 %s)\n",
			report.Artifact.Path, report.Artifact.FileCount, report.Artifact.TotalSize, report.Artifact.Digest)
	}

	fmt.Printf("Upload: %s\n", report.UploadStatus)
	if report.Stage == pipeline.StageHalted {
		fmt.Printf("Halted at %s: %s\n", report.FailureStage, report.FailureReason)
	} else if report.FailureReason != "" {
		fmt.Printf("Failure: %s\n", report.FailureReason)
	} else if report.Message != "" {
		fmt.Printf("Message: %s\n", report.Message)
	}

	if verbose && report.Upload != nil && report.Upload.Info != nil {
		info := report.Upload.Info
		fmt.Println()
		fmt.Printf("Team: %s\n", info.TeamName)
		fmt.Printf("Total submissions: %d (attacker %d, defender %d)\n",
			info.SubmissionNumber, info.AttackerSubmissions, info.DefenderSubmissions)
		fmt.Printf("This %s submission: #%d\n", info.Role, info.RoleSubmissionNumber)
		fmt.Printf("Files: %d (%d bytes)\n", info.FileCount, info.TotalSize)
		fmt.Printf("Time: %s\n", info.SubmissionTime)
		fmt.Printf("S3 prefix: %s\n", info.S3Prefix)
	}
}

func printJSON(report *pipeline.Report) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		slog.Error("encode report JSON failed", "error", err)
		return
	}
	fmt.Println(string(data))
}

func writeReport(path string, report *pipeline.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func writeActionFiles(report *pipeline.Report, cfg pipeline.Config) {
	var kvs []ghaction.KV
	var summary string

	switch {
	case report.UploadStatus == pipeline.UploadSkipped && report.Stage == pipeline.StageDone:
		kvs = []ghaction.KV{
			{Key: "status", Value: "skipped"},
			{Key: "message", Value: report.Message},
		}
	case report.UploadStatus == pipeline.UploadSubmitted:
		info := &upload.SubmissionInfo{Role: report.Role}
		if report.Upload != nil && report.Upload.Info != nil {
			info = report.Upload.Info
		}
		message := report.Message
		if message == "" {
			message = "Submission successful"
		}
		kvs = []ghaction.KV{
			{Key: "status", Value: "success"},
			{Key: "submission_number", Value: strconv.Itoa(info.SubmissionNumber)},
			{Key: "message", Value: message},
		}
		var files []string
		if report.Artifact != nil {
			files = report.Artifact.Files
		}
		summary = ghaction.SuccessSummary(info, files, cfg.SubmissionPath)
	default:
		reason := report.FailureReason
		if reason == "" {
			reason = string(report.UploadStatus)
		}
		kvs = []ghaction.KV{
			{Key: "status", Value: "failure"},
			{Key: "message", Value: "Submission failed: " + reason},
		}
		detail := ""
		if report.FailureStage != "" {
			detail = "stage: " + string(report.FailureStage)
		}
		summary = ghaction.FailureSummary(reason, detail)
	}

	if err := ghaction.WriteOutputs(kvs); err != nil {
		slog.Warn("could not write action outputs", "error", err)
	}
	if summary != "" {
		if err := ghaction.WriteSummary(summary); err != nil {
			slog.Warn("could not write action summary", "error", err)
		}
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envBool(key string) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return value == "true" || value == "1" || value == "yes"
}

func exitWith(message string) {
	fmt.Fprintln(os.Stderr, "error:", message)
	os.Exit(2)
}
