package pipeline

import (
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/archive"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/gitinfo"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/upload"
	"github.com/LambdaLabsML/agentbeats-submission-action/internal/validate"
)

type Stage string

const (
	StageInit        Stage = "init"
	StageValidating  Stage = "validating"
	StageTesting     Stage = "testing"
	StageSkipTesting Stage = "skip_testing"
	StageDeciding    Stage = "deciding"
	StagePackaging   Stage = "packaging"
	StageUploading   Stage = "uploading"
	StageDone        Stage = "done"
	StageHalted      Stage = "halted"
)

type UploadStatus string

const (
	UploadSubmitted      UploadStatus = "submitted"
	UploadRejected       UploadStatus = "rejected"
	UploadTransportError UploadStatus = "transport-error"
	UploadSkipped        UploadStatus = "skipped"
)

// Report is the pipeline's single consolidated output. The exit code
// is derived from it alone; nothing escapes the run as a panic or a
// stray error.
type Report struct {
	Role           string            `json:"role"`
	SubmissionPath string            `json:"submission_path"`
	TestMode       TestMode          `json:"test_mode"`
	Stage          Stage             `json:"stage"`
	FailureStage   Stage             `json:"failure_stage,omitempty"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	Message        string            `json:"message,omitempty"`
	Validation     validate.Result   `json:"validation"`
	Verdict        *Verdict          `json:"verdict,omitempty"`
	Artifact       *archive.Artifact `json:"artifact,omitempty"`
	Upload         *upload.Receipt   `json:"upload,omitempty"`
	UploadStatus   UploadStatus      `json:"upload_status"`
	Git            *gitinfo.Info     `json:"git,omitempty"`
	StartedAt      string            `json:"started_at"`
	FinishedAt     string            `json:"finished_at"`
	ExitCode       int               `json:"exit_code"`
}

// computeExit maps the terminal state onto the process exit contract:
// zero only for a completed run whose upload was accepted, or for a
// run the commit message explicitly skipped.
func computeExit(stage Stage, status UploadStatus) int {
	if stage == StageDone && (status == UploadSubmitted || status == UploadSkipped) {
		return 0
	}
	return 1
}

// SkippedReport is the terminal report for a run suppressed by the
// commit-message marker: nothing ran, exit zero.
func SkippedReport(cfg Config, reason string) *Report {
	now := nowRFC3339()
	return &Report{
		Role:           cfg.Role,
		SubmissionPath: cfg.SubmissionPath,
		TestMode:       TestModeOff,
		Stage:          StageDone,
		Message:        reason,
		UploadStatus:   UploadSkipped,
		StartedAt:      now,
		FinishedAt:     now,
		ExitCode:       0,
	}
}
