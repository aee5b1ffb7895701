package ghaction

import (
	"fmt"
	"os"
	"strings"

	"github.com/LambdaLabsML/agentbeats-submission-action/internal/upload"
)

// SkipMarker in the head commit message suppresses the whole pipeline.
const SkipMarker = "[skip submit]"

func ShouldSkip(commitMessage string) bool {
	return strings.Contains(commitMessage, SkipMarker)
}

type KV struct {
	Key   string
	Value string
}

// WriteOutputs appends step outputs to the file GitHub Actions names
// in GITHUB_OUTPUT. Outside Actions the variable is unset and the call
// is a no-op. Values are flattened to one line.
func WriteOutputs(kvs []KV) error {
	path := os.Getenv("GITHUB_OUTPUT")
	if path == "" {
		return nil
	}
	var b strings.Builder
	for _, kv := range kvs {
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(strings.ReplaceAll(kv.Value, "\n", " "))
		b.WriteByte('\n')
	}
	return appendFile(path, b.String())
}

// WriteSummary appends markdown to the job summary file named in
// GITHUB_STEP_SUMMARY, a no-op outside Actions.
func WriteSummary(markdown string) error {
	path := os.Getenv("GITHUB_STEP_SUMMARY")
	if path == "" {
		return nil
	}
	return appendFile(path, markdown)
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}

func SuccessSummary(info *upload.SubmissionInfo, files []string, submissionPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s Submission Successful!\n\n", roleEmoji(info.Role))
	fmt.Fprintf(&b, "### Team: **%s**\n\n", orDefault(info.TeamName, "Unknown"))
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| **Role** | %s |\n", strings.ToUpper(info.Role))
	fmt.Fprintf(&b, "| **This Submission** | #%d |\n", info.RoleSubmissionNumber)
	fmt.Fprintf(&b, "| **Total Submissions** | %d |\n", info.SubmissionNumber)
	fmt.Fprintf(&b, "| **Attacker Submissions** | %d |\n", info.AttackerSubmissions)
	fmt.Fprintf(&b, "| **Defender Submissions** | %d |\n", info.DefenderSubmissions)
	fmt.Fprintf(&b, "| **Files Uploaded** | %d |\n", info.FileCount)
	fmt.Fprintf(&b, "| **Total Size** | %d bytes |\n", info.TotalSize)
	fmt.Fprintf(&b, "| **Submission Time** | %s |\n", orDefault(info.SubmissionTime, "?"))
	fmt.Fprintf(&b, "\n> 💡 %s\n", orDefault(info.Message, "Submission successful"))

	if len(files) > 0 {
		prefix := strings.TrimRight(submissionPath, "/")
		fmt.Fprintf(&b, "\n<details>\n<summary>📁 Uploaded Files (%s/)</summary>\n\n", prefix)
		b.WriteString("```\n")
		for _, file := range files {
			fmt.Fprintf(&b, "%s/%s\n", prefix, file)
		}
		b.WriteString("```\n</details>\n")
	}
	return b.String()
}

func FailureSummary(title, details string) string {
	var b strings.Builder
	b.WriteString("## ❌ Submission Failed\n\n")
	if details != "" {
		fmt.Fprintf(&b, "**Error:** %s\n\n", title)
		fmt.Fprintf(&b, "```\n%s\n```\n", details)
		return b.String()
	}
	fmt.Fprintf(&b, "**Error:** %s\n", title)
	return b.String()
}

func roleEmoji(role string) string {
	if role == "attacker" {
		return "🔴"
	}
	return "🔵"
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
