package scenario

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/LambdaLabsML/agentbeats-submission-action/internal/openai"
)

func randomToken(prefix string) string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return prefix + "_fallback_token"
	}
	return fmt.Sprintf("%s_%x", prefix, b)
}

func summarizeError(err error) string {
	if err == nil {
		return ""
	}
	if apiErr, ok := openai.IsAPIError(err); ok {
		return fmt.Sprintf("status=%d type=%s message=%s", apiErr.StatusCode, apiErr.Envelope.Error.Type, apiErr.Envelope.Error.Message)
	}
	return err.Error()
}

func renderTranscript(history []Exchange) string {
	lines := make([]string, 0, len(history))
	for _, ex := range history {
		lines = append(lines, ex.From+": "+ex.Text)
	}
	return strings.Join(lines, "\n")
}

func ptrFloat64(v float64) *float64 { return &v }

func firstN(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
