package pipeline

import (
	"fmt"
	"strings"

	"github.com/LambdaLabsML/agentbeats-submission-action/internal/scenario"
)

type TestMode string

const (
	TestModeOff      TestMode = "off"
	TestModeWarn     TestMode = "warn"
	TestModeRequired TestMode = "required"
)

// ParseTestMode maps the accepted spellings onto the three policy
// modes: false is off, true is warn, block is required.
func ParseTestMode(value string) (TestMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "off", "false":
		return TestModeOff, nil
	case "warn", "true":
		return TestModeWarn, nil
	case "required", "block":
		return TestModeRequired, nil
	}
	return "", fmt.Errorf("invalid run_tests value %q (off|false|warn|true|required|block)", value)
}

// Verdict is the policy decision over a completed test phase. It is
// never mutated after Reduce returns it.
type Verdict struct {
	Proceed  bool               `json:"proceed"`
	Blocking bool               `json:"blocking"`
	Outcomes []scenario.Outcome `json:"outcomes"`
}

// Failing returns the outcomes that did not pass, in reported order.
func (v Verdict) Failing() []scenario.Outcome {
	var failing []scenario.Outcome
	for _, out := range v.Outcomes {
		if out.Status != scenario.StatusPassed {
			failing = append(failing, out)
		}
	}
	return failing
}

// Reduce folds scenario outcomes into a verdict by the test-mode
// policy table. Off ignores outcomes entirely; warn records but never
// blocks; required blocks on any outcome that is not a pass, with
// failed and errored treated identically.
func Reduce(mode TestMode, outcomes []scenario.Outcome) Verdict {
	switch mode {
	case TestModeOff:
		return Verdict{Proceed: true, Outcomes: []scenario.Outcome{}}
	case TestModeRequired:
		verdict := Verdict{Proceed: true, Outcomes: outcomes}
		for _, out := range outcomes {
			if out.Status != scenario.StatusPassed {
				verdict.Proceed = false
				verdict.Blocking = true
				break
			}
		}
		return verdict
	default:
		return Verdict{Proceed: true, Outcomes: outcomes}
	}
}
