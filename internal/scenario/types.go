package scenario

import "time"

type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusErrored Status = "errored"
)

const (
	RoleAttacker = "attacker"
	RoleDefender = "defender"
)

type Outcome struct {
	ScenarioName string `json:"scenario_name"`
	Status       Status `json:"status"`
	Diagnostics  string `json:"diagnostics,omitempty"`
	Turns        int    `json:"turns,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
}

type MatchConfig struct {
	Role     string
	Model    string
	Timeout  time.Duration
	MaxTurns int
}

type Exchange struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// TurnFrame is written to the submitted agent's stdin, one JSON object
// per line. The agent answers each frame with a MessageFrame line.
type TurnFrame struct {
	Type      string     `json:"type"`
	Scenario  string     `json:"scenario"`
	Role      string     `json:"role"`
	Objective string     `json:"objective"`
	Turn      int        `json:"turn"`
	History   []Exchange `json:"history"`
}

type MessageFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}
