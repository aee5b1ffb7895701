package scenario

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// AgentProcess is one live submitted-agent process playing a single
// scenario.
type AgentProcess interface {
	Send(frame TurnFrame) (string, error)
	Close() error
}

// Launcher starts agent processes. The pipeline installs the Python
// launcher; tests substitute fakes.
type Launcher interface {
	Start(ctx context.Context, scenarioName string) (AgentProcess, error)
}

type PythonLauncher struct {
	SourcePath string
	Entrypoint string
	Python     string
	Env        []string
}

func (l PythonLauncher) Start(ctx context.Context, scenarioName string) (AgentProcess, error) {
	entry := strings.TrimSpace(l.Entrypoint)
	if entry == "" {
		found, err := discoverEntrypoint(l.SourcePath)
		if err != nil {
			return nil, err
		}
		entry = found
	}
	python := l.Python
	if python == "" {
		python = "python3"
	}
	cmd := exec.CommandContext(ctx, python, entry)
	cmd.Dir = l.SourcePath
	cmd.Env = append(os.Environ(), append([]string{"AGENTBEATS_SCENARIO=" + scenarioName}, l.Env...)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open agent stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open agent stdout: %w", err)
	}
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent: %w", err)
	}
	return &pythonAgent{cmd: cmd, stdin: stdin, out: bufio.NewReader(stdout), stderr: stderr}, nil
}

func discoverEntrypoint(sourcePath string) (string, error) {
	for _, name := range []string{"main.py", "agent.py"} {
		if _, err := os.Stat(filepath.Join(sourcePath, name)); err == nil {
			return name, nil
		}
	}
	return "", errors.New("no agent entrypoint found (expected main.py or agent.py)")
}

type pythonAgent struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *bufio.Reader
	stderr *syncBuffer
}

func (a *pythonAgent) Send(frame TurnFrame) (string, error) {
	frame.Type = "turn"
	payload, err := json.Marshal(frame)
	if err != nil {
		return "", fmt.Errorf("encode turn frame: %w", err)
	}
	if _, err := a.stdin.Write(append(payload, '\n')); err != nil {
		return "", a.failure("write to agent", err)
	}
	line, err := a.out.ReadString('\n')
	if err != nil {
		return "", a.failure("read from agent", err)
	}
	var msg MessageFrame
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return "", fmt.Errorf("decode agent reply: %w", err)
	}
	if msg.Type != "message" {
		return "", fmt.Errorf("unexpected agent frame type %q", msg.Type)
	}
	return strings.TrimSpace(msg.Content), nil
}

func (a *pythonAgent) Close() error {
	_ = a.stdin.Close()
	return a.cmd.Wait()
}

func (a *pythonAgent) failure(op string, err error) error {
	tail := lastLines(a.stderr.String(), 3)
	if tail != "" {
		return fmt.Errorf("%s: %w (stderr: %s)", op, err, tail)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}
