package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Status string

const (
	StatusSubmitted      Status = "submitted"
	StatusRejected       Status = "rejected"
	StatusTransportError Status = "transport-error"
)

const reasonEndpointNotFound = "API endpoint not found."

// Receipt is the result of the single upload attempt. Rejections and
// transport trouble come back as data, not errors: the endpoint is
// never retried.
type Receipt struct {
	Status     Status          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	HTTPStatus int             `json:"http_status,omitempty"`
	Info       *SubmissionInfo `json:"info,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

// SubmissionInfo is the endpoint's accounting of an accepted
// submission.
type SubmissionInfo struct {
	TeamName             string `json:"team_name"`
	Role                 string `json:"role"`
	SubmissionNumber     int    `json:"submission_number"`
	AttackerSubmissions  int    `json:"attacker_submissions"`
	DefenderSubmissions  int    `json:"defender_submissions"`
	RoleSubmissionNumber int    `json:"role_submission_number"`
	FileCount            int    `json:"file_count"`
	TotalSize            int64  `json:"total_size"`
	SubmissionTime       string `json:"submission_time"`
	S3Prefix             string `json:"s3_prefix"`
	Message              string `json:"message"`
}

type Request struct {
	Role         string
	ArtifactPath string
	TestResults  json.RawMessage
}

type submissionPayload struct {
	APIKey      string          `json:"api_key"`
	Role        string          `json:"role"`
	File        string          `json:"file"`
	Filename    string          `json:"filename"`
	TestResults json.RawMessage `json:"test_results,omitempty"`
}

type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		apiKey:   cfg.APIKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Submit uploads the artifact once and reports the endpoint's answer.
// The returned error covers local failures only (unreadable artifact,
// bad endpoint value); everything the endpoint says is in the Receipt.
func (c *Client) Submit(ctx context.Context, req Request) (*Receipt, error) {
	if c.endpoint == "" {
		return nil, errors.New("upload endpoint is required")
	}
	content, err := os.ReadFile(req.ArtifactPath)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	payload, err := json.Marshal(submissionPayload{
		APIKey:      c.apiKey,
		Role:        req.Role,
		File:        base64.StdEncoding.EncodeToString(content),
		Filename:    filepath.Base(req.ArtifactPath),
		TestResults: req.TestResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal submission payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	start := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		return &Receipt{
			Status:     StatusTransportError,
			Reason:     reasonEndpointNotFound,
			Detail:     err.Error() + "; check that the submission endpoint is correct",
			DurationMS: time.Since(start).Milliseconds(),
		}, nil
	}
	defer response.Body.Close()

	body, err := readBody(response)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		return &Receipt{
			Status:     StatusTransportError,
			Reason:     "could not read endpoint response",
			Detail:     err.Error(),
			HTTPStatus: response.StatusCode,
			DurationMS: duration,
		}, nil
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		receipt := classifyFailure(response.StatusCode, body)
		receipt.DurationMS = duration
		return receipt, nil
	}

	info, raw, err := decodeSubmissionBody(body)
	if err != nil {
		return &Receipt{
			Status:     StatusTransportError,
			Reason:     "unreadable response from submission endpoint",
			Detail:     err.Error(),
			HTTPStatus: response.StatusCode,
			Raw:        json.RawMessage(body),
			DurationMS: duration,
		}, nil
	}
	return &Receipt{
		Status:     StatusSubmitted,
		HTTPStatus: response.StatusCode,
		Info:       info,
		Raw:        raw,
		DurationMS: duration,
	}, nil
}

func readBody(response *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(response.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// classifyFailure keeps the endpoint's own rejection reason verbatim
// when the error body is JSON with an "error" key; anything else is a
// transport problem, usually a wrong endpoint URL.
func classifyFailure(statusCode int, body []byte) *Receipt {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		reason := string(bytes.TrimSpace(envelope.Error))
		var asString string
		if err := json.Unmarshal(envelope.Error, &asString); err == nil {
			reason = asString
		}
		return &Receipt{
			Status:     StatusRejected,
			Reason:     reason,
			HTTPStatus: statusCode,
			Raw:        json.RawMessage(body),
		}
	}
	return &Receipt{
		Status:     StatusTransportError,
		Reason:     reasonEndpointNotFound,
		Detail:     fmt.Sprintf("status %d: %s; check that the submission endpoint is correct", statusCode, snippet(body)),
		HTTPStatus: statusCode,
	}
}

// decodeSubmissionBody tolerates the gateway shapes the endpoint is
// known to produce: a double-encoded JSON string, and a {"body": ...}
// wrapper whose value may itself be a JSON string.
func decodeSubmissionBody(raw []byte) (*SubmissionInfo, json.RawMessage, error) {
	body := bytes.TrimSpace(raw)

	var asString string
	if err := json.Unmarshal(body, &asString); err == nil {
		body = []byte(asString)
	}

	var wrapper struct {
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Body) > 0 {
		inner := bytes.TrimSpace(wrapper.Body)
		var innerString string
		if err := json.Unmarshal(inner, &innerString); err == nil {
			inner = []byte(innerString)
		}
		body = inner
	}

	var info SubmissionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, nil, fmt.Errorf("decode submission response: %w", err)
	}
	return &info, json.RawMessage(body), nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
