package pipeline

import (
	"encoding/json"
	"log/slog"
)

// Secret is an opaque credential. Every formatted form is redacted;
// the raw value only leaves through Reveal, which callers use at the
// single point the credential goes on the wire.
type Secret string

const redactedValue = "[redacted]"

func (s Secret) Reveal() string { return string(s) }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redactedValue
}

func (s Secret) GoString() string { return "pipeline.Secret(" + s.String() + ")" }

func (s Secret) LogValue() slog.Value { return slog.StringValue(s.String()) }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }
