package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration read from config text. It accepts Go duration
// strings ("90s", "1h") and bare integers, which count seconds
// (RAGD_CACHE_TTL=3600).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	var parsed time.Duration
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		parsed = time.Duration(secs) * time.Second
	} else {
		parsed, err = time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: want a Go duration or whole seconds", s)
		}
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// secretFilePrefix marks a secret whose value is read from a file, as with
// container secrets mounted under /run/secrets.
const secretFilePrefix = "file:"

// Secret holds an API key or token. It prints and marshals as [REDACTED];
// use Value for the real value.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString keeps %#v from leaking the value.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether the secret is non-empty.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalText accepts a literal value or "file:<path>", in which case the
// file's contents, trimmed of surrounding whitespace, become the value.
func (s *Secret) UnmarshalText(text []byte) error {
	raw := string(text)
	if !strings.HasPrefix(raw, secretFilePrefix) {
		*s = Secret(raw)
		return nil
	}
	path, err := ExpandPath(strings.TrimPrefix(raw, secretFilePrefix))
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading secret file: %w", err)
	}
	*s = Secret(strings.TrimSpace(string(data)))
	return nil
}
