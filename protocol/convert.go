package protocol

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ByteArray is a byte slice that is encoded in JSON as an array of integers,
// the way scripted runtimes send and expect raw bytes.
// Unmarshal also accepts a base64 string for clients that send []byte natively.
type ByteArray []byte

// MarshalJSON encodes the bytes as an integer array.
func (b ByteArray) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

// UnmarshalJSON decodes an integer array or a base64 string.
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("byte array: invalid base64: %w", err)
		}
		*b = decoded
		return nil
	}

	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("byte array: %w", err)
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 0xff {
			return fmt.Errorf("byte array: value %d at index %d out of range", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// FormatID renders a tag identifier as lowercase hex with no separators
// (e.g. "012e4cd3a2b1c0ff").
func FormatID(id []byte) string {
	return hex.EncodeToString(id)
}

var validHex = regexp.MustCompile(`^[0-9a-f]+$`)

// ParseID parses an identifier in any common notation back into bytes.
// Supports: "01:2E:4C", "012e4c", "01 2E 4C", "01-2E-4C"
func ParseID(id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("empty ID")
	}

	cleaned := strings.ReplaceAll(id, ":", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ToLower(cleaned)

	if !validHex.MatchString(cleaned) {
		return nil, fmt.Errorf("ID contains invalid characters: %s", id)
	}
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("ID has odd number of hex characters: %s", id)
	}

	return hex.DecodeString(cleaned)
}
