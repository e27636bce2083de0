package service

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"
)

var dataURIPrefix = regexp.MustCompile(`^data:image/[a-zA-Z0-9.+-]+;base64,`)

// FrameLimits bounds a single capture.
type FrameLimits struct {
	MinFrames       int
	MaxFrames       int
	MaxPayloadBytes int
}

// CapturePayload is the decrypted capture body.
type CapturePayload struct {
	Frames   any            `json:"frames"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ParseCapture decodes decrypted plaintext. Any JSON problem is reported as
// ErrInvalidPayloadFormat.
func ParseCapture(plaintext []byte) (*CapturePayload, error) {
	var p CapturePayload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, xerrors.ErrInvalidPayloadFormat
	}
	return &p, nil
}

// ValidateFrames checks shape, count and total decoded size, and returns
// the frames with any data URI prefix removed.
func ValidateFrames(raw any, limits FrameLimits) ([]string, error) {
	list, ok := raw.([]any)
	if !ok {
		if s, isStrings := raw.([]string); isStrings {
			list = make([]any, len(s))
			for i := range s {
				list[i] = s[i]
			}
		} else {
			return nil, xerrors.ErrFramesNotArray
		}
	}

	if len(list) < limits.MinFrames || len(list) > limits.MaxFrames {
		return nil, xerrors.ErrInvalidFrameCount
	}

	frames := make([]string, 0, len(list))
	total := 0
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, xerrors.ErrInvalidFrame
		}
		s = dataURIPrefix.ReplaceAllString(strings.TrimSpace(s), "")
		if s == "" {
			return nil, xerrors.ErrInvalidFrame
		}
		total += decodedLen(s)
		if total > limits.MaxPayloadBytes {
			return nil, xerrors.ErrPayloadTooLarge
		}
		frames = append(frames, s)
	}
	return frames, nil
}

// decodedLen is the number of bytes s decodes to, counted without
// allocating the decoded buffer.
func decodedLen(s string) int {
	trimmed := strings.TrimRight(s, "=")
	return base64.RawStdEncoding.DecodedLen(len(trimmed))
}
