package queue

import (
	"strings"
	"time"
)

// DroppedJob records a job the worker terminated without retry, with enough
// detail to replay it by hand.
type DroppedJob struct {
	Envelope  Envelope  `json:"envelope"`
	Raw       string    `json:"raw,omitempty"`
	Stage     string    `json:"stage"`
	Kind      string    `json:"kind"`
	Error     string    `json:"error"`
	Path      string    `json:"path,omitempty"`
	Attempt   uint64    `json:"attempt"`
	DroppedAt time.Time `json:"dropped_at"`
}

// StoredDropped is a DroppedJob read back from the stream.
type StoredDropped struct {
	Sequence uint64
	DroppedJob
}

// subjectToken turns a group name into a single NATS subject token.
func subjectToken(group string) string {
	if group == "" {
		return "_unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, group)
}
