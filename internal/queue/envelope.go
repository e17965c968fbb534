// Package queue carries ingestion jobs over NATS JetStream.
//
// A job is an Envelope published to the ingest subject. The worker consumes
// it through a durable push consumer with MaxAckPending=1 and explicit ack,
// so at most one job is in flight and unacknowledged jobs are redelivered.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEnvelope is returned for payloads that cannot describe a job.
var ErrInvalidEnvelope = errors.New("invalid job envelope")

// Envelope is the unit of work: which file of which group to ingest.
type Envelope struct {
	ProjectGroup string `json:"project_group"`
	FileName     string `json:"file_name"`
}

// Validate rejects empty fields and names that would escape the group
// directory when joined into a path.
func (e Envelope) Validate() error {
	if err := validName("project_group", e.ProjectGroup); err != nil {
		return err
	}
	return validName("file_name", e.FileName)
}

func validName(field, v string) error {
	switch {
	case strings.TrimSpace(v) == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalidEnvelope, field)
	case v == "." || v == "..":
		return fmt.Errorf("%w: %s %q is not a name", ErrInvalidEnvelope, field, v)
	case strings.ContainsAny(v, `/\`) || strings.ContainsRune(v, 0):
		return fmt.Errorf("%w: %s %q contains a path separator", ErrInvalidEnvelope, field, v)
	}
	return nil
}

// Decode parses and validates a wire payload.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return env, err
	}
	return env, nil
}

// Encode validates and serializes the envelope.
func (e Envelope) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// String implements fmt.Stringer.
func (e Envelope) String() string {
	return e.ProjectGroup + "/" + e.FileName
}
