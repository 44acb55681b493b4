// Package token parses and authenticates attendance credentials.
//
// A credential is a JSON object presented by a participant, usually through
// a QR code, that binds one registration to one event. This package never
// decides whether attendance may be marked; it only answers two questions:
// is the payload one of ours (Decode), and was it issued with a secret we
// hold (Keyring.Verify).
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// Tag marks a payload as an attendance credential.
	Tag = "evtmark.attendance"
	// MinSchemaVersion is the oldest credential layout still accepted.
	MinSchemaVersion = 1
	// MaxSchemaVersion is the newest credential layout understood.
	MaxSchemaVersion = 1
	// MaxPayloadBytes bounds the raw payload accepted for parsing.
	MaxPayloadBytes = 4 << 10
)

// ErrMalformed marks a payload that is not a well-formed credential.
// Every error returned by Decode wraps it.
var ErrMalformed = errors.New("malformed credential")

// Fields is a structurally valid credential. IssuedAt keeps the exact string
// the issuer signed.
type Fields struct {
	RegistrationID   string
	EventID          string
	ParticipantEmail string
	IssuedAt         string
	IntegrityTag     string
	SchemaVersion    int
}

// IssuedTime returns IssuedAt as a time. Decode guarantees it parses.
func (f Fields) IssuedTime() time.Time {
	issued, err := time.Parse(time.RFC3339Nano, f.IssuedAt)
	if err != nil {
		return time.Time{}
	}
	return issued.UTC()
}

type wireCredential struct {
	Tag              string `json:"tag"`
	RegistrationID   string `json:"registrationId"`
	EventID          string `json:"eventId"`
	ParticipantEmail string `json:"participantEmail"`
	IssuedAt         string `json:"issuedAt"`
	IntegrityTag     string `json:"integrityTag"`
	SchemaVersion    int    `json:"schemaVersion"`
}

// Decode parses raw into credential fields. It is total: any input that is
// not a complete credential of a supported version yields an error wrapping
// ErrMalformed, and no input panics.
func Decode(raw string) (Fields, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Fields{}, malformed("empty payload")
	}
	if len(raw) > MaxPayloadBytes {
		return Fields{}, malformed("payload exceeds %d bytes", MaxPayloadBytes)
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &object); err != nil || object == nil {
		return Fields{}, malformed("payload is not a JSON object")
	}

	tag, err := stringField(object, "tag")
	if err != nil {
		return Fields{}, err
	}
	if tag != Tag {
		return Fields{}, malformed("unexpected tag %q", tag)
	}

	version, err := versionField(object)
	if err != nil {
		return Fields{}, err
	}

	var fields Fields
	fields.SchemaVersion = version
	for _, target := range []struct {
		key string
		dst *string
	}{
		{"registrationId", &fields.RegistrationID},
		{"eventId", &fields.EventID},
		{"participantEmail", &fields.ParticipantEmail},
		{"issuedAt", &fields.IssuedAt},
		{"integrityTag", &fields.IntegrityTag},
	} {
		value, err := stringField(object, target.key)
		if err != nil {
			return Fields{}, err
		}
		*target.dst = value
	}

	if _, err := time.Parse(time.RFC3339Nano, fields.IssuedAt); err != nil {
		return Fields{}, malformed("issuedAt is not an RFC 3339 timestamp")
	}
	return fields, nil
}

// Encode renders fields in the credential wire format. Issuance and test
// tooling use it; verification never re-encodes a presented payload.
func Encode(fields Fields) (string, error) {
	data, err := json.Marshal(wireCredential{
		Tag:              Tag,
		RegistrationID:   fields.RegistrationID,
		EventID:          fields.EventID,
		ParticipantEmail: fields.ParticipantEmail,
		IssuedAt:         fields.IssuedAt,
		IntegrityTag:     fields.IntegrityTag,
		SchemaVersion:    fields.SchemaVersion,
	})
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}
	return string(data), nil
}

func stringField(object map[string]json.RawMessage, key string) (string, error) {
	raw, ok := object[key]
	if !ok {
		return "", malformed("missing %s", key)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", malformed("%s is not a string", key)
	}
	if strings.TrimSpace(value) == "" {
		return "", malformed("%s is empty", key)
	}
	return value, nil
}

func versionField(object map[string]json.RawMessage) (int, error) {
	raw, ok := object["schemaVersion"]
	if !ok {
		return 0, malformed("missing schemaVersion")
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, malformed("schemaVersion is not a number")
	}
	if value != math.Trunc(value) {
		return 0, malformed("schemaVersion is not an integer")
	}
	if value < MinSchemaVersion || value > MaxSchemaVersion {
		return 0, malformed("unsupported schemaVersion %v", value)
	}
	return int(value), nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
