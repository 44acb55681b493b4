package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MinSecretBytes is the shortest secret accepted by a Keyring.
const MinSecretBytes = 16

// tagEncoding rejects non-zero padding bits so that every distinct tag
// string decodes to a distinct MAC.
var tagEncoding = base64.RawURLEncoding.Strict()

// Keyring holds the shared secrets credentials are checked against. Current
// is used for signing; Previous secrets keep credentials issued before a
// rotation verifiable.
type Keyring struct {
	Current  []byte
	Previous [][]byte
}

// ParseKeyring decodes hex-encoded secrets into a Keyring.
func ParseKeyring(current string, previous []string) (Keyring, error) {
	currentKey, err := decodeSecret(current)
	if err != nil {
		return Keyring{}, fmt.Errorf("decode current secret: %w", err)
	}
	ring := Keyring{Current: currentKey}
	for idx, value := range previous {
		key, err := decodeSecret(value)
		if err != nil {
			return Keyring{}, fmt.Errorf("decode previous secret %d: %w", idx, err)
		}
		ring.Previous = append(ring.Previous, key)
	}
	return ring, nil
}

// Verify reports whether fields carry an integrity tag produced by any
// secret in the ring.
func (k Keyring) Verify(fields Fields) bool {
	if VerifyIntegrity(fields, k.Current) {
		return true
	}
	for _, secret := range k.Previous {
		if VerifyIntegrity(fields, secret) {
			return true
		}
	}
	return false
}

// Sign computes the integrity tag for fields with the current secret.
func (k Keyring) Sign(fields Fields) string {
	return Sign(fields, k.Current)
}

// Issue signs fields with the current secret and renders the credential
// payload. Only issuance tooling calls it.
func (k Keyring) Issue(fields Fields) (string, error) {
	if len(k.Current) == 0 {
		return "", errors.New("keyring has no current secret")
	}
	if fields.SchemaVersion == 0 {
		fields.SchemaVersion = MaxSchemaVersion
	}
	fields.IntegrityTag = k.Sign(fields)
	return Encode(fields)
}

// VerifyIntegrity recomputes the keyed tag over the signed fields and
// compares it in constant time with fields.IntegrityTag.
func VerifyIntegrity(fields Fields, secret []byte) bool {
	if len(secret) == 0 {
		return false
	}
	presented, err := tagEncoding.DecodeString(fields.IntegrityTag)
	if err != nil {
		return false
	}
	return hmac.Equal(presented, mac(fields, secret))
}

// Sign computes the integrity tag for fields with secret.
func Sign(fields Fields, secret []byte) string {
	return tagEncoding.EncodeToString(mac(fields, secret))
}

// canonical serializes the signed fields as a JSON array so that field
// boundaries stay unambiguous whatever the field contents.
func canonical(fields Fields) []byte {
	data, _ := json.Marshal([]string{
		fields.RegistrationID,
		fields.EventID,
		fields.ParticipantEmail,
		fields.IssuedAt,
	})
	return data
}

func mac(fields Fields, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(canonical(fields))
	return h.Sum(nil)
}

func decodeSecret(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("secret is empty")
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("secret is not hex: %w", err)
	}
	if len(key) < MinSecretBytes {
		return nil, fmt.Errorf("secret must be at least %d bytes", MinSecretBytes)
	}
	return key, nil
}
