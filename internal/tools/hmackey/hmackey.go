// Package hmackey generates the shared secrets attendmark services expect.
package hmackey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/louisbranch/attendmark/internal/attendance/token"
)

const (
	// TokenSecretEnv names the credential integrity secret.
	TokenSecretEnv = "ATTENDMARK_TOKEN_SECRET"
	// OperatorSecretEnv names the operator token signing secret.
	OperatorSecretEnv = "ATTENDMARK_OPERATOR_JWT_SECRET"
)

// Config holds configuration for secret generation.
type Config struct {
	Bytes    int
	Operator bool
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes")
	fs.BoolVar(&cfg.Operator, "operator", false, "print an operator token secret instead of a credential secret")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates a secret and writes it to out as an env assignment.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if cfg.Bytes < token.MinSecretBytes {
		return fmt.Errorf("bytes must be at least %d", token.MinSecretBytes)
	}
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}

	buf := make([]byte, cfg.Bytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	name := TokenSecretEnv
	if cfg.Operator {
		name = OperatorSecretEnv
	}
	_, err := fmt.Fprintf(out, "%s=%s\n", name, hex.EncodeToString(buf))
	return err
}
