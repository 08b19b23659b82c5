package transport

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CredentialProvider supplies the current bearer token on demand. The
// adapter calls it on every connection attempt, never caching the value,
// so rotated credentials are picked up on the next (re)connect.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// FileProvider reads the bearer token from a file at each call.
type FileProvider struct {
	Path string
}

func (p FileProvider) Token(_ context.Context) (string, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("credential file %s is empty", p.Path)
	}
	return token, nil
}

// StaticProvider returns a fixed token. Used in tests and simple wiring.
type StaticProvider string

func (p StaticProvider) Token(_ context.Context) (string, error) {
	if p == "" {
		return "", fmt.Errorf("no credential available")
	}
	return string(p), nil
}
