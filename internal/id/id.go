// Package id generates identifiers for subscriptions, event streams and transport clients.
package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes used across the engine.
const (
	PrefixSubscription = "sub"
	PrefixStream       = "sse"
)

// Generate creates a prefixed NanoID, e.g. "sub-V1StGXR8_Z5jdHi6B-myT".
// Returns an error if the system has insufficient entropy.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// ClientID returns a random UUID identifying one transport connection.
func ClientID() string {
	return uuid.NewString()
}
