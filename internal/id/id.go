// Package id generates identifiers for locally created shelves and items.
package id

import (
	"fmt"
	"strconv"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for generated shelf IDs.
const (
	ShelfPrefix = "shelf"
	LocalPrefix = "local"
)

const (
	digits       = "123456789"
	itemKeyWidth = 9
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "shelf-V1StGXR8_Z5jdHi6B-myT").
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// ItemKey returns a random positive item key of nine non-zero digits.
// Keys drawn this way are unlikely to collide with the small sequential keys
// an origin hands out.
func ItemKey() (int, error) {
	s, err := gonanoid.Generate(digits, itemKeyWidth)
	if err != nil {
		return 0, fmt.Errorf("generate item key: %w", err)
	}
	key, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse item key: %w", err)
	}
	return key, nil
}
