// internal/models/schema.go
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// FeatureSchema is the ordered column layout a fitted scaler and model expect,
// identified by a version derived from the column names.
type FeatureSchema struct {
	Version  string   `json:"schemaVersion"`
	Features []string `json:"features"`
}

// NewFeatureSchema copies features and stamps the schema version.
func NewFeatureSchema(features []string) FeatureSchema {
	copied := append([]string(nil), features...)
	return FeatureSchema{
		Version:  SchemaVersion(copied),
		Features: copied,
	}
}

// SchemaVersion hashes the ordered feature names. Any rename, reorder,
// addition or removal yields a different version.
func SchemaVersion(features []string) string {
	sum := sha256.Sum256([]byte(strings.Join(features, "\n")))
	return "fs-" + hex.EncodeToString(sum[:8])
}

// Verify checks the stored version against the feature list.
func (s FeatureSchema) Verify() error {
	if len(s.Features) == 0 {
		return fmt.Errorf("feature schema is empty")
	}
	if expected := SchemaVersion(s.Features); s.Version != expected {
		return fmt.Errorf("feature schema version %q does not match its features (expected %q)", s.Version, expected)
	}
	return nil
}

// Duplicates lists every feature name that appears more than once.
func (s FeatureSchema) Duplicates() []string {
	seen := make(map[string]int, len(s.Features))
	var dups []string
	for _, f := range s.Features {
		seen[f]++
		if seen[f] == 2 {
			dups = append(dups, f)
		}
	}
	return dups
}
