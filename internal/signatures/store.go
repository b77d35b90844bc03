// Package signatures loads, validates, normalizes, and persists the
// application signature catalog used by the traffic classifier.
//
// Author: KleaSCM
// Email: KleaSCM@gmail.com
package signatures

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kleaSCM/tunnelscope/internal/model"
)

// ValidationError describes one rejected signature.
type ValidationError struct {
	Kind  string // emptySignatures, invalidLabel, invalidDomain, duplicateLabel
	Label string
	Domain string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case "emptySignatures":
		return "signatures: empty list"
	case "invalidLabel":
		return fmt.Sprintf("signatures: invalid label %q", e.Label)
	case "invalidDomain":
		return fmt.Sprintf("signatures: invalid domain %q for label %q", e.Domain, e.Label)
	case "duplicateLabel":
		return fmt.Sprintf("signatures: duplicate label %q", e.Label)
	default:
		return "signatures: validation error"
	}
}

// Load reads a signature file from path, accepting either the
// enveloped form {version, updatedAt, signatures} or a bare array. Any
// parse failure returns an empty list, not an error: auto-reload
// callers are expected to keep their previous catalog on failure.
func Load(path string) []model.AppSignature {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return Parse(data)
}

// Parse decodes signature file contents in either accepted form.
func Parse(data []byte) []model.AppSignature {
	var envelope model.SignatureFile
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Signatures != nil {
		return envelope.Signatures
	}

	var bare []model.AppSignature
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare
	}
	return nil
}

// Validate checks a signature list for the documented error
// conditions, returning the first violation found.
func Validate(sigs []model.AppSignature) error {
	if len(sigs) == 0 {
		return &ValidationError{Kind: "emptySignatures"}
	}

	seenLabels := make(map[string]bool, len(sigs))
	for _, sig := range sigs {
		label := strings.TrimSpace(sig.Label)
		if label == "" {
			return &ValidationError{Kind: "invalidLabel", Label: sig.Label}
		}
		lower := strings.ToLower(label)
		if seenLabels[lower] {
			return &ValidationError{Kind: "duplicateLabel", Label: label}
		}
		seenLabels[lower] = true

		for _, d := range sig.Domains {
			if !validDomain(d) {
				return &ValidationError{Kind: "invalidDomain", Label: label, Domain: d}
			}
		}
	}
	return nil
}

func validDomain(d string) bool {
	trimmed := strings.TrimSpace(d)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "://") {
		return false
	}
	if strings.HasPrefix(trimmed, ".") || strings.HasSuffix(trimmed, ".") {
		return false
	}
	name := trimmed
	if strings.HasPrefix(name, "*.") {
		name = name[2:]
	}
	return strings.Contains(name, ".")
}

// Normalize trims labels and lowercases/trims/dedupes/sorts each
// signature's domain list.
func Normalize(sigs []model.AppSignature) []model.AppSignature {
	out := make([]model.AppSignature, 0, len(sigs))
	for _, sig := range sigs {
		label := strings.TrimSpace(sig.Label)
		seen := make(map[string]bool, len(sig.Domains))
		domains := make([]string, 0, len(sig.Domains))
		for _, d := range sig.Domains {
			d = strings.ToLower(strings.TrimSpace(d))
			if d == "" || seen[d] {
				continue
			}
			seen[d] = true
			domains = append(domains, d)
		}
		sort.Strings(domains)
		out = append(out, model.AppSignature{Label: label, Domains: domains})
	}
	return out
}

// Write atomically replaces the signature file at path with sigs,
// wrapped in the enveloped form.
func Write(sigs []model.AppSignature, path, version string) error {
	file := model.SignatureFile{Version: 1, UpdatedAt: version, Signatures: sigs}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(path, data)
}

// WriteIfMissing writes the signature file only when path doesn't
// already exist.
func WriteIfMissing(sigs []model.AppSignature, path, version string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return Write(sigs, path, version)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".signatures-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
