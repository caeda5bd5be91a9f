// Package store holds filesystem and identifier helpers for the local
// SQLite store, plus its embedded schema migrations.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDataRoot returns the root directory for per-user databases.
// Defaults to ~/.notehive, falls back to ./.notehive if home dir unavailable.
func DefaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".notehive")
	}
	return filepath.Join(home, ".notehive")
}

// EncodeUserID encodes a user ID for filesystem use.
// Replaces path separators so provider-style IDs ("google/123") stay flat.
func EncodeUserID(userID string) string {
	return strings.ReplaceAll(userID, "/", "__")
}

// UserDBPath returns the full path to a user's database file.
// Example: UserDBPath("u1") -> ~/.notehive/u1/notes.db
func UserDBPath(userID string) string {
	return filepath.Join(DefaultDataRoot(), EncodeUserID(userID), "notes.db")
}

// ValidateUserID rejects user IDs that cannot be used as path components.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if strings.ContainsAny(userID, " \t\n") {
		return fmt.Errorf("user ID cannot contain whitespace")
	}
	if strings.Contains(userID, "..") {
		return fmt.Errorf("user ID cannot contain path traversal")
	}
	return nil
}
