// Package blobkey generates the opaque keys blobs are stored under.
package blobkey

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ShardLength controls how many leading characters form the shard directory.
const ShardLength = 2

var keyPattern = regexp.MustCompile(`^[0-9a-f]{2}/[0-9a-f]{32}$`)

// New returns a fresh sharded key of the form "ab/ab12...". Keys are derived
// from a random UUID, never from content: two byte-identical uploads get two
// distinct keys, so a key always has exactly one owner.
func New() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return id[:ShardLength] + "/" + id
}

// Valid reports whether key has the sharded form produced by New. Stores use
// it to reject path-traversal attempts before touching the filesystem.
func Valid(key string) bool {
	return keyPattern.MatchString(key)
}
