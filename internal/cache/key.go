// Package cache implements the keyed dependency cache for build stages.
//
// Each build stage restores its dependency directory before compiling and
// saves it afterwards. Keys are scoped per target so different architectures
// never share entries, with prefix-based fallback to the most recent entry of
// the same scope when the exact key misses.
//
// The cache is a performance optimization only: any cache failure degrades to
// a miss and never fails the build.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"crosspub/internal/target"
)

// keyHashLen is the number of hex characters of the lockfile hash kept in the
// key. Long enough to avoid collisions, short enough for readable entry names.
const keyHashLen = 16

// Key derives the exact cache key for a target: the target scope plus a
// content hash of the dependency lockfile. Any lockfile change produces a new
// key; the old entry remains reachable through the fallback prefix.
func Key(lockfilePath string, t target.Target) (string, error) {
	data, err := os.ReadFile(lockfilePath)
	if err != nil {
		return "", fmt.Errorf("reading lockfile %s: %w", lockfilePath, err)
	}

	sum := sha256.Sum256(data)
	return Prefix(t) + hex.EncodeToString(sum[:])[:keyHashLen], nil
}

// Prefix returns the per-target fallback prefix shared by all keys of the
// same OS/arch scope.
func Prefix(t target.Target) string {
	return "deps-" + t.OS + "-" + t.Arch + "-"
}
