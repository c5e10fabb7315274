// Package target defines the cross-compilation target matrix and asset naming.
//
// A Target selects one platform/architecture combination. The matrix is the
// fixed set of combinations a release run builds; each entry produces exactly
// one release asset.
package target

import (
	"fmt"
	"sort"
	"strings"
)

// Target is a single platform/architecture entry of the build matrix.
type Target struct {
	// OS is the operating system half of the triple (e.g. "linux").
	OS string `koanf:"os" yaml:"os"`

	// Arch is the architecture half of the triple (e.g. "amd64").
	Arch string `koanf:"arch" yaml:"arch"`

	// Suffix is the platform suffix embedded in the asset name
	// (e.g. "linux-amd64"). Must be unique within a matrix.
	Suffix string `koanf:"suffix" yaml:"suffix"`

	// Ext is the optional binary extension, including the dot
	// (".exe" on windows, empty otherwise).
	Ext string `koanf:"ext" yaml:"ext"`
}

// Triple returns the "<os>/<arch>" form used for stage naming and cache scoping.
func (t Target) Triple() string {
	return t.OS + "/" + t.Arch
}

// StageName returns the deterministic pipeline stage name for this target.
func (t Target) StageName() string {
	return "build-" + t.Suffix
}

// Validate checks a single matrix entry.
func (t Target) Validate() error {
	if strings.TrimSpace(t.OS) == "" {
		return fmt.Errorf("target os is required")
	}
	if strings.TrimSpace(t.Arch) == "" {
		return fmt.Errorf("target arch is required")
	}
	if strings.TrimSpace(t.Suffix) == "" {
		return fmt.Errorf("target suffix is required (triple %s)", t.Triple())
	}
	if t.Ext != "" && !strings.HasPrefix(t.Ext, ".") {
		return fmt.Errorf("target ext must start with a dot, got %q (triple %s)", t.Ext, t.Triple())
	}
	return nil
}

// DefaultMatrix returns the four-entry release matrix.
func DefaultMatrix() []Target {
	return []Target{
		{OS: "linux", Arch: "amd64", Suffix: "linux-amd64"},
		{OS: "linux", Arch: "arm64", Suffix: "linux-arm64"},
		{OS: "darwin", Arch: "arm64", Suffix: "darwin-arm64"},
		{OS: "windows", Arch: "amd64", Suffix: "windows-amd64", Ext: ".exe"},
	}
}

// ValidateMatrix checks every entry and rejects duplicate suffixes, which
// would produce colliding asset names.
func ValidateMatrix(matrix []Target) error {
	if len(matrix) == 0 {
		return fmt.Errorf("target matrix is empty")
	}

	seen := make(map[string]struct{}, len(matrix))
	for i, t := range matrix {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("matrix entry %d: %w", i, err)
		}
		if _, dup := seen[t.Suffix]; dup {
			return fmt.Errorf("duplicate target suffix %q", t.Suffix)
		}
		seen[t.Suffix] = struct{}{}
	}
	return nil
}

// SortMatrix returns a copy of the matrix in deterministic (suffix) order.
// Stage dispatch order and report contents must not depend on config order.
func SortMatrix(matrix []Target) []Target {
	out := make([]Target, len(matrix))
	copy(out, matrix)
	sort.Slice(out, func(i, j int) bool { return out[i].Suffix < out[j].Suffix })
	return out
}
