package target

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Asset is the derived name and location of one release artifact.
type Asset struct {
	// Name follows the fixed template <binary>-<tag>-<suffix><ext>.
	Name string

	// Path is the expected location of the compiled binary, resolved under
	// the build output directory.
	Path string

	// Target is the matrix entry that produces this asset.
	Target Target
}

// DeriveAsset computes the asset name and expected path for one target.
//
// The name template is fixed: <binary>-<tag>-<suffix><ext>. An empty binary
// name or tag makes the derived name meaningless, so both are fatal here
// rather than at upload time.
func DeriveAsset(binary, tag, outputDir string, t Target) (Asset, error) {
	if strings.TrimSpace(binary) == "" {
		return Asset{}, fmt.Errorf("binary name is empty")
	}
	if strings.TrimSpace(tag) == "" {
		return Asset{}, fmt.Errorf("tag is empty")
	}
	if err := t.Validate(); err != nil {
		return Asset{}, err
	}

	name := binary + "-" + tag + "-" + t.Suffix + t.Ext
	return Asset{
		Name:   name,
		Path:   filepath.Join(outputDir, name),
		Target: t,
	}, nil
}
