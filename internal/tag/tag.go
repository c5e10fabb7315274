// Package tag resolves the release tag from one of two mutually exclusive
// trigger sources: an explicit tag (manual dispatch) or a git ref (tag push).
package tag

import (
	"fmt"
	"strings"
)

// tagRefPrefix is the full-ref form a tag push delivers.
const tagRefPrefix = "refs/tags/"

// Source identifies which trigger produced the tag.
type Source string

const (
	// SourceManual means the tag was supplied directly by the operator.
	SourceManual Source = "manual"

	// SourceRef means the tag was extracted from a pushed git ref.
	SourceRef Source = "ref"
)

// Resolution is the outcome of tag resolution.
type Resolution struct {
	Tag    string
	Source Source
}

// Resolve picks the release tag from exactly one of the two sources.
//
// Rules:
//   - manual and ref are mutually exclusive; supplying both is an error
//   - supplying neither is an error
//   - a ref must carry the refs/tags/ prefix; the prefix is stripped
//   - the resolved tag must be non-empty after trimming
//
// No further validation is applied; any non-empty tag string is accepted.
func Resolve(manual, ref string) (Resolution, error) {
	manual = strings.TrimSpace(manual)
	ref = strings.TrimSpace(ref)

	switch {
	case manual != "" && ref != "":
		return Resolution{}, fmt.Errorf("tag and ref are mutually exclusive")
	case manual != "":
		return Resolution{Tag: manual, Source: SourceManual}, nil
	case ref != "":
		t, err := fromRef(ref)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Tag: t, Source: SourceRef}, nil
	default:
		return Resolution{}, fmt.Errorf("either a tag or a tag ref is required")
	}
}

func fromRef(ref string) (string, error) {
	if !strings.HasPrefix(ref, tagRefPrefix) {
		return "", fmt.Errorf("ref %q is not a tag ref (expected %s<tag>)", ref, tagRefPrefix)
	}
	t := strings.TrimPrefix(ref, tagRefPrefix)
	if t == "" {
		return "", fmt.Errorf("ref %q has an empty tag name", ref)
	}
	return t, nil
}
