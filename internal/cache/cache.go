package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Outcome describes how a restore attempt concluded.
type Outcome string

const (
	// OutcomeHit means the exact key matched.
	OutcomeHit Outcome = "hit"

	// OutcomeFallback means a prefix key matched; callers should still save
	// under the exact key afterwards so the next run gets an exact hit.
	OutcomeFallback Outcome = "fallback"

	// OutcomeMiss means nothing matched.
	OutcomeMiss Outcome = "miss"
)

// Store is a filesystem cache of dependency directory snapshots.
//
// Structure:
//
//	{Dir}/
//	  {key}/
//	    tree/   (the saved dependency directory)
type Store struct {
	// Dir is the root directory for cache storage.
	Dir string
}

// NewStore creates a filesystem-backed cache store.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Restore copies a cached dependency tree into destDir.
//
// It tries the exact key first, then falls back to the most recently saved
// entry whose name starts with prefix. destDir contents are replaced on any
// match and left untouched on a miss.
func (s *Store) Restore(key, prefix, destDir string) (Outcome, error) {
	entry, outcome, err := s.lookup(key, prefix)
	if err != nil {
		return OutcomeMiss, err
	}
	if outcome == OutcomeMiss {
		return OutcomeMiss, nil
	}

	if err := os.RemoveAll(destDir); err != nil {
		return OutcomeMiss, fmt.Errorf("clearing %s: %w", destDir, err)
	}
	if err := copyTree(filepath.Join(entry, "tree"), destDir); err != nil {
		return OutcomeMiss, fmt.Errorf("restoring cache entry: %w", err)
	}
	return outcome, nil
}

// Save snapshots srcDir under the exact key.
//
// The snapshot is written into a temp entry dir and renamed into place, so a
// crash mid-save leaves a miss rather than a corrupt entry. Saving over an
// existing key replaces it.
func (s *Store) Save(key, srcDir string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("cache key is empty")
	}
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", srcDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", srcDir)
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(s.Dir, "tmp-entry-")
	if err != nil {
		return fmt.Errorf("creating temp cache entry dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	if err := copyTree(srcDir, filepath.Join(tmpDir, "tree")); err != nil {
		return fmt.Errorf("snapshotting %s: %w", srcDir, err)
	}

	entryDir := filepath.Join(s.Dir, key)
	// Best-effort remove of any existing entry; a crash between remove and
	// rename yields a miss (safe), not corruption.
	_ = os.RemoveAll(entryDir)
	if err := os.Rename(tmpDir, entryDir); err != nil {
		return fmt.Errorf("committing cache entry: %w", err)
	}
	committed = true
	return nil
}

// lookup finds the entry directory matching key exactly, or the newest entry
// matching prefix.
func (s *Store) lookup(key, prefix string) (string, Outcome, error) {
	exact := filepath.Join(s.Dir, key)
	if info, err := os.Stat(exact); err == nil && info.IsDir() {
		return exact, OutcomeHit, nil
	} else if err != nil && !os.IsNotExist(err) {
		return "", OutcomeMiss, fmt.Errorf("checking cache entry: %w", err)
	}

	if prefix == "" {
		return "", OutcomeMiss, nil
	}

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", OutcomeMiss, nil
		}
		return "", OutcomeMiss, fmt.Errorf("listing cache: %w", err)
	}

	var best string
	var bestTime time.Time
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if strings.HasPrefix(e.Name(), "tmp-entry-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best = e.Name()
			bestTime = info.ModTime()
		}
	}

	if best == "" {
		return "", OutcomeMiss, nil
	}
	return filepath.Join(s.Dir, best), OutcomeFallback, nil
}

// copyTree recursively copies src into dst. Symlinks are skipped; dependency
// trees restored from cache must be self-contained.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(out, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, out)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
