package state

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Cache is the durable mirror of the previous run's snapshot, plus the
// synthetic markers that deduplicate manually requested changeset diffs.
//
// The on-disk format is line oriented, one whitespace-separated record per
// line:
//
//	head <name> <revision>
//	tag <name> <revision>
//	rev <revision>
//	diff <marker>
//
// Blank lines and lines starting with '#' are ignored. An unknown record
// type is a load error: a cache written by a newer, incompatible version
// must not be silently misread.
type Cache struct {
	Snapshot *Snapshot
	Diffs    map[string]struct{}
}

// NewCache wraps a snapshot in a cache with no diff markers.
func NewCache(snap *Snapshot) *Cache {
	return &Cache{Snapshot: snap, Diffs: make(map[string]struct{})}
}

// Load reads the cache file at path. A missing file is not an error: it
// returns (nil, false, nil) so the caller can treat it as the initial run.
func Load(path string) (*Cache, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open state file: %w", err)
	}
	defer f.Close()

	cache, err := Parse(f)
	if err != nil {
		return nil, false, fmt.Errorf("parse state file %s: %w", path, err)
	}
	return cache, true, nil
}

// Parse reads the line-oriented cache format.
func Parse(r io.Reader) (*Cache, error) {
	cache := &Cache{
		Snapshot: &Snapshot{
			Heads: make(map[string]string),
			Tags:  make(map[string]string),
			Revs:  make(map[string]struct{}),
		},
		Diffs: make(map[string]struct{}),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		switch fields[0] {
		case "head":
			if len(fields) != 3 {
				return nil, fmt.Errorf("line %d: malformed head record", line)
			}
			cache.Snapshot.Heads[fields[1]] = fields[2]
		case "tag":
			if len(fields) != 3 {
				return nil, fmt.Errorf("line %d: malformed tag record", line)
			}
			cache.Snapshot.Tags[fields[1]] = fields[2]
		case "rev":
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: malformed rev record", line)
			}
			cache.Snapshot.Revs[fields[1]] = struct{}{}
		case "diff":
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: malformed diff record", line)
			}
			cache.Diffs[fields[1]] = struct{}{}
		default:
			return nil, fmt.Errorf("line %d: unknown record type %q", line, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cache, nil
}

// Write serializes the cache in a deterministic order so identical states
// produce identical files.
func (c *Cache) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, name := range sortedKeys(c.Snapshot.Heads) {
		fmt.Fprintf(bw, "head %s %s\n", name, c.Snapshot.Heads[name])
	}
	for _, name := range sortedKeys(c.Snapshot.Tags) {
		fmt.Fprintf(bw, "tag %s %s\n", name, c.Snapshot.Tags[name])
	}
	for _, rev := range sortedSet(c.Snapshot.Revs) {
		fmt.Fprintf(bw, "rev %s\n", rev)
	}
	for _, marker := range sortedSet(c.Diffs) {
		fmt.Fprintf(bw, "diff %s\n", marker)
	}
	return bw.Flush()
}

// Save persists the cache: the new content is written to a temporary file
// in the same directory, the prior file (if any) is copied to <path>.bak,
// and the temporary file is renamed over path. A crash at any point leaves
// either the old file or the new file intact, never a torn write.
func Save(path string, c *Cache) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if err := c.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if prev, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".bak", prev, 0o644); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("write state backup: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		os.Remove(tmpName)
		return fmt.Errorf("read prior state: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
