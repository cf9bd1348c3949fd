package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Fingerprint identifies one version of a file's content.
type Fingerprint struct {
	Hash    string    `json:"hash"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// SameStat reports whether size and modification time match, in which
// case the content hash can be reused.
func (f Fingerprint) SameStat(o Fingerprint) bool {
	return f.Size == o.Size && f.ModTime.Equal(o.ModTime)
}

// FingerprintFile hashes root/relPath. When prev carries a hash and the
// file's size and mtime are unchanged, the hash is reused without reading.
// A same-size edit landing within the filesystem's mtime granularity is
// therefore missed until the file changes again.
func FingerprintFile(root, relPath string, prev *Fingerprint) (Fingerprint, error) {
	path := filepath.Join(root, filepath.FromSlash(relPath))
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", relPath, err)
	}
	fp := Fingerprint{Size: info.Size(), ModTime: info.ModTime().UTC()}
	if prev != nil && prev.Hash != "" && fp.SameStat(*prev) {
		fp.Hash = prev.Hash
		return fp, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("open %s: %w", relPath, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, fmt.Errorf("hash %s: %w", relPath, err)
	}
	fp.Hash = hex.EncodeToString(h.Sum(nil))
	return fp, nil
}

// HashBytes returns the content hash used by fingerprints.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChangeSet classifies files between two fingerprint tables.
type ChangeSet struct {
	Added     []string
	Removed   []string
	Modified  []string
	Unchanged []string
}

// Empty reports whether nothing was added, removed or modified.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// Diff compares the previous fingerprints with the current ones. Both
// inputs are keyed by relative path; outputs follow the order of paths,
// which callers keep sorted, with removed paths sorted at the end.
func Diff(prev, cur map[string]Fingerprint, paths []string) ChangeSet {
	var cs ChangeSet
	for _, p := range paths {
		old, existed := prev[p]
		now := cur[p]
		switch {
		case !existed:
			cs.Added = append(cs.Added, p)
		case old.Hash != now.Hash:
			cs.Modified = append(cs.Modified, p)
		default:
			cs.Unchanged = append(cs.Unchanged, p)
		}
	}
	for p := range prev {
		if _, ok := cur[p]; !ok {
			cs.Removed = append(cs.Removed, p)
		}
	}
	sort.Strings(cs.Removed)
	return cs
}
