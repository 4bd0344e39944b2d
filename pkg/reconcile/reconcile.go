// Package reconcile compares image files by content. Copy mode uses it to
// accept a destination that already holds the same bytes, and scan uses it to
// report duplicate images.
package reconcile

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

const headerBytes = 64 * 1024

// File is a candidate for duplicate detection.
type File struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Group is a set of byte-identical files.
type Group struct {
	// Keep has the earliest CreatedAt; ties and zero times fall back to the
	// lexicographically smallest path.
	Keep       string
	Duplicates []string
}

// Duplicates groups files with identical content. Files are bucketed by size,
// then by a hash of their first 64 KiB, and only then compared in full. Only
// groups with at least two members are returned, ordered by Keep.
func Duplicates(files []File) ([]Group, error) {
	bySize := make(map[int64][]File)
	for _, f := range files {
		bySize[f.Size] = append(bySize[f.Size], f)
	}

	var groups []Group
	for size, sameSize := range bySize {
		if len(sameSize) < 2 {
			continue
		}

		byHeader := make(map[[32]byte][]File)
		for _, f := range sameSize {
			h, err := headerHash(f.Path, size)
			if err != nil {
				return nil, err
			}
			byHeader[h] = append(byHeader[h], f)
		}

		for _, candidates := range byHeader {
			if len(candidates) < 2 {
				continue
			}
			clusters, err := cluster(candidates)
			if err != nil {
				return nil, err
			}
			for _, members := range clusters {
				if len(members) < 2 {
					continue
				}
				groups = append(groups, newGroup(members))
			}
		}
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Keep < groups[j].Keep })
	return groups, nil
}

// cluster partitions same-size, same-header files into exact-equality sets.
func cluster(candidates []File) ([][]File, error) {
	var clusters [][]File
	for _, f := range candidates {
		assigned := false
		for i, c := range clusters {
			same, err := Identical(f.Path, c[0].Path)
			if err != nil {
				return nil, err
			}
			if same {
				clusters[i] = append(clusters[i], f)
				assigned = true
				break
			}
		}
		if !assigned {
			clusters = append(clusters, []File{f})
		}
	}
	return clusters, nil
}

func newGroup(members []File) Group {
	keep := pickOldest(members)
	g := Group{Keep: keep}
	for _, m := range members {
		if m.Path != keep {
			g.Duplicates = append(g.Duplicates, m.Path)
		}
	}
	sort.Strings(g.Duplicates)
	return g
}

func pickOldest(files []File) string {
	best := ""
	var bestTime time.Time
	for _, f := range files {
		t := f.CreatedAt
		if t.IsZero() {
			// Treat unknown as newest.
			continue
		}
		if best == "" || t.Before(bestTime) || (t.Equal(bestTime) && f.Path < best) {
			best = f.Path
			bestTime = t
		}
	}
	if best != "" {
		return best
	}

	best = files[0].Path
	for _, f := range files[1:] {
		if f.Path < best {
			best = f.Path
		}
	}
	return best
}

func headerHash(path string, size int64) ([32]byte, error) {
	limit := min(size, headerBytes)

	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, limit); err != nil && err != io.EOF {
		return [32]byte{}, fmt.Errorf("read header %s: %w", path, err)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Identical reports whether two files hold the same bytes.
func Identical(path1, path2 string) (bool, error) {
	info1, err := os.Stat(path1)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path1, err)
	}
	info2, err := os.Stat(path2)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path2, err)
	}
	if info1.Size() != info2.Size() {
		return false, nil
	}
	if os.SameFile(info1, info2) {
		return true, nil
	}

	f1, err := os.Open(path1)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path1, err)
	}
	defer f1.Close()
	f2, err := os.Open(path2)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path2, err)
	}
	defer f2.Close()

	buf1 := make([]byte, 32*1024)
	buf2 := make([]byte, 32*1024)
	for {
		n1, err1 := io.ReadFull(f1, buf1)
		n2, err2 := io.ReadFull(f2, buf2)
		if err1 != nil && err1 != io.EOF && err1 != io.ErrUnexpectedEOF {
			return false, fmt.Errorf("read %s: %w", path1, err1)
		}
		if err2 != nil && err2 != io.EOF && err2 != io.ErrUnexpectedEOF {
			return false, fmt.Errorf("read %s: %w", path2, err2)
		}
		if !bytes.Equal(buf1[:n1], buf2[:n2]) {
			return false, nil
		}
		if err1 != nil || err2 != nil {
			// Short read: both hit the end together, or the files changed under us.
			return err1 != nil && err2 != nil, nil
		}
	}
}
