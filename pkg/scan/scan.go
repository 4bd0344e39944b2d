// Package scan collects the image files that sit directly inside a folder.
package scan

import (
	"io/fs"
	"path"
	"strings"
	"time"
)

type Options struct {
	// Extensions lists the recognized image extensions. Matching is case-insensitive
	// and a leading dot is optional.
	Extensions []string
}

func DefaultOptions() Options {
	return Options{
		Extensions: []string{
			".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".webp",
		},
	}
}

// Record is a collected image file.
type Record struct {
	Path          string    `json:"path"`
	Ext           string    `json:"ext"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	ModTime       time.Time `json:"mod_time"`
}

// Collect returns the direct entries of root whose extension is recognized.
//
// Subdirectories are never descended into and are excluded even when their name
// carries an image extension. Symlinks are followed when fsys follows them (os.DirFS
// does). Records come back in fs.ReadDir order; callers must not rely on it beyond
// determinism.
func Collect(fsys fs.FS, root string, opts Options) ([]Record, error) {
	exts := normalizeExts(opts.Extensions)

	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		ext := path.Ext(name)
		if !exts[strings.ToLower(ext)] {
			continue
		}

		rel := name
		if root != "." {
			rel = path.Join(root, name)
		}

		info, statErr := fs.Stat(fsys, rel)
		if statErr != nil {
			// Dangling symlink or a file removed since listing.
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		records = append(records, Record{
			Path:          rel,
			Ext:           ext,
			FileSizeBytes: info.Size(),
			ModTime:       info.ModTime(),
		})
	}
	return records, nil
}

// Paths returns the Path of each record, in order.
func Paths(records []Record) []string {
	paths := make([]string, 0, len(records))
	for _, r := range records {
		paths = append(paths, r.Path)
	}
	return paths
}

func normalizeExts(exts []string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, ext := range exts {
		e := strings.TrimSpace(strings.ToLower(ext))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[e] = true
	}
	return m
}
