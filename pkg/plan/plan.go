package plan

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Operation represents a planned move or copy from source to destination.
type Operation struct {
	Index           int
	SourcePath      string
	DestinationPath string
}

// Item is a file to be sequenced together with its resolved timestamp.
type Item struct {
	Path      string
	CreatedAt time.Time
}

// Name returns the sequential file name for a 1-based index: "<index><ext>" with
// the extension lowercased.
func Name(index int, ext string) string {
	return fmt.Sprintf("%d%s", index, strings.ToLower(ext))
}

// Order sorts items by CreatedAt. The sort is stable, so items with equal
// timestamps keep their relative input order.
func Order(items []Item) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

// Sequence orders items by timestamp and assigns each one a destination in
// destDir named by its 1-based position.
//
// Destination names are unique by construction, so no collision handling is
// needed inside destDir beyond what the executors do against existing files.
func Sequence(destDir string, items []Item) []Operation {
	sorted := Order(items)

	operations := make([]Operation, 0, len(sorted))
	for i, item := range sorted {
		index := i + 1
		operations = append(operations, Operation{
			Index:           index,
			SourcePath:      item.Path,
			DestinationPath: filepath.Join(destDir, Name(index, filepath.Ext(item.Path))),
		})
	}
	return operations
}
