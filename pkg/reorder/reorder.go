// Package reorder renames or copies the images of a folder into capture-time
// order, naming them 1.<ext>, 2.<ext>, ... .
package reorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/quidome/devscripts-go/pkg/copy"
	"github.com/quidome/devscripts-go/pkg/createdat"
	"github.com/quidome/devscripts-go/pkg/plan"
	"github.com/quidome/devscripts-go/pkg/rename"
	"github.com/quidome/devscripts-go/pkg/scan"
	"go.uber.org/zap"
)

var (
	// ErrInvalidInput is returned when the source folder is missing or not a
	// directory, or the output folder is the source folder.
	ErrInvalidInput = errors.New("invalid input")
	// ErrFilesystemOperation wraps copy and rename failures. Work done before
	// the failure has been rolled back unless the error says otherwise.
	ErrFilesystemOperation = errors.New("filesystem operation failed")
)

// Options configures Run.
type Options struct {
	// Folder holds the images. Required.
	Folder string
	// Output switches to copy mode when set. Otherwise files are renamed in place.
	Output string

	// Workers bounds parallel metadata reads. <= 0 means runtime.NumCPU().
	Workers int
	// Location interprets EXIF timestamps. Nil means time.Local.
	Location *time.Location
	// Metadata overrides the EXIF extractor.
	Metadata createdat.MetadataExtractor
	// Extensions overrides the recognized image extensions.
	Extensions []string

	// Overwrite lets copy mode replace existing files in Output.
	Overwrite bool
	// DryRun plans without touching the filesystem.
	DryRun bool

	Logger *zap.Logger
}

// Summary reports what Run did, or would do under DryRun.
type Summary struct {
	Processed   int
	Destination string
	Operations  []plan.Operation
}

// Run collects the images in opts.Folder, orders them by capture time and
// either copies them into opts.Output or renames them in place.
//
// A folder without images is not an error: Run returns a zero Processed count
// and creates nothing.
func Run(ctx context.Context, opts Options) (Summary, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if err := validate(opts); err != nil {
		return Summary{}, err
	}

	dest := opts.Folder
	if opts.Output != "" {
		dest = opts.Output
	}
	summary := Summary{Destination: dest}

	entries, err := list(opts, log)
	if err != nil {
		return summary, err
	}
	if len(entries) == 0 {
		log.Info("no images found", zap.String("folder", opts.Folder))
		return summary, nil
	}

	items := make([]plan.Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, plan.Item{Path: e.FullPath, CreatedAt: e.CreatedAt.Best.CreatedAt})
	}

	summary.Operations = plan.Sequence(dest, items)
	summary.Processed = len(summary.Operations)

	if opts.DryRun {
		log.Info("dry run, nothing changed", zap.Int("planned", summary.Processed))
		return summary, nil
	}

	if opts.Output != "" {
		_, err = copy.Execute(ctx, summary.Operations, copy.Options{Overwrite: opts.Overwrite, Logger: log})
	} else {
		_, err = rename.Execute(ctx, summary.Operations, rename.Options{Logger: log})
	}
	if err != nil {
		return Summary{Destination: dest}, fmt.Errorf("%w: %w", ErrFilesystemOperation, err)
	}

	log.Info("reordered",
		zap.Int("processed", summary.Processed),
		zap.String("destination", dest),
		zap.Bool("copy", opts.Output != ""))
	return summary, nil
}

// Entry is a collected image together with every timestamp considered for it.
type Entry struct {
	Record    scan.Record
	FullPath  string
	CreatedAt createdat.DetailedResult
}

// List collects the images of opts.Folder and resolves their timestamps. Entries
// come back in collection order, not capture order.
func List(opts Options) ([]Entry, error) {
	if err := validateFolder(opts.Folder); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return list(opts, log)
}

func list(opts Options, log *zap.Logger) ([]Entry, error) {
	records, err := collect(opts)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	for _, r := range records {
		if strings.HasPrefix(path.Base(r.Path), rename.TempPrefix) {
			log.Warn("temporary file from an interrupted run, numbering it like any other image",
				zap.String("path", filepath.Join(opts.Folder, filepath.FromSlash(r.Path))))
		}
	}

	results := createdat.ResolveAllDetailed(os.DirFS(opts.Folder), scan.Paths(records), createdat.Options{
		Location: opts.Location,
		Metadata: opts.Metadata,
		Logger:   log,
	}, opts.Workers)

	entries := make([]Entry, 0, len(records))
	for i, r := range records {
		entries = append(entries, Entry{
			Record:    r,
			FullPath:  filepath.Join(opts.Folder, filepath.FromSlash(r.Path)),
			CreatedAt: results[i],
		})
	}
	return entries, nil
}

func collect(opts Options) ([]scan.Record, error) {
	scanOpts := scan.DefaultOptions()
	if opts.Extensions != nil {
		scanOpts.Extensions = opts.Extensions
	}
	records, err := scan.Collect(os.DirFS(opts.Folder), ".", scanOpts)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", opts.Folder, err)
	}
	return records, nil
}

func validateFolder(folder string) error {
	if folder == "" {
		return fmt.Errorf("%w: no folder given", ErrInvalidInput)
	}
	info, err := os.Stat(folder)
	if err != nil {
		return fmt.Errorf("%w: %s is not a valid folder: %w", ErrInvalidInput, folder, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a valid folder", ErrInvalidInput, folder)
	}
	return nil
}

func validate(opts Options) error {
	if err := validateFolder(opts.Folder); err != nil {
		return err
	}
	if opts.Output == "" {
		return nil
	}
	info, err := os.Stat(opts.Folder)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if sameDir(opts.Folder, opts.Output, info) {
		return fmt.Errorf("%w: output folder is the source folder; omit the output to rename in place", ErrInvalidInput)
	}
	return nil
}

func sameDir(folder, output string, folderInfo os.FileInfo) bool {
	if outInfo, err := os.Stat(output); err == nil {
		return os.SameFile(folderInfo, outInfo)
	}
	a, errA := filepath.Abs(folder)
	b, errB := filepath.Abs(output)
	return errA == nil && errB == nil && a == b
}
