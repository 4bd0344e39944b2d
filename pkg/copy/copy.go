package copy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/quidome/devscripts-go/pkg/plan"
	"github.com/quidome/devscripts-go/pkg/reconcile"
	"go.uber.org/zap"
)

var (
	// ErrDestinationExists is returned when attempting to copy to an existing file
	ErrDestinationExists = errors.New("destination file already exists")
)

// Result contains the outcome of a copy operation.
type Result struct {
	Operation plan.Operation
	// Replaced is true when an existing destination was overwritten.
	Replaced bool
	// Unchanged is true when the destination already held the source's bytes.
	Unchanged bool
}

// Options configures the copy behavior.
type Options struct {
	// Overwrite allows overwriting existing files.
	// Default should be false for safety.
	Overwrite bool
	// Logger receives progress and rollback messages. Nil disables logging.
	Logger *zap.Logger
}

// Execute performs copy operations in order.
//
// It will:
// - Create destination directories if they don't exist
// - Never overwrite existing files (unless Overwrite is true); a destination
//   with the same content as its source is accepted as already copied
// - Preserve permission bits and modification time of each source
//
// Execution is all-or-nothing: on the first failure, every file and directory
// created by this call is removed again before the error is returned. Files
// replaced under Overwrite cannot be restored.
func Execute(ctx context.Context, operations []plan.Operation, opts Options) ([]Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var j journal
	results := make([]Result, 0, len(operations))

	for _, op := range operations {
		if err := ctx.Err(); err != nil {
			return nil, j.rollback(log, err)
		}

		destDir := filepath.Dir(op.DestinationPath)
		created, err := mkdirAll(destDir)
		j.dirs = append(j.dirs, created...)
		if err != nil {
			return nil, j.rollback(log, fmt.Errorf("create directory %s: %w", destDir, err))
		}

		replaced, err := copyFile(op.SourcePath, op.DestinationPath, opts.Overwrite)
		if errors.Is(err, ErrDestinationExists) {
			if same, cmpErr := reconcile.Identical(op.SourcePath, op.DestinationPath); cmpErr == nil && same {
				log.Debug("already copied",
					zap.String("source", op.SourcePath),
					zap.String("destination", op.DestinationPath))
				results = append(results, Result{Operation: op, Unchanged: true})
				continue
			}
		}
		if err != nil {
			return nil, j.rollback(log, fmt.Errorf("copy %s -> %s: %w", op.SourcePath, op.DestinationPath, err))
		}
		if !replaced {
			j.files = append(j.files, op.DestinationPath)
		}

		log.Debug("copied",
			zap.String("source", op.SourcePath),
			zap.String("destination", op.DestinationPath),
			zap.Bool("replaced", replaced))
		results = append(results, Result{Operation: op, Replaced: replaced})
	}

	return results, nil
}

// journal records what Execute created so it can be undone.
type journal struct {
	files []string
	dirs  []string // shallowest first
}

func (j *journal) rollback(log *zap.Logger, cause error) error {
	var errs []error
	for i := len(j.files) - 1; i >= 0; i-- {
		if err := os.Remove(j.files[i]); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("rollback: remove %s: %w", j.files[i], err))
		}
	}
	for i := len(j.dirs) - 1; i >= 0; i-- {
		// Only empty directories are removed; anything else was not ours to delete.
		_ = os.Remove(j.dirs[i])
	}

	log.Warn("copy failed, rolled back",
		zap.Int("removed_files", len(j.files)-len(errs)),
		zap.Error(cause))

	if len(errs) > 0 {
		return errors.Join(append([]error{cause}, errs...)...)
	}
	return cause
}

// mkdirAll is os.MkdirAll that reports which directories it created, shallowest first.
func mkdirAll(dir string) ([]string, error) {
	var missing []string
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		missing = append(missing, d)
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	err := os.MkdirAll(dir, 0o755)

	created := make([]string, 0, len(missing))
	for i := len(missing) - 1; i >= 0; i-- {
		if _, statErr := os.Stat(missing[i]); statErr == nil {
			created = append(created, missing[i])
		}
	}
	return created, err
}

// copyFile copies a single file from src to dst and reports whether an
// existing dst was replaced. If allowOverwrite is false, an existing dst
// yields ErrDestinationExists.
func copyFile(src, dst string, allowOverwrite bool) (bool, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return false, fmt.Errorf("open source: %w", err)
	}
	defer srcFile.Close()

	// Get source file info for permissions and times
	srcInfo, err := srcFile.Stat()
	if err != nil {
		return false, fmt.Errorf("stat source: %w", err)
	}

	if !allowOverwrite {
		dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, srcInfo.Mode().Perm())
		if err != nil {
			if os.IsExist(err) {
				return false, ErrDestinationExists
			}
			return false, fmt.Errorf("create destination: %w", err)
		}
		if err := writeAndPreserve(dstFile, srcFile, srcInfo); err != nil {
			_ = os.Remove(dst)
			return false, err
		}
		return false, nil
	}

	_, statErr := os.Lstat(dst)
	existed := statErr == nil

	// Stage next to dst and rename over it so a failed copy never truncates dst.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*"+filepath.Ext(dst))
	if err != nil {
		return false, fmt.Errorf("create staging file: %w", err)
	}
	if err := writeAndPreserve(tmp, srcFile, srcInfo); err != nil {
		_ = os.Remove(tmp.Name())
		return false, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return false, fmt.Errorf("replace destination: %w", err)
	}
	return existed, nil
}

// writeAndPreserve copies content into dstFile, closes it, and applies the
// source's permission bits and modification time.
func writeAndPreserve(dstFile *os.File, src io.Reader, srcInfo os.FileInfo) error {
	if _, err := io.Copy(dstFile, src); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("copy content: %w", err)
	}

	// Ensure data is written to disk
	if err := dstFile.Sync(); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}

	name := dstFile.Name()
	if err := os.Chmod(name, srcInfo.Mode().Perm()); err != nil {
		return fmt.Errorf("preserve mode: %w", err)
	}
	// Access time is not portable to read; the source mtime stands in for both.
	mtime := srcInfo.ModTime()
	if err := os.Chtimes(name, mtime, mtime); err != nil {
		return fmt.Errorf("preserve times: %w", err)
	}
	return nil
}
