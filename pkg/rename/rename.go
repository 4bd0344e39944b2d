// Package rename executes a sequential rename plan inside a single directory.
//
// Every source is tracked through three states. A file is pending until it is
// moved to its final name, at which point it is finalized. If a pending file
// sits on a name another file needs first, it is relocated to a unique
// temporary name and finalized later from there. Occupancy is decided from
// this in-memory state rather than from filesystem existence checks alone.
package rename

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/quidome/devscripts-go/pkg/plan"
	"go.uber.org/zap"
)

var (
	// ErrTargetOccupied is returned when a destination name is taken by a file
	// that is not part of the plan.
	ErrTargetOccupied = errors.New("target name occupied by a file outside the plan")
	// ErrInvalidPlan is returned for plans with repeated sources or destinations.
	ErrInvalidPlan = errors.New("invalid rename plan")
)

// State is the progress of a single source file.
type State int

const (
	StatePending State = iota
	StateRelocated
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRelocated:
		return "relocated"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TempPrefix starts the name of every temporary slot.
const TempPrefix = ".reorder-"

// Options configures Execute.
type Options struct {
	// Logger receives one debug line per move. Nil disables logging.
	Logger *zap.Logger

	// rename replaces os.Rename in tests.
	rename func(oldpath, newpath string) error
}

// Result describes what happened to one operation.
type Result struct {
	Operation plan.Operation
	// Moved is false when the file already carried its final name.
	Moved bool
	// Relocated is true when the file took a temporary hop first.
	Relocated bool
}

// Move is a single rename applied to the filesystem.
type Move struct {
	From string
	To   string
}

type executor struct {
	rename func(oldpath, newpath string) error
	log    *zap.Logger

	state    map[string]State  // original path -> state
	current  map[string]string // original path -> where the file is now
	occupant map[string]string // path -> original path of the participant there
	alias    map[string]string // target -> participant that is the same file under another spelling

	journal []Move
}

// Execute renames every operation's source to its destination, in order.
//
// Execution is all-or-nothing: if any step fails, the moves already made are
// reversed before the error is returned. If reversal itself fails, the
// returned error also names the paths that could not be restored.
func Execute(ctx context.Context, operations []plan.Operation, opts Options) ([]Result, error) {
	e := &executor{
		rename:   opts.rename,
		log:      opts.Logger,
		state:    make(map[string]State, len(operations)),
		current:  make(map[string]string, len(operations)),
		occupant: make(map[string]string, len(operations)),
		alias:    make(map[string]string),
	}
	if e.rename == nil {
		e.rename = os.Rename
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}

	ops, err := e.preflight(operations)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(ops))
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return nil, e.rollback(err)
		}
		res, err := e.apply(op)
		if err != nil {
			return nil, e.rollback(err)
		}
		results = append(results, res)
	}
	return results, nil
}

// preflight validates the plan and seeds the state maps. It never touches the
// filesystem beyond Lstat.
func (e *executor) preflight(operations []plan.Operation) ([]plan.Operation, error) {
	ops := make([]plan.Operation, 0, len(operations))
	infos := make(map[string]os.FileInfo, len(operations))
	targets := make(map[string]bool, len(operations))

	for _, op := range operations {
		op.SourcePath = filepath.Clean(op.SourcePath)
		op.DestinationPath = filepath.Clean(op.DestinationPath)

		if _, dup := e.state[op.SourcePath]; dup {
			return nil, fmt.Errorf("%w: source %s listed twice", ErrInvalidPlan, op.SourcePath)
		}
		if targets[op.DestinationPath] {
			return nil, fmt.Errorf("%w: destination %s listed twice", ErrInvalidPlan, op.DestinationPath)
		}
		targets[op.DestinationPath] = true

		info, err := os.Lstat(op.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("stat source: %w", err)
		}
		infos[op.SourcePath] = info

		e.state[op.SourcePath] = StatePending
		e.current[op.SourcePath] = op.SourcePath
		e.occupant[op.SourcePath] = op.SourcePath
		ops = append(ops, op)
	}

	for _, op := range ops {
		target := op.DestinationPath
		if _, ok := e.occupant[target]; ok {
			continue
		}
		info, err := os.Lstat(target)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat target: %w", err)
		}
		// On case-insensitive filesystems "1.JPG" answers for "1.jpg".
		if owner := sameFileOwner(info, infos); owner != "" {
			e.alias[target] = owner
			continue
		}
		return nil, fmt.Errorf("%w: %s", ErrTargetOccupied, target)
	}

	return ops, nil
}

func sameFileOwner(info os.FileInfo, infos map[string]os.FileInfo) string {
	for p, other := range infos {
		if os.SameFile(info, other) {
			return p
		}
	}
	return ""
}

// occupantAt reports which participant currently holds path, if any.
func (e *executor) occupantAt(path string) string {
	if o, ok := e.occupant[path]; ok {
		return o
	}
	if o, ok := e.alias[path]; ok && e.current[o] == o {
		return o
	}
	return ""
}

func (e *executor) apply(op plan.Operation) (Result, error) {
	src := op.SourcePath
	target := op.DestinationPath
	res := Result{Operation: op}

	if e.current[src] == target {
		e.state[src] = StateFinalized
		return res, nil
	}

	if occ := e.occupantAt(target); occ != "" && occ != src {
		if e.state[occ] != StatePending {
			// Targets are unique, so only a pending file can be in the way.
			return res, fmt.Errorf("%w: %s held by %s in state %s", ErrInvalidPlan, target, occ, e.state[occ])
		}
		if err := e.relocate(occ); err != nil {
			return res, err
		}
	}

	wasRelocated := e.state[src] == StateRelocated
	if err := e.move(src, target); err != nil {
		return res, err
	}
	e.state[src] = StateFinalized

	res.Moved = true
	res.Relocated = wasRelocated
	return res, nil
}

func (e *executor) relocate(orig string) error {
	from := e.current[orig]
	dir := filepath.Dir(from)
	ext := filepath.Ext(from)

	var tmp string
	for {
		tmp = filepath.Join(dir, TempPrefix+uuid.NewString()+ext)
		if _, ok := e.occupant[tmp]; ok {
			continue
		}
		if _, err := os.Lstat(tmp); os.IsNotExist(err) {
			break
		}
	}

	if err := e.move(orig, tmp); err != nil {
		return err
	}
	e.state[orig] = StateRelocated
	return nil
}

// move renames the participant orig from where it is now to dst and records
// the move in the journal.
func (e *executor) move(orig, dst string) error {
	from := e.current[orig]

	if e.occupantAt(dst) != orig {
		// os.Rename replaces silently on most platforms; refuse instead.
		if _, err := os.Lstat(dst); err == nil {
			return fmt.Errorf("%w: %s", ErrTargetOccupied, dst)
		}
	}

	if err := e.rename(from, dst); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", from, dst, err)
	}

	e.journal = append(e.journal, Move{From: from, To: dst})
	delete(e.occupant, from)
	e.occupant[dst] = orig
	e.current[orig] = dst

	e.log.Debug("renamed", zap.String("from", from), zap.String("to", dst))
	return nil
}

func (e *executor) rollback(cause error) error {
	var errs []error
	for i := len(e.journal) - 1; i >= 0; i-- {
		m := e.journal[i]
		if err := e.rename(m.To, m.From); err != nil {
			errs = append(errs, fmt.Errorf("rollback: %s left at %s: %w", m.From, m.To, err))
		}
	}

	e.log.Warn("rename failed, rolled back",
		zap.Int("moves", len(e.journal)),
		zap.Int("rollback_failures", len(errs)),
		zap.Error(cause))

	if len(errs) > 0 {
		return errors.Join(append([]error{cause}, errs...)...)
	}
	return cause
}
