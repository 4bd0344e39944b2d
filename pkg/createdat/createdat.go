package createdat

import (
	"io"
	"io/fs"
	"path"
	"time"

	"go.uber.org/zap"
)

// Source describes where a CreatedAt timestamp was derived from.
//
// The priority order is:
//  1. metadata
//  2. mtime
//  3. unknown
type Source string

const (
	SourceMetadata Source = "metadata"
	SourceMtime    Source = "mtime"
	SourceUnknown  Source = "unknown"
)

// Result contains a creation timestamp and its source.
type Result struct {
	CreatedAt time.Time
	Source    Source
}

// DetailedResult contains all considered timestamps.
type DetailedResult struct {
	// Best is the chosen timestamp using priority: metadata > mtime
	Best Result
	// Metadata is the timestamp extracted from embedded EXIF data
	Metadata time.Time
	// Filestat is the mtime from filesystem metadata
	Filestat time.Time
	// MetadataErr is why Metadata is empty, if it is.
	MetadataErr error
}

// MetadataExtractor extracts an embedded creation timestamp from an image stream.
//
// Implementations should return (t, true, nil) when a timestamp is found.
// If no timestamp exists, return (time.Time{}, false, nil).
// Errors are absorbed by Resolve and trigger the mtime fallback.
type MetadataExtractor interface {
	CreatedAt(path string, r io.Reader) (time.Time, bool, error)
}

// Options configures Resolve.
type Options struct {
	// Location is used for EXIF timestamps, which carry no timezone.
	// If nil, time.Local is used.
	Location *time.Location
	// Metadata optionally extracts embedded timestamps.
	//
	// If nil, an EXIF-based extractor is used.
	Metadata MetadataExtractor
	// Logger receives a debug line for every fallback. Nil disables logging.
	Logger *zap.Logger
}

func (o Options) extractor() MetadataExtractor {
	if o.Metadata != nil {
		return o.Metadata
	}
	loc := o.Location
	if loc == nil {
		loc = time.Local
	}
	return ExifExtractor{Location: loc}
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Resolve returns the capture timestamp for p. It never fails: when the
// metadata cannot be read, the file's mtime is used, and when even that is
// unavailable the zero time is returned with SourceUnknown.
func Resolve(fsys fs.FS, p string, opts Options) Result {
	return ResolveDetailed(fsys, p, opts).Best
}

// ResolveDetailed returns all considered timestamps for p.
func ResolveDetailed(fsys fs.FS, p string, opts Options) DetailedResult {
	p = path.Clean(p)
	log := opts.logger().With(zap.String("path", p))

	var result DetailedResult

	createdAt, err := readMetadata(fsys, p, opts.extractor())
	if err != nil {
		result.MetadataErr = err
		log.Debug("metadata unavailable", zap.Error(err))
	} else {
		result.Metadata = createdAt
	}

	if info, statErr := fs.Stat(fsys, p); statErr == nil {
		result.Filestat = info.ModTime()
	} else {
		log.Debug("stat failed", zap.Error(statErr))
	}

	switch {
	case !result.Metadata.IsZero():
		result.Best = Result{CreatedAt: result.Metadata, Source: SourceMetadata}
	case !result.Filestat.IsZero():
		result.Best = Result{CreatedAt: result.Filestat, Source: SourceMtime}
	default:
		result.Best = Result{Source: SourceUnknown}
	}

	log.Debug("resolved created_at",
		zap.Time("created_at", result.Best.CreatedAt),
		zap.String("source", string(result.Best.Source)))

	return result
}

func readMetadata(fsys fs.FS, p string, extractor MetadataExtractor) (createdAt time.Time, err error) {
	f, err := fsys.Open(p)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	defer func() {
		// Extractors parse untrusted bytes; a panic is just another read failure.
		if r := recover(); r != nil {
			createdAt, err = time.Time{}, errExtractorPanic{value: r}
		}
	}()

	createdAt, ok, err := extractor.CreatedAt(p, f)
	if err != nil {
		return time.Time{}, err
	}
	if !ok || createdAt.IsZero() {
		return time.Time{}, ErrNoMetadata
	}
	return createdAt, nil
}
