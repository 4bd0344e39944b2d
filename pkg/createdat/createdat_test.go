package createdat_test

import (
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/quidome/devscripts-go/internal/exiffixture"
	"github.com/quidome/devscripts-go/pkg/createdat"
)

func TestResolve_MetadataThenMtime(t *testing.T) {
	metadataTime := time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)
	mtime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name          string
		modTime       time.Time
		metadataTime  time.Time
		metadataFound bool
		metadataErr   error
		wantTime      time.Time
		wantSource    createdat.Source
	}{
		{
			name:          "metadata beats mtime",
			modTime:       mtime,
			metadataTime:  metadataTime,
			metadataFound: true,
			wantTime:      metadataTime,
			wantSource:    createdat.SourceMetadata,
		},
		{
			name:          "mtime used when metadata missing",
			modTime:       mtime,
			metadataFound: false,
			wantTime:      mtime,
			wantSource:    createdat.SourceMtime,
		},
		{
			name:          "metadata error falls back to mtime",
			modTime:       mtime,
			metadataTime:  metadataTime,
			metadataFound: true,
			metadataErr:   errors.New("boom"),
			wantTime:      mtime,
			wantSource:    createdat.SourceMtime,
		},
		{
			name:          "found but zero time falls back to mtime",
			modTime:       mtime,
			metadataFound: true,
			wantTime:      mtime,
			wantSource:    createdat.SourceMtime,
		},
		{
			name:          "unknown when no metadata and zero mtime",
			modTime:       time.Time{},
			metadataFound: false,
			wantTime:      time.Time{},
			wantSource:    createdat.SourceUnknown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fsys := fstest.MapFS{
				"root/holiday.jpg": &fstest.MapFile{Data: []byte("x"), ModTime: tc.modTime},
			}
			metadata := &fakeMetadataExtractor{
				createdAt: tc.metadataTime,
				found:     tc.metadataFound,
				err:       tc.metadataErr,
			}

			res := createdat.Resolve(fsys, "root/holiday.jpg", createdat.Options{Metadata: metadata})
			if !res.CreatedAt.Equal(tc.wantTime) {
				t.Fatalf("unexpected CreatedAt\n got: %v\nwant: %v", res.CreatedAt, tc.wantTime)
			}
			if res.Source != tc.wantSource {
				t.Fatalf("unexpected Source\n got: %q\nwant: %q", res.Source, tc.wantSource)
			}
			if metadata.calls.Load() != 1 {
				t.Fatalf("expected extractor to be called once, got %d", metadata.calls.Load())
			}
		})
	}
}

func TestResolve_MissingFileNeverFails(t *testing.T) {
	res := createdat.Resolve(fstest.MapFS{}, "root/missing.jpg", createdat.Options{})
	if res.Source != createdat.SourceUnknown {
		t.Fatalf("expected unknown source, got %q", res.Source)
	}
	if !res.CreatedAt.IsZero() {
		t.Fatalf("expected zero time, got %v", res.CreatedAt)
	}
}

func TestResolve_PanickingExtractorFallsBack(t *testing.T) {
	mtime := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	fsys := fstest.MapFS{
		"a.jpg": &fstest.MapFile{Data: []byte("x"), ModTime: mtime},
	}

	detailed := createdat.ResolveDetailed(fsys, "a.jpg", createdat.Options{Metadata: panickingExtractor{}})
	if detailed.Best.Source != createdat.SourceMtime {
		t.Fatalf("expected mtime source, got %q", detailed.Best.Source)
	}
	if detailed.MetadataErr == nil {
		t.Fatalf("expected MetadataErr to be recorded")
	}
}

func TestResolve_DefaultExifExtractor(t *testing.T) {
	mtime := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	loc := time.FixedZone("TEST", 2*60*60)

	testCases := []struct {
		name       string
		data       []byte
		wantTime   time.Time
		wantSource createdat.Source
	}{
		{
			name:       "DateTimeOriginal",
			data:       exiffixture.WithDateTimeOriginal("2012:11:04 05:42:02"),
			wantTime:   time.Date(2012, 11, 4, 5, 42, 2, 0, loc),
			wantSource: createdat.SourceMetadata,
		},
		{
			name: "DateTimeOriginal preferred over DateTime",
			data: exiffixture.JPEG(map[uint16]string{
				exiffixture.TagDateTime:         "2020:01:01 00:00:00",
				exiffixture.TagDateTimeOriginal: "2019:06:07 08:09:10",
			}),
			wantTime:   time.Date(2019, 6, 7, 8, 9, 10, 0, loc),
			wantSource: createdat.SourceMetadata,
		},
		{
			name:       "DateTime used when it is the only tag",
			data:       exiffixture.JPEG(map[uint16]string{exiffixture.TagDateTime: "2018:02:03 04:05:06"}),
			wantTime:   time.Date(2018, 2, 3, 4, 5, 6, 0, loc),
			wantSource: createdat.SourceMetadata,
		},
		{
			name: "unparseable original falls through to DateTime",
			data: exiffixture.JPEG(map[uint16]string{
				exiffixture.TagDateTimeOriginal: "not a date at all",
				exiffixture.TagDateTime:         "2017:01:01 12:00:00",
			}),
			wantTime:   time.Date(2017, 1, 1, 12, 0, 0, 0, loc),
			wantSource: createdat.SourceMetadata,
		},
		{
			name:       "unparseable value falls back to mtime",
			data:       exiffixture.WithDateTimeOriginal("2012-11-04T05:42:02"),
			wantTime:   mtime,
			wantSource: createdat.SourceMtime,
		},
		{
			name:       "exif without date tags falls back to mtime",
			data:       exiffixture.JPEG(map[uint16]string{0x010F: "Camera Maker"}),
			wantTime:   mtime,
			wantSource: createdat.SourceMtime,
		},
		{
			name:       "PNG eXIf chunk",
			data:       exiffixture.PNG(map[uint16]string{exiffixture.TagDateTimeOriginal: "2010:01:01 00:00:00"}),
			wantTime:   time.Date(2010, 1, 1, 0, 0, 0, 0, loc),
			wantSource: createdat.SourceMetadata,
		},
		{
			name:       "PNG eXIf chunk with Exif header",
			data:       exiffixture.PNGWithPayload(append([]byte("Exif\x00\x00"), exiffixture.TIFF(map[uint16]string{exiffixture.TagDateTime: "2011:02:03 04:05:06"})...)),
			wantTime:   time.Date(2011, 2, 3, 4, 5, 6, 0, loc),
			wantSource: createdat.SourceMetadata,
		},
		{
			name:       "PNG without eXIf falls back to mtime",
			data:       exiffixture.PNG(nil),
			wantTime:   mtime,
			wantSource: createdat.SourceMtime,
		},
		{
			name:       "truncated PNG falls back to mtime",
			data:       exiffixture.PNG(map[uint16]string{exiffixture.TagDateTimeOriginal: "2010:01:01 00:00:00"})[:20],
			wantTime:   mtime,
			wantSource: createdat.SourceMtime,
		},
		{
			name:       "WebP EXIF chunk",
			data:       exiffixture.WebP(map[uint16]string{exiffixture.TagDateTimeOriginal: "2009:08:07 06:05:04"}),
			wantTime:   time.Date(2009, 8, 7, 6, 5, 4, 0, loc),
			wantSource: createdat.SourceMetadata,
		},
		{
			name:       "WebP EXIF chunk with Exif header",
			data:       exiffixture.WebPWithPayload(append([]byte("Exif\x00\x00"), exiffixture.TIFF(map[uint16]string{exiffixture.TagDateTimeDigitized: "2008:01:02 03:04:05"})...)),
			wantTime:   time.Date(2008, 1, 2, 3, 4, 5, 0, loc),
			wantSource: createdat.SourceMetadata,
		},
		{
			name:       "WebP without EXIF falls back to mtime",
			data:       exiffixture.WebP(nil),
			wantTime:   mtime,
			wantSource: createdat.SourceMtime,
		},
		{
			name:       "non-image content falls back to mtime",
			data:       []byte("definitely not an image"),
			wantTime:   mtime,
			wantSource: createdat.SourceMtime,
		},
		{
			name:       "empty file falls back to mtime",
			data:       nil,
			wantTime:   mtime,
			wantSource: createdat.SourceMtime,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fsys := fstest.MapFS{
				"a.jpg": &fstest.MapFile{Data: tc.data, ModTime: mtime},
			}

			res := createdat.Resolve(fsys, "a.jpg", createdat.Options{Location: loc})
			if res.Source != tc.wantSource {
				t.Fatalf("unexpected Source\n got: %q\nwant: %q", res.Source, tc.wantSource)
			}
			if !res.CreatedAt.Equal(tc.wantTime) {
				t.Fatalf("unexpected CreatedAt\n got: %v\nwant: %v", res.CreatedAt, tc.wantTime)
			}
		})
	}
}

func TestResolveAll_PositionalResults(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	fsys := fstest.MapFS{}
	paths := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		p := string(rune('a'+i%26)) + string(rune('a'+i/26)) + ".png"
		fsys[p] = &fstest.MapFile{Data: []byte(p), ModTime: base.Add(time.Duration(i) * time.Minute)}
		paths = append(paths, p)
	}

	for _, workers := range []int{0, 1, 4, 100} {
		got := createdat.ResolveAll(fsys, paths, createdat.Options{}, workers)
		if len(got) != len(paths) {
			t.Fatalf("workers=%d: expected %d results, got %d", workers, len(paths), len(got))
		}
		for i, res := range got {
			want := base.Add(time.Duration(i) * time.Minute)
			if !res.CreatedAt.Equal(want) {
				t.Fatalf("workers=%d: result %d = %v, want %v", workers, i, res.CreatedAt, want)
			}
		}
	}
}

func TestResolveAll_Empty(t *testing.T) {
	if got := createdat.ResolveAll(fstest.MapFS{}, nil, createdat.Options{}, 4); len(got) != 0 {
		t.Fatalf("expected no results, got %d", len(got))
	}
}

type fakeMetadataExtractor struct {
	createdAt time.Time
	found     bool
	err       error

	calls atomic.Int32
}

func (f *fakeMetadataExtractor) CreatedAt(path string, r io.Reader) (time.Time, bool, error) {
	f.calls.Add(1)
	_, _ = io.ReadAll(r)
	return f.createdAt, f.found, f.err
}

type panickingExtractor struct{}

func (panickingExtractor) CreatedAt(string, io.Reader) (time.Time, bool, error) {
	panic("corrupt segment")
}
