package scan

import (
	"io/fs"
	"reflect"
	"testing"
	"testing/fstest"
)

func TestCollect_NonRecursive(t *testing.T) {
	fsys := fstest.MapFS{
		"root/a.jpg":            &fstest.MapFile{Data: []byte("a")},
		"root/b.PNG":            &fstest.MapFile{Data: []byte("b")},
		"root/c.txt":            &fstest.MapFile{Data: []byte("c")},
		"root/sub/d.png":        &fstest.MapFile{Data: []byte("d")},
		"root/sub/nested/e.gif": &fstest.MapFile{Data: []byte("e")},
	}

	got, err := Collect(fsys, "root", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"root/a.jpg", "root/b.PNG"}
	if !reflect.DeepEqual(Paths(got), want) {
		t.Fatalf("unexpected result\n got: %#v\nwant: %#v", Paths(got), want)
	}
	if got[1].Ext != ".PNG" {
		t.Fatalf("expected original extension to be kept, got %q", got[1].Ext)
	}
	if got[0].FileSizeBytes != 1 {
		t.Fatalf("expected size 1, got %d", got[0].FileSizeBytes)
	}
}

func TestCollect_RecognizedExtensions(t *testing.T) {
	testCases := []struct {
		name string
		file string
		want bool
	}{
		{name: "jpg", file: "x.jpg", want: true},
		{name: "jpeg upper", file: "x.JPEG", want: true},
		{name: "png", file: "x.png", want: true},
		{name: "gif", file: "x.gif", want: true},
		{name: "bmp", file: "x.bmp", want: true},
		{name: "tiff", file: "x.TiFF", want: true},
		{name: "webp", file: "x.webp", want: true},
		{name: "tif is not listed", file: "x.tif", want: false},
		{name: "heic is not listed", file: "x.heic", want: false},
		{name: "no extension", file: "jpg", want: false},
		{name: "video", file: "x.mp4", want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fsys := fstest.MapFS{
				tc.file: &fstest.MapFile{Data: []byte("x")},
			}
			got, err := Collect(fsys, ".", DefaultOptions())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (len(got) == 1) != tc.want {
				t.Fatalf("expected match=%v, got %#v", tc.want, got)
			}
			if tc.want && got[0].Path != tc.file {
				t.Fatalf("expected path %q, got %q", tc.file, got[0].Path)
			}
		})
	}
}

func TestCollect_SkipsDirectoriesWithImageNames(t *testing.T) {
	fsys := fstest.MapFS{
		"root/album.jpg":       &fstest.MapFile{Mode: fs.ModeDir},
		"root/album.jpg/x.jpg": &fstest.MapFile{Data: []byte("x")},
		"root/real.jpg":        &fstest.MapFile{Data: []byte("y")},
	}

	got, err := Collect(fsys, "root", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(Paths(got), []string{"root/real.jpg"}) {
		t.Fatalf("unexpected result: %#v", Paths(got))
	}
}

func TestCollect_CustomExtensionsWithoutDot(t *testing.T) {
	fsys := fstest.MapFS{
		"a.heic": &fstest.MapFile{Data: []byte("a")},
		"b.jpg":  &fstest.MapFile{Data: []byte("b")},
	}

	got, err := Collect(fsys, ".", Options{Extensions: []string{"HEIC", " "}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(Paths(got), []string{"a.heic"}) {
		t.Fatalf("unexpected result: %#v", Paths(got))
	}
}

func TestCollect_MissingRoot(t *testing.T) {
	_, err := Collect(fstest.MapFS{}, "missing", DefaultOptions())
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}
