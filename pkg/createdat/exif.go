package createdat

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/riff"
)

// ExifLayout is the EXIF date/time format: "YYYY:MM:DD HH:MM:SS".
const ExifLayout = "2006:01:02 15:04:05"

// ErrNoMetadata is recorded when a file carries no usable capture timestamp.
var ErrNoMetadata = errors.New("no capture timestamp in metadata")

type errExtractorPanic struct {
	value any
}

func (e errExtractorPanic) Error() string {
	return fmt.Sprintf("metadata extractor panicked: %v", e.value)
}

// ExifExtractor reads capture time from EXIF data in JPEG and TIFF streams, and
// from the EXIF chunk of PNG (eXIf) and WebP (EXIF) files.
type ExifExtractor struct {
	// Location is applied to the parsed timestamp. If nil, time.Local is used.
	Location *time.Location
}

// exifTags are tried in order; the first one that parses wins.
var exifTags = []exif.FieldName{
	exif.DateTimeOriginal,
	exif.DateTimeDigitized,
	exif.DateTime,
}

func (e ExifExtractor) CreatedAt(path string, r io.Reader) (time.Time, bool, error) {
	payload, err := exifPayload(r)
	if err != nil {
		return time.Time{}, false, err
	}
	if payload == nil {
		return time.Time{}, false, nil
	}

	x, err := exif.Decode(payload)
	if err != nil {
		// Formats without EXIF (PNG, GIF, BMP, ...) end up here too.
		return time.Time{}, false, fmt.Errorf("decode exif: %w", err)
	}

	loc := e.Location
	if loc == nil {
		loc = time.Local
	}

	for _, tag := range exifTags {
		if tm, ok := exifTimeFromTag(x, tag, loc); ok {
			return tm, true, nil
		}
	}
	return time.Time{}, false, nil
}

func exifTimeFromTag(x *exif.Exif, tag exif.FieldName, loc *time.Location) (time.Time, bool) {
	f, err := x.Get(tag)
	if err != nil {
		return time.Time{}, false
	}
	s, err := f.StringVal()
	if err != nil {
		return time.Time{}, false
	}
	tm, err := time.ParseInLocation(ExifLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return tm, true
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// exifHeader prefixes the TIFF data in JPEG APP1 segments; some encoders also
// write it into PNG and WebP chunks.
var exifHeader = []byte("Exif\x00\x00")

var riffExifID = riff.FourCC{'E', 'X', 'I', 'F'}

// maxExifChunk bounds the eXIf allocation for a corrupt length field.
const maxExifChunk = 16 << 20

// exifPayload returns the stream to hand to exif.Decode. PNG and WebP carry
// EXIF in a chunk of their own; a nil reader means the container has none.
// Anything else is passed through for goexif to judge.
func exifPayload(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(12)

	var chunk []byte
	var err error
	switch {
	case bytes.HasPrefix(head, pngSignature):
		chunk, err = pngExifChunk(br)
	case len(head) == 12 && string(head[:4]) == "RIFF" && string(head[8:]) == "WEBP":
		chunk, err = webpExifChunk(br)
	default:
		return br, nil
	}
	if err != nil || chunk == nil {
		return nil, err
	}
	return bytes.NewReader(bytes.TrimPrefix(chunk, exifHeader)), nil
}

// pngExifChunk walks the chunks of a PNG stream up to IEND and returns the
// eXIf data, or nil if there is none.
func pngExifChunk(r io.Reader) ([]byte, error) {
	if _, err := io.CopyN(io.Discard, r, int64(len(pngSignature))); err != nil {
		return nil, fmt.Errorf("read png signature: %w", err)
	}

	var hdr [8]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("read png chunk header: %w", err)
		}
		n := int64(binary.BigEndian.Uint32(hdr[:4]))

		switch string(hdr[4:]) {
		case "eXIf":
			if n > maxExifChunk {
				return nil, fmt.Errorf("png eXIf chunk of %d bytes", n)
			}
			data := make([]byte, n)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("read png eXIf chunk: %w", err)
			}
			return data, nil
		case "IEND":
			return nil, nil
		}

		// Chunk data plus its CRC.
		if _, err := io.CopyN(io.Discard, r, n+4); err != nil {
			return nil, fmt.Errorf("skip png chunk %q: %w", hdr[4:], err)
		}
	}
}

// webpExifChunk returns the EXIF chunk of a RIFF/WEBP stream, or nil if there
// is none.
func webpExifChunk(r io.Reader) ([]byte, error) {
	_, list, err := riff.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read webp: %w", err)
	}
	for {
		id, _, data, err := list.Next()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read webp chunk: %w", err)
		}
		if id == riffExifID {
			b, err := io.ReadAll(data)
			if err != nil {
				return nil, fmt.Errorf("read webp EXIF chunk: %w", err)
			}
			return b, nil
		}
	}
}
