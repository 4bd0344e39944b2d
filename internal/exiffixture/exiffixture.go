// Package exiffixture builds minimal JPEG, PNG and WebP files carrying EXIF
// ASCII tags, for tests.
package exiffixture

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"sort"
)

// Tag numbers of the EXIF date/time fields.
const (
	TagDateTime          uint16 = 0x0132
	TagDateTimeOriginal  uint16 = 0x9003
	TagDateTimeDigitized uint16 = 0x9004
)

const asciiType = 2

// TIFF returns a little-endian TIFF stream whose first IFD holds the given ASCII tags.
func TIFF(tags map[uint16]string) []byte {
	ids := make([]uint16, 0, len(tags))
	for id := range tags {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	const ifdOffset = 8
	dataOffset := ifdOffset + 2 + 12*len(ids) + 4

	var ifd, data bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&ifd, le, uint16(len(ids)))
	for _, id := range ids {
		val := append([]byte(tags[id]), 0)
		_ = binary.Write(&ifd, le, id)
		_ = binary.Write(&ifd, le, uint16(asciiType))
		_ = binary.Write(&ifd, le, uint32(len(val)))
		if len(val) <= 4 {
			inline := make([]byte, 4)
			copy(inline, val)
			ifd.Write(inline)
			continue
		}
		_ = binary.Write(&ifd, le, uint32(dataOffset+data.Len()))
		data.Write(val)
	}
	_ = binary.Write(&ifd, le, uint32(0))

	var out bytes.Buffer
	out.WriteString("II")
	_ = binary.Write(&out, le, uint16(42))
	_ = binary.Write(&out, le, uint32(ifdOffset))
	out.Write(ifd.Bytes())
	out.Write(data.Bytes())
	return out.Bytes()
}

// JPEG wraps TIFF(tags) in an APP1 "Exif" segment between SOI and EOI markers.
func JPEG(tags map[uint16]string) []byte {
	payload := append([]byte("Exif\x00\x00"), TIFF(tags)...)

	var out bytes.Buffer
	out.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write([]byte{0xFF, 0xD9})
	return out.Bytes()
}

// WithDateTimeOriginal is shorthand for a JPEG carrying only DateTimeOriginal.
func WithDateTimeOriginal(value string) []byte {
	return JPEG(map[uint16]string{TagDateTimeOriginal: value})
}

// PNG returns a 1x1 PNG header with TIFF(tags) in an eXIf chunk. Nil tags
// leave the chunk out.
func PNG(tags map[uint16]string) []byte {
	if tags == nil {
		return PNGWithPayload(nil)
	}
	return PNGWithPayload(TIFF(tags))
}

// PNGWithPayload is PNG with the raw eXIf chunk data. Nil omits the chunk.
func PNGWithPayload(payload []byte) []byte {
	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")
	// 1x1, 8-bit truecolor.
	pngChunk(&out, "IHDR", []byte{0, 0, 0, 1, 0, 0, 0, 1, 8, 2, 0, 0, 0})
	if payload != nil {
		pngChunk(&out, "eXIf", payload)
	}
	pngChunk(&out, "IEND", nil)
	return out.Bytes()
}

func pngChunk(w *bytes.Buffer, typ string, data []byte) {
	_ = binary.Write(w, binary.BigEndian, uint32(len(data)))
	w.WriteString(typ)
	w.Write(data)
	_ = binary.Write(w, binary.BigEndian, crc32.ChecksumIEEE(append([]byte(typ), data...)))
}

// WebP returns an extended-format RIFF/WEBP stream with TIFF(tags) in an EXIF
// chunk. Nil tags leave the chunk out.
func WebP(tags map[uint16]string) []byte {
	if tags == nil {
		return WebPWithPayload(nil)
	}
	return WebPWithPayload(TIFF(tags))
}

// WebPWithPayload is WebP with the raw EXIF chunk data. Nil omits the chunk.
func WebPWithPayload(payload []byte) []byte {
	var flags byte
	if payload != nil {
		flags = 0x08
	}

	var chunks bytes.Buffer
	// VP8X: flags, 3 reserved bytes, canvas width-1 and height-1 (24 bits each).
	riffChunk(&chunks, "VP8X", []byte{flags, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	if payload != nil {
		riffChunk(&chunks, "EXIF", payload)
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(4+chunks.Len()))
	out.WriteString("WEBP")
	out.Write(chunks.Bytes())
	return out.Bytes()
}

func riffChunk(w *bytes.Buffer, id string, data []byte) {
	w.WriteString(id)
	_ = binary.Write(w, binary.LittleEndian, uint32(len(data)))
	w.Write(data)
	if len(data)%2 == 1 {
		w.WriteByte(0)
	}
}
