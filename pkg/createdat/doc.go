// Package createdat resolves the capture timestamp of an image file.
//
// Embedded EXIF capture time is preferred. Any failure to obtain it falls back to
// the filesystem modification time, so resolution itself never fails.
package createdat
