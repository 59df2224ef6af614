package sniffer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeBMP  MediaType = "bmp"
	TypeTIFF MediaType = "tiff"
)

var ErrUnknownType = errors.New("unknown media type")

// Raster formats the tiling engine can decode.
var rasterTypes = map[string]MediaType{
	"image/jpeg": TypeJPEG,
	"image/png":  TypePNG,
	"image/gif":  TypeGIF,
	"image/webp": TypeWEBP,
	"image/bmp":  TypeBMP,
	"image/tiff": TypeTIFF,
}

type Result struct {
	Type MediaType
	MIME string
}

// Detect reads the head of r and reports the raster format it holds.
func Detect(r io.Reader) (Result, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return Result{}, fmt.Errorf("sniff: %w", err)
	}
	return fromMIME(mt)
}

func DetectFile(fs afero.Fs, path string) (Result, error) {
	f, err := fs.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("sniff: open: %w", err)
	}
	defer f.Close()
	return Detect(f)
}

func fromMIME(mt *mimetype.MIME) (Result, error) {
	for m := mt; m != nil; m = m.Parent() {
		if t, ok := rasterTypes[m.String()]; ok {
			return Result{Type: t, MIME: m.String()}, nil
		}
	}
	return Result{MIME: mt.String()}, fmt.Errorf("%w: %s", ErrUnknownType, mt.String())
}

// IsImageMIME reports whether a declared content type claims to be an image.
// Parameters such as "; charset=" are ignored.
func IsImageMIME(contentType string) bool {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
