package tiling

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	_ "golang.org/x/image/webp"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

func Decode(fs afero.Fs, path string) (image.Image, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tiling: open source: %w", err)
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("tiling: decode source: %w", err)
	}
	return img, nil
}

// DecodeConfig reads only the header of the image at path.
func DecodeConfig(fs afero.Fs, path string) (models.Dimensions, string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return models.Dimensions{}, "", fmt.Errorf("tiling: open source: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return models.Dimensions{}, "", fmt.Errorf("tiling: decode header: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return models.Dimensions{}, "", fmt.Errorf("tiling: image has no pixels")
	}
	return models.Dimensions{Width: cfg.Width, Height: cfg.Height}, format, nil
}
