package tiling

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

var (
	ErrInvalidParts    = errors.New("tiling: part count must be a multiple of 3 between 3 and 21")
	ErrInvalidFitMode  = errors.New("tiling: unknown fit mode")
	ErrInvalidGeometry = errors.New("tiling: frame must be at least as large as a cell")
	ErrTooLarge        = errors.New("tiling: image exceeds the pixel budget")
)

// Geometry holds the per-cell content size and the device frame each cell is
// centred in. The pixel budgets bound the decoded source and the resized
// image a job may allocate; zero disables a budget.
type Geometry struct {
	CellWidth   int
	CellHeight  int
	FrameWidth  int
	FrameHeight int

	MaxSourcePixels int64
	MaxScaledPixels int64
}

var DefaultGeometry = Geometry{
	CellWidth:       1080,
	CellHeight:      1342,
	FrameWidth:      1080,
	FrameHeight:     1920,
	MaxSourcePixels: 50_000_000,
	MaxScaledPixels: 256_000_000,
}

func (g Geometry) validate() error {
	if g.CellWidth <= 0 || g.CellHeight <= 0 {
		return ErrInvalidGeometry
	}
	if g.FrameWidth < g.CellWidth || g.FrameHeight < g.CellHeight {
		return ErrInvalidGeometry
	}
	return nil
}

// Canvas returns the size of the grid canvas for the given part count.
func (g Geometry) Canvas(parts int) (int, int) {
	return models.GridColumns * g.CellWidth, (parts / models.GridColumns) * g.CellHeight
}

// CheckSource rejects an upload whose decoded size is over budget, or whose
// cover scale is over budget on every canvas. Cover scaling grows with the
// canvas height for wide sources and not at all for narrow ones, so the
// smallest canvas is the cheapest choice.
func (g Geometry) CheckSource(d models.Dimensions) error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: source is %dx%d", ErrTooLarge, d.Width, d.Height)
	}
	if g.MaxSourcePixels > 0 && int64(d.Width)*int64(d.Height) > g.MaxSourcePixels {
		return fmt.Errorf("%w: source is %dx%d", ErrTooLarge, d.Width, d.Height)
	}
	return g.CheckFit(d, models.MinParts, models.FitCover)
}

// CheckFit reports whether scaling d onto the canvas for parts stays within
// the scaled pixel budget.
func (g Geometry) CheckFit(d models.Dimensions, parts int, mode models.FitMode) error {
	if g.MaxScaledPixels <= 0 {
		return nil
	}
	canvasW, canvasH := g.Canvas(parts)
	w, h := ScaledSize(d.Width, d.Height, canvasW, canvasH, mode)
	if int64(w)*int64(h) > g.MaxScaledPixels {
		return fmt.Errorf("%w: %dx%d scales to %dx%d for %d parts", ErrTooLarge, d.Width, d.Height, w, h, parts)
	}
	return nil
}

type Engine struct {
	fs          afero.Fs
	geometry    Geometry
	background  color.Color
	compression png.CompressionLevel
}

func NewEngine(fs afero.Fs, geometry Geometry) (*Engine, error) {
	if err := geometry.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		fs:          fs,
		geometry:    geometry,
		background:  color.Black,
		compression: png.DefaultCompression,
	}, nil
}

func (e *Engine) Geometry() Geometry {
	return e.geometry
}

// ScaledSize fits a srcW x srcH image onto a canvas keeping its aspect ratio.
// Cover fills the canvas and overflows one axis; contain fits inside it and
// letterboxes the other.
func ScaledSize(srcW, srcH, canvasW, canvasH int, mode models.FitMode) (int, int) {
	// src is relatively narrower than (or as narrow as) the canvas.
	narrower := int64(srcW)*int64(canvasH) <= int64(canvasW)*int64(srcH)

	matchWidth := narrower
	if mode == models.FitContain {
		matchWidth = !narrower
	}

	var w, h int
	if matchWidth {
		w = canvasW
		h = int(int64(canvasW) * int64(srcH) / int64(srcW))
	} else {
		h = canvasH
		w = int(int64(canvasH) * int64(srcW) / int64(srcH))
	}
	return max(w, 1), max(h, 1)
}

func checkInput(parts int, mode models.FitMode) error {
	if !models.ValidParts(parts) {
		return fmt.Errorf("%w: got %d", ErrInvalidParts, parts)
	}
	if mode != models.FitCover && mode != models.FitContain {
		return fmt.Errorf("%w: %q", ErrInvalidFitMode, mode)
	}
	return nil
}

// Compose scales src onto a black canvas of parts/3 rows and returns it.
func (e *Engine) Compose(src image.Image, parts int, mode models.FitMode) (*image.NRGBA, error) {
	if err := checkInput(parts, mode); err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, errors.New("tiling: source image is empty")
	}

	dims := models.Dimensions{Width: bounds.Dx(), Height: bounds.Dy()}
	if err := e.geometry.CheckFit(dims, parts, mode); err != nil {
		return nil, err
	}

	canvasW, canvasH := e.geometry.Canvas(parts)
	scaledW, scaledH := ScaledSize(bounds.Dx(), bounds.Dy(), canvasW, canvasH, mode)

	resized := imaging.Resize(src, scaledW, scaledH, imaging.Lanczos)
	canvas := imaging.New(canvasW, canvasH, e.background)
	offset := image.Pt((canvasW-scaledW)/2, (canvasH-scaledH)/2)
	return imaging.Paste(canvas, resized, offset), nil
}

// Cell crops cell i (row-major) from the canvas and centres it in a frame.
func (e *Engine) Cell(canvas *image.NRGBA, i int) *image.NRGBA {
	g := e.geometry
	row, col := i/models.GridColumns, i%models.GridColumns
	x, y := col*g.CellWidth, row*g.CellHeight

	piece := imaging.Crop(canvas, image.Rect(x, y, x+g.CellWidth, y+g.CellHeight))
	frame := imaging.New(g.FrameWidth, g.FrameHeight, e.background)
	return imaging.Paste(frame, piece, image.Pt((g.FrameWidth-g.CellWidth)/2, (g.FrameHeight-g.CellHeight)/2))
}

// Split returns the framed parts in upload-file order.
func (e *Engine) Split(src image.Image, parts int, mode models.FitMode) ([]*image.NRGBA, error) {
	canvas, err := e.Compose(src, parts, mode)
	if err != nil {
		return nil, err
	}
	out := make([]*image.NRGBA, 0, parts)
	for i := 0; i < parts; i++ {
		out = append(out, e.Cell(canvas, i))
	}
	return out, nil
}

func PartName(i int) string {
	return fmt.Sprintf("story_%02d.png", i+1)
}

// Render decodes sourcePath, writes story_01.png..story_NN.png into outputDir
// and returns their paths in ascending order.
func (e *Engine) Render(sourcePath string, parts int, mode models.FitMode, outputDir string) ([]string, error) {
	if err := checkInput(parts, mode); err != nil {
		return nil, err
	}
	// The header is checked before decoding so an oversized source never
	// gets its pixel buffer allocated.
	dims, _, err := DecodeConfig(e.fs, sourcePath)
	if err != nil {
		return nil, err
	}
	if err := e.geometry.CheckSource(dims); err != nil {
		return nil, err
	}
	if err := e.geometry.CheckFit(dims, parts, mode); err != nil {
		return nil, err
	}
	src, err := Decode(e.fs, sourcePath)
	if err != nil {
		return nil, err
	}
	canvas, err := e.Compose(src, parts, mode)
	if err != nil {
		return nil, err
	}
	if err := e.fs.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("tiling: create output dir: %w", err)
	}

	paths := make([]string, 0, parts)
	for i := 0; i < parts; i++ {
		path := filepath.Join(outputDir, PartName(i))
		if err := e.save(e.Cell(canvas, i), path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (e *Engine) save(img image.Image, path string) error {
	f, err := e.fs.Create(path)
	if err != nil {
		return fmt.Errorf("tiling: create %s: %w", filepath.Base(path), err)
	}
	if err := imaging.Encode(f, img, imaging.PNG, imaging.PNGCompressionLevel(e.compression)); err != nil {
		f.Close()
		return fmt.Errorf("tiling: encode %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
