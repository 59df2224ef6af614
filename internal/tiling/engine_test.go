package tiling

import (
	"image"
	"image/color"
	"path/filepath"
	"sort"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

var testGeometry = Geometry{CellWidth: 12, CellHeight: 15, FrameWidth: 16, FrameHeight: 24}

func newTestEngine(t *testing.T) (*Engine, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	engine, err := NewEngine(fs, testGeometry)
	require.NoError(t, err)
	return engine, fs
}

func writeSource(t *testing.T, fs afero.Fs, path string, img image.Image) {
	t.Helper()
	f, err := fs.Create(path)
	require.NoError(t, err)
	require.NoError(t, imaging.Encode(f, img, imaging.PNG))
	require.NoError(t, f.Close())
}

func isWhite(c color.NRGBA) bool {
	return c.R > 200 && c.G > 200 && c.B > 200
}

func isBlack(c color.NRGBA) bool {
	return c.R < 30 && c.G < 30 && c.B < 30
}

func TestNewEngineRejectsFrameSmallerThanCell(t *testing.T) {
	_, err := NewEngine(afero.NewMemMapFs(), Geometry{CellWidth: 10, CellHeight: 10, FrameWidth: 8, FrameHeight: 10})
	require.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestScaledSize(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		mode         models.FitMode
		wantW, wantH int
	}{
		{"cover wide source matches height", 100, 100, models.FitCover, 45, 45},
		{"cover tall source matches width", 40, 100, models.FitCover, 36, 90},
		{"contain wide source matches width", 100, 100, models.FitContain, 36, 36},
		{"contain tall source matches height", 40, 100, models.FitContain, 18, 45},
		{"same aspect is exact", 72, 90, models.FitCover, 36, 45},
		{"same aspect is exact contain", 72, 90, models.FitContain, 36, 45},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h := ScaledSize(tc.srcW, tc.srcH, 36, 45, tc.mode)
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
		})
	}
}

func TestScaledSizeCoverAlwaysCoversContainAlwaysFits(t *testing.T) {
	sources := [][2]int{{1, 1}, {3, 1000}, {1000, 3}, {37, 51}, {4032, 3024}, {1080, 1920}, {7, 7}}
	for _, parts := range models.PartCounts {
		canvasW, canvasH := DefaultGeometry.Canvas(parts)
		for _, s := range sources {
			w, h := ScaledSize(s[0], s[1], canvasW, canvasH, models.FitCover)
			assert.GreaterOrEqual(t, w, canvasW, "cover width %v parts=%d", s, parts)
			assert.GreaterOrEqual(t, h, canvasH, "cover height %v parts=%d", s, parts)
			assert.True(t, w == canvasW || h == canvasH, "cover must match one axis %v", s)

			w, h = ScaledSize(s[0], s[1], canvasW, canvasH, models.FitContain)
			assert.LessOrEqual(t, w, canvasW, "contain width %v parts=%d", s, parts)
			assert.LessOrEqual(t, h, canvasH, "contain height %v parts=%d", s, parts)
			assert.True(t, w == canvasW || h == canvasH, "contain must match one axis %v", s)
		}
	}
}

func TestRenderProducesOrderedFramesForEveryPartCount(t *testing.T) {
	engine, fs := newTestEngine(t)
	writeSource(t, fs, "/job/source.png", imaging.New(50, 30, color.White))

	for _, parts := range models.PartCounts {
		for _, mode := range []models.FitMode{models.FitCover, models.FitContain} {
			outDir := filepath.Join("/job", string(mode), "output")
			paths, err := engine.Render("/job/source.png", parts, mode, outDir)
			require.NoError(t, err)
			require.Len(t, paths, parts)

			names := make([]string, len(paths))
			for i, p := range paths {
				names[i] = filepath.Base(p)
				assert.Equal(t, PartName(i), names[i])

				img, err := Decode(fs, p)
				require.NoError(t, err)
				assert.Equal(t, testGeometry.FrameWidth, img.Bounds().Dx())
				assert.Equal(t, testGeometry.FrameHeight, img.Bounds().Dy())
			}
			assert.True(t, sort.StringsAreSorted(names))
			assert.Equal(t, "story_01.png", names[0])
		}
	}
}

func TestCoverLeavesNoBackgroundInsideCells(t *testing.T) {
	engine, _ := newTestEngine(t)
	offX := (testGeometry.FrameWidth - testGeometry.CellWidth) / 2
	offY := (testGeometry.FrameHeight - testGeometry.CellHeight) / 2

	for _, size := range [][2]int{{100, 40}, {40, 100}, {37, 51}, {5, 5}} {
		src := imaging.New(size[0], size[1], color.White)
		frames, err := engine.Split(src, 9, models.FitCover)
		require.NoError(t, err)
		for i, frame := range frames {
			for y := offY; y < offY+testGeometry.CellHeight; y++ {
				for x := offX; x < offX+testGeometry.CellWidth; x++ {
					require.True(t, isWhite(frame.NRGBAAt(x, y)), "part %d pixel %d,%d of %v", i, x, y, size)
				}
			}
			assert.True(t, isBlack(frame.NRGBAAt(0, 0)), "frame margin must stay black")
		}
	}
}

func TestContainLetterboxesWithoutCropping(t *testing.T) {
	engine, _ := newTestEngine(t)

	// 36x45 canvas; a 100x20 source scales to 36x7 and sits centred vertically.
	src := imaging.New(100, 20, color.White)
	canvas, err := engine.Compose(src, 9, models.FitContain)
	require.NoError(t, err)

	w, h := ScaledSize(100, 20, 36, 45, models.FitContain)
	require.Equal(t, 36, w)
	require.Equal(t, 7, h)
	top := (45 - h) / 2

	assert.True(t, isBlack(canvas.NRGBAAt(18, 0)))
	assert.True(t, isBlack(canvas.NRGBAAt(18, 44)))
	for x := 0; x < 36; x++ {
		assert.True(t, isWhite(canvas.NRGBAAt(x, top+h/2)), "column %d of the image row", x)
	}
}

func TestSplitKeepsRowMajorOrder(t *testing.T) {
	engine, _ := newTestEngine(t)

	// Three vertical bands exactly the size of a 3-part canvas.
	src := image.NewNRGBA(image.Rect(0, 0, 36, 15))
	bands := []color.NRGBA{{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 255}}
	for x := 0; x < 36; x++ {
		for y := 0; y < 15; y++ {
			src.SetNRGBA(x, y, bands[x/12])
		}
	}

	frames, err := engine.Split(src, 3, models.FitCover)
	require.NoError(t, err)
	require.Len(t, frames, 3)

	cx := (testGeometry.FrameWidth-testGeometry.CellWidth)/2 + testGeometry.CellWidth/2
	cy := (testGeometry.FrameHeight-testGeometry.CellHeight)/2 + testGeometry.CellHeight/2
	for i, frame := range frames {
		assert.Equal(t, bands[i], frame.NRGBAAt(cx, cy), "part %d", i)
	}
}

func TestRenderRejectsInvalidInput(t *testing.T) {
	engine, fs := newTestEngine(t)
	writeSource(t, fs, "/job/source.png", imaging.New(10, 10, color.White))

	_, err := engine.Render("/job/source.png", 4, models.FitCover, "/job/output")
	require.ErrorIs(t, err, ErrInvalidParts)

	_, err = engine.Render("/job/source.png", 24, models.FitCover, "/job/output")
	require.ErrorIs(t, err, ErrInvalidParts)

	_, err = engine.Render("/job/source.png", 9, models.FitMode("stretch"), "/job/output")
	require.ErrorIs(t, err, ErrInvalidFitMode)
}

func TestRenderFailsOnCorruptSource(t *testing.T) {
	engine, fs := newTestEngine(t)
	require.NoError(t, afero.WriteFile(fs, "/job/source.png", []byte("definitely not a png"), 0o644))

	_, err := engine.Render("/job/source.png", 3, models.FitCover, "/job/output")
	require.Error(t, err)
}

func TestDecodeConfig(t *testing.T) {
	_, fs := newTestEngine(t)
	writeSource(t, fs, "/src.png", imaging.New(64, 48, color.White))

	dims, format, err := DecodeConfig(fs, "/src.png")
	require.NoError(t, err)
	assert.Equal(t, models.Dimensions{Width: 64, Height: 48}, dims)
	assert.Equal(t, "png", format)

	require.NoError(t, afero.WriteFile(fs, "/bad.jpg", []byte{0xff, 0xd8, 0xff, 0x00}, 0o644))
	_, _, err = DecodeConfig(fs, "/bad.jpg")
	require.Error(t, err)
}

func TestCheckSourceBoundsPixelBudgets(t *testing.T) {
	g := DefaultGeometry

	for _, ok := range []models.Dimensions{{Width: 4032, Height: 3024}, {Width: 1080, Height: 1920}, {Width: 3024, Height: 4032}, {Width: 6000, Height: 2000}} {
		assert.NoError(t, g.CheckSource(ok), "%v", ok)
	}

	sliver := models.Dimensions{Width: 2, Height: 20000}
	err := g.CheckSource(sliver)
	require.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorIs(t, g.CheckSource(models.Dimensions{Width: 20000, Height: 2}), ErrTooLarge)
	assert.ErrorIs(t, g.CheckSource(models.Dimensions{Width: 10000, Height: 10000}), ErrTooLarge)

	// Contain never leaves the canvas, so only cover can blow the budget.
	for _, parts := range models.PartCounts {
		assert.NoError(t, g.CheckFit(sliver, parts, models.FitContain))
	}
}

func TestCheckFitDependsOnPartCount(t *testing.T) {
	panorama := models.Dimensions{Width: 9000, Height: 3000}
	assert.NoError(t, DefaultGeometry.CheckFit(panorama, 3, models.FitCover))
	assert.ErrorIs(t, DefaultGeometry.CheckFit(panorama, 21, models.FitCover), ErrTooLarge)
	assert.NoError(t, DefaultGeometry.CheckFit(panorama, 21, models.FitContain))
}

func TestRenderRefusesOversizedSourceBeforeDecoding(t *testing.T) {
	g := testGeometry
	g.MaxScaledPixels = 10_000
	fs := afero.NewMemMapFs()
	engine, err := NewEngine(fs, g)
	require.NoError(t, err)
	writeSource(t, fs, "/job/source.png", imaging.New(2, 2000, color.White))

	_, err = engine.Render("/job/source.png", 3, models.FitCover, "/job/output")
	require.ErrorIs(t, err, ErrTooLarge)
	exists, _ := afero.DirExists(fs, "/job/output")
	assert.False(t, exists)

	_, err = engine.Split(imaging.New(2, 2000, color.White), 3, models.FitCover)
	assert.ErrorIs(t, err, ErrTooLarge)
}
