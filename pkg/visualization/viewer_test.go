package visualization

import (
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// TestNewViewer verifies that a new viewer is created with the correct parameters
func TestNewViewer(t *testing.T) {
	width, height := 8, 6
	data := make([]float64, width*height)

	viewer := NewViewer(data, width, height)

	if viewer.width != width {
		t.Errorf("Expected width %d, got %d", width, viewer.width)
	}
	if viewer.height != height {
		t.Errorf("Expected height %d, got %d", height, viewer.height)
	}
	if len(viewer.data) != len(data) {
		t.Errorf("Expected data length %d, got %d", len(data), len(viewer.data))
	}
}

// TestRender verifies the stretch, NaN handling and vertical flip
func TestRender(t *testing.T) {
	width, height := 4, 3
	data := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			data[y*width+x] = float64(x)
		}
	}
	data[0] = math.NaN() // pixel (0,0), bottom left

	img, err := NewViewer(data, width, height).Render()
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	gray, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("Expected *image.Gray16, got %T", img)
	}
	bounds := gray.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		t.Errorf("Expected %dx%d image, got %dx%d", width, height, bounds.Dx(), bounds.Dy())
	}

	// map row 0 is image row height-1
	if v := gray.Gray16At(0, height-1).Y; v != 0 {
		t.Errorf("Expected blanked pixel to be black, got %d", v)
	}
	if v := gray.Gray16At(3, 0).Y; v != 65535 {
		t.Errorf("Expected maximum to be white, got %d", v)
	}
	if v := gray.Gray16At(1, height-1).Y; v == 0 || v >= gray.Gray16At(2, height-1).Y {
		t.Errorf("Expected increasing grey along x, got %d", v)
	}
}

// TestRenderAllBlank verifies a fully masked map renders black
func TestRenderAllBlank(t *testing.T) {
	data := []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	img, err := NewViewer(data, 2, 2).Render()
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if v := img.(*image.Gray16).Gray16At(1, 1).Y; v != 0 {
		t.Errorf("Expected black, got %d", v)
	}

	if _, _, ok := NewViewer(data, 2, 2).Range(); ok {
		t.Error("Expected no finite range")
	}
}

// TestRenderErrors verifies rejection of inconsistent dimensions
func TestRenderErrors(t *testing.T) {
	if _, err := NewViewer(make([]float64, 5), 2, 2).Render(); err == nil {
		t.Error("Expected error for wrong data length")
	}
	if _, err := NewViewer(nil, 0, 2).Render(); err == nil {
		t.Error("Expected error for zero width")
	}
}

// TestSaveQuicklook verifies that the preview is written as a PNG
func TestSaveQuicklook(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	filename := filepath.Join(t.TempDir(), "quicklook.png")
	data := []float64{1, 2, math.NaN(), 4, 5, 6}
	if err := NewViewer(data, 3, 2).SaveQuicklook(filename); err != nil {
		t.Fatalf("Failed to save quicklook: %v", err)
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("Saved file does not exist: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Saved file is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Errorf("Unexpected PNG size %v", img.Bounds())
	}
}
