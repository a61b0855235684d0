package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/robosim/backend/internal/engine"
	"github.com/robosim/backend/internal/simconfig"
)

func testWorld(t *testing.T) *engine.World {
	t.Helper()
	cfg := simconfig.DefaultConfig()
	cfg.Robots = []simconfig.Robot{{
		Kinematics:  simconfig.Kinematics{Name: "diff"},
		Shape:       simconfig.Shape{Name: "circle", Radius: 0.15},
		State:       []float64{4, 3, 0},
		Goals:       [][]float64{{7, 5, 0}},
		Behavior:    simconfig.Behavior{Name: "dash"},
		Color:       "#00d9ff",
		MaxSpeed:    1,
		MaxTurn:     2,
		SensorRange: 0.2,
	}}
	cfg.Obstacles = []simconfig.Obstacle{{
		Shape: simconfig.Shape{Name: "circle", Radius: 0.1},
		State: []float64{7, 5, 0},
	}}
	w, err := engine.NewWorld(cfg)
	if err != nil {
		t.Fatalf("NewWorld() error: %v", err)
	}
	return w
}

func decodeFrame(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("frame is not valid PNG: %v", err)
	}
	return img
}

func TestFrameDimensions(t *testing.T) {
	r := New(nil)
	data, err := r.Frame(testWorld(t), 0)
	if err != nil {
		t.Fatalf("Frame() error: %v", err)
	}
	img := decodeFrame(t, data)
	b := img.Bounds()
	if b.Dx() != simconfig.CanvasWidth || b.Dy() != simconfig.CanvasHeight {
		t.Errorf("frame size = %dx%d, want %dx%d", b.Dx(), b.Dy(), simconfig.CanvasWidth, simconfig.CanvasHeight)
	}
}

func TestFrameDrawsRobot(t *testing.T) {
	r := New(nil)
	data, err := r.Frame(testWorld(t), 0)
	if err != nil {
		t.Fatalf("Frame() error: %v", err)
	}
	img := decodeFrame(t, data)

	// Robot at (4m, 3m) -> pixel (400, 300).
	got := img.At(400, 300)
	rr, gg, bb, _ := got.RGBA()
	if rr>>8 != 0x00 || gg>>8 != 0xd9 || bb>>8 != 0xff {
		t.Errorf("pixel at robot center = %v, want #00d9ff", got)
	}
}

func TestFrameDrawsBackground(t *testing.T) {
	bg := image.NewRGBA(image.Rect(0, 0, simconfig.CanvasWidth, simconfig.CanvasHeight))
	fill := color.RGBA{R: 10, G: 20, B: 30, A: 255}
	for y := 0; y < simconfig.CanvasHeight; y++ {
		for x := 0; x < simconfig.CanvasWidth; x++ {
			bg.SetRGBA(x, y, fill)
		}
	}

	r := New(bg)
	data, err := r.Frame(testWorld(t), 0)
	if err != nil {
		t.Fatalf("Frame() error: %v", err)
	}
	img := decodeFrame(t, data)

	// A corner far from robot and survivor shows the map background.
	rr, gg, bb, _ := img.At(5, 5).RGBA()
	if rr>>8 != 10 || gg>>8 != 20 || bb>>8 != 30 {
		t.Errorf("background pixel = (%d, %d, %d), want (10, 20, 30)", rr>>8, gg>>8, bb>>8)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#ff6b00", color.RGBA{R: 0xff, G: 0x6b, B: 0x00, A: 255}},
		{"#000000", color.RGBA{A: 255}},
		{"", fallbackRobot},
		{"red", fallbackRobot},
		{"#zzzzzz", fallbackRobot},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in); got != tt.want {
			t.Errorf("parseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
