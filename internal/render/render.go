package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/robosim/backend/internal/engine"
	"github.com/robosim/backend/internal/simconfig"
)

var (
	backgroundFill = color.RGBA{R: 245, G: 245, B: 245, A: 255}
	survivorColor  = color.RGBA{R: 220, G: 40, B: 40, A: 255}
	fallbackRobot  = color.RGBA{R: 0, G: 217, B: 255, A: 255}
)

// Renderer draws world snapshots onto a fixed-size canvas and encodes
// them as PNG. Stateless apart from the optional map background; safe to
// reuse across sessions for the same map.
type Renderer struct {
	width, height int
	scale         float64
	background    image.Image
}

// New creates a renderer for the standard canvas. background may be nil;
// frames then get a plain fill.
func New(background image.Image) *Renderer {
	return &Renderer{
		width:      simconfig.CanvasWidth,
		height:     simconfig.CanvasHeight,
		scale:      simconfig.PxPerMeter,
		background: background,
	}
}

// Frame renders the world after the given step as PNG bytes. Matches
// engine.RenderFunc.
func (r *Renderer) Frame(w *engine.World, step int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	if r.background != nil {
		draw.Draw(img, img.Bounds(), r.background, r.background.Bounds().Min, draw.Src)
	} else {
		draw.Draw(img, img.Bounds(), &image.Uniform{C: backgroundFill}, image.Point{}, draw.Src)
	}

	for _, s := range w.Survivors {
		px, py := r.toPixels(s[0], s[1])
		r.drawCross(img, px, py, 8, survivorColor)
	}

	for _, robot := range w.Robots {
		px, py := r.toPixels(robot.X, robot.Y)
		radius := int(robot.Radius * r.scale)
		if radius < 2 {
			radius = 2
		}
		c := parseHexColor(robot.Color)
		r.fillCircle(img, px, py, radius, c)
		// Heading tick so pausing operators can see orientation.
		hx := px + int(float64(radius+6)*math.Cos(robot.Theta))
		hy := py - int(float64(radius+6)*math.Sin(robot.Theta))
		r.drawLine(img, px, py, hx, hy, c)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding frame %d: %w", step, err)
	}
	return buf.Bytes(), nil
}

// toPixels converts world meters to canvas pixels, inverting Y.
func (r *Renderer) toPixels(x, y float64) (int, int) {
	return int(x * r.scale), r.height - int(y*r.scale)
}

func (r *Renderer) fillCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				r.setPixel(img, cx+dx, cy+dy, c)
			}
		}
	}
}

func (r *Renderer) drawCross(img *image.RGBA, cx, cy, arm int, c color.RGBA) {
	for d := -arm; d <= arm; d++ {
		r.setPixel(img, cx+d, cy, c)
		r.setPixel(img, cx, cy+d, c)
		r.setPixel(img, cx+d, cy+1, c)
		r.setPixel(img, cx+1, cy+d, c)
	}
}

// drawLine is a plain Bresenham segment.
func (r *Renderer) drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		r.setPixel(img, x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func (r *Renderer) setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return
	}
	img.SetRGBA(x, y, c)
}

// parseHexColor accepts "#rrggbb"; anything else falls back to the
// default robot color.
func parseHexColor(s string) color.RGBA {
	if len(s) != 7 || s[0] != '#' {
		return fallbackRobot
	}
	var rv, gv, bv uint8
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &rv, &gv, &bv); err != nil {
		return fallbackRobot
	}
	return color.RGBA{R: rv, G: gv, B: bv, A: 255}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
