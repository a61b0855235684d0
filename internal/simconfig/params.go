package simconfig

import (
	"errors"
	"fmt"
)

// Canvas geometry shared with the browser UI: an 800x600 pixel canvas
// maps to an 8x6 meter world at 100 px/m, with the Y axis inverted
// (canvas Y grows downward).
const (
	CanvasWidth  = 800
	CanvasHeight = 600
	PxPerMeter   = 100
)

// ErrInvalid wraps every validation failure of a start request.
var ErrInvalid = errors.New("invalid simulation config")

// Point is a pixel coordinate on the map canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Params is the operator's start request: where the robots begin and
// which survivor points to visit, all in canvas pixels.
type Params struct {
	MapName       string  `json:"map_name"`
	RobotCount    int     `json:"robot_count"`
	RobotPosition *Point  `json:"robot_position"`
	Survivors     []Point `json:"survivors"`
}

// Validate rejects malformed requests before any session state is
// created.
func (p *Params) Validate() error {
	if p.MapName == "" {
		return fmt.Errorf("%w: map_name is required", ErrInvalid)
	}
	if p.RobotCount < 1 {
		return fmt.Errorf("%w: robot_count must be at least 1, got %d", ErrInvalid, p.RobotCount)
	}
	if p.RobotPosition == nil {
		return fmt.Errorf("%w: robot_position is required", ErrInvalid)
	}
	if !onCanvas(*p.RobotPosition) {
		return fmt.Errorf("%w: robot_position (%g, %g) outside %dx%d canvas",
			ErrInvalid, p.RobotPosition.X, p.RobotPosition.Y, CanvasWidth, CanvasHeight)
	}
	for i, s := range p.Survivors {
		if !onCanvas(s) {
			return fmt.Errorf("%w: survivor %d (%g, %g) outside %dx%d canvas",
				ErrInvalid, i, s.X, s.Y, CanvasWidth, CanvasHeight)
		}
	}
	return nil
}

func onCanvas(pt Point) bool {
	return pt.X >= 0 && pt.X <= CanvasWidth && pt.Y >= 0 && pt.Y <= CanvasHeight
}

// Meters converts a canvas point to world meters, inverting the Y axis.
func (pt Point) Meters() (x, y float64) {
	return pt.X / PxPerMeter, (CanvasHeight - pt.Y) / PxPerMeter
}
