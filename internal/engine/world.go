package engine

import (
	"fmt"
	"math"

	"github.com/robosim/backend/internal/simconfig"
)

// headingTolerance is how far off-target a robot's heading may be while
// still driving forward; beyond it the robot turns in place.
const headingTolerance = 0.3 // rad

// Robot is one differential-drive robot with a "dash" behavior: turn
// toward the current goal, drive straight at it, arrive, move on to the
// next goal.
type Robot struct {
	X, Y, Theta float64
	Radius      float64
	Color       string

	MaxSpeed    float64 // m/s
	MaxTurn     float64 // rad/s
	ArriveRange float64 // m

	Goals [][2]float64 // remaining goals, in visit order
}

// World holds the full simulation state. It is owned by a single
// goroutine (the session worker); nothing here is synchronized.
type World struct {
	Width, Height float64
	StepTime      float64
	Robots        []*Robot
	Survivors     [][2]float64 // static markers, in meters

	hadGoals bool
}

// NewWorld builds a world from a persisted config.
func NewWorld(cfg *simconfig.WorldConfig) (*World, error) {
	if cfg.World.Width <= 0 || cfg.World.Height <= 0 {
		return nil, fmt.Errorf("world size %gx%g is not positive", cfg.World.Width, cfg.World.Height)
	}
	stepTime := cfg.World.StepTime
	if stepTime <= 0 {
		stepTime = 0.1
	}

	w := &World{
		Width:    cfg.World.Width,
		Height:   cfg.World.Height,
		StepTime: stepTime,
	}

	for i, rc := range cfg.Robots {
		if len(rc.State) < 3 {
			return nil, fmt.Errorf("robot %d: state needs [x y theta], got %v", i, rc.State)
		}
		r := &Robot{
			X:           rc.State[0],
			Y:           rc.State[1],
			Theta:       rc.State[2],
			Radius:      rc.Shape.Radius,
			Color:       rc.Color,
			MaxSpeed:    rc.MaxSpeed,
			MaxTurn:     rc.MaxTurn,
			ArriveRange: rc.SensorRange,
		}
		if r.Radius <= 0 {
			r.Radius = 0.15
		}
		if r.MaxSpeed <= 0 {
			r.MaxSpeed = 1.0
		}
		if r.MaxTurn <= 0 {
			r.MaxTurn = 2.0
		}
		if r.ArriveRange <= 0 {
			r.ArriveRange = 0.2
		}
		for j, g := range rc.Goals {
			if len(g) < 2 {
				return nil, fmt.Errorf("robot %d: goal %d needs [x y], got %v", i, j, g)
			}
			r.Goals = append(r.Goals, [2]float64{g[0], g[1]})
		}
		if len(r.Goals) > 0 {
			w.hadGoals = true
		}
		w.Robots = append(w.Robots, r)
	}

	for i, oc := range cfg.Obstacles {
		if len(oc.State) < 2 {
			return nil, fmt.Errorf("obstacle %d: state needs [x y], got %v", i, oc.State)
		}
		w.Survivors = append(w.Survivors, [2]float64{oc.State[0], oc.State[1]})
	}

	return w, nil
}

// Step advances every robot by one discrete time slice.
func (w *World) Step() error {
	for i, r := range w.Robots {
		w.stepRobot(r)
		if math.IsNaN(r.X) || math.IsNaN(r.Y) || math.IsNaN(r.Theta) {
			return fmt.Errorf("robot %d state diverged to NaN", i)
		}
	}
	return nil
}

func (w *World) stepRobot(r *Robot) {
	if len(r.Goals) == 0 {
		return
	}
	goal := r.Goals[0]
	dx, dy := goal[0]-r.X, goal[1]-r.Y
	dist := math.Hypot(dx, dy)
	if dist <= r.ArriveRange {
		r.Goals = r.Goals[1:]
		return
	}

	desired := math.Atan2(dy, dx)
	diff := normalizeAngle(desired - r.Theta)
	maxTurn := r.MaxTurn * w.StepTime
	r.Theta = normalizeAngle(r.Theta + clamp(diff, -maxTurn, maxTurn))

	// Drive only once roughly facing the goal.
	if math.Abs(normalizeAngle(desired-r.Theta)) > headingTolerance {
		return
	}
	move := math.Min(r.MaxSpeed*w.StepTime, dist)
	r.X += move * math.Cos(r.Theta)
	r.Y += move * math.Sin(r.Theta)

	r.X = clamp(r.X, 0, w.Width)
	r.Y = clamp(r.Y, 0, w.Height)
}

// Done reports whether every robot has visited all of its goals. A world
// that never had goals is never done; the step ceiling ends those
// sessions.
func (w *World) Done() bool {
	if !w.hadGoals {
		return false
	}
	for _, r := range w.Robots {
		if len(r.Goals) > 0 {
			return false
		}
	}
	return true
}

func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
