package engine

import (
	"fmt"

	"github.com/robosim/backend/internal/sim"
)

// DefaultMaxSteps bounds a session when the config does not say
// otherwise, so a goal-less world can never run unbounded.
const DefaultMaxSteps = 1000

// RenderFunc turns the world state after a step into an encoded frame.
type RenderFunc func(w *World, step int) ([]byte, error)

// Producer implements sim.Producer on top of a World. Each Step advances
// the world once and renders it; the step ceiling forces completion even
// when the world never reports done.
type Producer struct {
	world    *World
	render   RenderFunc
	maxSteps int

	step     int
	terminal *sim.Outcome // set once completed or failed; repeated afterwards
}

func NewProducer(world *World, render RenderFunc, maxSteps int) *Producer {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Producer{
		world:    world,
		render:   render,
		maxSteps: maxSteps,
	}
}

// Step advances the simulation one step and renders the result. Engine
// errors, including panics out of the world update, are converted to a
// failed outcome; they never propagate past this boundary.
func (p *Producer) Step() (out sim.Outcome) {
	if p.terminal != nil {
		return *p.terminal
	}

	defer func() {
		if r := recover(); r != nil {
			out = p.fail(fmt.Errorf("engine panic: %v", r))
		}
	}()

	if p.step >= p.maxSteps || p.world.Done() {
		t := sim.CompletedOutcome()
		p.terminal = &t
		return t
	}

	if err := p.world.Step(); err != nil {
		return p.fail(fmt.Errorf("engine step %d: %w", p.step, err))
	}
	frame, err := p.render(p.world, p.step)
	if err != nil {
		return p.fail(fmt.Errorf("rendering step %d: %w", p.step, err))
	}

	out = sim.FrameOutcome(p.step, frame)
	p.step++
	return out
}

func (p *Producer) fail(err error) sim.Outcome {
	t := sim.FailedOutcome(err)
	p.terminal = &t
	return t
}

// Close releases nothing today; the world lives on the heap and the
// renderer is stateless. Kept to satisfy sim.Producer.
func (p *Producer) Close() {}
