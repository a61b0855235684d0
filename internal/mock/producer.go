package mock

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"

	"github.com/robosim/backend/internal/sim"
	"github.com/robosim/backend/internal/simconfig"
)

// Producer is a synthetic frame source for frontend work. It animates
// robots bouncing around the canvas without loading a map or running
// the kinematics engine, so the streaming path can be exercised on a
// machine with no maps directory at all.
type Producer struct {
	robots    []bouncer
	survivors []simconfig.Point
	step      int
	maxFrames int
	terminal  *sim.Outcome
}

type bouncer struct {
	x, y   float64
	vx, vy float64
	tint   color.RGBA
}

var mockTints = []color.RGBA{
	{R: 0x00, G: 0xd9, B: 0xff, A: 0xff},
	{R: 0xff, G: 0x6b, B: 0x35, A: 0xff},
	{R: 0x4e, G: 0xcd, B: 0xc4, A: 0xff},
	{R: 0xff, G: 0xe6, B: 0x6d, A: 0xff},
}

// NewProducer seeds one bouncer per requested robot, starting at the
// requested position with randomized headings.
func NewProducer(params *simconfig.Params, maxFrames int) *Producer {
	rng := rand.New(rand.NewSource(42))
	robots := make([]bouncer, params.RobotCount)
	for i := range robots {
		robots[i] = bouncer{
			x:    params.RobotPosition.X,
			y:    params.RobotPosition.Y,
			vx:   4 + rng.Float64()*6,
			vy:   4 + rng.Float64()*6,
			tint: mockTints[i%len(mockTints)],
		}
	}
	return &Producer{
		robots:    robots,
		survivors: params.Survivors,
		maxFrames: maxFrames,
	}
}

func (p *Producer) Step() sim.Outcome {
	if p.terminal != nil {
		return *p.terminal
	}
	if p.step >= p.maxFrames {
		out := sim.CompletedOutcome()
		p.terminal = &out
		return out
	}

	for i := range p.robots {
		p.robots[i].advance()
	}
	frame, err := p.render()
	if err != nil {
		out := sim.FailedOutcome(fmt.Errorf("rendering mock frame: %w", err))
		p.terminal = &out
		return out
	}
	out := sim.FrameOutcome(p.step, frame)
	p.step++
	return out
}

func (p *Producer) Close() {}

func (b *bouncer) advance() {
	b.x += b.vx
	b.y += b.vy
	if b.x < 0 || b.x > simconfig.CanvasWidth {
		b.vx = -b.vx
		b.x += 2 * b.vx
	}
	if b.y < 0 || b.y > simconfig.CanvasHeight {
		b.vy = -b.vy
		b.y += 2 * b.vy
	}
}

func (p *Producer) render() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, simconfig.CanvasWidth, simconfig.CanvasHeight))
	bg := color.RGBA{R: 0x1a, G: 0x1a, B: 0x2e, A: 0xff}
	for i := range img.Pix {
		switch i % 4 {
		case 0:
			img.Pix[i] = bg.R
		case 1:
			img.Pix[i] = bg.G
		case 2:
			img.Pix[i] = bg.B
		case 3:
			img.Pix[i] = bg.A
		}
	}

	red := color.RGBA{R: 0xff, G: 0x3b, B: 0x3b, A: 0xff}
	for _, s := range p.survivors {
		fillSquare(img, int(s.X), int(s.Y), 6, red)
	}
	for _, b := range p.robots {
		fillSquare(img, int(b.x), int(b.y), 10, b.tint)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fillSquare(img *image.RGBA, cx, cy, half int, c color.RGBA) {
	for y := cy - half; y <= cy+half; y++ {
		for x := cx - half; x <= cx+half; x++ {
			if image.Pt(x, y).In(img.Rect) {
				img.SetRGBA(x, y, c)
			}
		}
	}
}
