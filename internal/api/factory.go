package api

import (
	"image"
	"log"

	"github.com/robosim/backend/internal/engine"
	"github.com/robosim/backend/internal/maps"
	"github.com/robosim/backend/internal/render"
	"github.com/robosim/backend/internal/sim"
	"github.com/robosim/backend/internal/simconfig"
)

// EngineFactory is the default producer factory: a kinematic world
// rendered over the requested map. A missing or unreadable map only
// costs the background; the session still runs.
func EngineFactory(mapStore *maps.Store, maxSteps int) ProducerFactory {
	return func(params *simconfig.Params, world *simconfig.WorldConfig) (sim.Producer, error) {
		var background image.Image
		if img, err := mapStore.Background(params.MapName); err != nil {
			log.Printf("api: map %s unavailable, rendering without background: %v", params.MapName, err)
		} else {
			background = img
		}

		w, err := engine.NewWorld(world)
		if err != nil {
			return nil, err
		}
		return engine.NewProducer(w, render.New(background).Frame, maxSteps), nil
	}
}
