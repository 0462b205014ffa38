package capture

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Pump stands in for a renderer: it asks Producer for a frame at the
// requested size FPS times a second and publishes it to Surface.
type Pump struct {
	Surface  *Surface
	Producer Producer
	FPS      int
}

func (p *Pump) Run(ctx context.Context) {
	fps := p.FPS
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var failures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h, ok := p.Surface.Requested()
			if !ok {
				continue
			}
			f, err := p.Producer.Produce(h.Width, h.Height)
			if err != nil {
				failures++
				// first failure loud, the rest at debug
				ev := log.Debug()
				if failures == 1 {
					ev = log.Warn()
				}
				ev.Err(err).Int("failures", failures).Msg("frame producer failed")
				continue
			}
			failures = 0
			if err := p.Surface.Publish(f); err != nil {
				log.Debug().Err(err).Msg("publish skipped")
			}
		}
	}
}
