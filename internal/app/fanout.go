package app

import (
	"errors"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Fanout writes one frame to many connections. A failing recipient never
// affects the others.
type Fanout struct {
	Policy Policy
	// OnKick, when set, runs after a slow member's transport was closed.
	OnKick func(sid core.SessionID)
}

func NewFanout(p Policy) *Fanout {
	if p == nil {
		p = DropPolicy{}
	}
	return &Fanout{Policy: p}
}

func (f *Fanout) Deliver(conns []*core.Connection, frame core.Frame) core.PublishResult {
	res := core.PublishResult{}
	for _, c := range conns {
		err := c.Send(frame)
		if err == nil {
			res.Delivered = append(res.Delivered, c.ID())
			continue
		}
		res.Failed = append(res.Failed, core.DeliveryFailure{SID: c.ID(), Err: err})
		f.onFailure(c, err)
	}
	metrics.Deliveries.Add(float64(len(res.Delivered)))
	if len(res.Failed) > 0 {
		log.Debug().Str("module", "app.fanout").Int("sent_to", len(res.Delivered)).Int("failed", len(res.Failed)).Msg("broadcast result")
	}
	return res
}

func (f *Fanout) onFailure(c *core.Connection, err error) {
	if !errors.Is(err, core.ErrBackpressure) {
		metrics.DeliveryFailures.WithLabelValues("closed").Inc()
		return
	}
	metrics.DeliveryFailures.WithLabelValues("backpressure").Inc()
	switch f.Policy.OnBackPressure(c) {
	case KickMember:
		log.Warn().Str("module", "app.fanout").Str("sid", string(c.ID())).Msg("kicking slow member")
		if c.Close() && f.OnKick != nil {
			f.OnKick(c.ID())
		}
	case DropFrame, NoAction:
		log.Debug().Str("module", "app.fanout").Str("sid", string(c.ID())).Msg("dropped frame for slow member")
	}
}
