package app

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saucecode/kittencatroom/internal/core"
	"github.com/saucecode/kittencatroom/internal/ident"
	"github.com/saucecode/kittencatroom/internal/protocol"
)

// Monitor probes admitted sessions on a fixed interval. Each probe carries a
// fresh single-use token the peer must echo in its next PONG. A probe left
// unanswered by the time the next one is due marks the peer stale, and its
// transport is closed; the read loop then runs the normal departure path.
type Monitor struct {
	Interval time.Duration
}

func NewMonitor(interval time.Duration) *Monitor {
	return &Monitor{Interval: interval}
}

// Watch issues the first probe immediately and schedules the rest. The
// prober's cancel func is bound to the session so directory removal stops it
// synchronously.
func (m *Monitor) Watch(sess *core.Session) {
	done := make(chan struct{})
	sess.BindProber(func() { close(done) })
	m.probe(sess)
	go m.run(sess, done)
}

func (m *Monitor) run(sess *core.Session, done <-chan struct{}) {
	t := time.NewTicker(m.Interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			// A tick can already be queued when the session is removed;
			// cancellation wins.
			select {
			case <-done:
				return
			default:
			}
			if !sess.ProbeAcked() {
				log.Warn().Str("module", "app.liveness").Str("participant", string(sess.ID())).Msg("stale peer, closing transport")
				sess.Conn().Close()
				return
			}
			m.probe(sess)
		}
	}
}

func (m *Monitor) probe(sess *core.Session) {
	token := ident.Generate(ident.ProbeTokenLen, nil)
	sess.IssueProbe(token)
	ping := core.Frame(protocol.Encode(protocol.Ping{Type: protocol.TypePing, Data: token}))
	if err := sess.Deliver(ping); err != nil {
		log.Debug().Str("module", "app.liveness").Str("participant", string(sess.ID())).Err(err).Msg("probe dropped")
	}
}
