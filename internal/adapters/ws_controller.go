package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/saucecode/kittencatroom/internal/app"
	"github.com/saucecode/kittencatroom/internal/core"
	"github.com/saucecode/kittencatroom/internal/domain"
	"github.com/saucecode/kittencatroom/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChatController owns the chat WebSocket endpoint and runs one protocol
// engine per connection.
type ChatController struct {
	Registry *app.Registry
	Monitor  *app.Monitor

	ReadLimit      int64
	ConnectTimeout time.Duration
}

func (ctl *ChatController) HandleChat(ctx context.Context, c *gin.Context) {
	sid := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Str("module", "adapters.chat").Str("sid", sid).Err(err).Msg("ws upgrade failed")
		return
	}
	ws.SetReadLimit(ctl.ReadLimit)

	conn := NewWSConnection(ws)
	// A connection gets ConnectTimeout to send its CONNECT; the deadline is
	// lifted once admitted and staleness is the liveness monitor's job.
	_ = conn.SetReadDeadline(time.Now().Add(ctl.ConnectTimeout))

	eng := &chatEngine{
		registry: ctl.Registry,
		monitor:  ctl.Monitor,
		conn:     conn,
		sid:      sid,
	}

	conn.StartWriteLoop(ctx)
	go eng.readLoop(ctx, ws)
}

// engineConn is what the protocol engine needs from its transport.
type engineConn interface {
	core.Conn
	SetReadDeadline(t time.Time) error
}

type sessionState int

const (
	stateConnecting sessionState = iota
	stateAdmitted
	stateClosed
)

// chatEngine is the state machine driving one connection from admission to
// departure. Inbound packets are decoded and dispatched against the current
// state; anything malformed or out of place is logged and ignored.
type chatEngine struct {
	registry *app.Registry
	monitor  *app.Monitor
	conn     engineConn
	sid      string

	state sessionState
	room  core.RoomService
	sess  *core.Session
}

func (e *chatEngine) readLoop(ctx context.Context, ws WSConn) {
	defer e.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Debug().Str("module", "adapters.chat").Str("sid", e.sid).Err(err).Msg("read loop closing")
			return
		}
		if e.handlePacket(data) {
			return
		}
	}
}

// handlePacket dispatches one inbound packet and reports whether the
// connection must die.
func (e *chatEngine) handlePacket(data []byte) bool {
	typ, err := protocol.DecodeType(data)
	if err != nil {
		log.Warn().Str("module", "adapters.chat").Str("sid", e.sid).Err(err).Msg("malformed packet ignored")
		return false
	}

	switch typ {
	case protocol.TypeConnect:
		if e.state != stateConnecting {
			log.Warn().Str("module", "adapters.chat").Str("sid", e.sid).Msg("CONNECT outside Connecting ignored")
			return false
		}
		return e.handleConnect(data)
	case protocol.TypeMsg:
		if e.state != stateAdmitted {
			log.Warn().Str("module", "adapters.chat").Str("sid", e.sid).Msg("MSG before admission ignored")
			return false
		}
		e.handleMsg(data)
	case protocol.TypePong:
		if e.state != stateAdmitted {
			log.Warn().Str("module", "adapters.chat").Str("sid", e.sid).Msg("PONG before admission ignored")
			return false
		}
		e.handlePong(data)
	default:
		log.Warn().Str("module", "adapters.chat").Str("sid", e.sid).Str("type", typ).Msg("unknown packet type ignored")
	}
	return false
}

func (e *chatEngine) handleConnect(data []byte) bool {
	var p protocol.Connect
	if err := protocol.Decode(data, &p); err != nil {
		log.Warn().Str("module", "adapters.chat").Str("sid", e.sid).Err(err).Msg("malformed CONNECT ignored")
		return false
	}

	room, ok := e.registry.Get(domain.RoomID(p.RoomID))
	if !ok {
		log.Info().Str("module", "adapters.chat").Str("sid", e.sid).Str("room", p.RoomID).Msg("connect to unknown room")
		_ = e.conn.TrySend(core.Frame(protocol.Encode(protocol.Error{
			Type: protocol.TypeError,
			ID:   protocol.ErrIDConnect,
			Data: "this room does not exist",
			Die:  true,
		})))
		return true
	}

	sess, roster := room.Admit(p.Data, e.conn)
	e.room = room
	e.sess = sess
	e.state = stateAdmitted

	// First probe goes out before the roster, matching the admission order
	// clients expect on the wire.
	e.monitor.Watch(sess)
	if err := e.conn.TrySend(roster); err != nil {
		log.Debug().Str("module", "adapters.chat").Str("sid", e.sid).Err(err).Msg("roster send dropped")
	}
	_ = e.conn.SetReadDeadline(time.Time{})

	log.Info().Str("module", "adapters.chat").Str("sid", e.sid).Str("room", p.RoomID).Str("participant", string(sess.ID())).Msg("admitted")
	return false
}

func (e *chatEngine) handleMsg(data []byte) {
	var p protocol.Msg
	if err := protocol.Decode(data, &p); err != nil {
		log.Warn().Str("module", "adapters.chat").Str("sid", e.sid).Err(err).Msg("malformed MSG ignored")
		return
	}
	// Provenance is server-asserted: whatever id the sender supplied is
	// overwritten. The echo back to the sender is part of the contract.
	p.ID = string(e.sess.ID())
	e.room.Broadcast(core.Frame(protocol.Encode(p)), "")
}

func (e *chatEngine) handlePong(data []byte) {
	var p protocol.Pong
	if err := protocol.Decode(data, &p); err != nil {
		log.Warn().Str("module", "adapters.chat").Str("sid", e.sid).Err(err).Msg("malformed PONG ignored")
		return
	}
	if !e.sess.AckProbe(p.Data) {
		log.Warn().Str("module", "adapters.chat").Str("sid", e.sid).Str("participant", string(e.sess.ID())).Msg("probe mismatch")
		if err := e.sess.Deliver(core.Frame(protocol.Encode(protocol.Error{
			Type: protocol.TypeError,
			ID:   protocol.ErrIDPing,
			Data: "incorrect response",
			Die:  false,
		}))); err != nil {
			log.Debug().Str("module", "adapters.chat").Str("sid", e.sid).Err(err).Msg("pingerror send dropped")
		}
	}
}

// shutdown is the single departure path: directory removal (which fans out
// the DROP and cancels the prober) and transport close.
func (e *chatEngine) shutdown() {
	if e.state == stateClosed {
		return
	}
	if e.state == stateAdmitted {
		e.room.Remove(e.sess.ID())
	}
	e.state = stateClosed
	e.conn.Close()
}
