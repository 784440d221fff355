package adapters

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saucecode/kittencatroom/internal/app"
	"github.com/saucecode/kittencatroom/internal/core"
	"github.com/saucecode/kittencatroom/internal/domain"
	"github.com/saucecode/kittencatroom/internal/protocol"
)

type fakeEngineConn struct {
	mu        sync.Mutex
	frames    []core.Frame
	closed    bool
	deadlines []time.Time
}

func (c *fakeEngineConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeEngineConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeEngineConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, t)
	return nil
}

func (c *fakeEngineConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeEngineConn) packetTypes(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		typ, err := protocol.DecodeType([]byte(f))
		require.NoError(t, err)
		out = append(out, typ)
	}
	return out
}

func (c *fakeEngineConn) decode(t *testing.T, i int, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.Greater(t, len(c.frames), i)
	require.NoError(t, protocol.Decode([]byte(c.frames[i]), v))
}

func (c *fakeEngineConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type harness struct {
	registry *app.Registry
	monitor  *app.Monitor
	roomID   domain.RoomID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := app.NewRegistry()
	id, err := reg.CreateRoom(strings.Repeat("f", domain.MinFishLen))
	require.NoError(t, err)
	// An interval this long means only the immediate admission probe fires.
	return &harness{registry: reg, monitor: app.NewMonitor(time.Hour), roomID: id}
}

func (h *harness) newEngine(conn engineConn) *chatEngine {
	return &chatEngine{registry: h.registry, monitor: h.monitor, conn: conn, sid: "test"}
}

func (h *harness) connect(t *testing.T, eng *chatEngine, name string) {
	t.Helper()
	die := eng.handlePacket(protocol.Encode(protocol.Connect{
		Type:   protocol.TypeConnect,
		RoomID: string(h.roomID),
		Data:   name,
	}))
	require.False(t, die)
	require.Equal(t, stateAdmitted, eng.state)
}

func TestConnect_UnknownRoomIsTerminal(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	conn := &fakeEngineConn{}
	eng := h.newEngine(conn)

	die := eng.handlePacket(protocol.Encode(protocol.Connect{
		Type:   protocol.TypeConnect,
		RoomID: "nosuchroom123456",
		Data:   "cat",
	}))
	req.True(die)

	var errPkt protocol.Error
	conn.decode(t, 0, &errPkt)
	req.Equal(protocol.ErrIDConnect, errPkt.ID)
	req.Equal("this room does not exist", errPkt.Data)
	req.True(errPkt.Die)

	eng.shutdown()
	req.True(conn.isClosed())
	req.Equal(stateClosed, eng.state)

	room, _ := h.registry.Get(h.roomID)
	req.Equal(0, room.Count(), "no session is created for a failed admission")
}

func TestConnect_AdmissionFlow(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	// Scenario: alice connects, then bob; alice sees the JOIN, bob gets the
	// full roster.
	connA := &fakeEngineConn{}
	engA := h.newEngine(connA)
	h.connect(t, engA, "alice")

	// The wire order at admission is PING then USERS.
	req.Equal([]string{protocol.TypePing, protocol.TypeUsers}, connA.packetTypes(t))

	var usersA protocol.Users
	connA.decode(t, 1, &usersA)
	req.Len(usersA.Users, 1)
	req.Contains(usersA.Users, string(engA.sess.ID()))

	// Admission lifts the connect deadline.
	req.True(connA.deadlines[len(connA.deadlines)-1].IsZero())

	connB := &fakeEngineConn{}
	engB := h.newEngine(connB)
	h.connect(t, engB, "bob")

	var join protocol.Join
	connA.decode(t, 2, &join)
	req.Equal(string(engB.sess.ID()), join.ID)
	req.Equal("bob", join.Name)

	var usersB protocol.Users
	connB.decode(t, 1, &usersB)
	req.Len(usersB.Users, 2)
	req.Equal("alice", usersB.Users[string(engA.sess.ID())].Name)
	req.Equal("bob", usersB.Users[string(engB.sess.ID())].Name)
}

func TestMsg_EchoWithServerStampedID(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	connA, connB := &fakeEngineConn{}, &fakeEngineConn{}
	engA, engB := h.newEngine(connA), h.newEngine(connB)
	h.connect(t, engA, "alice")
	h.connect(t, engB, "bob")

	// The sender lies about its id; the relay stamps the real one.
	die := engA.handlePacket(protocol.Encode(protocol.Msg{
		Type: protocol.TypeMsg,
		ID:   "spoofed",
		Data: "hi",
	}))
	req.False(die)

	for _, conn := range []*fakeEngineConn{connA, connB} {
		var msg protocol.Msg
		conn.decode(t, conn.count()-1, &msg)
		req.Equal("hi", msg.Data)
		req.Equal(string(engA.sess.ID()), msg.ID)
	}
}

func TestPong_MismatchIsNonFatal(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	connA := &fakeEngineConn{}
	engA := h.newEngine(connA)
	h.connect(t, engA, "alice")

	die := engA.handlePacket(protocol.Encode(protocol.Pong{Type: protocol.TypePong, Data: "wrong"}))
	req.False(die)
	req.Equal(stateAdmitted, engA.state)
	req.False(connA.isClosed())

	var errPkt protocol.Error
	connA.decode(t, connA.count()-1, &errPkt)
	req.Equal(protocol.ErrIDPing, errPkt.ID)
	req.Equal("incorrect response", errPkt.Data)
	req.False(errPkt.Die)
}

func TestPong_MatchAccepted(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	connA := &fakeEngineConn{}
	engA := h.newEngine(connA)
	h.connect(t, engA, "alice")

	var ping protocol.Ping
	connA.decode(t, 0, &ping)
	before := connA.count()

	die := engA.handlePacket(protocol.Encode(protocol.Pong{Type: protocol.TypePong, Data: ping.Data}))
	req.False(die)
	req.Equal(before, connA.count(), "an accepted token produces no reply")
	req.True(engA.sess.ProbeAcked())
}

func TestShutdown_DropFanout(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	connA, connB := &fakeEngineConn{}, &fakeEngineConn{}
	engA, engB := h.newEngine(connA), h.newEngine(connB)
	h.connect(t, engA, "alice")
	h.connect(t, engB, "bob")
	departedID := engA.sess.ID()

	engA.shutdown()
	req.True(connA.isClosed())

	var drop protocol.Drop
	connB.decode(t, connB.count()-1, &drop)
	req.Equal(string(departedID), drop.ID)

	room, _ := h.registry.Get(h.roomID)
	req.Equal(1, room.Count())
	_, ok := room.Get(departedID)
	req.False(ok, "departed id is free for reuse")

	// Shutdown twice is harmless and announces nothing further.
	before := connB.count()
	engA.shutdown()
	req.Equal(before, connB.count())

	// A later connection admits cleanly into the same room.
	connC := &fakeEngineConn{}
	engC := h.newEngine(connC)
	h.connect(t, engC, "carol")
	req.Equal(2, room.Count())
}

func TestMalformedAndOutOfStatePacketsIgnored(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	connA := &fakeEngineConn{}
	engA := h.newEngine(connA)

	// Pre-admission noise.
	req.False(engA.handlePacket([]byte(`this is not json`)))
	req.False(engA.handlePacket([]byte(`{"no":"type"}`)))
	req.False(engA.handlePacket(protocol.Encode(protocol.Msg{Type: protocol.TypeMsg, Data: "early"})))
	req.False(engA.handlePacket(protocol.Encode(protocol.Pong{Type: protocol.TypePong, Data: "early"})))
	req.False(engA.handlePacket([]byte(`{"type":"SELFDESTRUCT"}`)))
	req.Equal(stateConnecting, engA.state)
	req.Zero(connA.count())

	h.connect(t, engA, "alice")
	before := connA.count()

	// Post-admission noise: second CONNECT, unknown types, bad payloads.
	req.False(engA.handlePacket(protocol.Encode(protocol.Connect{Type: protocol.TypeConnect, RoomID: string(h.roomID), Data: "again"})))
	req.False(engA.handlePacket([]byte(`{"type":"MSG","data":42}`)))
	req.False(engA.handlePacket([]byte(`{"type":"WHATEVER"}`)))
	req.Equal(stateAdmitted, engA.state)
	req.Equal(before, connA.count())

	room, _ := h.registry.Get(h.roomID)
	req.Equal(1, room.Count(), "a repeated CONNECT must not create a second session")
}
