package core

import (
	"sync"

	"github.com/saucecode/kittencatroom/internal/domain"
)

// Session binds one admitted participant to its transport endpoint and holds
// the liveness probe state. Probe state is guarded by its own mutex because
// the prober's timer goroutine and the connection's read loop both touch it.
type Session struct {
	participant domain.Participant
	roomID      domain.RoomID
	conn        Conn

	mu          sync.Mutex
	probeToken  string
	probeAcked  bool
	cancelProbe func()
	cancelOnce  sync.Once
}

func NewSession(p domain.Participant, roomID domain.RoomID, conn Conn) *Session {
	return &Session{participant: p, roomID: roomID, conn: conn}
}

func (s *Session) ID() domain.ParticipantID { return s.participant.ID }
func (s *Session) Name() string             { return s.participant.Name }
func (s *Session) RoomID() domain.RoomID    { return s.roomID }
func (s *Session) Conn() Conn               { return s.conn }

// Deliver enqueues a frame on this session's transport.
func (s *Session) Deliver(f Frame) error {
	return s.conn.TrySend(f)
}

// IssueProbe records a freshly sent liveness token as outstanding.
func (s *Session) IssueProbe(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeToken = token
	s.probeAcked = false
}

// AckProbe compares an echoed token against the outstanding one and marks the
// probe answered on match.
func (s *Session) AckProbe(data string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data != s.probeToken || s.probeToken == "" {
		return false
	}
	s.probeAcked = true
	return true
}

// ProbeAcked reports whether the last issued probe was answered. With no
// probe outstanding there is nothing to hold against the peer.
func (s *Session) ProbeAcked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeToken == "" || s.probeAcked
}

// BindProber attaches the cancel func of this session's liveness prober.
func (s *Session) BindProber(cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelProbe = cancel
}

// CancelProber stops the prober. Safe to call more than once and with no
// prober bound; removal paths call it synchronously so a timer never fires
// against a removed session.
func (s *Session) CancelProber() {
	s.mu.Lock()
	cancel := s.cancelProbe
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	s.cancelOnce.Do(cancel)
}
