package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// session is one connected relay device. Writes are serialized by writeMu because
// a websocket.Conn supports a single concurrent writer.
type session struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	connectedAt time.Time

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id string, conn *websocket.Conn, remoteAddr string, now time.Time) *session {
	return &session{
		id:          id,
		conn:        conn,
		remoteAddr:  remoteAddr,
		connectedAt: now,
		done:        make(chan struct{}),
	}
}

func (s *session) writeJSON(v interface{}, timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (s *session) ping(timeout time.Duration) error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

func (s *session) isOpen() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// close is idempotent; it sends a close frame on a best-effort basis.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}
