package hub

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentforge/engine/common/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 30 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 25 * time.Second

	// Maximum inbound message size (clients only send small control frames)
	maxMessageSize = 1024

	sendBufferSize = 512
)

// WSSink adapts a websocket connection to the Sink interface with a
// buffered send channel drained by a write pump
type WSSink struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// NewWSSink wraps a websocket connection
func NewWSSink(conn *websocket.Conn) *WSSink {
	return &WSSink{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Send enqueues a frame without blocking. A full buffer means the client
// has fallen too far behind.
func (s *WSSink) Send(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write pump and closes the connection
func (s *WSSink) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// ServeSession runs the read and write pumps for one connected client.
// It blocks until the client disconnects or the hub drops the session.
func ServeSession(h *Hub, session *Session, sink *WSSink, log *logger.Logger) {
	go sink.writePump(log)
	sink.readPump(h, session, log)
}

// readPump consumes control frames until the connection dies
func (s *WSSink) readPump(h *Hub, session *Session, log *logger.Logger) {
	defer func() {
		h.Disconnect(session.ID)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug("websocket read error", "session_id", session.ID, "error", err)
			}
			return
		}
		h.HandleMessage(session, raw)
	}
}

// writePump drains the send channel onto the connection, one frame per
// websocket message so clients can parse each JSON object individually
func (s *WSSink) writePump(log *logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

			n := len(s.send)
			for i := 0; i < n; i++ {
				s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.conn.WriteMessage(websocket.TextMessage, <-s.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
