package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	outQueueSize = 64
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	pingTimeout  = 15 * time.Second
)

// PlayerConnection is a single player's socket in a room.
type PlayerConnection struct {
	PlayerID uuid.UUID
	RoomCode string
	Cancel   func()
	// OutChan carries marshalled messages; a nil entry tells writePump to close the socket.
	OutChan chan []byte

	closeOnce sync.Once
}

func newPlayerConnection(playerID uuid.UUID, roomCode string, cancel func()) *PlayerConnection {
	return &PlayerConnection{
		PlayerID: playerID,
		RoomCode: roomCode,
		Cancel:   cancel,
		OutChan:  make(chan []byte, outQueueSize),
	}
}

// Write queues msg without blocking. A full queue means the client stopped reading, so the
// connection is dropped and the player reconnects to a fresh snapshot.
func (conn *PlayerConnection) Write(msg []byte) {
	select {
	case conn.OutChan <- msg:
	default:
		logrus.WithField("player", conn.PlayerID).Warn("outbound queue full, dropping connection")
		conn.Cancel()
	}
}

// WriteJSON marshals v and queues it.
func (conn *PlayerConnection) WriteJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logrus.WithError(err).WithField("player", conn.PlayerID).Warn("failed to marshal message")
		return
	}
	conn.Write(data)
}

// WriteError is a convenience to send an error object.
func (conn *PlayerConnection) WriteError(kind, msg string) {
	conn.WriteJSON(map[string]interface{}{
		"type":    "error",
		"kind":    kind,
		"message": msg,
	})
}

// CloseAfterFlush lets queued messages go out before the socket is closed.
func (conn *PlayerConnection) CloseAfterFlush() {
	conn.closeOnce.Do(func() {
		select {
		case conn.OutChan <- nil:
		default:
			conn.Cancel()
		}
	})
}

// writePump is the only writer on c. It also keeps the connection alive with pings.
func (conn *PlayerConnection) writePump(ctx context.Context, c *websocket.Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer conn.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-conn.OutChan:
			if msg == nil {
				c.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("player", conn.PlayerID).Warn("failed to write to websocket")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("player", conn.PlayerID).Warn("ping failed, assuming disconnect")
				return
			}
		}
	}
}
