// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/durak/internal/game"
	"github.com/jason-s-yu/durak/internal/metrics"
	"github.com/jason-s-yu/durak/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the only WebSocket subprotocol the game endpoint speaks.
const Subprotocol = "durak"

// GameMessage is an inbound WebSocket message. Only the fields relevant to Type are read.
type GameMessage struct {
	Type string `json:"type"`

	// CardIndex and TargetIndex are pointers so a missing index is rejected rather than read as 0.
	CardIndex   *int   `json:"cardIndex,omitempty"`
	TargetIndex *int   `json:"targetIndex,omitempty"`
	Vote        bool   `json:"vote,omitempty"`
	Ready       bool   `json:"ready,omitempty"`
	Text        string `json:"text,omitempty"`
}

// clientIntents are the intent kinds a client may send. Timer intents are never accepted from outside.
var clientIntents = map[string]game.IntentKind{
	string(game.IntentSetReady):      game.IntentSetReady,
	string(game.IntentAttack):        game.IntentAttack,
	string(game.IntentDefend):        game.IntentDefend,
	string(game.IntentDeflect):       game.IntentDeflect,
	string(game.IntentTake):          game.IntentTake,
	string(game.IntentThrowIn):       game.IntentThrowIn,
	string(game.IntentFinishThrowIn): game.IntentFinishThrowIn,
	string(game.IntentEndAttack):     game.IntentEndAttack,
	string(game.IntentVote):          game.IntentVote,
}

// GameWSHandler upgrades an authenticated player to a game session. The token names both the
// player and the room, so the URL carries nothing else.
func (gs *GameServer) GameWSHandler(w http.ResponseWriter, r *http.Request) {
	logger := gs.Logger

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.WithError(err).WithField("remote", r.RemoteAddr).Warn("websocket accept failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "unexpected server exit")

	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "client must use the durak subprotocol")
		return
	}

	sess, err := gs.Sessions.Authenticate(requestToken(r))
	if err != nil {
		logger.WithError(err).WithField("remote", r.RemoteAddr).Warn("websocket auth failed")
		c.Close(InvalidAuthTokenError, "invalid auth token")
		return
	}
	room, ok := gs.Store.GetRoom(sess.RoomCode)
	if !ok {
		c.Close(InvalidRoomCodeError, "room not found")
		return
	}
	if current, ok := gs.Store.RoomForPlayer(sess.PlayerID); !ok || current != room {
		c.Close(InvalidPlayerIDError, "player is not in this room")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := newPlayerConnection(sess.PlayerID, room.Code, cancel)
	gs.register(conn)
	middleware.LogWebSocketConnect(logger, r.RemoteAddr, room.Code, sess.PlayerID.String())

	writerDone := make(chan struct{})
	go func() {
		conn.writePump(ctx, c, logger)
		close(writerDone)
	}()

	if err := room.Reconnect(sess.PlayerID); err != nil {
		// the room closed between lookup and registration
		conn.WriteError(string(game.KindOf(err)), err.Error())
		conn.CloseAfterFlush()
	}

	readErr := gs.readLoop(ctx, c, room, conn)

	cancel()
	<-writerDone
	if gs.unregister(conn) {
		room.Disconnect(sess.PlayerID)
	}
	middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, room.Code, sess.PlayerID.String(), readErr)
	c.Close(websocket.StatusNormalClosure, "")
}

// readLoop handles messages until the client goes away. Normal closures return nil.
func (gs *GameServer) readLoop(ctx context.Context, c *websocket.Conn, room *game.Room, conn *PlayerConnection) error {
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var msg GameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.WriteError(string(game.KindIllegalIntent), "invalid JSON")
			continue
		}
		gs.handleMessage(room, conn, msg)
	}
}

// handleMessage applies one message. Failures only ever reach the sender.
func (gs *GameServer) handleMessage(room *game.Room, conn *PlayerConnection, msg GameMessage) {
	var err error
	switch msg.Type {
	case "ping":
		conn.WriteJSON(map[string]string{"type": "pong"})
		return
	case "send_chat":
		err = room.Chat(conn.PlayerID, msg.Text)
	case "leave":
		err = gs.Store.LeaveRoom(conn.PlayerID)
		if err == nil {
			conn.CloseAfterFlush()
		}
	default:
		kind, ok := clientIntents[msg.Type]
		if !ok {
			metrics.Intents.WithLabelValues("unknown", "rejected").Inc()
			conn.WriteError(string(game.KindIllegalIntent), "unknown message type: "+msg.Type)
			return
		}
		err = room.Handle(toIntent(kind, conn, msg))
		result := "accepted"
		if err != nil {
			result = "rejected"
		}
		metrics.Intents.WithLabelValues(string(kind), result).Inc()
	}

	if err != nil {
		kind := game.KindOf(err)
		if kind == "" {
			gs.Logger.WithError(err).WithFields(logrus.Fields{
				"room":   room.Code,
				"player": conn.PlayerID,
				"type":   msg.Type,
			}).Error("message failed")
			kind = "internal"
		}
		conn.WriteError(string(kind), err.Error())
	}
}

func toIntent(kind game.IntentKind, conn *PlayerConnection, msg GameMessage) game.Intent {
	return game.Intent{
		Kind:        kind,
		PlayerID:    conn.PlayerID,
		CardIndex:   indexOrMissing(msg.CardIndex),
		TargetIndex: indexOrMissing(msg.TargetIndex),
		Ready:       msg.Ready,
		Vote:        msg.Vote,
	}
}

func indexOrMissing(i *int) int {
	if i == nil {
		return -1
	}
	return *i
}
