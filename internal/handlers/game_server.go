// internal/handlers/game_server.go
package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/auth"
	"github.com/jason-s-yu/durak/internal/database"
	"github.com/jason-s-yu/durak/internal/game"
	"github.com/jason-s-yu/durak/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// recordTimeout bounds the background writes of round starts and results.
const recordTimeout = 5 * time.Second

// GameServer holds everything the HTTP and WebSocket handlers share: the room registry, the
// token issuer and the live connection of every player.
type GameServer struct {
	Store    *game.RoomStore
	Sessions *auth.Sessions
	Logger   *logrus.Logger

	// Actions receives every room's action records; nil disables publishing.
	Actions game.ActionLogger
	// DB stores round starts and results; nil disables recording.
	DB database.TxBeginner

	mu    sync.Mutex
	conns map[uuid.UUID]*PlayerConnection
	// records tracks in-flight database writes so shutdown can wait for them.
	records sync.WaitGroup
}

// NewGameServer wires the server into store so every new room broadcasts through it.
func NewGameServer(store *game.RoomStore, sessions *auth.Sessions, logger *logrus.Logger) *GameServer {
	gs := &GameServer{
		Store:    store,
		Sessions: sessions,
		Logger:   logger,
		conns:    make(map[uuid.UUID]*PlayerConnection),
	}
	store.Configure = gs.configureRoom
	return gs
}

// Routes registers every endpoint on a fresh mux.
func (gs *GameServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rooms", gs.CreateRoomHandler)
	mux.HandleFunc("GET /rooms", gs.ListRoomsHandler)
	mux.HandleFunc("POST /rooms/{code}/join", gs.JoinRoomHandler)
	mux.HandleFunc("GET /ws", gs.GameWSHandler)
	mux.HandleFunc("GET /healthz", gs.HealthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Wait blocks until background recordings have finished.
func (gs *GameServer) Wait() {
	gs.records.Wait()
}

// configureRoom runs once per room before anyone joins.
func (gs *GameServer) configureRoom(r *game.Room) {
	r.BroadcastToPlayerFn = gs.broadcastToPlayer
	if gs.Actions != nil {
		r.ActionLog = gs.Actions
	}
	r.OnRoundStart = gs.onRoundStart
	r.OnGameEnd = gs.onGameEnd
}

// broadcastToPlayer is called with the room lock held. It only queues.
func (gs *GameServer) broadcastToPlayer(playerID uuid.UUID, ev game.GameEvent) {
	conn := gs.connection(playerID)
	if conn == nil {
		return
	}
	conn.Write(game.EventBytes(ev))
	if ev.Type == game.EventRoomClosed {
		conn.CloseAfterFlush()
	}
}

func (gs *GameServer) onRoundStart(start game.RoundStart) {
	if gs.DB == nil {
		return
	}
	gs.records.Add(1)
	go func() {
		defer gs.records.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := database.RecordRoundStart(ctx, gs.DB, start); err != nil {
			gs.Logger.WithError(err).WithField("game", start.GameID).Error("failed to record round start")
		}
	}()
}

func (gs *GameServer) onGameEnd(res game.GameResult) {
	outcome := "durak"
	if res.IsDraw {
		outcome = "draw"
	}
	metrics.GamesFinished.WithLabelValues(string(res.Mode), outcome).Inc()
	if !res.StartedAt.IsZero() {
		metrics.GameDuration.WithLabelValues(string(res.Mode)).Observe(res.EndedAt.Sub(res.StartedAt).Seconds())
	}
	gs.Logger.WithFields(logrus.Fields{
		"room":    res.RoomCode,
		"game":    res.GameID,
		"outcome": outcome,
		"durak":   res.DurakID,
	}).Info("round finished")

	if gs.DB == nil {
		return
	}
	gs.records.Add(1)
	go func() {
		defer gs.records.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := database.RecordGameResult(ctx, gs.DB, res); err != nil {
			gs.Logger.WithError(err).WithField("game", res.GameID).Error("failed to record game result")
		}
	}()
}

// register makes conn the live connection of its player. A previous connection for the same
// player is told it was replaced and closed.
func (gs *GameServer) register(conn *PlayerConnection) {
	gs.mu.Lock()
	old := gs.conns[conn.PlayerID]
	gs.conns[conn.PlayerID] = conn
	gs.mu.Unlock()

	if old != nil {
		old.WriteError("replaced", "connected from another session")
		old.CloseAfterFlush()
		return
	}
	metrics.SessionsConnected.Inc()
}

// unregister drops conn if it is still the live one. Returns false when it had been replaced.
func (gs *GameServer) unregister(conn *PlayerConnection) bool {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.conns[conn.PlayerID] != conn {
		return false
	}
	delete(gs.conns, conn.PlayerID)
	metrics.SessionsConnected.Dec()
	return true
}

func (gs *GameServer) connection(playerID uuid.UUID) *PlayerConnection {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.conns[playerID]
}
