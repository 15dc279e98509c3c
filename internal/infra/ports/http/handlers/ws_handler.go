package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/LiveRoom/internal/application/config"
	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/application/metric"
	"github.com/qrave1/LiveRoom/internal/usecase"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// RosterWebSocketHandler пушит снапшоты ростера после каждого пересчета
type RosterWebSocketHandler struct {
	upgrader *websocket.Upgrader

	conn usecase.ConnectionUsecase
}

func NewRosterWebSocketHandler(cfg *config.Config, conn usecase.ConnectionUsecase) *RosterWebSocketHandler {
	return &RosterWebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		conn: conn,
	}
}

func (h *RosterWebSocketHandler) Handle(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("WebSocket upgrade error", slog.Any(constant.Error, err))
		return err
	}
	defer ws.Close()

	metric.IncrementWSActiveConnections()
	defer metric.DecrementWSActiveConnections()

	if err = ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	snapshots, unsubscribe := h.conn.Subscribe()
	defer unsubscribe()

	// Клиент ничего не присылает, читаем только ради pong и close
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				handleWebsocketError(err)
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil

		case <-readDone:
			return nil

		case snap, ok := <-snapshots:
			if !ok {
				_ = ws.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeTimeout),
				)
				return nil
			}

			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(snap); err != nil {
				slog.Error("write roster snapshot", slog.Any(constant.Error, err))
				return nil
			}

		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				slog.Error("ping failed", slog.Any(constant.Error, err))
				return nil
			}
		}
	}
}

func handleWebsocketError(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			slog.Debug("roster websocket closed", slog.Int("code", closeErr.Code))
		default:
			slog.Warn("roster websocket closed unexpectedly", slog.Any(constant.Error, err))
		}

		return
	}

	slog.Debug("roster websocket read error", slog.Any(constant.Error, err))
}
