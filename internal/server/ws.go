package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-duplex/core/controls"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerWSRoute(mux *http.ServeMux, registry *Registry) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		if userID == "" {
			userID = uuid.NewString()
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws upgrade error", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		session, hub, err := registry.Acquire(userID)
		if err != nil {
			logger.Warn("failed to acquire session", "user", userID, "error", err)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
			return
		}
		defer registry.Release(userID)

		ch := hub.Subscribe()
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for msg := range ch {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()
		defer func() {
			hub.Unsubscribe(ch)
			<-writerDone
		}()

		ctx := context.WithoutCancel(r.Context())
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debug("ws read ended", "user", userID, "error", err)
				}
				return
			}

			switch messageType {
			case websocket.BinaryMessage:
				if err := session.SendAudio(data); err != nil {
					logger.Warn("failed to forward audio", "user", userID, "error", err)
				}
			case websocket.TextMessage:
				control, err := controls.Parse(data)
				if err != nil {
					if !errors.Is(err, controls.ErrUnknownKind) {
						logger.Debug("ignoring malformed control", "user", userID, "error", err)
					}
					continue
				}
				if err := session.HandleControl(ctx, control); err != nil {
					logger.Info("control failed", "user", userID, "kind", control.Kind(), "error", err)
				}
			}
		}
	})
}
