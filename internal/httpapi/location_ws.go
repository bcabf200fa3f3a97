package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// writeTimeout bounds each websocket frame write so one stuck client
// cannot pin a goroutine.
const writeTimeout = 10 * time.Second

// handleLocationFeed serves GET /api/location/ws: a websocket that
// pushes the encoded location every time the current folder changes.
// The most recent location is delivered on connect.
func (h *Handler) handleLocationFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	defer conn.CloseNow()

	updates, cancel := h.broadcaster.Subscribe()
	defer cancel()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case loc, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "feed closed")
				return
			}

			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, loc)
			cancelWrite()

			if err != nil {
				// Client went away; nothing to salvage.
				h.logger.Debug("location feed write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}
