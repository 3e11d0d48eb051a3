/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting,
upgrading the HTTP connection to WebSocket, and starting the connection's read and write loops.
Identity is not established here: the connection authenticates with its first event.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"taskflow/internal/app/collab"
	"taskflow/internal/pkg/errs"
	"taskflow/internal/pkg/limiter"
	"taskflow/internal/pkg/logx"
	"taskflow/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.Allow(ip) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", logx.AnonymizeIP(ip))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := collab.NewClient(deps.Hub, conn, deps.Config.AuthGracePeriod)

		go client.WritePump()

		logx.Info("WebSocket connection established", "conn_id", string(client.ID()))

		client.ReadPump()
	}
}
