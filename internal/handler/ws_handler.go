/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting,
parsing the self-asserted identity from the handshake query, upgrading the HTTP connection
to WebSocket, and initiating the client lifecycle.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tzinov15/messaging-app-backend/internal/app/identity"
	"github.com/Tzinov15/messaging-app-backend/internal/app/relay"
	"github.com/Tzinov15/messaging-app-backend/internal/pkg/errs"
	"github.com/Tzinov15/messaging-app-backend/internal/pkg/limiter"
	"github.com/Tzinov15/messaging-app-backend/internal/pkg/logx"
	"github.com/Tzinov15/messaging-app-backend/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// A handshake without a parseable identity is rejected before the upgrade.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		id, idErr := identity.ParseIdentity(r.URL.Query())
		if idErr != nil {
			logx.Warn("WebSocket request rejected: Invalid identity.", "code", idErr.Code)
			resp.RespondError(w, r, idErr)
			return
		}

		logx.Info("Attempting to upgrade connection", "username", id.Username)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := relay.NewClient(deps.Relay, conn, id)

		go client.WritePump()

		logx.Info("WebSocket connection established", "username", id.Username)

		deps.Relay.Register(client)

		client.ReadPump()
	}
}
