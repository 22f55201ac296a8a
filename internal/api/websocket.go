package api

import (
	"net/http"

	"bountyexpo/internal/auth"
	"bountyexpo/internal/ws"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	Subprotocols: []string{"jwt"},
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (d Dependencies) wsHandler(w http.ResponseWriter, r *http.Request) {
	if d.Hub == nil {
		d.Log.Error("WebSocket hub not initialized")
		http.Error(w, "WebSocket hub not initialized", http.StatusInternalServerError)
		return
	}

	userID := auth.GetUserID(r.Context())
	if userID == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			id, err := d.Auth.ParseToken(token)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			userID = id
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.Log.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	d.Log.Debug("WebSocket connected", zap.String("user_id", userID), zap.String("remote", r.RemoteAddr))

	wsConn := ws.NewConn(conn, d.Hub, userID)
	d.Hub.Register(wsConn)

	go wsConn.WritePump()
	go wsConn.ReadPump()
}
