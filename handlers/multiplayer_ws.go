package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	qrSize     = 320
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Watch streams a session over a websocket: a snapshot first, then every
// published change until the client goes away.
func (m *Multiplayer) Watch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := sessionCode(mux.Vars(r)["code"])

		// Subscribe before reading the snapshot so no update falls in between.
		updates, unsubscribe, err := m.Broker.Subscribe(r.Context(), code)
		if err != nil {
			serverError(w, r, err)
			return
		}
		defer unsubscribe()

		s, err := m.Sessions.GetSession(r.Context(), code)
		if err != nil {
			sessionError(w, r, err, "")
			return
		}

		// WebSocket bağlantısını yükselt
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Debug("websocket upgrade", "code", code, "error", err)
			return
		}
		defer conn.Close()

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(SessionEvent{Type: "snapshot", Session: viewOf(s)}); err != nil {
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			conn.SetReadLimit(512)
			conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						slog.Debug("websocket read", "code", code, "error", err)
					}
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-updates:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}

// QR renders a PNG QR code pointing at the client's join page.
func (m *Multiplayer) QR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := sessionCode(mux.Vars(r)["code"])
		if _, err := m.Sessions.GetSession(r.Context(), code); err != nil {
			sessionError(w, r, err, "")
			return
		}

		png, err := qrcode.Encode(m.ClientURL+"/join/"+code, qrcode.Medium, qrSize)
		if err != nil {
			serverError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(png)
	}
}
