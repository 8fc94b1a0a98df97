package api

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// liveItems handles GET /items/live. Every view of the item collection is
// pushed as {"items": [...]}. A slow client only ever gets the newest view.
func (s *Server) liveItems(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	views := make(chan []models.Item, 1)
	h, err := s.collection.Subscribe(func(items []models.Item) {
		select {
		case views <- items:
			return
		default:
		}
		// Replace the pending view.
		select {
		case <-views:
		default:
		}
		select {
		case views <- items:
		default:
		}
	})
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(writeWait))
		return
	}
	defer s.collection.Unsubscribe(h)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case items := <-views:
			if items == nil {
				items = []models.Item{}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(itemsResponse{Items: items}); err != nil {
				s.logger.Debug(r.Context(), "live write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
