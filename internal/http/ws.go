package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/rooms"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleClientWS joins the caller's identity-keyed push channel and
// forwards order_accepted events until the connection drops.
func (s *Server) handleClientWS(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]
	if clientID == "" {
		s.error(w, http.StatusBadRequest, "missing client id")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ch, cancel := s.engine.Broker().Subscribe(r.Context(), notify.ClientTopic(clientID))

	go func() {
		for ev := range ch {
			if err := conn.WriteJSON(ev); err != nil {
				break
			}
		}
		conn.Close()
	}()

	// the read loop only watches for the peer going away
	conn.SetReadLimit(1024)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	cancel()
	conn.Close()
}

// handleRoomWS joins the in-ride chat room for one order. Messages from
// the socket are fanned to all room members; a ride_end message completes
// the order, which closes the room with a terminal ride_ended signal.
func (s *Server) handleRoomWS(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["order_id"]
	sender := r.URL.Query().Get("name")
	if orderID == "" {
		s.error(w, http.StatusBadRequest, "missing order id")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	member := rooms.NewWSMember(conn)
	hub := s.engine.Rooms()
	hub.Join(orderID, member)

	conn.SetReadLimit(4096)
	for {
		var in models.Event
		if err := conn.ReadJSON(&in); err != nil {
			break
		}
		switch in.Type {
		case "ride_end":
			if err := s.engine.CompleteRide(r.Context(), orderID, time.Now()); err != nil {
				s.logger.Warn("ride_end over room failed", "order_id", orderID, "error", err)
			}
		default:
			hub.Send(orderID, models.Event{
				Type:    models.EventChatMessage,
				OrderID: orderID,
				Sender:  sender,
				Message: in.Message,
				At:      time.Now(),
			})
		}
	}
	hub.Leave(orderID, member)
	conn.Close()
}
