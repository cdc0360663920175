package httpserver

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"bx-custody/internal/activity"
	"bx-custody/internal/auth"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// EventsWSHandler streams a wallet's balance topic to its owner.
type EventsWSHandler struct {
	bus      *activity.Bus
	authSvc  *auth.Service
	upgrader websocket.Upgrader
}

func NewEventsWSHandler(bus *activity.Bus, authSvc *auth.Service, origin string) *EventsWSHandler {
	return &EventsWSHandler{
		bus:     bus,
		authSvc: authSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func (h *EventsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// browser WS cannot set headers, so auth rides the query string
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	wallet, err := h.authSvc.ParseToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sub := h.bus.Subscribe(activity.BalanceTopic(wallet))
	go h.writePump(conn, sub)
	go readDiscard(conn)
}

func (h *EventsWSHandler) writePump(conn *websocket.Conn, sub *activity.Subscriber) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		h.bus.Unsubscribe(sub)
		conn.Close()
	}()
	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// AdminWSHandler streams the entity topics for admin dashboards. Admin
// tokens are validated by the caller-supplied check so this package does
// not depend on the admin JWT layout.
type AdminWSHandler struct {
	bus      *activity.Bus
	check    func(token string) bool
	upgrader websocket.Upgrader
}

func NewAdminWSHandler(bus *activity.Bus, check func(token string) bool, origin string) *AdminWSHandler {
	return &AdminWSHandler{
		bus:   bus,
		check: check,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func (h *AdminWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || !h.check(token) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sub := h.bus.Subscribe(
		activity.TopicDeposits,
		activity.TopicWithdrawals,
		activity.TopicConversions,
		activity.TopicTrades,
	)
	go h.writePump(conn, sub)
	go readDiscard(conn)
}

func (h *AdminWSHandler) writePump(conn *websocket.Conn, sub *activity.Subscriber) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		h.bus.Unsubscribe(sub)
		conn.Close()
	}()
	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readDiscard(conn *websocket.Conn) {
	conn.SetReadLimit(1024)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			conn.Close()
			return
		}
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}
