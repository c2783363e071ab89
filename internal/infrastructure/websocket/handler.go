package websocket

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"nft-marketplace/internal/domain"
	"nft-marketplace/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler serves the read-only live feed for one auction.
type WebSocketHandler struct {
	connManager domain.ConnectionManager
	log         logger.Logger
}

func NewWebSocketHandler(connManager domain.ConnectionManager, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		connManager: connManager,
		log:         log,
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := strconv.ParseUint(vars["index"], 10, 64)
	if err != nil {
		http.Error(w, "invalid auction index", http.StatusBadRequest)
		return
	}
	auctionID := strconv.FormatUint(index, 10)

	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewWebSocketConnection(conn, userID, auctionID)
	if err := h.connManager.RegisterConnection(userID, auctionID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		_ = conn.Close()
		return
	}

	go wsConn.keepAlive()
	go h.handleMessages(wsConn)
}

func (h *WebSocketHandler) handleMessages(conn *WebSocketConnection) {
	defer func() {
		if conn.registered(h.connManager) {
			_ = h.connManager.UnregisterConnection(conn.userID, conn.auctionID)
		}
		_ = conn.Close()
	}()

	_ = conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg map[string]interface{}
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Feed closed unexpectedly", "user_id", conn.userID, "auction_id", conn.auctionID, "error", err)
			}
			return
		}

		msgType, _ := msg["type"].(string)
		switch msgType {
		case "ping":
			_ = conn.Send(map[string]string{"type": "pong"})
		default:
			_ = conn.Send(map[string]string{"type": "error", "message": "feed is read-only"})
		}
	}
}

// WebSocketConnection serializes writes to one gorilla connection.
type WebSocketConnection struct {
	conn      *websocket.Conn
	userID    string
	auctionID string
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func NewWebSocketConnection(conn *websocket.Conn, userID, auctionID string) *WebSocketConnection {
	return &WebSocketConnection{
		conn:      conn,
		userID:    userID,
		auctionID: auctionID,
		done:      make(chan struct{}),
	}
}

func (wsc *WebSocketConnection) Send(message interface{}) error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()

	_ = wsc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsc.conn.WriteJSON(message)
}

func (wsc *WebSocketConnection) Close() error {
	var err error
	wsc.closeOnce.Do(func() {
		close(wsc.done)
		err = wsc.conn.Close()
	})
	return err
}

func (wsc *WebSocketConnection) UserID() string {
	return wsc.userID
}

func (wsc *WebSocketConnection) AuctionID() string {
	return wsc.auctionID
}

// registered reports whether wsc is still the manager's feed for its pair,
// so a replaced connection does not unregister its successor.
func (wsc *WebSocketConnection) registered(cm domain.ConnectionManager) bool {
	for _, conn := range cm.GetConnectionsForAuction(wsc.auctionID) {
		if conn == domain.WebSocketConnection(wsc) {
			return true
		}
	}
	return false
}

func (wsc *WebSocketConnection) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			wsc.writeMu.Lock()
			err := wsc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			wsc.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-wsc.done:
			return
		}
	}
}
