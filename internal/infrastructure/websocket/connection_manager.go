package websocket

import (
	"encoding/json"
	"sync"

	"nft-marketplace/internal/domain"
	"nft-marketplace/pkg/logger"
)

// ConnectionManager tracks live feeds, one per (auction, user) pair.
type ConnectionManager struct {
	connections map[string]map[string]domain.WebSocketConnection // auctionID -> userID -> connection
	userConns   map[string][]domain.WebSocketConnection          // userID -> connections
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]map[string]domain.WebSocketConnection),
		userConns:   make(map[string][]domain.WebSocketConnection),
		log:         log,
	}
}

// RegisterConnection replaces, and closes, any earlier feed the user had
// open on the same auction.
func (cm *ConnectionManager) RegisterConnection(userID, auctionID string, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.connections[auctionID] == nil {
		cm.connections[auctionID] = make(map[string]domain.WebSocketConnection)
	}
	if previous, exists := cm.connections[auctionID][userID]; exists && previous != conn {
		cm.removeUserConn(userID, auctionID)
		if err := previous.Close(); err != nil {
			cm.log.Warn("Failed to close replaced connection", "user_id", userID, "auction_id", auctionID, "error", err)
		}
	}
	cm.connections[auctionID][userID] = conn
	cm.userConns[userID] = append(cm.userConns[userID], conn)

	cm.log.Info("Connection registered", "user_id", userID, "auction_id", auctionID)
	return nil
}

// UnregisterConnection drops conn if it is still the registered feed.
func (cm *ConnectionManager) UnregisterConnection(userID, auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if auctionConns, exists := cm.connections[auctionID]; exists {
		delete(auctionConns, userID)
		if len(auctionConns) == 0 {
			delete(cm.connections, auctionID)
		}
	}
	cm.removeUserConn(userID, auctionID)

	cm.log.Info("Connection unregistered", "user_id", userID, "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) CloseAndUnregisterConnections(auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for userID, conn := range cm.connections[auctionID] {
		if err := conn.Close(); err != nil {
			cm.log.Error("Failed to close connection", "user_id", userID,
				"auction_id", auctionID, "error", err)
		}
		cm.removeUserConn(userID, auctionID)
	}
	delete(cm.connections, auctionID)

	cm.log.Info("Connections closed for auction", "auction_id", auctionID)
	return nil
}

// removeUserConn must be called with the write lock held.
func (cm *ConnectionManager) removeUserConn(userID, auctionID string) {
	userConnections, exists := cm.userConns[userID]
	if !exists {
		return
	}

	var remaining []domain.WebSocketConnection
	for _, existing := range userConnections {
		if existing.AuctionID() != auctionID {
			remaining = append(remaining, existing)
		}
	}
	if len(remaining) == 0 {
		delete(cm.userConns, userID)
	} else {
		cm.userConns[userID] = remaining
	}
}

func (cm *ConnectionManager) GetConnectionsForAuction(auctionID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	connections := make([]domain.WebSocketConnection, 0, len(cm.connections[auctionID]))
	for _, conn := range cm.connections[auctionID] {
		connections = append(connections, conn)
	}
	return connections
}

func (cm *ConnectionManager) GetConnectionsForUser(userID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return append([]domain.WebSocketConnection(nil), cm.userConns[userID]...)
}

// BroadcastToAuction sends message to every feed on the auction. A failed
// send is logged and does not stop delivery to the others.
func (cm *ConnectionManager) BroadcastToAuction(auctionID string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	connections := cm.GetConnectionsForAuction(auctionID)
	cm.log.Debug("Broadcasting to auction", "auction_id", auctionID, "connections", len(connections))

	for _, conn := range connections {
		if err := conn.Send(json.RawMessage(payload)); err != nil {
			cm.log.Error("Failed to send message", "user_id", conn.UserID(),
				"auction_id", auctionID, "error", err)
		}
	}
	return nil
}

func (cm *ConnectionManager) NotifyUser(userID string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	for _, conn := range cm.GetConnectionsForUser(userID) {
		if err := conn.Send(json.RawMessage(payload)); err != nil {
			cm.log.Error("Failed to send message", "user_id", userID, "error", err)
		}
	}
	return nil
}
