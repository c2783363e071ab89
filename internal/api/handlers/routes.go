package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the marketplace API on e.
func RegisterRoutes(e *echo.Echo, auctions *AuctionHandler, collaborators *CollaboratorHandler, service string) {
	api := e.Group("/api/v1")

	api.POST("/auctions", auctions.CreateAuction)
	api.GET("/auctions/count", auctions.AuctionCount)
	api.GET("/auctions/:index", auctions.GetAuction)
	api.POST("/auctions/:index/bids", auctions.Bid)
	api.POST("/auctions/:index/claim-asset", auctions.ClaimAsset)
	api.POST("/auctions/:index/claim-funds", auctions.ClaimFunds)
	api.POST("/auctions/:index/refund", auctions.Refund)

	api.POST("/assets/:contract/mint", collaborators.MintAsset)
	api.GET("/assets/:contract/:id", collaborators.GetAsset)
	api.POST("/assets/:contract/:id/approve", collaborators.ApproveAsset)

	api.POST("/tokens/:contract/mint", collaborators.MintTokens)
	api.POST("/tokens/:contract/transfer", collaborators.TransferTokens)
	api.POST("/tokens/:contract/approve", collaborators.ApproveTokens)
	api.GET("/tokens/:contract/balances/:holder", collaborators.GetBalance)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   service,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
}
