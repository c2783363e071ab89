package handlers

import (
	"context"
	"net/http"
	"time"

	"nft-marketplace/internal/domain"
	"nft-marketplace/internal/services"
	"nft-marketplace/pkg/logger"

	"github.com/labstack/echo/v4"
)

type AuctionHandler struct {
	registry *services.AuctionRegistry
	log      logger.Logger
}

type CreateAuctionRequest struct {
	AssetContract   string    `json:"asset_contract"`
	PaymentContract string    `json:"payment_contract"`
	AssetID         uint64    `json:"asset_id"`
	InitialPrice    uint64    `json:"initial_price"`
	EndTime         time.Time `json:"end_time"`
}

type CreateAuctionResponse struct {
	AuctionIndex uint64 `json:"auction_index"`
}

type BidRequest struct {
	Amount uint64 `json:"amount"`
}

type AuctionResponse struct {
	Index           uint64          `json:"index"`
	AssetContract   string          `json:"asset_contract"`
	AssetID         uint64          `json:"asset_id"`
	PaymentContract string          `json:"payment_contract"`
	Creator         string          `json:"creator"`
	InitialPrice    uint64          `json:"initial_price"`
	EndTime         time.Time       `json:"end_time"`
	CurrentBid      uint64          `json:"current_bid"`
	CurrentBidOwner *domain.Address `json:"current_bid_owner"`
	BidCount        uint64          `json:"bid_count"`
	Status          string          `json:"status"`
	AssetReleased   bool            `json:"asset_released"`
	FundsReleased   bool            `json:"funds_released"`
}

func NewAuctionHandler(registry *services.AuctionRegistry, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		registry: registry,
		log:      log,
	}
}

func toAuctionResponse(a *domain.Auction) AuctionResponse {
	return AuctionResponse{
		Index:           a.Index,
		AssetContract:   string(a.AssetContract),
		AssetID:         uint64(a.AssetID),
		PaymentContract: string(a.PaymentContract),
		Creator:         string(a.Creator),
		InitialPrice:    uint64(a.InitialPrice),
		EndTime:         a.EndTime,
		CurrentBid:      uint64(a.CurrentBidAmount),
		CurrentBidOwner: a.CurrentBidOwner,
		BidCount:        a.BidCount,
		Status:          a.Status.String(),
		AssetReleased:   a.AssetReleased,
		FundsReleased:   a.FundsReleased,
	}
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	caller, err := principal(c, h.registry.Address())
	if err != nil {
		return errorJSON(c, err)
	}

	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		h.log.Warn("Failed to bind request", "error", err)
		return badRequest(c, "Invalid request body")
	}

	index, err := h.registry.CreateAuction(c.Request().Context(), caller,
		domain.ContractRef(req.AssetContract), domain.ContractRef(req.PaymentContract),
		domain.AssetID(req.AssetID), domain.Amount(req.InitialPrice), req.EndTime)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, CreateAuctionResponse{AuctionIndex: index})
}

func (h *AuctionHandler) AuctionCount(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]uint64{"count": h.registry.AuctionCount()})
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	index, err := parseIndex(c, "index")
	if err != nil {
		return badRequest(c, "Invalid auction index")
	}

	auction, err := h.registry.Auction(index)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func (h *AuctionHandler) Bid(c echo.Context) error {
	caller, err := principal(c, h.registry.Address())
	if err != nil {
		return errorJSON(c, err)
	}
	index, err := parseIndex(c, "index")
	if err != nil {
		return badRequest(c, "Invalid auction index")
	}

	var req BidRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.registry.Bid(c.Request().Context(), caller, index, domain.Amount(req.Amount)); err != nil {
		return errorJSON(c, err)
	}
	return h.respondWithAuction(c, index)
}

func (h *AuctionHandler) ClaimAsset(c echo.Context) error {
	return h.settle(c, h.registry.ClaimAsset)
}

func (h *AuctionHandler) ClaimFunds(c echo.Context) error {
	return h.settle(c, h.registry.ClaimFunds)
}

func (h *AuctionHandler) Refund(c echo.Context) error {
	return h.settle(c, h.registry.Refund)
}

type settleFunc func(ctx context.Context, caller domain.Address, index uint64) error

func (h *AuctionHandler) settle(c echo.Context, op settleFunc) error {
	caller, err := principal(c, h.registry.Address())
	if err != nil {
		return errorJSON(c, err)
	}
	index, err := parseIndex(c, "index")
	if err != nil {
		return badRequest(c, "Invalid auction index")
	}

	if err := op(c.Request().Context(), caller, index); err != nil {
		return errorJSON(c, err)
	}
	return h.respondWithAuction(c, index)
}

func (h *AuctionHandler) respondWithAuction(c echo.Context, index uint64) error {
	auction, err := h.registry.Auction(index)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}
