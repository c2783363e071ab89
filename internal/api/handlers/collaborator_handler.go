package handlers

import (
	"net/http"
	"strconv"

	"nft-marketplace/internal/domain"
	"nft-marketplace/internal/services"
	"nft-marketplace/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CollaboratorHandler exposes the asset collections and token ledgers the
// registry trades in, so participants can mint, approve and inspect balances.
type CollaboratorHandler struct {
	directory *services.ContractDirectory
	log       logger.Logger
}

type MintAssetRequest struct {
	To  string `json:"to"`
	URI string `json:"uri"`
}

type ApproveAssetRequest struct {
	To string `json:"to"`
}

type AssetResponse struct {
	Contract string `json:"contract"`
	AssetID  uint64 `json:"asset_id"`
	Owner    string `json:"owner"`
	Approved string `json:"approved,omitempty"`
	URI      string `json:"uri"`
}

type TokenAmountRequest struct {
	To      string `json:"to"`
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

type BalanceResponse struct {
	Contract  string  `json:"contract"`
	Holder    string  `json:"holder"`
	Balance   uint64  `json:"balance"`
	Spender   string  `json:"spender,omitempty"`
	Allowance *uint64 `json:"allowance,omitempty"`
}

func NewCollaboratorHandler(directory *services.ContractDirectory, log logger.Logger) *CollaboratorHandler {
	return &CollaboratorHandler{
		directory: directory,
		log:       log,
	}
}

func (h *CollaboratorHandler) collection(c echo.Context) (domain.AssetCollection, error) {
	collection, ok := h.directory.AssetCollection(domain.ContractRef(c.Param("contract")))
	if !ok {
		return nil, domain.ErrInvalidAssetContract
	}
	return collection, nil
}

func (h *CollaboratorHandler) ledger(c echo.Context) (domain.TokenLedger, error) {
	ledger, ok := h.directory.TokenLedger(domain.ContractRef(c.Param("contract")))
	if !ok {
		return nil, domain.ErrInvalidPaymentContract
	}
	return ledger, nil
}

func (h *CollaboratorHandler) MintAsset(c echo.Context) error {
	collection, err := h.collection(c)
	if err != nil {
		return errorJSON(c, err)
	}

	var req MintAssetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	id, err := collection.Mint(c.Request().Context(), domain.Address(req.To), req.URI)
	if err != nil {
		return errorJSON(c, err)
	}

	h.log.Info("Asset minted", "contract", c.Param("contract"), "asset_id", id, "to", req.To)
	return h.respondWithAsset(c, collection, id, http.StatusCreated)
}

func (h *CollaboratorHandler) ApproveAsset(c echo.Context) error {
	caller, err := principal(c, h.directory.Address())
	if err != nil {
		return errorJSON(c, err)
	}
	collection, err := h.collection(c)
	if err != nil {
		return errorJSON(c, err)
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid asset id")
	}

	var req ApproveAssetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := collection.Approve(c.Request().Context(), caller, domain.Address(req.To), domain.AssetID(id)); err != nil {
		return errorJSON(c, err)
	}
	return h.respondWithAsset(c, collection, domain.AssetID(id), http.StatusOK)
}

func (h *CollaboratorHandler) GetAsset(c echo.Context) error {
	collection, err := h.collection(c)
	if err != nil {
		return errorJSON(c, err)
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid asset id")
	}
	return h.respondWithAsset(c, collection, domain.AssetID(id), http.StatusOK)
}

func (h *CollaboratorHandler) respondWithAsset(c echo.Context, collection domain.AssetCollection, id domain.AssetID, status int) error {
	ctx := c.Request().Context()

	owner, err := collection.OwnerOf(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}
	approved, err := collection.GetApproved(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}
	uri, err := collection.TokenURI(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(status, AssetResponse{
		Contract: c.Param("contract"),
		AssetID:  uint64(id),
		Owner:    string(owner),
		Approved: string(approved),
		URI:      uri,
	})
}

func (h *CollaboratorHandler) MintTokens(c echo.Context) error {
	ledger, err := h.ledger(c)
	if err != nil {
		return errorJSON(c, err)
	}

	var req TokenAmountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := ledger.Mint(c.Request().Context(), domain.Address(req.To), domain.Amount(req.Amount)); err != nil {
		return errorJSON(c, err)
	}

	h.log.Info("Tokens minted", "contract", c.Param("contract"), "to", req.To, "amount", req.Amount)
	return h.respondWithBalance(c, ledger, domain.Address(req.To), "")
}

func (h *CollaboratorHandler) TransferTokens(c echo.Context) error {
	caller, err := principal(c, h.directory.Address())
	if err != nil {
		return errorJSON(c, err)
	}
	ledger, err := h.ledger(c)
	if err != nil {
		return errorJSON(c, err)
	}

	var req TokenAmountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := ledger.Transfer(c.Request().Context(), caller, domain.Address(req.To), domain.Amount(req.Amount)); err != nil {
		return errorJSON(c, err)
	}
	return h.respondWithBalance(c, ledger, caller, "")
}

func (h *CollaboratorHandler) ApproveTokens(c echo.Context) error {
	caller, err := principal(c, h.directory.Address())
	if err != nil {
		return errorJSON(c, err)
	}
	ledger, err := h.ledger(c)
	if err != nil {
		return errorJSON(c, err)
	}

	var req TokenAmountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	spender := domain.Address(req.Spender)
	if err := ledger.Approve(c.Request().Context(), caller, spender, domain.Amount(req.Amount)); err != nil {
		return errorJSON(c, err)
	}
	return h.respondWithBalance(c, ledger, caller, spender)
}

// GetBalance reports the holder's balance, and its allowance for the
// spender query parameter when present.
func (h *CollaboratorHandler) GetBalance(c echo.Context) error {
	ledger, err := h.ledger(c)
	if err != nil {
		return errorJSON(c, err)
	}
	return h.respondWithBalance(c, ledger, domain.Address(c.Param("holder")), domain.Address(c.QueryParam("spender")))
}

func (h *CollaboratorHandler) respondWithBalance(c echo.Context, ledger domain.TokenLedger, holder, spender domain.Address) error {
	ctx := c.Request().Context()

	balance, err := ledger.BalanceOf(ctx, holder)
	if err != nil {
		return errorJSON(c, err)
	}
	resp := BalanceResponse{
		Contract: c.Param("contract"),
		Holder:   string(holder),
		Balance:  uint64(balance),
	}

	if spender != "" {
		allowance, err := ledger.Allowance(ctx, holder, spender)
		if err != nil {
			return errorJSON(c, err)
		}
		value := uint64(allowance)
		resp.Spender = string(spender)
		resp.Allowance = &value
	}
	return c.JSON(http.StatusOK, resp)
}
