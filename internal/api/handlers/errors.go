package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"nft-marketplace/internal/domain"

	"github.com/labstack/echo/v4"
)

// PrincipalHeader carries the caller identity, authenticated upstream.
const PrincipalHeader = "X-Principal"

type ErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

var errMissingPrincipal = errors.New(PrincipalHeader + " header required")

// principal reads the caller identity. The registry's own address is refused:
// only the registry itself moves what it holds in escrow.
func principal(c echo.Context, registry domain.Address) (domain.Address, error) {
	caller := domain.Address(c.Request().Header.Get(PrincipalHeader))
	if caller == "" {
		return "", errMissingPrincipal
	}
	if caller == registry {
		return "", domain.ErrRegistryPrincipal
	}
	return caller, nil
}

func parseIndex(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) (int, string) {
	if errors.Is(err, domain.ErrAuctionNotFound) || errors.Is(err, domain.ErrUnknownAsset) {
		return http.StatusNotFound, "not_found"
	}

	switch domain.ErrorKind(err) {
	case domain.ErrValidation:
		return http.StatusBadRequest, "validation"
	case domain.ErrAuthorization:
		return http.StatusForbidden, "authorization"
	case domain.ErrState:
		return http.StatusConflict, "state"
	case domain.ErrCollaborator:
		return http.StatusUnprocessableEntity, "collaborator"
	}
	return http.StatusInternalServerError, ""
}

func errorJSON(c echo.Context, err error) error {
	if errors.Is(err, errMissingPrincipal) {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	}

	status, category := statusFor(err)
	if status == http.StatusInternalServerError {
		return c.JSON(status, ErrorResponse{Error: "internal error"})
	}
	return c.JSON(status, ErrorResponse{Error: err.Error(), Category: category})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
