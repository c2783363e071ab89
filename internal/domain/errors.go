package domain

import "errors"

// Error categories. Every named error below unwraps to exactly one of them.
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrState         = errors.New("state error")
	ErrCollaborator  = errors.New("collaborator error")
)

type Error struct {
	kind error
	msg  string
}

func newError(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// Validation errors
var (
	ErrInvalidAssetContract   = newError(ErrValidation, "invalid asset contract reference")
	ErrInvalidPaymentContract = newError(ErrValidation, "invalid payment contract reference")
	ErrInvalidEndTime         = newError(ErrValidation, "invalid end time for auction")
	ErrInvalidInitialPrice    = newError(ErrValidation, "invalid initial bid price")
	ErrInvalidAmount          = newError(ErrValidation, "amount must be positive")
)

// Authorization errors
var (
	ErrNotAssetOwner       = newError(ErrAuthorization, "caller is not the owner of the asset")
	ErrTransferNotApproved = newError(ErrAuthorization, "asset transfer to the registry is not approved")
	ErrCreatorCannotBid    = newError(ErrAuthorization, "creator of the auction cannot place a bid")
	ErrNotWinner           = newError(ErrAuthorization, "asset can be claimed only by the current bid owner")
	ErrNotCreator          = newError(ErrAuthorization, "only the creator of the auction can do this")
	ErrRegistryPrincipal   = newError(ErrAuthorization, "the registry address cannot act as a caller")
)

// State errors
var (
	ErrAuctionNotFound = newError(ErrState, "invalid auction index")
	ErrAuctionEnded    = newError(ErrState, "auction has ended")
	ErrAuctionOpen     = newError(ErrState, "auction is still open")
	ErrBidTooLow       = newError(ErrState, "new bid must be higher than the current bid")
	ErrAlreadySettled  = newError(ErrState, "auction is already settled")
	ErrExistingBid     = newError(ErrState, "auction has an existing bid")
	ErrNoBids          = newError(ErrState, "auction has no bids")
)

// Collaborator errors, returned by asset collections and token ledgers.
var (
	ErrUnknownAsset            = newError(ErrCollaborator, "asset does not exist")
	ErrCustodyTransferRejected = newError(ErrCollaborator, "caller is not asset owner or approved")
	ErrInsufficientAllowance   = newError(ErrCollaborator, "insufficient allowance")
	ErrInsufficientBalance     = newError(ErrCollaborator, "insufficient balance")
	ErrBalanceOverflow         = newError(ErrCollaborator, "balance overflow")
	ErrInvalidRecipient        = newError(ErrCollaborator, "invalid recipient")
)

// ErrorKind returns the category sentinel err belongs to, or nil.
func ErrorKind(err error) error {
	for _, kind := range []error{ErrValidation, ErrAuthorization, ErrState, ErrCollaborator} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
