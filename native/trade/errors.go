package trade

import "errors"

// Engine failures are sentinel values so callers can branch on the condition
// with errors.Is. Every failure aborts the whole operation with no state
// change.
var (
	// Input validation.
	ErrInvalidAddress       = errors.New("trade: invalid address")
	ErrInvalidInputs        = errors.New("trade: leg has no positive component")
	ErrCannotTradeSameToken = errors.New("trade: offered and requested legs reference the same asset")
	ErrCannotTradeWithSelf  = errors.New("trade: seller and buyer must differ")

	// Funding and authorization of assets.
	ErrInsufficientBalance   = errors.New("trade: insufficient balance")
	ErrInsufficientAllowance = errors.New("trade: insufficient allowance")
	ErrNotNFTOwner           = errors.New("trade: caller does not own the nft")
	ErrNFTNotApproved        = errors.New("trade: nft not approved for transfer")
	ErrIncorrectNativeValue  = errors.New("trade: attached value does not match the native amount")

	// Authorization of the acting party.
	ErrOnlyBuyer         = errors.New("trade: only the buyer may confirm")
	ErrOnlySeller        = errors.New("trade: only the seller may perform this action")
	ErrOnlySellerOrBuyer = errors.New("trade: only the seller or buyer may cancel")

	// Temporal.
	ErrTradeExpired    = errors.New("trade: deadline has passed")
	ErrTradeNotExpired = errors.New("trade: trade has not been swept as expired")

	// Lookup and state.
	ErrTradeNotFound = errors.New("trade: trade not found")
	ErrInvalidStatus = errors.New("trade: status transition not allowed")
)
