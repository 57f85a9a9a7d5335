package types

// MarketError is a settlement failure with a stable, machine-readable code.
// Codes are part of the API contract: off-chain tooling matches on them to
// present actionable feedback, so they must never be renamed.
type MarketError struct {
	Code    string
	Message string
}

func (e *MarketError) Error() string {
	return e.Message
}

// Is makes errors.Is match any two MarketErrors with the same code
func (e *MarketError) Is(target error) bool {
	t, ok := target.(*MarketError)
	return ok && t.Code == e.Code
}

// Every failure aborts the settlement call as a whole; none of these are
// retried internally.
var (
	ErrInvalidSignature       = &MarketError{Code: "invalid_signature", Message: "batch signature does not recover to the order seller"}
	ErrInvalidBatchMembership = &MarketError{Code: "invalid_batch_membership", Message: "order hash is not at the claimed index of the signed batch"}
	ErrExpiredOrder           = &MarketError{Code: "expired_order", Message: "order expired"}
	ErrPriceTooLow            = &MarketError{Code: "price_too_low", Message: "payment amount below the order minimum price"}
	ErrNotWhitelisted         = &MarketError{Code: "not_whitelisted", Message: "item collection is not whitelisted for trading"}
	ErrUnregisteredRoot       = &MarketError{Code: "unregistered_root", Message: "merkle root is not registered or inactive"}
	ErrInvalidProof           = &MarketError{Code: "invalid_proof", Message: "merkle proof does not resolve to the registered root"}
	ErrAlreadyConsumed        = &MarketError{Code: "already_consumed", Message: "merkle leaf was already minted or settled"}
	ErrOrderExhausted         = &MarketError{Code: "order_exhausted", Message: "order has no remaining fill"}
	ErrTransferNotApproved    = &MarketError{Code: "transfer_not_approved", Message: "item registry has not approved the marketplace as operator"}
	ErrNotOwner               = &MarketError{Code: "not_owner", Message: "seller no longer owns the item"}
	ErrInsufficientAllowance  = &MarketError{Code: "insufficient_allowance", Message: "buyer token allowance is below the total charge"}
	ErrInsufficientBalance    = &MarketError{Code: "insufficient_balance", Message: "buyer token balance is below the total charge"}
	ErrNotAuthorized          = &MarketError{Code: "not_authorized", Message: "caller is not authorized for this operation"}
	ErrInvalidTier            = &MarketError{Code: "invalid_tier", Message: "item has no staking tier configured"}
	ErrNothingStaked          = &MarketError{Code: "nothing_staked", Message: "caller has no staked items"}
)
