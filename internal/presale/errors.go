package presale

import "errors"

// Business-rule errors. Every failed operation aborts with one of these and
// leaves the sale record untouched.
var (
	// Authorization
	ErrUnauthorized = errors.New("unauthorized: only the sale admin can perform this action")

	// Stage violations
	ErrPresaleNotActive   = errors.New("presale is not active")
	ErrPresaleActive      = errors.New("presale is still active")
	ErrSaleAlreadyEnded   = errors.New("the presale has already ended")
	ErrPrivateSaleNotOver = errors.New("private sale period is not over yet")
	ErrPublicSaleNotOver  = errors.New("public sale period is not over yet")

	// Supply violations
	ErrHardcapReached     = errors.New("hardcap for tokens has been reached")
	ErrInsufficientTokens = errors.New("not enough tokens available for purchase")

	// Payment violations
	ErrInvalidStableToken = errors.New("invalid stable token: not on the accepted list")
	ErrInvalidPaymentType = errors.New("invalid payment type")
	ErrInvalidPrice       = errors.New("invalid price: payment too small for one whole token")

	// Finalization violations
	ErrLiquidityPoolAlreadyCreated = errors.New("the liquidity pool has already been created")
	ErrInvalidDestination          = errors.New("invalid finalize destination")

	// Record lifecycle
	ErrSaleExists   = errors.New("sale already initialized for this admin")
	ErrSaleNotFound = errors.New("sale not found")

	// Arithmetic overflow is fatal to the operation, never wrapped around.
	ErrAmountOverflow = errors.New("arithmetic overflow in amount calculation")

	// Argument validation
	ErrInvalidDuration = errors.New("invalid sale duration")
)
