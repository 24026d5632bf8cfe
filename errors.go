package portfolio

import "errors"

var (
	ErrStockNotFound      = errors.New("stock not found in portfolio")
	ErrDuplicateName      = errors.New("stock name already exists")
	ErrDuplicateTicker    = errors.New("ticker already exists")
	ErrInvalidTicker      = errors.New("invalid ticker")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidVolume      = errors.New("volume must be greater than 0")
	ErrLotNotFound        = errors.New("lot not found")
	ErrNotInitialized     = errors.New("capital tracking is not initialized")
)
