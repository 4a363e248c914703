package withdrawal

import "github.com/shopspring/decimal"

// CreateRequest is the body of POST /withdrawals.
type CreateRequest struct {
	Credits       decimal.Decimal `json:"credits" validate:"required,gt=0"`
	MethodID      int64           `json:"method_id" validate:"required,gt=0"`
	WalletAddress string          `json:"wallet_address" validate:"required,max=255"`
}
