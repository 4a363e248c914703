package voucher

// RedeemRequest is the body of POST /vouchers/redeem.
type RedeemRequest struct {
	Code string `json:"code" validate:"required,voucher_code"`
}
