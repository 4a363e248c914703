package admin

import "github.com/shopspring/decimal"

// GenerateVouchersRequest for POST /admin/vouchers
type GenerateVouchersRequest struct {
	Credits decimal.Decimal `json:"credits" validate:"required,gt=0"`
	Count   int             `json:"count" validate:"required,gte=1,lte=1000"`
}

// ProcessWithdrawalRequest for POST /admin/withdrawals/{id}/process
type ProcessWithdrawalRequest struct {
	Status string `json:"status" validate:"required,withdrawal_decision"`
}

// ModerateCampaignRequest for POST /admin/campaigns/{id}/moderate
type ModerateCampaignRequest struct {
	Status string `json:"status" validate:"required,moderation_decision"`
}

// UpdateSettingRequest for PUT /admin/settings/{key}
type UpdateSettingRequest struct {
	Value decimal.Decimal `json:"value"`
}

// ToggleMethodRequest for PATCH /admin/methods/{id}
type ToggleMethodRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// TopUpRequest for POST /admin/accounts/{id}/ad-balance
type TopUpRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
}
