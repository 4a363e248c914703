package reward

// CompleteViewRequest is the body of POST /views.
type CompleteViewRequest struct {
	CampaignID     int64 `json:"campaign_id" validate:"required,gt=0"`
	CaptchaCorrect bool  `json:"captcha_correct"`
}
