package campaign

// CreateRequest is the body of POST /campaigns.
type CreateRequest struct {
	Title         string `json:"title" validate:"required,max=255"`
	URL           string `json:"url" validate:"required,url,max=2048"`
	RequiredViews int64  `json:"required_views" validate:"required,gt=0,lte=10000000"`
}
