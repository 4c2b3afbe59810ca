package dto

type LayerResponse struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Source   string  `json:"source"`
	Format   string  `json:"format"`
	ZoomMin  int     `json:"zoom_min"`
	ZoomMax  int     `json:"zoom_max"`
	Order    int     `json:"order"`
	Visible  bool    `json:"visible"`
	Opacity  float64 `json:"opacity"`
	Strategy string  `json:"strategy"`
	Cached   int     `json:"cached"`
}

type LayerVisibilityRequest struct {
	Visible *bool    `json:"visible" validate:"required"`
	Opacity *float64 `json:"opacity" validate:"omitempty,gte=0,lte=1"`
}

type LayerOrderRequest struct {
	Order []string `json:"order" validate:"required,min=1,dive,required"`
}
