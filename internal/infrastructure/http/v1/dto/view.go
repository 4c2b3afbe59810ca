package dto

// ViewRequest is the camera state sent by a renderer. Coordinates are in the
// root extent's CRS.
type ViewRequest struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Z            float64 `json:"z" validate:"gte=0"`
	FOV          float64 `json:"fov" validate:"gt=0,lt=3.1415927"`
	ScreenHeight float64 `json:"screen_height" validate:"gt=0"`

	// Visible optionally limits evaluation to west, south, east, north.
	Visible []float64 `json:"visible,omitempty" validate:"omitempty,len=4"`
}
