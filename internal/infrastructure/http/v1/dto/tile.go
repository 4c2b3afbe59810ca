package dto

type TileRequest struct {
	Source string `uri:"source" validate:"required"`
	Z      int    `uri:"z" validate:"gte=0,lte=30"`
	X      int    `uri:"x" validate:"gte=0"`
	Y      int    `uri:"y" validate:"gte=0"`
}
