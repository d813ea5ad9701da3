package web

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
)

const (
	qrSize   = 280
	qrMargin = 2
)

var errEmptyPayload = errors.New("empty pairing payload")

// renderQR encodes payload as a size x size PNG with a quiet zone of
// margin modules. Modules are scaled with nearest neighbour so edges stay
// sharp for the phone camera.
func renderQR(payload string, size, margin int) ([]byte, error) {
	if payload == "" {
		return nil, errEmptyPayload
	}
	q, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	q.DisableBorder = true
	bitmap := q.Bitmap()

	modules := len(bitmap) + 2*margin
	src := image.NewGray(image.Rect(0, 0, modules, modules))
	draw.Draw(src, src.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	for y, row := range bitmap {
		for x, dark := range row {
			if dark {
				src.SetGray(x+margin, y+margin, color.Gray{Y: 0})
			}
		}
	}

	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
