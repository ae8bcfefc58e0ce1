package genai

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
)

// Placeholders are previews, so the long edge stays at 768px.
const placeholderEdge = 768

var canvasSizes = map[string]image.Point{
	"1:1":  {X: 768, Y: 768},
	"16:9": {X: 768, Y: 432},
	"9:16": {X: 432, Y: 768},
	"4:3":  {X: 768, Y: 576},
	"3:4":  {X: 576, Y: 768},
}

// canvasSize maps an "a:b" ratio to a placeholder size. Unparseable ratios
// are square.
func canvasSize(aspect string) (int, int) {
	aspect = strings.TrimSpace(aspect)
	if p, ok := canvasSizes[aspect]; ok {
		return p.X, p.Y
	}
	a, b, ok := strings.Cut(aspect, ":")
	if !ok {
		return placeholderEdge, placeholderEdge
	}
	w, errW := strconv.Atoi(strings.TrimSpace(a))
	h, errH := strconv.Atoi(strings.TrimSpace(b))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return placeholderEdge, placeholderEdge
	}
	if w >= h {
		return placeholderEdge, placeholderEdge * h / w
	}
	return placeholderEdge * w / h, placeholderEdge
}

func (c *Client) placeholders(req ImageRequest, n int) ([]ImageAsset, error) {
	width, height := canvasSize(req.AspectRatio)
	assets := make([]ImageAsset, n)
	for i := range assets {
		seed := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", req.RequestID, req.Prompt, req.AspectRatio, i)))
		data, err := renderPlaceholder(width, height, seed)
		if err != nil {
			return nil, fmt.Errorf("genai: render placeholder: %w", err)
		}
		assets[i] = ImageAsset{Format: "image/png", Width: width, Height: height, Data: data}
	}
	c.log.Debug().Str("request_id", req.RequestID).Int("quantity", n).Msg("genai: rendered placeholder images")
	return assets, nil
}

// renderPlaceholder paints a vertical gradient between two seed colours with
// a translucent band across the middle third.
func renderPlaceholder(width, height int, seed [32]byte) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	top := color.RGBA{R: seed[0], G: seed[1], B: seed[2], A: 255}
	bottom := color.RGBA{R: seed[3], G: seed[4], B: seed[5], A: 255}
	for y := 0; y < height; y++ {
		row := image.Rect(0, y, width, y+1)
		draw.Draw(img, row, &image.Uniform{C: blend(top, bottom, y, height)}, image.Point{}, draw.Src)
	}

	band := image.Rect(0, height/3, width, 2*height/3)
	accent := color.NRGBA{R: seed[6], G: seed[7], B: seed[8], A: 160}
	draw.Draw(img, band, &image.Uniform{C: accent}, image.Point{}, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func blend(a, b color.RGBA, step, steps int) color.RGBA {
	if steps <= 1 {
		return a
	}
	mix := func(x, y uint8) uint8 {
		return uint8((int(x)*(steps-1-step) + int(y)*step) / (steps - 1))
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}
