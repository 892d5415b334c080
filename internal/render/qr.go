// Package render turns a bare QR token into a branded PNG.
package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

var (
	// Brand is the module colour used for every code.
	Brand = color.RGBA{R: 0x1E, G: 0x40, B: 0xAF, A: 0xFF}
	white = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
)

const (
	defaultSize   = 512
	defaultBorder = 24
)

// Branding describes the decoration around a code.
type Branding struct {
	LogoURL *string
}

// QRRenderer encodes strings as QR images.  High error correction leaves
// room for a centered logo.
type QRRenderer struct {
	logos  LogoFetcher
	size   int
	border int
	log    *zap.Logger
}

// NewQRRenderer returns a renderer.  logos may be nil to disable logos.
func NewQRRenderer(logos LogoFetcher, log *zap.Logger) *QRRenderer {
	return &QRRenderer{logos: logos, size: defaultSize, border: defaultBorder, log: log.Named("render")}
}

// Render encodes content and returns PNG bytes.
func (r *QRRenderer) Render(ctx context.Context, content string, b Branding) ([]byte, error) {
	q, err := qrcode.New(content, qrcode.High)
	if err != nil {
		return nil, err
	}
	q.ForegroundColor = Brand
	q.BackgroundColor = white

	code := q.Image(r.size)
	full := r.size + 2*r.border
	canvas := image.NewRGBA(image.Rect(0, 0, full, full))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: white}, image.Point{}, draw.Src)
	drawFrame(canvas, 4)
	draw.Draw(canvas, code.Bounds().Add(image.Pt(r.border, r.border)), code, code.Bounds().Min, draw.Over)

	if b.LogoURL != nil && *b.LogoURL != "" && r.logos != nil {
		if logo := r.logos.Fetch(ctx, *b.LogoURL); logo != nil {
			overlayLogo(canvas, logo, full/5)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// drawFrame paints a brand-coloured frame of the given width around dst.
func drawFrame(dst *image.RGBA, width int) {
	b := dst.Bounds()
	brand := &image.Uniform{C: Brand}
	for _, r := range []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+width),
		image.Rect(b.Min.X, b.Max.Y-width, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Max.Y),
		image.Rect(b.Max.X-width, b.Min.Y, b.Max.X, b.Max.Y),
	} {
		draw.Draw(dst, r, brand, image.Point{}, draw.Src)
	}
}

// overlayLogo scales logo into a box of side px (nearest neighbour, aspect
// preserved) on a white pad centered on dst.
func overlayLogo(dst *image.RGBA, logo image.Image, side int) {
	lb := logo.Bounds()
	if lb.Dx() == 0 || lb.Dy() == 0 || side <= 0 {
		return
	}
	w, h := side, side
	if lb.Dx() > lb.Dy() {
		h = side * lb.Dy() / lb.Dx()
	} else {
		w = side * lb.Dx() / lb.Dy()
	}
	if w == 0 || h == 0 {
		return
	}
	c := dst.Bounds().Size().Div(2)
	pad := image.Rect(c.X-side/2-6, c.Y-side/2-6, c.X+side/2+6, c.Y+side/2+6)
	draw.Draw(dst, pad, &image.Uniform{C: white}, image.Point{}, draw.Src)

	origin := image.Pt(c.X-w/2, c.Y-h/2)
	for y := 0; y < h; y++ {
		sy := lb.Min.Y + y*lb.Dy()/h
		for x := 0; x < w; x++ {
			sx := lb.Min.X + x*lb.Dx()/w
			_, _, _, a := logo.At(sx, sy).RGBA()
			if a == 0 {
				continue
			}
			dst.Set(origin.X+x, origin.Y+y, logo.At(sx, sy))
		}
	}
}
