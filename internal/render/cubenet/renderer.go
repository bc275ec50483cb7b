// Package cubenet draws the unfolded net of a scrambled cube as a PNG.
package cubenet

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"github.com/park285/cubetimer/internal/scramble"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type Renderer interface {
	RenderPNG(ctx context.Context, cube *scramble.Cube, caption string) ([]byte, error)
}

const (
	defaultSticker = 24
	margin         = 12
	captionHeight  = 24
)

// faceOrigin is the top-left cell of each face in the 12x9 net.
var faceOrigin = map[scramble.Face]image.Point{
	scramble.U: {X: 3, Y: 0},
	scramble.L: {X: 0, Y: 3},
	scramble.F: {X: 3, Y: 3},
	scramble.R: {X: 6, Y: 3},
	scramble.B: {X: 9, Y: 3},
	scramble.D: {X: 3, Y: 6},
}

var stickerFill = map[scramble.Face]string{
	scramble.U: "#ffffff",
	scramble.R: "#c41e3a",
	scramble.F: "#009e60",
	scramble.D: "#ffd500",
	scramble.L: "#ff5800",
	scramble.B: "#0051ba",
}

var (
	backgroundColor = color.NRGBA{R: 28, G: 31, B: 46, A: 255}
	captionColor    = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
)

type svgRenderer struct {
	sticker int
}

// NewRenderer returns a renderer drawing stickers of the given pixel size.
func NewRenderer(stickerSize int) Renderer {
	if stickerSize <= 0 {
		stickerSize = defaultSticker
	}
	return &svgRenderer{sticker: stickerSize}
}

func (r *svgRenderer) RenderPNG(ctx context.Context, cube *scramble.Cube, caption string) ([]byte, error) {
	if cube == nil {
		return nil, fmt.Errorf("cube is nil")
	}
	netW := 12 * r.sticker
	netH := 9 * r.sticker
	width := netW + margin*2
	height := netH + margin*2
	caption = strings.TrimSpace(caption)
	if caption != "" {
		height += captionHeight
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	icon, err := oksvg.ReadIconStream(bytes.NewReader(r.netSVG(cube)))
	if err != nil {
		return nil, fmt.Errorf("parse net svg: %w", err)
	}
	icon.SetTarget(float64(margin), float64(margin), float64(netW), float64(netH))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	icon.Draw(raster, 1.0)

	if caption != "" {
		rect := image.Rect(margin, margin+netH, width-margin, height)
		drawCaption(img, rect, caption)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// netSVG lays the 54 stickers out as rounded squares in one SVG document.
func (r *svgRenderer) netSVG(cube *scramble.Cube) []byte {
	s := r.sticker
	inset := s / 12
	if inset < 1 {
		inset = 1
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, 12*s, 9*s, 12*s, 9*s)
	for _, f := range scramble.NetOrder {
		origin := faceOrigin[f]
		stickers := cube.Face(f)
		for i, c := range stickers {
			x := (origin.X+i%3)*s + inset
			y := (origin.Y+i/3)*s + inset
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" rx="%d" fill="%s" stroke="#000000" stroke-width="1"/>`,
				x, y, s-2*inset, s-2*inset, s/6, stickerFill[c])
		}
	}
	b.WriteString(`</svg>`)
	return b.Bytes()
}

func drawCaption(img *image.RGBA, rect image.Rectangle, text string) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Src: image.NewUniform(captionColor), Face: face}
	text = truncateWithEllipsis(drawer, text, rect.Dx())

	metrics := face.Metrics()
	w := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-w)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func truncateWithEllipsis(drawer *font.Drawer, text string, maxWidth int) string {
	if drawer.MeasureString(text).Round() <= maxWidth {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ""
}
