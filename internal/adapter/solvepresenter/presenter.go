package solvepresenter

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/park285/cubetimer/internal/render/cubenet"
	"github.com/park285/cubetimer/internal/scramble"
	"github.com/park285/cubetimer/pkg/solvedto"
)

// Presenter turns scramble text into a preview the shell can show directly.
type Presenter struct {
	renderer cubenet.Renderer
}

func NewPresenter(renderer cubenet.Renderer) *Presenter {
	if renderer == nil {
		renderer = cubenet.NewRenderer(0)
	}
	return &Presenter{renderer: renderer}
}

// ScramblePNG renders the cube net after applying text to a solved cube.
func (p *Presenter) ScramblePNG(ctx context.Context, text string) ([]byte, error) {
	moves, err := scramble.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse scramble: %w", err)
	}
	return p.renderer.RenderPNG(ctx, scramble.NewCube().Apply(moves), moves.String())
}

func (p *Presenter) ScramblePreview(ctx context.Context, text string) (*solvedto.ScramblePreview, error) {
	png, err := p.ScramblePNG(ctx, text)
	if err != nil {
		return nil, err
	}
	return &solvedto.ScramblePreview{
		Scramble:    text,
		ImageBase64: base64.StdEncoding.EncodeToString(png),
	}, nil
}
