// Package scramble generates random-move 3x3 scrambles and models the
// resulting cube state for previews.
package scramble

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

const DefaultLength = 20

// Face is one of U D L R F B.
type Face byte

const (
	U Face = 'U'
	D Face = 'D'
	L Face = 'L'
	R Face = 'R'
	F Face = 'F'
	B Face = 'B'
)

var faces = [...]Face{U, D, L, R, F, B}

func (f Face) valid() bool {
	switch f {
	case U, D, L, R, F, B:
		return true
	}
	return false
}

func (f Face) axis() int {
	switch f {
	case U, D:
		return 0
	case L, R:
		return 1
	default:
		return 2
	}
}

// Turns is 1 for a clockwise quarter turn, 2 for a half turn and 3 for a
// counter-clockwise quarter turn.
type Move struct {
	Face  Face
	Turns int
}

func (m Move) String() string {
	switch m.Turns {
	case 2:
		return string(m.Face) + "2"
	case 3:
		return string(m.Face) + "'"
	default:
		return string(m.Face)
	}
}

type Scramble []Move

func (s Scramble) String() string {
	parts := make([]string, len(s))
	for i, m := range s {
		parts[i] = m.String()
	}
	return strings.Join(parts, " ")
}

// Parse reads standard notation such as "R U2 F'".
func Parse(text string) (Scramble, error) {
	fields := strings.Fields(text)
	out := make(Scramble, 0, len(fields))
	for _, tok := range fields {
		if len(tok) == 0 || len(tok) > 2 {
			return nil, fmt.Errorf("bad move %q", tok)
		}
		f := Face(tok[0])
		if !f.valid() {
			return nil, fmt.Errorf("bad face in %q", tok)
		}
		m := Move{Face: f, Turns: 1}
		if len(tok) == 2 {
			switch tok[1] {
			case '2':
				m.Turns = 2
			case '\'':
				m.Turns = 3
			default:
				return nil, fmt.Errorf("bad modifier in %q", tok)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// Source is the randomness a Generator draws from.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Generator is safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	length int
	src    Source
}

func NewGenerator(length int, src Source) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	if src == nil {
		src = globalSource{}
	}
	return &Generator{length: length, src: src}
}

// NewSeeded builds a deterministic generator, mostly for tests.
func NewSeeded(length int, seed uint64) *Generator {
	return NewGenerator(length, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Next returns a scramble that never turns the same face twice in a row
// and never stacks three turns on one axis (R L R).
func (g *Generator) Next() Scramble {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(Scramble, 0, g.length)
	for len(out) < g.length {
		f := faces[g.src.IntN(len(faces))]
		if !allowed(out, f) {
			continue
		}
		out = append(out, Move{Face: f, Turns: 1 + g.src.IntN(3)})
	}
	return out
}

func allowed(seq Scramble, f Face) bool {
	n := len(seq)
	if n == 0 {
		return true
	}
	last := seq[n-1].Face
	if last == f {
		return false
	}
	if n >= 2 {
		prev := seq[n-2].Face
		if last.axis() == f.axis() && prev.axis() == f.axis() {
			return false
		}
	}
	return true
}
