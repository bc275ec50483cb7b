package scramble

import "testing"

func TestGeneratorRules(t *testing.T) {
	g := NewSeeded(25, 42)
	for round := 0; round < 200; round++ {
		s := g.Next()
		if len(s) != 25 {
			t.Fatalf("expected 25 moves, got %d", len(s))
		}
		for i, m := range s {
			if m.Turns < 1 || m.Turns > 3 {
				t.Fatalf("bad turn count in %s", s)
			}
			if i > 0 && s[i-1].Face == m.Face {
				t.Fatalf("same face twice in a row: %s", s)
			}
			if i > 1 && s[i-2].Face.axis() == m.Face.axis() && s[i-1].Face.axis() == m.Face.axis() {
				t.Fatalf("three turns on one axis: %s", s)
			}
		}
	}
}

func TestSeededIsDeterministic(t *testing.T) {
	a := NewSeeded(20, 7).Next().String()
	b := NewSeeded(20, 7).Next().String()
	if a != b {
		t.Fatalf("same seed should give same scramble: %q vs %q", a, b)
	}
}

func TestDefaultLength(t *testing.T) {
	if got := len(NewGenerator(0, nil).Next()); got != DefaultLength {
		t.Fatalf("expected default length %d, got %d", DefaultLength, got)
	}
}

func TestParseRoundTrip(t *testing.T) {
	s, err := Parse("R U2 F' D L2 B")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := s.String(); got != "R U2 F' D L2 B" {
		t.Fatalf("unexpected string %q", got)
	}
	for _, bad := range []string{"X", "R3", "Rw2'"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestCubeInversesAndOrder(t *testing.T) {
	c := NewCube()
	if !c.Solved() {
		t.Fatalf("new cube should be solved")
	}
	c.Turn(Move{Face: R, Turns: 1})
	if c.Solved() {
		t.Fatalf("R should scramble the cube")
	}
	c.Turn(Move{Face: R, Turns: 3})
	if !c.Solved() {
		t.Fatalf("R R' should cancel")
	}

	sexy, _ := Parse("R U R' U'")
	for i := 0; i < 6; i++ {
		c.Apply(sexy)
	}
	if !c.Solved() {
		t.Fatalf("(R U R' U') x6 should return to solved")
	}

	s := NewSeeded(20, 99).Next()
	c.Apply(s)
	inverse := make(Scramble, len(s))
	for i, m := range s {
		inverse[len(s)-1-i] = Move{Face: m.Face, Turns: 4 - m.Turns}
	}
	c.Apply(inverse)
	if !c.Solved() {
		t.Fatalf("scramble followed by its inverse should be solved")
	}
}

func TestCubeOrientation(t *testing.T) {
	c := NewCube()
	c.Turn(Move{Face: R, Turns: 1})
	up := c.Face(U)
	for _, i := range []int{2, 5, 8} {
		if up[i] != F {
			t.Fatalf("after R the right column of U should come from F, got %c at %d", up[i], i)
		}
	}

	c = NewCube()
	c.Turn(Move{Face: U, Turns: 1})
	front := c.Face(F)
	for i := 0; i < 3; i++ {
		if front[i] != R {
			t.Fatalf("after U the top row of F should come from R, got %c", front[i])
		}
	}
	if front[4] != F {
		t.Fatalf("centers never move")
	}

	counts := map[Face]int{}
	for _, f := range c.Facelets() {
		counts[f]++
	}
	for _, f := range NetOrder {
		if counts[f] != 9 {
			t.Fatalf("expected nine %c stickers, got %d", f, counts[f])
		}
	}
}
