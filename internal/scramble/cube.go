package scramble

// vec is an integer 3-vector: x toward R, y toward U, z toward F.
type vec [3]int

func (a vec) dot(b vec) int { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func (a vec) cross(b vec) vec {
	return vec{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func (a vec) scale(k int) vec { return vec{a[0] * k, a[1] * k, a[2] * k} }

func (a vec) add(b vec) vec { return vec{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }

// clockwise rotates v a quarter turn clockwise as seen from the tip of n.
func clockwise(v, n vec) vec {
	return n.cross(v).scale(-1).add(n.scale(n.dot(v)))
}

// NetOrder is the face order of Facelets.
var NetOrder = [6]Face{U, R, F, D, L, B}

var normals = map[Face]vec{
	U: {0, 1, 0},
	D: {0, -1, 0},
	R: {1, 0, 0},
	L: {-1, 0, 0},
	F: {0, 0, 1},
	B: {0, 0, -1},
}

type sticker struct {
	pos    vec
	normal vec
	color  Face
}

// Cube is a 3x3 facelet model; colors are named by the face they start on.
type Cube struct {
	stickers []sticker
}

// NewCube returns a solved cube.
func NewCube() *Cube {
	c := &Cube{stickers: make([]sticker, 0, 54)}
	for _, f := range NetOrder {
		n := normals[f]
		for x := -1; x <= 1; x++ {
			for y := -1; y <= 1; y++ {
				for z := -1; z <= 1; z++ {
					p := vec{x, y, z}
					if p.dot(n) != 1 {
						continue
					}
					c.stickers = append(c.stickers, sticker{pos: p, normal: n, color: f})
				}
			}
		}
	}
	return c
}

// Apply turns the cube through every move in s.
func (c *Cube) Apply(s Scramble) *Cube {
	for _, m := range s {
		c.Turn(m)
	}
	return c
}

func (c *Cube) Turn(m Move) {
	n := normals[m.Face]
	turns := ((m.Turns % 4) + 4) % 4
	for i := range c.stickers {
		st := &c.stickers[i]
		if st.pos.dot(n) != 1 {
			continue
		}
		for k := 0; k < turns; k++ {
			st.pos = clockwise(st.pos, n)
			st.normal = clockwise(st.normal, n)
		}
	}
}

// Facelets lists the 54 sticker colors face by face in NetOrder, each face
// row-major as seen in the unfolded net (U above F, D below F).
func (c *Cube) Facelets() [54]Face {
	var out [54]Face
	for _, st := range c.stickers {
		face, row, col := placement(st.pos, st.normal)
		out[faceIndex(face)*9+row*3+col] = st.color
	}
	return out
}

// Face returns the nine stickers of one face.
func (c *Cube) Face(f Face) [9]Face {
	all := c.Facelets()
	var out [9]Face
	copy(out[:], all[faceIndex(f)*9:faceIndex(f)*9+9])
	return out
}

func (c *Cube) Solved() bool {
	all := c.Facelets()
	for i := 0; i < 54; i++ {
		if all[i] != all[(i/9)*9+4] {
			return false
		}
	}
	return true
}

func faceIndex(f Face) int {
	for i, nf := range NetOrder {
		if nf == f {
			return i
		}
	}
	return 0
}

func placement(p, n vec) (Face, int, int) {
	x, y, z := p[0], p[1], p[2]
	switch n {
	case normals[U]:
		return U, z + 1, x + 1
	case normals[D]:
		return D, 1 - z, x + 1
	case normals[F]:
		return F, 1 - y, x + 1
	case normals[B]:
		return B, 1 - y, 1 - x
	case normals[R]:
		return R, 1 - y, 1 - z
	default:
		return L, 1 - y, z + 1
	}
}
