// Package life implements the multi-player Life simulation kernel: a
// toroidal grid, bit-packed per-cell neighbor counters, the deterministic
// tie-break birth/survival rule, and the enemy-proximity placement check.
package life

// Cell is a coordinate pair on the toroidal grid. Coordinates are only
// ever reduced modulo the world dimensions via Wrap; raw Cell values may
// be negative or out of range before wrapping.
type Cell struct {
	X, Y int32
}

// Add returns the component-wise sum of c and o.
func (c Cell) Add(o Cell) Cell {
	return Cell{X: c.X + o.X, Y: c.Y + o.Y}
}

func floorMod(a, n int32) int32 {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

// Wrap reduces c modulo (w, h) with a mathematical, non-negative
// remainder — the only coordinate reduction used anywhere in the kernel.
func (c Cell) Wrap(w, h int32) Cell {
	return Cell{X: floorMod(c.X, w), Y: floorMod(c.Y, h)}
}

// Matrix3 is a 3x3 integer affine transform, row-major.
type Matrix3 [3][3]int32

// Apply maps a pattern offset through the affine transform: the result is
// the first two components of M * (off.X, off.Y, 1).
func (m Matrix3) Apply(off Cell) Cell {
	return Cell{
		X: m[0][0]*off.X + m[0][1]*off.Y + m[0][2],
		Y: m[1][0]*off.X + m[1][1]*off.Y + m[1][2],
	}
}

// Unit is a living cell owned by a player. Two units compare equal iff
// their positions are equal — ownership never factors into identity.
type Unit struct {
	Player int8
	Pos    Cell
}

// World is a toroidal grid holding at most one unit per cell. It is
// replaced wholesale by Step; there is no in-place mutation visible
// outside this package.
type World struct {
	W, H  int32
	cells map[Cell]int8
}

// NewWorld creates an empty world with the given torus dimensions.
func NewWorld(w, h int32) *World {
	return &World{W: w, H: h, cells: make(map[Cell]int8)}
}

// Wrap reduces c into this world's coordinate range.
func (wd *World) Wrap(c Cell) Cell {
	return c.Wrap(wd.W, wd.H)
}

// Owner reports the player occupying c, if any.
func (wd *World) Owner(c Cell) (int8, bool) {
	p, ok := wd.cells[wd.Wrap(c)]
	return p, ok
}

// Emplace inserts a unit for player at c if the cell is empty. It reports
// whether the insertion happened: first-writer wins, a pre-occupied cell
// is left untouched.
func (wd *World) Emplace(player int8, c Cell) bool {
	c = wd.Wrap(c)
	if _, exists := wd.cells[c]; exists {
		return false
	}
	wd.cells[c] = player
	return true
}

// CanInsert reports whether a unit for player may be placed at c: no cell
// within the (2d+1)x(2d+1) Chebyshev square around c, torus-wrapped, may
// already hold a unit belonging to a different player.
func (wd *World) CanInsert(player int8, c Cell, d int32) bool {
	for dy := -d; dy <= d; dy++ {
		for dx := -d; dx <= d; dx++ {
			other := wd.Wrap(c.Add(Cell{X: dx, Y: dy}))
			if owner, ok := wd.cells[other]; ok && owner != player {
				return false
			}
		}
	}
	return true
}

// Units returns every living unit. Order is unspecified.
func (wd *World) Units() []Unit {
	units := make([]Unit, 0, len(wd.cells))
	for c, p := range wd.cells {
		units = append(units, Unit{Player: p, Pos: c})
	}
	return units
}

// Len returns the number of living units.
func (wd *World) Len() int {
	return len(wd.cells)
}

// Checksum accumulates a commutative, wrapping u64 aggregate of every
// unit's position and owning player. It is not a cryptographic hash — it
// only needs to catch divergence between peers whose simulations should
// be bit-identical.
func (wd *World) Checksum() uint64 {
	var sum uint64
	for c, p := range wd.cells {
		weight := uint64(p) + 1
		sum += uint64(c.X)*uint64(wd.H) + weight + uint64(c.Y)*weight
	}
	return sum
}

var neighborOffsets = [9]Cell{
	{X: -1, Y: -1}, {X: 0, Y: -1}, {X: 1, Y: -1},
	{X: -1, Y: 0}, {X: 0, Y: 0}, {X: 1, Y: 0},
	{X: -1, Y: 1}, {X: 0, Y: 1}, {X: 1, Y: 1},
}

// Step runs one generation of the kernel and returns the replacement
// world; wd itself is left untouched.
//
// Each candidate cell accumulates a transient u32 mask: bits [4i, 4i+2]
// hold player i's 3-bit neighbor count (incremented with an intentional
// mod-8 wrap, never saturated: only the counts 2 and 3 are ever tested,
// so a wrapped count of 8 reads as 0 and places nothing), bit 4i+3 is
// player i's self-bit. A
// strict maximum neighbor count across players is required to place a
// unit; any tie among the leaders drops the candidate entirely.
func (wd *World) Step() *World {
	masks := make(map[Cell]uint32, wd.Len()*9)
	for c, p := range wd.cells {
		shift := uint(p) * 4
		for _, off := range neighborOffsets {
			c2 := wd.Wrap(c.Add(off))
			mask := masks[c2]
			if off.X == 0 && off.Y == 0 {
				mask |= 1 << (shift + 3)
			} else {
				n := (mask >> shift) & 7
				n = (n + 1) & 7
				mask = (mask &^ (uint32(7) << shift)) | (n << shift)
			}
			masks[c2] = mask
		}
	}

	next := NewWorld(wd.W, wd.H)
	for c, mask := range masks {
		if mask == 0 {
			continue
		}
		bestN, bestPlayer, ties := -1, -1, 0
		for i := 0; i < 8; i++ {
			n := int((mask >> uint(i*4)) & 7)
			switch {
			case n > bestN:
				bestN, bestPlayer, ties = n, i, 1
			case n == bestN:
				ties++
			}
		}
		if ties != 1 {
			continue
		}
		self := (mask >> uint(bestPlayer*4+3)) & 1
		if bestN == 3 || (bestN == 2 && self == 1) {
			next.cells[c] = int8(bestPlayer)
		}
	}
	return next
}
