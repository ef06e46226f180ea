package grid

import "testing"

func TestNeighborsAreDistanceOne(t *testing.T) {
	c := Coord{Q: 3, R: -2}
	for _, n := range c.Neighbors() {
		if Distance(c, n) != 1 {
			t.Errorf("neighbor %v of %v has distance %d, want 1", n, c, Distance(c, n))
		}
		if n == c {
			t.Errorf("coordinate %v is listed as its own neighbor", c)
		}
	}
}

func TestNeighborsAreSix(t *testing.T) {
	seen := map[Coord]bool{}
	for _, n := range (Coord{}).Neighbors() {
		if seen[n] {
			t.Errorf("duplicate neighbor %v", n)
		}
		seen[n] = true
	}
	if len(seen) != 6 {
		t.Fatalf("expected 6 distinct neighbors, got %d", len(seen))
	}
}

func TestAdjacentRejectsNonNeighbors(t *testing.T) {
	a := Coord{Q: 0, R: 0}
	b := Coord{Q: 2, R: 0}
	if Adjacent(a, b) {
		t.Errorf("expected %v and %v to not be adjacent", a, b)
	}
}

func TestLessIsLexicographic(t *testing.T) {
	if !Less(Coord{Q: 0, R: 5}, Coord{Q: 1, R: -5}) {
		t.Error("expected (0,5) < (1,-5)")
	}
	if !Less(Coord{Q: 2, R: 0}, Coord{Q: 2, R: 1}) {
		t.Error("expected (2,0) < (2,1)")
	}
	if Less(Coord{Q: 2, R: 1}, Coord{Q: 2, R: 1}) {
		t.Error("a coordinate must not be less than itself")
	}
}
