/*
Copyright © 2025 the downscale authors.
This file is part of downscale.

downscale is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

downscale is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with downscale.  If not, see <http://www.gnu.org/licenses/>.
*/

package downscale

import (
	"testing"

	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
)

func TestNewGridRegular(t *testing.T) {
	grid, err := NewGridRegular("g", 4, 3, 1000, 2000, -4000, -3000, nil)
	if err != nil {
		t.Fatal(err)
	}
	b := grid.Bounds()
	if different(b.Min.X, -4000, testTolerance) || different(b.Min.Y, -3000, testTolerance) ||
		different(b.Max.X, 0, testTolerance) || different(b.Max.Y, 3000, testTolerance) {
		t.Errorf("bounds: got (%g,%g)–(%g,%g)", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
	}

	cell := grid.Cell(1, 2)
	cb := cell.Bounds()
	if different(cb.Min.X, -2000, testTolerance) || different(cb.Min.Y, -1000, testTolerance) {
		t.Errorf("cell (1,2) corner: got (%g,%g), want (-2000,-1000)", cb.Min.X, cb.Min.Y)
	}

	if _, err := NewGridRegular("bad", 0, 3, 1000, 1000, 0, 0, nil); err == nil {
		t.Error("zero dimension should fail")
	}
	if _, err := NewGridRegular("bad", 4, 3, -1000, 1000, 0, 0, nil); err == nil {
		t.Error("negative cell size should fail")
	}
}

func TestNewGriddedField(t *testing.T) {
	grid, err := NewGridRegular("g", 3, 2, 1000, 1000, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	f, err := NewGriddedField(sparse.ZerosDense(4, 2, 3), []string{"time", DimY, DimX}, grid, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n := f.nSlices(); n != 4 {
		t.Errorf("nSlices: got %d, want 4", n)
	}
	if got := f.BatchDims(); len(got) != 1 || got[0] != "time" {
		t.Errorf("BatchDims: got %v, want [time]", got)
	}

	// Wrong dimension names.
	_, err = NewGriddedField(sparse.ZerosDense(2, 3), []string{DimX, DimY}, grid, nil)
	if _, ok := err.(*UnsupportedDimensionError); !ok {
		t.Errorf("swapped dims: got %v, want UnsupportedDimensionError", err)
	}
	// Name count disagrees with array rank.
	_, err = NewGriddedField(sparse.ZerosDense(4, 2, 3), []string{DimY, DimX}, grid, nil)
	if _, ok := err.(*UnsupportedDimensionError); !ok {
		t.Errorf("rank mismatch: got %v, want UnsupportedDimensionError", err)
	}
	// Spatial shape disagrees with grid.
	_, err = NewGriddedField(sparse.ZerosDense(3, 2), []string{DimY, DimX}, grid, nil)
	if _, ok := err.(*ShapeMismatchError); !ok {
		t.Errorf("transposed shape: got %v, want ShapeMismatchError", err)
	}
}

func TestFieldTotal(t *testing.T) {
	grid, err := NewGridRegular("g", 2, 1, 1000, 1000, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	data := sparse.ZerosDense(1, 2)
	data.Elements[0], data.Elements[1] = 1.5, 2.5
	u := unit.Dimensions{unit.MassDim: 1, unit.TimeDim: -1}
	f, err := NewGriddedField(data, []string{DimY, DimX}, grid, u)
	if err != nil {
		t.Fatal(err)
	}
	total := f.Total()
	if different(total.Value(), 4, testTolerance) {
		t.Errorf("total: got %g, want 4", total.Value())
	}
	if !total.Dimensions().Matches(u) {
		t.Errorf("total dimensions: got %v, want %v", total.Dimensions(), u)
	}
}
