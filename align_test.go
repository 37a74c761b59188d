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

	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

func TestBuildCorrespondence(t *testing.T) {
	coarse, err := NewGridRegular("coarse", 3, 2, 12000, 12000, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	fine, err := NewGridRegular("fine", 9, 6, 4000, 4000, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	rel, err := BuildCorrespondence(fine, coarse, 3)
	if err != nil {
		t.Fatal(err)
	}

	cells := rel.FineCells(1, 2)
	if len(cells) != 9 {
		t.Fatalf("got %d cells, want 9", len(cells))
	}
	want := [][2]int{
		{3, 6}, {3, 7}, {3, 8},
		{4, 6}, {4, 7}, {4, 8},
		{5, 6}, {5, 7}, {5, 8},
	}
	for i, c := range cells {
		if c != want[i] {
			t.Errorf("cell %d: got %v, want %v", i, c, want[i])
		}
	}

	for _, c := range cells {
		crow, ccol, ok := rel.CoarseCell(c[0], c[1])
		if !ok || crow != 1 || ccol != 2 {
			t.Errorf("inverse of %v: got (%d,%d,%v), want (1,2,true)", c, crow, ccol, ok)
		}
	}
}

// TestBuildCorrespondenceOversizeFine checks a fine grid larger than the
// coarse extent: the correspondence uses the offset sub-block, and fine
// cells outside the coarse extent have no owner.
func TestBuildCorrespondenceOversizeFine(t *testing.T) {
	coarse, err := NewGridRegular("coarse", 2, 2, 10, 10, 20, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	fine, err := NewGridRegular("fine", 10, 10, 5, 5, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	rel, err := BuildCorrespondence(fine, coarse, 2)
	if err != nil {
		t.Fatal(err)
	}

	cells := rel.FineCells(0, 0)
	if cells[0] != [2]int{2, 4} {
		t.Errorf("first cell of coarse (0,0): got %v, want {2 4}", cells[0])
	}
	if _, _, ok := rel.CoarseCell(0, 0); ok {
		t.Error("fine cell (0,0) is outside the coarse extent but has an owner")
	}
	if crow, ccol, ok := rel.CoarseCell(3, 7); !ok || crow != 0 || ccol != 1 {
		t.Errorf("owner of fine cell (3,7): got (%d,%d,%v), want (0,1,true)", crow, ccol, ok)
	}
	if _, _, ok := rel.CoarseCell(2, 8); ok {
		t.Error("fine cell (2,8) is beyond the coarse extent but has an owner")
	}
}

func TestBuildCorrespondenceErrors(t *testing.T) {
	coarse, err := NewGridRegular("coarse", 2, 2, 12000, 12000, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	fine, err := NewGridRegular("fine", 6, 6, 4000, 4000, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Factor inconsistent with the cell-size ratio.
	if _, err := BuildCorrespondence(fine, coarse, 4); err == nil {
		t.Error("factor 4 should fail")
	} else if _, ok := err.(*GridMismatchError); !ok {
		t.Errorf("factor 4: got %T, want GridMismatchError", err)
	}
	if _, err := BuildCorrespondence(fine, coarse, 0); err == nil {
		t.Error("factor 0 should fail")
	}

	// Fine grid not covering the coarse extent.
	small, err := NewGridRegular("small", 3, 6, 4000, 4000, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := BuildCorrespondence(small, coarse, 3); err == nil {
		t.Error("undersized fine grid should fail")
	} else if _, ok := err.(*ExtentMismatchError); !ok {
		t.Errorf("undersized fine grid: got %T, want ExtentMismatchError", err)
	}

	// Coarse origin not on a fine cell boundary.
	shifted, err := NewGridRegular("shifted", 8, 8, 4000, 4000, -1500, -1500, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := BuildCorrespondence(shifted, coarse, 3); err == nil {
		t.Error("misaligned origin should fail")
	} else if _, ok := err.(*GridMismatchError); !ok {
		t.Errorf("misaligned origin: got %T, want GridMismatchError", err)
	}
}

func TestBuildCorrespondenceProjectionMismatch(t *testing.T) {
	lcc, err := proj.Parse("+proj=lcc +lat_1=33.000000 +lat_2=45.000000 +lat_0=40.000000 +lon_0=-97.000000 +x_0=0 +y_0=0 +a=6370997.000000 +b=6370997.000000 +to_meter=1")
	if err != nil {
		t.Fatal(err)
	}
	longlat, err := proj.Parse("+proj=longlat")
	if err != nil {
		t.Fatal(err)
	}
	coarse, err := NewGridRegular("coarse", 2, 2, 12000, 12000, 0, 0, lcc)
	if err != nil {
		t.Fatal(err)
	}
	fine, err := NewGridRegular("fine", 6, 6, 4000, 4000, 0, 0, longlat)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := BuildCorrespondence(fine, coarse, 3); err == nil {
		t.Error("differing projections should fail")
	} else if _, ok := err.(*ProjectionError); !ok {
		t.Errorf("got %T, want ProjectionError", err)
	}
}

// TestReprojectIfNeededIdentity checks that a field already on the
// target projection is returned unchanged.
func TestReprojectIfNeededIdentity(t *testing.T) {
	sr, err := proj.Parse("+proj=lcc +lat_1=33.000000 +lat_2=45.000000 +lat_0=40.000000 +lon_0=-97.000000 +x_0=0 +y_0=0 +a=6370997.000000 +b=6370997.000000 +to_meter=1")
	if err != nil {
		t.Fatal(err)
	}
	grid, err := NewGridRegular("g", 2, 2, 1000, 1000, 0, 0, sr)
	if err != nil {
		t.Fatal(err)
	}
	f := spatialField(t, grid, []float64{1, 2, 3, 4})
	out, err := ReprojectIfNeeded(f, sr)
	if err != nil {
		t.Fatal(err)
	}
	if out != f {
		t.Error("identity reprojection should return the same field")
	}
}

// TestReprojectIfNeededOffset checks the false-easting/northing shift:
// values are untouched and the origin moves by the offset difference.
func TestReprojectIfNeededOffset(t *testing.T) {
	src, err := proj.Parse("+proj=lcc +lat_1=33.000000 +lat_2=45.000000 +lat_0=40.000000 +lon_0=-97.000000 +x_0=1000000 +y_0=500000 +a=6370997.000000 +b=6370997.000000 +to_meter=1")
	if err != nil {
		t.Fatal(err)
	}
	dst, err := proj.Parse("+proj=lcc +lat_1=33.000000 +lat_2=45.000000 +lat_0=40.000000 +lon_0=-97.000000 +x_0=0 +y_0=0 +a=6370997.000000 +b=6370997.000000 +to_meter=1")
	if err != nil {
		t.Fatal(err)
	}
	grid, err := NewGridRegular("g", 2, 2, 1000, 1000, 0, 0, src)
	if err != nil {
		t.Fatal(err)
	}
	f := spatialField(t, grid, []float64{1, 2, 3, 4})

	out, err := ReprojectIfNeeded(f, dst)
	if err != nil {
		t.Fatal(err)
	}
	if different(out.Grid.X0, -1000000, testTolerance) || different(out.Grid.Y0, -500000, testTolerance) {
		t.Errorf("shifted origin: got (%g,%g), want (-1000000,-500000)", out.Grid.X0, out.Grid.Y0)
	}
	for i, v := range out.Data.Elements {
		if different(v, f.Data.Elements[i], testTolerance) {
			t.Errorf("element %d changed: got %g, want %g", i, v, f.Data.Elements[i])
		}
	}
	if different(out.Total().Value(), f.Total().Value(), testTolerance) {
		t.Errorf("total changed: got %g, want %g", out.Total().Value(), f.Total().Value())
	}
}

func TestReprojectIfNeededErrors(t *testing.T) {
	grid, err := NewGridRegular("g", 2, 2, 1000, 1000, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	data := sparse.ZerosDense(2, 2)
	f, err := NewGriddedField(data, []string{DimY, DimX}, grid, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ReprojectIfNeeded(f, nil); err == nil {
		t.Error("nil target should fail")
	} else if _, ok := err.(*ProjectionError); !ok {
		t.Errorf("nil target: got %T, want ProjectionError", err)
	}

	longlat, err := proj.Parse("+proj=longlat")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ReprojectIfNeeded(f, longlat); err == nil {
		t.Error("source without spatial reference should fail")
	} else if _, ok := err.(*ProjectionError); !ok {
		t.Errorf("no source SR: got %T, want ProjectionError", err)
	}
}
