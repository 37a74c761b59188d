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
	"math"

	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

// gridTolerance is the relative tolerance used when comparing grid
// geometries: cell-size ratios, origin alignment, and extents.
const gridTolerance = 1.0e-6

// srULP is the floating-point units-in-the-last-place tolerance used
// when comparing spatial references.
const srULP = 10

// A RefinementRelation relates each cell of a coarse grid to the R×R
// block of fine-grid cells it spatially contains. The relation is valid
// only for the grid geometries it was built from; operations that are
// given a field on a different geometry fail with ShapeMismatchError.
type RefinementRelation struct {
	// R is the refinement factor: the ratio of the coarse cell edge
	// length to the fine cell edge length.
	R int

	// Fine and Coarse are the grid geometries the relation was built from.
	Fine, Coarse *GridDef

	// offX and offY give the fine-cell column and row at which the
	// coarse grid's origin lies within the fine grid.
	offX, offY int
}

// BuildCorrespondence establishes and validates the spatial nesting
// between a fine grid and a coarse grid related by integer refinement
// factor r. It requires that the coarse cell size be r times the fine
// cell size, that the coarse cell boundaries land exactly on fine cell
// boundaries, and that the fine grid covers the full coarse grid extent.
// The two grids must share a spatial reference; reproject one of them
// first if they do not (see ReprojectIfNeeded).
func BuildCorrespondence(fine, coarse *GridDef, r int) (*RefinementRelation, error) {
	if fine == nil || coarse == nil {
		return nil, gridMismatch("downscale: nil grid definition")
	}
	if r < 1 {
		return nil, gridMismatch("downscale: refinement factor %d is less than 1", r)
	}
	if fine.SR != nil && coarse.SR != nil && !fine.SR.Equal(coarse.SR, srULP) {
		return nil, projectionError(
			"downscale: grids %s and %s have different spatial references; reproject before building the correspondence",
			fine.Name, coarse.Name)
	}
	// The declared factor must match the actual cell-size ratio on
	// both axes.
	if rx := coarse.Dx / fine.Dx; math.Abs(rx-float64(r)) > float64(r)*gridTolerance {
		return nil, gridMismatch(
			"downscale: x cell-size ratio %g between grids %s and %s does not match refinement factor %d",
			rx, coarse.Name, fine.Name, r)
	}
	if ry := coarse.Dy / fine.Dy; math.Abs(ry-float64(r)) > float64(r)*gridTolerance {
		return nil, gridMismatch(
			"downscale: y cell-size ratio %g between grids %s and %s does not match refinement factor %d",
			ry, coarse.Name, fine.Name, r)
	}
	// The fine grid must cover the coarse extent.
	fb, cb := fine.Bounds(), coarse.Bounds()
	tolX, tolY := fine.Dx*gridTolerance, fine.Dy*gridTolerance
	if cb.Min.X < fb.Min.X-tolX || cb.Min.Y < fb.Min.Y-tolY ||
		cb.Max.X > fb.Max.X+tolX || cb.Max.Y > fb.Max.Y+tolY {
		return nil, extentMismatch(
			"downscale: fine grid %s (%g,%g)–(%g,%g) does not cover coarse grid %s (%g,%g)–(%g,%g)",
			fine.Name, fb.Min.X, fb.Min.Y, fb.Max.X, fb.Max.Y,
			coarse.Name, cb.Min.X, cb.Min.Y, cb.Max.X, cb.Max.Y)
	}
	// The coarse origin must land on a fine cell boundary so that cells
	// nest with no fractional overlap.
	offX, err := cellOffset(coarse.X0, fine.X0, fine.Dx, "x", fine.Name, coarse.Name)
	if err != nil {
		return nil, err
	}
	offY, err := cellOffset(coarse.Y0, fine.Y0, fine.Dy, "y", fine.Name, coarse.Name)
	if err != nil {
		return nil, err
	}
	if offX+coarse.Nx*r > fine.Nx || offY+coarse.Ny*r > fine.Ny {
		return nil, extentMismatch(
			"downscale: coarse grid %s extends beyond fine grid %s at offset (%d,%d)",
			coarse.Name, fine.Name, offX, offY)
	}
	return &RefinementRelation{R: r, Fine: fine, Coarse: coarse, offX: offX, offY: offY}, nil
}

// cellOffset converts the distance between two grid origins into a whole
// number of fine cells, failing if the distance is not an integer
// multiple of the fine cell size.
func cellOffset(coarse0, fine0, d float64, axis, fineName, coarseName string) (int, error) {
	off := (coarse0 - fine0) / d
	rounded := math.Round(off)
	if math.Abs(off-rounded) > gridTolerance {
		return 0, gridMismatch(
			"downscale: %s origin of coarse grid %s is offset %g fine cells into grid %s; cell boundaries must nest exactly",
			axis, coarseName, off, fineName)
	}
	return int(rounded), nil
}

// FineCells returns the (row, col) indices of the fine-grid cells
// contained in the coarse cell at the given row and column, ordered
// row-major within the block.
func (rel *RefinementRelation) FineCells(row, col int) [][2]int {
	cells := make([][2]int, 0, rel.R*rel.R)
	for j := 0; j < rel.R; j++ {
		for i := 0; i < rel.R; i++ {
			cells = append(cells, [2]int{rel.offY + row*rel.R + j, rel.offX + col*rel.R + i})
		}
	}
	return cells
}

// CoarseCell returns the row and column of the coarse cell that contains
// the fine cell at the given row and column. ok is false if the fine
// cell lies outside the coarse grid's extent.
func (rel *RefinementRelation) CoarseCell(row, col int) (crow, ccol int, ok bool) {
	crow = (row - rel.offY) / rel.R
	ccol = (col - rel.offX) / rel.R
	if row < rel.offY || col < rel.offX ||
		crow >= rel.Coarse.Ny || ccol >= rel.Coarse.Nx {
		return 0, 0, false
	}
	return crow, ccol, true
}

// ReprojectIfNeeded returns field expressed on target's coordinate
// system. If the field's spatial reference already equals target, the
// field itself is returned unchanged. If the two projections differ only
// in their false easting and northing—the common case for nested
// photochemical-model domains—the grid origin is shifted and no values
// change, so totals are conserved exactly. Otherwise the field is
// resampled onto a same-shape grid on the target projection using
// nearest neighbors, with cells beyond the source domain filled from the
// nearest edge cell.
func ReprojectIfNeeded(field *GriddedField, target *proj.SR) (*GriddedField, error) {
	if field == nil || field.Grid == nil {
		return nil, projectionError("downscale: nil field")
	}
	if target == nil {
		return nil, projectionError("downscale: nil target projection")
	}
	src := field.Grid.SR
	if src == nil {
		return nil, projectionError("downscale: field on grid %s has no spatial reference", field.Grid.Name)
	}
	if src.Equal(target, srULP) {
		return field, nil
	}
	if offsetOnly(src, target) {
		grid, err := NewGridRegular(field.Grid.Name,
			field.Grid.Nx, field.Grid.Ny, field.Grid.Dx, field.Grid.Dy,
			field.Grid.X0-src.X0+target.X0, field.Grid.Y0-src.Y0+target.Y0,
			target)
		if err != nil {
			return nil, err
		}
		return NewGriddedField(field.Data, field.Dims, grid, field.Units)
	}
	return resampleNearest(field, target)
}

// offsetOnly reports whether two spatial references differ only in their
// false easting and false northing.
func offsetOnly(a, b *proj.SR) bool {
	aa, bb := *a, *b
	aa.X0, aa.Y0 = 0, 0
	bb.X0, bb.Y0 = 0, 0
	return aa.Equal(&bb, srULP)
}

// resampleNearest builds a same-shape grid on the target projection
// anchored at the transformed source origin, and fills it by inverse
// transforming each cell center back to the source grid and copying the
// nearest source value. Cell centers falling outside the source domain
// take the value of the nearest source cell.
func resampleNearest(field *GriddedField, target *proj.SR) (*GriddedField, error) {
	src := field.Grid
	fwd, err := src.SR.NewTransform(target)
	if err != nil {
		return nil, projectionError("downscale: no transform from grid %s to target projection: %v", src.Name, err)
	}
	inv, err := target.NewTransform(src.SR)
	if err != nil {
		return nil, projectionError("downscale: no inverse transform to grid %s: %v", src.Name, err)
	}
	x0, y0, err := fwd(src.X0, src.Y0)
	if err != nil {
		return nil, projectionError("downscale: transforming origin of grid %s: %v", src.Name, err)
	}
	grid, err := NewGridRegular(src.Name, src.Nx, src.Ny, src.Dx, src.Dy, x0, y0, target)
	if err != nil {
		return nil, err
	}

	out := sparse.ZerosDense(field.Data.Shape...)
	n := field.nSlices()
	size := field.sliceSize()
	for row := 0; row < grid.Ny; row++ {
		for col := 0; col < grid.Nx; col++ {
			cx := grid.X0 + (float64(col)+0.5)*grid.Dx
			cy := grid.Y0 + (float64(row)+0.5)*grid.Dy
			sx, sy, err := inv(cx, cy)
			if err != nil {
				return nil, projectionError(
					"downscale: inverse transforming cell (%d,%d) of grid %s: %v", row, col, grid.Name, err)
			}
			si := clamp(int(math.Floor((sx-src.X0)/src.Dx)), 0, src.Nx-1)
			sj := clamp(int(math.Floor((sy-src.Y0)/src.Dy)), 0, src.Ny-1)
			for s := 0; s < n; s++ {
				out.Elements[s*size+row*grid.Nx+col] = field.Data.Elements[s*size+sj*src.Nx+si]
			}
		}
	}
	return NewGriddedField(out, field.Dims, grid, field.Units)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
