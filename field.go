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

// Package downscale redistributes gridded photochemical-model emissions
// from a coarse grid onto a finer grid that nests within it, using the
// spatial pattern of a fine-resolution reference field to decide how each
// coarse cell's total is allocated among the fine cells it contains. The
// total within each coarse cell is conserved. The package also provides
// the inverse operation, aggregating a fine field onto a coarser grid by
// summation.
package downscale

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
)

// Version gives the version number of this software.
const Version = "0.1.0"

// Names of the two spatial dimensions. They are always the innermost
// (last) two axes of a field's data array, y before x.
const (
	DimY = "y"
	DimX = "x"
)

// GridDef describes a regular Cartesian grid: Nx by Ny cells of size
// Dx by Dy, with the lower-left corner of the lower-left cell at
// (X0, Y0) in the coordinate system given by SR.
type GridDef struct {
	Name   string
	Nx, Ny int
	Dx, Dy float64
	X0, Y0 float64
	SR     *proj.SR
	Extent geom.Polygon
}

// NewGridRegular creates a new regular grid where all cells are the same
// size. sr may be nil if the coordinate system is unknown or irrelevant.
func NewGridRegular(name string, nx, ny int, dx, dy, x0, y0 float64, sr *proj.SR) (*GridDef, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("downscale: grid %s has invalid dimensions %d×%d", name, nx, ny)
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("downscale: grid %s has invalid cell size %g×%g", name, dx, dy)
	}
	grid := &GridDef{
		Name: name,
		Nx:   nx, Ny: ny,
		Dx: dx, Dy: dy,
		X0: x0, Y0: y0,
		SR: sr,
	}
	grid.Extent = geom.Polygon([]geom.Path{{{X: x0, Y: y0},
		{X: x0 + dx*float64(nx), Y: y0},
		{X: x0 + dx*float64(nx), Y: y0 + dy*float64(ny)},
		{X: x0, Y: y0 + dy*float64(ny)}, {X: x0, Y: y0}}})
	return grid, nil
}

// Cell returns the polygon of the cell in the given row and column,
// where row indexes the y dimension and col the x dimension.
func (grid *GridDef) Cell(row, col int) geom.Polygon {
	x := grid.X0 + float64(col)*grid.Dx
	y := grid.Y0 + float64(row)*grid.Dy
	return geom.Polygon([]geom.Path{{
		{X: x, Y: y}, {X: x + grid.Dx, Y: y},
		{X: x + grid.Dx, Y: y + grid.Dy}, {X: x, Y: y + grid.Dy}, {X: x, Y: y}}})
}

// Bounds returns the bounding box of the grid.
func (grid *GridDef) Bounds() *geom.Bounds {
	return grid.Extent.Bounds()
}

// sameGeometry reports whether grid and o have the same shape, cell size,
// and origin, with sizes and origins compared to within gridTolerance
// relative to the cell size.
func (grid *GridDef) sameGeometry(o *GridDef) bool {
	if grid.Nx != o.Nx || grid.Ny != o.Ny {
		return false
	}
	tolX := grid.Dx * gridTolerance
	tolY := grid.Dy * gridTolerance
	return closeTo(grid.Dx, o.Dx, tolX) && closeTo(grid.Dy, o.Dy, tolY) &&
		closeTo(grid.X0, o.X0, tolX) && closeTo(grid.Y0, o.Y0, tolY)
}

func closeTo(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// GriddedField is a gridded array of physical-quantity values. The last
// two axes of Data are the spatial dimensions (y, then x) and must match
// the geometry in Grid; any leading axes (for example time or vertical
// layer) are batch dimensions that all operations process independently
// and carry through unchanged. Dims names each axis of Data.
//
// Fields are not mutated after creation; every operation returns a new
// field.
type GriddedField struct {
	Data  *sparse.DenseArray
	Dims  []string
	Grid  *GridDef
	Units unit.Dimensions
}

// NewGriddedField creates a gridded field from data with the named
// dimensions on the given grid. The last two dimensions must be named
// "y" and "x" and their lengths must equal grid.Ny and grid.Nx.
func NewGriddedField(data *sparse.DenseArray, dims []string, grid *GridDef, units unit.Dimensions) (*GriddedField, error) {
	if data == nil || grid == nil {
		return nil, fmt.Errorf("downscale: nil data or grid")
	}
	if len(dims) != len(data.Shape) {
		return nil, unsupportedDimension(
			"downscale: %d dimension names for %d array axes", len(dims), len(data.Shape))
	}
	if len(dims) < 2 || dims[len(dims)-2] != DimY || dims[len(dims)-1] != DimX {
		return nil, unsupportedDimension(
			"downscale: innermost dimensions must be (%s, %s); got %v", DimY, DimX, dims)
	}
	ny := data.Shape[len(data.Shape)-2]
	nx := data.Shape[len(data.Shape)-1]
	if ny != grid.Ny || nx != grid.Nx {
		return nil, shapeMismatch(
			"downscale: array spatial shape %d×%d does not match grid %s (%d×%d)",
			ny, nx, grid.Name, grid.Ny, grid.Nx)
	}
	d := make([]string, len(dims))
	copy(d, dims)
	return &GriddedField{Data: data, Dims: d, Grid: grid, Units: units}, nil
}

// BatchDims returns the names of the non-spatial dimensions, outermost
// first. The returned slice is empty for a purely spatial field.
func (f *GriddedField) BatchDims() []string {
	return f.Dims[:len(f.Dims)-2]
}

// batchShape returns the lengths of the non-spatial dimensions.
func (f *GriddedField) batchShape() []int {
	return f.Data.Shape[:len(f.Data.Shape)-2]
}

// nSlices returns the number of independent spatial slices in the field:
// the product of the batch dimension lengths.
func (f *GriddedField) nSlices() int {
	n := 1
	for _, d := range f.batchShape() {
		n *= d
	}
	return n
}

// sliceSize returns the number of values in one spatial slice.
func (f *GriddedField) sliceSize() int {
	return f.Grid.Ny * f.Grid.Nx
}

// Total returns the sum of all values in the field together with its
// units, for example total emissions in a mass-per-time field.
func (f *GriddedField) Total() *unit.Unit {
	return unit.New(f.Data.Sum(), f.Units)
}

// sameBatchDims reports whether f and o have identical batch dimension
// names and lengths.
func (f *GriddedField) sameBatchDims(o *GriddedField) bool {
	fb, ob := f.BatchDims(), o.BatchDims()
	if len(fb) != len(ob) {
		return false
	}
	for i, d := range fb {
		if d != ob[i] {
			return false
		}
	}
	fs, os := f.batchShape(), o.batchShape()
	for i, n := range fs {
		if n != os[i] {
			return false
		}
	}
	return true
}
