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
	"runtime"
	"sync"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Downscale redistributes the values of coarseField onto the fine grid
// described by rel, using fineRef's spatial pattern to decide how each
// coarse cell's value is split among the fine cells it contains. Only
// fineRef's relative magnitudes matter; its absolute values and units do
// not. The output is on fineRef's grid and carries coarseField's units,
// and for every coarse cell the sum of the output values over the cells
// it contains equals the coarse value.
//
// Where fineRef sums to zero within a coarse cell (or is NaN
// throughout), the coarse value is spread uniformly over the block
// rather than lost. NaN reference values are treated as zero.
//
// Batch (non-spatial) dimensions of the two fields must match in name
// and length; alternatively fineRef may be purely spatial, in which case
// its pattern is reused for every slice of coarseField. Each slice is
// computed independently, in parallel.
func Downscale(fineRef, coarseField *GriddedField, rel *RefinementRelation) (*GriddedField, error) {
	if rel == nil {
		return nil, shapeMismatch("downscale: nil refinement relation")
	}
	if fineRef == nil || coarseField == nil {
		return nil, shapeMismatch("downscale: nil input field")
	}
	if !fineRef.Grid.sameGeometry(rel.Fine) {
		return nil, shapeMismatch(
			"downscale: reference field grid %s does not match relation fine grid %s",
			fineRef.Grid.Name, rel.Fine.Name)
	}
	if !coarseField.Grid.sameGeometry(rel.Coarse) {
		return nil, shapeMismatch(
			"downscale: coarse field grid %s does not match relation coarse grid %s",
			coarseField.Grid.Name, rel.Coarse.Name)
	}
	broadcastRef := len(fineRef.BatchDims()) == 0
	if !broadcastRef && !fineRef.sameBatchDims(coarseField) {
		return nil, unsupportedDimension(
			"downscale: reference dimensions %v cannot be aligned with coarse dimensions %v",
			fineRef.Dims, coarseField.Dims)
	}

	outShape := append(append([]int{}, coarseField.batchShape()...), rel.Fine.Ny, rel.Fine.Nx)
	out := sparse.ZerosDense(outShape...)
	outDims := append(append([]string{}, coarseField.BatchDims()...), DimY, DimX)

	fineSize := rel.Fine.Ny * rel.Fine.Nx
	coarseSize := rel.Coarse.Ny * rel.Coarse.Nx
	eachSlice(coarseField.nSlices(), func(s int) {
		refBase := s * fineSize
		if broadcastRef {
			refBase = 0
		}
		downscaleSlice(
			fineRef.Data.Elements[refBase:refBase+fineSize],
			coarseField.Data.Elements[s*coarseSize:(s+1)*coarseSize],
			out.Elements[s*fineSize:(s+1)*fineSize],
			rel)
	})

	return NewGriddedField(out, outDims, fineRef.Grid, coarseField.Units)
}

// downscaleSlice allocates one spatial slice of coarse values onto the
// fine grid. ref, coarse, and out are single spatial slices stored
// row-major with x varying fastest.
func downscaleSlice(ref, coarse, out []float64, rel *RefinementRelation) {
	r := rel.R
	nxFine := rel.Fine.Nx
	vals := make([]float64, r*r)
	for cj := 0; cj < rel.Coarse.Ny; cj++ {
		for ci := 0; ci < rel.Coarse.Nx; ci++ {
			j0 := rel.offY + cj*r
			i0 := rel.offX + ci*r
			for bj := 0; bj < r; bj++ {
				for bi := 0; bi < r; bi++ {
					v := ref[(j0+bj)*nxFine+i0+bi]
					if math.IsNaN(v) {
						v = 0
					}
					vals[bj*r+bi] = v
				}
			}
			w := blockWeights(vals)
			cv := coarse[cj*rel.Coarse.Nx+ci]
			for bj := 0; bj < r; bj++ {
				for bi := 0; bi < r; bi++ {
					out[(j0+bj)*nxFine+i0+bi] = w[bj*r+bi] * cv
				}
			}
		}
	}
}

// blockWeights converts the reference values within one coarse cell into
// allocation weights summing to 1. A degenerate block, where the
// reference sums to zero or less, gets uniform weights so that the
// coarse value is still distributed rather than lost.
func blockWeights(vals []float64) []float64 {
	w := make([]float64, len(vals))
	total := floats.Sum(vals)
	if total <= 0 {
		u := 1 / float64(len(vals))
		for i := range w {
			w[i] = u
		}
		return w
	}
	for i, v := range vals {
		w[i] = v / total
	}
	return w
}

// Aggregate coarsens fineField by summing non-overlapping r×r blocks of
// cells, producing a field on a grid with cell size r times larger and
// the same extent. The fine grid's dimensions must be evenly divisible
// by r. Summation is the appropriate reduction for conservative
// quantities such as emission rates in moles per second; aggregating the
// output of Downscale with the matching factor reproduces the original
// coarse field.
func Aggregate(fineField *GriddedField, r int) (*GriddedField, error) {
	if fineField == nil {
		return nil, tilingError("downscale: nil input field")
	}
	if r < 1 {
		return nil, tilingError("downscale: aggregation factor %d is less than 1", r)
	}
	fine := fineField.Grid
	if fine.Nx%r != 0 || fine.Ny%r != 0 {
		return nil, tilingError(
			"downscale: grid %s (%d×%d) is not evenly divisible into %d×%d blocks",
			fine.Name, fine.Ny, fine.Nx, r, r)
	}
	coarse, err := NewGridRegular(fine.Name, fine.Nx/r, fine.Ny/r,
		fine.Dx*float64(r), fine.Dy*float64(r), fine.X0, fine.Y0, fine.SR)
	if err != nil {
		return nil, err
	}

	outShape := append(append([]int{}, fineField.batchShape()...), coarse.Ny, coarse.Nx)
	out := sparse.ZerosDense(outShape...)

	fineSize := fine.Ny * fine.Nx
	coarseSize := coarse.Ny * coarse.Nx
	eachSlice(fineField.nSlices(), func(s int) {
		in := fineField.Data.Elements[s*fineSize : (s+1)*fineSize]
		o := out.Elements[s*coarseSize : (s+1)*coarseSize]
		for cj := 0; cj < coarse.Ny; cj++ {
			for ci := 0; ci < coarse.Nx; ci++ {
				var sum float64
				for bj := 0; bj < r; bj++ {
					for bi := 0; bi < r; bi++ {
						sum += in[(cj*r+bj)*fine.Nx+ci*r+bi]
					}
				}
				o[cj*coarse.Nx+ci] = sum
			}
		}
	})

	return NewGriddedField(out, fineField.Dims, coarse, fineField.Units)
}

// eachSlice runs fn for every batch-slice index from 0 to n-1 using a
// bounded pool of workers. Slices never interact, so the result does not
// depend on the number of workers.
func eachSlice(n int, fn func(s int)) {
	nprocs := runtime.GOMAXPROCS(0)
	if nprocs > n {
		nprocs = n
	}
	if nprocs <= 1 {
		for s := 0; s < n; s++ {
			fn(s)
		}
		return
	}
	slices := make(chan int, nprocs*2)
	var wg sync.WaitGroup
	for w := 0; w < nprocs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range slices {
				fn(s)
			}
		}()
	}
	for s := 0; s < n; s++ {
		slices <- s
	}
	close(slices)
	wg.Wait()
}
