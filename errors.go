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

import "fmt"

// The error types in this file all indicate defects in caller-supplied
// input. They are detected before any output is produced, and none of
// them is retried or recovered internally.

// GridMismatchError indicates that a declared refinement factor is
// inconsistent with the actual ratio of coarse to fine cell sizes, or
// that the fine-grid cell boundaries do not nest exactly within the
// coarse-grid cell boundaries.
type GridMismatchError struct{ msg string }

func (e *GridMismatchError) Error() string { return e.msg }

func gridMismatch(format string, args ...interface{}) *GridMismatchError {
	return &GridMismatchError{fmt.Sprintf(format, args...)}
}

// ExtentMismatchError indicates that the fine grid does not spatially
// cover the coarse grid's extent.
type ExtentMismatchError struct{ msg string }

func (e *ExtentMismatchError) Error() string { return e.msg }

func extentMismatch(format string, args ...interface{}) *ExtentMismatchError {
	return &ExtentMismatchError{fmt.Sprintf(format, args...)}
}

// ShapeMismatchError indicates that a field's grid geometry does not
// match the relation or grid it is paired with.
type ShapeMismatchError struct{ msg string }

func (e *ShapeMismatchError) Error() string { return e.msg }

func shapeMismatch(format string, args ...interface{}) *ShapeMismatchError {
	return &ShapeMismatchError{fmt.Sprintf(format, args...)}
}

// UnsupportedDimensionError indicates that the non-spatial dimensions of
// two fields cannot be reconciled.
type UnsupportedDimensionError struct{ msg string }

func (e *UnsupportedDimensionError) Error() string { return e.msg }

func unsupportedDimension(format string, args ...interface{}) *UnsupportedDimensionError {
	return &UnsupportedDimensionError{fmt.Sprintf(format, args...)}
}

// TilingError indicates that a fine grid's extent is not evenly divisible
// by the refinement factor during aggregation.
type TilingError struct{ msg string }

func (e *TilingError) Error() string { return e.msg }

func tilingError(format string, args ...interface{}) *TilingError {
	return &TilingError{fmt.Sprintf(format, args...)}
}

// ProjectionError indicates that a reprojection target is invalid or
// unreachable from the source projection.
type ProjectionError struct{ msg string }

func (e *ProjectionError) Error() string { return e.msg }

func projectionError(format string, args ...interface{}) *ProjectionError {
	return &ProjectionError{fmt.Sprintf(format, args...)}
}
