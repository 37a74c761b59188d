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

package downscaleutil

import (
	"fmt"
	"os"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/spatialmodel/downscale"
)

// ReadField reads the named variable from a NetCDF file onto the given
// grid. The variable's two innermost dimensions must match the grid
// shape; any leading dimensions become batch dimensions, keeping their
// names from the file. The variable's "units" attribute, if present, is
// returned as a string alongside the field.
func ReadField(filename, varName string, grid *downscale.GridDef) (*downscale.GriddedField, string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, "", fmt.Errorf("downscale: opening %s: %v", filename, err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, "", fmt.Errorf("downscale: reading %s: %v", filename, err)
	}
	field, err := readVar(ff, varName, grid)
	if err != nil {
		return nil, "", fmt.Errorf("downscale: reading %s from %s: %v", varName, filename, err)
	}
	return field, unitsAttribute(ff, varName), nil
}

func readVar(ff *cdf.File, varName string, grid *downscale.GridDef) (*downscale.GriddedField, error) {
	lengths := ff.Header.Lengths(varName)
	if len(lengths) == 0 {
		return nil, fmt.Errorf("variable not in file")
	}
	if len(lengths) < 2 {
		return nil, fmt.Errorf("variable has %d dimensions; at least 2 required", len(lengths))
	}
	if ff.Header.IsRecordVariable(varName) {
		return nil, fmt.Errorf("record (unlimited) dimensions are not supported")
	}
	names := ff.Header.Dimensions(varName)
	dims := make([]string, len(names))
	copy(dims, names[:len(names)-2])
	dims[len(dims)-2], dims[len(dims)-1] = downscale.DimY, downscale.DimX

	r := ff.Reader(varName, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}
	data := sparse.ZerosDense(lengths...)
	switch vals := buf.(type) {
	case []float64:
		copy(data.Elements, vals)
	case []float32:
		for i, v := range vals {
			data.Elements[i] = float64(v)
		}
	case []int32:
		for i, v := range vals {
			data.Elements[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("unsupported data type %T", buf)
	}
	return downscale.NewGriddedField(data, dims, grid, nil)
}

// unitsAttribute returns the value of a variable's "units" attribute, or
// an empty string if there is none.
func unitsAttribute(ff *cdf.File, varName string) string {
	for _, a := range ff.Header.Attributes(varName) {
		if a == "units" {
			if s, ok := ff.Header.GetAttribute(varName, "units").(string); ok {
				return s
			}
		}
	}
	return ""
}

// GriddedVars lists the variables in a NetCDF file whose two innermost
// dimensions match the given grid shape, sorted by name. These are the
// candidates for downscaling when no explicit variable list is given.
func GriddedVars(filename string, grid *downscale.GridDef) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("downscale: opening %s: %v", filename, err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("downscale: reading %s: %v", filename, err)
	}
	var vars []string
	for _, v := range ff.Header.Variables() {
		lengths := ff.Header.Lengths(v)
		if len(lengths) < 2 || ff.Header.IsRecordVariable(v) {
			continue
		}
		if lengths[len(lengths)-2] == grid.Ny && lengths[len(lengths)-1] == grid.Nx {
			vars = append(vars, v)
		}
	}
	sort.Strings(vars)
	return vars, nil
}

// WriteFields writes fields to a new NetCDF file. All fields must share
// the same grid and dimension names; units gives an optional "units"
// attribute string for each variable.
func WriteFields(filename string, fields map[string]*downscale.GriddedField, units map[string]string) error {
	if len(fields) == 0 {
		return fmt.Errorf("downscale: no fields to write to %s", filename)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	first := fields[names[0]]
	for _, name := range names {
		f := fields[name]
		if len(f.Dims) != len(first.Dims) {
			return fmt.Errorf("downscale: inconsistent dimensions between output variables %s and %s", names[0], name)
		}
		for i, d := range f.Dims {
			if d != first.Dims[i] || f.Data.Shape[i] != first.Data.Shape[i] {
				return fmt.Errorf("downscale: inconsistent dimensions between output variables %s and %s", names[0], name)
			}
		}
	}

	h := cdf.NewHeader(first.Dims, first.Data.Shape)
	for _, name := range names {
		h.AddVariable(name, first.Dims, []float64{0})
		if u := units[name]; u != "" {
			h.AddAttribute(name, "units", u)
		}
	}
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("downscale: creating netcdf file %s: %v", filename, err)
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("downscale: creating %s: %v", filename, err)
	}
	defer f.Close()
	ff, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("downscale: creating netcdf file %s: %v", filename, err)
	}
	for _, name := range names {
		field := fields[name]
		begin := make([]int, len(field.Data.Shape))
		w := ff.Writer(name, begin, field.Data.Shape)
		if _, err := w.Write(field.Data.Elements); err != nil {
			return fmt.Errorf("downscale: writing %s to %s: %v", name, filename, err)
		}
	}
	return nil
}
