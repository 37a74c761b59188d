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

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom/proj"

	"github.com/spatialmodel/downscale"
)

// GridSpec describes the geometry of a regular grid in a configuration
// file. Grid geometry is always given explicitly here rather than being
// inferred from data-file attribute conventions.
type GridSpec struct {
	// Name identifies the grid in log and error messages.
	Name string

	// Nx and Ny are the number of cells in the x and y directions.
	Nx, Ny int

	// Dx and Dy are the cell edge lengths, in the units of the
	// projection (typically meters).
	Dx, Dy float64

	// X0 and Y0 are the coordinates of the lower-left corner of the
	// lower-left cell.
	X0, Y0 float64

	// SR is the spatial reference of the grid in PROJ4 format, for
	// example "+proj=lcc +lat_1=33 +lat_2=45 +lat_0=40 +lon_0=-97".
	// It may be empty if both grids share an unspecified projection.
	SR string
}

// GridDef converts the specification into a grid definition.
func (s *GridSpec) GridDef() (*downscale.GridDef, error) {
	var sr *proj.SR
	if s.SR != "" {
		var err error
		sr, err = proj.Parse(os.ExpandEnv(s.SR))
		if err != nil {
			return nil, fmt.Errorf("downscale: parsing spatial reference for grid %s: %v", s.Name, err)
		}
	}
	return downscale.NewGridRegular(s.Name, s.Nx, s.Ny, s.Dx, s.Dy, s.X0, s.Y0, sr)
}

// GridConfig holds the grid geometries for one downscaling run.
type GridConfig struct {
	// FineGrid is the geometry of the fine (reference and output) grid.
	FineGrid GridSpec

	// CoarseGrid is the geometry of the coarse (input) grid.
	CoarseGrid GridSpec
}

// ReadGridConfig reads grid geometries from a TOML file.
func ReadGridConfig(filename string) (*GridConfig, error) {
	c := new(GridConfig)
	if _, err := toml.DecodeFile(os.ExpandEnv(filename), c); err != nil {
		return nil, fmt.Errorf("downscale: reading grid configuration %s: %v", filename, err)
	}
	if c.FineGrid.Name == "" {
		c.FineGrid.Name = "fine"
	}
	if c.CoarseGrid.Name == "" {
		c.CoarseGrid.Name = "coarse"
	}
	return c, nil
}
