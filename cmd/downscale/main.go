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

// Command downscale is a command-line interface for downscaling gridded
// emissions using a fine-scale reference pattern.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/downscale/downscaleutil"
)

func main() {
	if err := downscaleutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
