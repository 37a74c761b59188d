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

// Package downscaleutil holds the command-line interface for the
// downscale package: configuration handling, NetCDF input and output,
// and the command tree.
package downscaleutil

import (
	"fmt"
	"time"

	"github.com/ctessum/sparse"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spatialmodel/downscale"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var log = logrus.StandardLogger()

func init() {
	Cfg = viper.New()
	Cfg.SetEnvPrefix("DOWNSCALE")
	Cfg.AutomaticEnv()

	options := []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the location of the TOML file describing the
              fine and coarse grid geometries.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "verbose",
			usage: `
              verbose enables informational log output.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "debug",
			usage: `
              debug enables debugging log output.`,
			shorthand:  "d",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "fine",
			usage: `
              fine specifies the NetCDF file holding emissions on the fine
              grid, whose spatial pattern will guide the downscaling.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "coarse",
			usage: `
              coarse specifies the NetCDF file holding emissions on the
              coarse grid, which will be downscaled to the fine grid.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "in",
			usage: `
              in specifies the NetCDF file holding emissions on the fine
              grid to be aggregated.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name: "out",
			usage: `
              out specifies the output NetCDF file.`,
			defaultVal: "./out.ncf",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "grid_factor",
			usage: `
              grid_factor specifies the ratio of the coarse grid spacing to
              the fine grid spacing.`,
			defaultVal: 3,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "data_vars",
			usage: `
              data_vars specifies the variable names to process. When empty,
              every gridded variable present in all input files is processed.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), aggregateCmd.Flags()},
		},
	}

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(aggregateCmd)
}

// setupLog configures the logger from the verbosity flags.
func setupLog() {
	switch {
	case Cfg.GetBool("debug"):
		logrus.SetLevel(logrus.DebugLevel)
	case Cfg.GetBool("verbose"):
		logrus.SetLevel(logrus.InfoLevel)
	default:
		logrus.SetLevel(logrus.WarnLevel)
	}
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "downscale",
	Short: "Downscale gridded emissions using a fine-scale reference pattern.",
	Long: `downscale redistributes photochemical-model emissions from a coarse grid
onto a finer grid, using the spatial pattern of an existing fine-scale
emissions dataset to decide how each coarse cell's total is allocated among
the fine cells it contains. Totals within each coarse cell are conserved.

Grid geometries are described in a TOML configuration file provided with the
--config flag. Configuration can also be changed with command-line arguments
or with environment variables in the format 'DOWNSCALE_var' where 'var' is
the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRun:  func(*cobra.Command, []string) { setupLog() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of downscale.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("downscale v%s\n", downscale.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Downscale a coarse emissions file to the fine grid.",
	Long: `run downscales every requested variable of the coarse emissions file onto
the fine grid described in the configuration file, using the corresponding
variable of the fine emissions file as the spatial reference pattern, and
writes the result to the output file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunDownscale(Cfg)
	},
	DisableAutoGenTag: true,
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate fine-grid emissions onto a coarser grid.",
	Long: `aggregate sums the values of every requested variable of a fine-grid
emissions file within non-overlapping blocks of grid_factor×grid_factor
cells, producing a file on a grid that much coarser.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunAggregate(Cfg)
	},
	DisableAutoGenTag: true,
}

// RunDownscale downscales the variables of the coarse input file onto
// the fine grid using the configuration in cfg.
func RunDownscale(cfg *viper.Viper) error {
	start := time.Now()

	gc, err := ReadGridConfig(cfg.GetString("config"))
	if err != nil {
		return err
	}
	fineGrid, err := gc.FineGrid.GridDef()
	if err != nil {
		return err
	}
	coarseGrid, err := gc.CoarseGrid.GridDef()
	if err != nil {
		return err
	}
	factor := cfg.GetInt("grid_factor")
	fineFile := cfg.GetString("fine")
	coarseFile := cfg.GetString("coarse")
	outFile := cfg.GetString("out")
	log.Infof("fine-scale file: %s", fineFile)
	log.Infof("coarse-scale file: %s", coarseFile)
	log.Infof("output file: %s", outFile)

	// Express the coarse grid in the fine grid's coordinate system
	// before building the correspondence; grids from different modeling
	// platforms commonly differ in their false easting and northing.
	coarseGrid, err = reprojectGrid(coarseGrid, fineGrid)
	if err != nil {
		return err
	}
	rel, err := downscale.BuildCorrespondence(fineGrid, coarseGrid, factor)
	if err != nil {
		return err
	}

	vars, err := selectVars(cfg, fineGrid, coarseGrid, fineFile, coarseFile)
	if err != nil {
		return err
	}
	log.Debugf("target vars: %v", vars)

	out := make(map[string]*downscale.GriddedField)
	units := make(map[string]string)
	for _, v := range vars {
		log.Infof("downscaling %s", v)
		ref, _, err := ReadField(fineFile, v, fineGrid)
		if err != nil {
			return err
		}
		coarse, u, err := ReadField(coarseFile, v, coarseGrid)
		if err != nil {
			return err
		}
		o, err := downscale.Downscale(ref, coarse, rel)
		if err != nil {
			return fmt.Errorf("downscale: variable %s: %v", v, err)
		}
		log.Debugf("%s: coarse total %g, downscaled total %g",
			v, coarse.Total().Value(), o.Total().Value())
		out[v] = o
		units[v] = u
	}

	if err := WriteFields(outFile, out, units); err != nil {
		return err
	}
	log.Infof("done; elapsed time %v", time.Since(start))
	return nil
}

// RunAggregate coarsens the variables of the input file by the
// configured grid factor.
func RunAggregate(cfg *viper.Viper) error {
	start := time.Now()

	gc, err := ReadGridConfig(cfg.GetString("config"))
	if err != nil {
		return err
	}
	fineGrid, err := gc.FineGrid.GridDef()
	if err != nil {
		return err
	}
	factor := cfg.GetInt("grid_factor")
	inFile := cfg.GetString("in")
	outFile := cfg.GetString("out")

	vars, err := cast.ToStringSliceE(cfg.Get("data_vars"))
	if err != nil {
		return fmt.Errorf("downscale: parsing data_vars: %v", err)
	}
	if len(vars) == 0 {
		vars, err = GriddedVars(inFile, fineGrid)
		if err != nil {
			return err
		}
	}

	out := make(map[string]*downscale.GriddedField)
	units := make(map[string]string)
	for _, v := range vars {
		log.Infof("aggregating %s", v)
		f, u, err := ReadField(inFile, v, fineGrid)
		if err != nil {
			return err
		}
		o, err := downscale.Aggregate(f, factor)
		if err != nil {
			return fmt.Errorf("downscale: variable %s: %v", v, err)
		}
		out[v] = o
		units[v] = u
	}

	if err := WriteFields(outFile, out, units); err != nil {
		return err
	}
	log.Infof("done; elapsed time %v", time.Since(start))
	return nil
}

// reprojectGrid expresses grid on target's spatial reference when the
// two differ only by false easting and northing; any other difference
// requires per-field resampling, which is handled elsewhere.
func reprojectGrid(grid, target *downscale.GridDef) (*downscale.GridDef, error) {
	if grid.SR == nil || target.SR == nil {
		return grid, nil
	}
	f, err := downscale.NewGriddedField(sparse.ZerosDense(grid.Ny, grid.Nx),
		[]string{downscale.DimY, downscale.DimX}, grid, nil)
	if err != nil {
		return nil, err
	}
	o, err := downscale.ReprojectIfNeeded(f, target.SR)
	if err != nil {
		return nil, err
	}
	return o.Grid, nil
}

// selectVars returns the variables to downscale: the configured list,
// or every gridded variable present in both input files.
func selectVars(cfg *viper.Viper, fineGrid, coarseGrid *downscale.GridDef, fineFile, coarseFile string) ([]string, error) {
	vars, err := cast.ToStringSliceE(cfg.Get("data_vars"))
	if err != nil {
		return nil, fmt.Errorf("downscale: parsing data_vars: %v", err)
	}
	if len(vars) > 0 {
		return vars, nil
	}
	fineVars, err := GriddedVars(fineFile, fineGrid)
	if err != nil {
		return nil, err
	}
	coarseVars, err := GriddedVars(coarseFile, coarseGrid)
	if err != nil {
		return nil, err
	}
	inCoarse := make(map[string]bool)
	for _, v := range coarseVars {
		inCoarse[v] = true
	}
	var both []string
	for _, v := range fineVars {
		if inCoarse[v] {
			both = append(both, v)
		}
	}
	if len(both) == 0 {
		return nil, fmt.Errorf("downscale: no common gridded variables in %s and %s", fineFile, coarseFile)
	}
	return both, nil
}
