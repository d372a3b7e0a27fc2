// Copyright 2021 Airbus Defence and Space
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/airbusgeo/geoimg"
	"github.com/spf13/cobra"
)

var (
	withStats  bool
	bands      []string
	saveType   string
	scaleType  string
	compress   bool
	cog        bool
	srs        string
	xres, yres float64
	resampling string
	minOut     float64
	maxOut     float64
	percent    float64
)

func init() {
	infoCommand.Flags().BoolVar(&withStats, "stats", false, "compute band statistics")

	for _, c := range []*cobra.Command{saveCommand, warpCommand, autoscaleCommand} {
		c.Flags().StringSliceVar(&bands, "bands", nil, "comma separated names of the bands to process (default all)")
		c.Flags().BoolVar(&compress, "compress", false, "deflate compress the output")
		c.Flags().BoolVar(&cog, "cog", false, "write a cloud optimized geotiff")
	}
	saveCommand.Flags().StringVarP(&saveType, "type", "t", "", "output data type (default: input type)")
	autoscaleCommand.Flags().StringVarP(&scaleType, "type", "t", "uint8", "output data type")

	warpCommand.Flags().StringVar(&srs, "srs", "EPSG:4326", "target coordinate system")
	warpCommand.Flags().Float64Var(&xres, "xres", 0, "target pixel width, in target units (0: automatic)")
	warpCommand.Flags().Float64Var(&yres, "yres", 0, "target pixel height, in target units (0: automatic)")
	warpCommand.Flags().StringVarP(&resampling, "resampling", "r", "nearest", "nearest, bilinear or cubic")

	autoscaleCommand.Flags().Float64Var(&minOut, "min", 0, "output minimum")
	autoscaleCommand.Flags().Float64Var(&maxOut, "max", 255, "output maximum")
	autoscaleCommand.Flags().Float64Var(&percent, "percent", 0, "percentage of each tail to clip")
}

// openInput opens infile read-only, restricted to the --bands selection
func openInput(ctx context.Context, infile, outfile string) (*geoimg.Dataset, *remote, error) {
	r, err := register(ctx, infile, outfile)
	if err != nil {
		return nil, nil, err
	}
	ds, err := geoimg.Open(infile, geoimg.ReadOnly())
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", infile, err)
	}
	if len(bands) == 0 {
		return ds, r, nil
	}
	sel, err := ds.Select(bands...)
	ds.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("select %v: %w", bands, err)
	}
	return sel, r, nil
}

func outputOptions() []interface {
	geoimg.SaveOption
	geoimg.WarpOption
} {
	var opts []interface {
		geoimg.SaveOption
		geoimg.WarpOption
	}
	if compress {
		opts = append(opts, geoimg.Compress(geoimg.Deflate))
	}
	if cog {
		opts = append(opts, geoimg.COG())
	}
	return opts
}

var infoCommand = &cobra.Command{
	Use:   "info file",
	Short: "describe a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := register(cmd.Context(), args[0]); err != nil {
			return err
		}
		ds, err := geoimg.Open(args[0], geoimg.ReadOnly())
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer ds.Close()
		fmt.Fprint(cmd.OutOrStdout(), ds.Info())
		if !withStats {
			return nil
		}
		for i, band := range ds.Bands() {
			st, err := band.Statistics()
			if errors.Is(err, geoimg.ErrNoValidPixels) {
				fmt.Fprintf(cmd.OutOrStdout(), "Band %d: no valid pixels\n", i+1)
				continue
			}
			if err != nil {
				return fmt.Errorf("statistics of band %d: %w", i+1, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Band %d: Minimum=%.3f, Maximum=%.3f, Mean=%.3f, StdDev=%.3f, Valid=%d\n",
				i+1, st.Min, st.Max, st.Mean, st.Std, st.Valid)
		}
		return nil
	},
}

var saveCommand = &cobra.Command{
	Use:   "save infile outfile",
	Short: "copy a dataset, optionally converting its data type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dtype := geoimg.Unknown
		if saveType != "" {
			var err error
			if dtype, err = geoimg.ParseDataType(saveType); err != nil {
				return err
			}
		}
		ds, r, err := openInput(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		defer ds.Close()
		path, err := outputPath(args[1])
		if err != nil {
			return err
		}
		opts := []geoimg.SaveOption{}
		for _, o := range outputOptions() {
			opts = append(opts, o)
		}
		out, err := ds.Save(path, dtype, opts...)
		if err != nil {
			return err
		}
		return r.finish(ctx, out, args[1])
	},
}

var warpCommand = &cobra.Command{
	Use:   "warp infile outfile",
	Short: "reproject a dataset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		alg, err := geoimg.ParseResampling(resampling)
		if err != nil {
			return err
		}
		ds, r, err := openInput(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		defer ds.Close()
		path, err := outputPath(args[1])
		if err != nil {
			return err
		}
		opts := []geoimg.WarpOption{geoimg.Resampling(alg)}
		for _, o := range outputOptions() {
			opts = append(opts, o)
		}
		out, err := ds.Warp(path, srs, xres, yres, opts...)
		if err != nil {
			return err
		}
		return r.finish(ctx, out, args[1])
	},
}

var autoscaleCommand = &cobra.Command{
	Use:   "autoscale infile outfile",
	Short: "linearly rescale each band of a dataset to an output range",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dtype, err := geoimg.ParseDataType(scaleType)
		if err != nil {
			return err
		}
		ds, r, err := openInput(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		defer ds.Close()
		scaled, err := ds.Autoscale(minOut, maxOut, geoimg.Percent(percent))
		if err != nil {
			return err
		}
		defer scaled.Close()
		path, err := outputPath(args[1])
		if err != nil {
			return err
		}
		opts := []geoimg.SaveOption{}
		for _, o := range outputOptions() {
			opts = append(opts, o)
		}
		out, err := scaled.Save(path, dtype, opts...)
		if err != nil {
			return err
		}
		return r.finish(ctx, out, args[1])
	},
}
