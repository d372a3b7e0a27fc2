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
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/geoimg"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
	"github.com/airbusgeo/osio/s3"
	"github.com/spf13/cobra"
)

func gsparse(file string) (bucket, object string) {
	if !strings.HasPrefix(file, "gs://") {
		return
	}
	file = file[5:]
	firstSlash := strings.Index(file, "/")
	if firstSlash == -1 {
		return
	}
	obj := strings.Trim(file[firstSlash:], "/")
	if obj == "" {
		return
	}
	bucket = file[0:firstSlash]
	object = obj
	return
}

var (
	blockSize       string
	numCachedBlocks int
	verbose         int
	debugIO         bool
)

func init() {
	rootCommand.PersistentFlags().StringVarP(&blockSize, "blocksize", "b", "512k", "remote block size")
	rootCommand.PersistentFlags().IntVarP(&numCachedBlocks, "numblocks", "n", 512, "number of remote blocks to cache")
	rootCommand.PersistentFlags().IntVarP(&verbose, "verbose", "v", 1, "verbosity level (0: silent, 1: warnings, 3: debug)")
	rootCommand.PersistentFlags().BoolVar(&debugIO, "debug-io", false, "log remote requests (also enabled by setting GEOIMG_LOG)")
	rootCommand.AddCommand(infoCommand, saveCommand, warpCommand, autoscaleCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCommand = &cobra.Command{
	Use:           "geoimg",
	Short:         "inspect, reproject and rescale georeferenced rasters",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		geoimg.SetVerbosity(verbose)
	},
}

// remote holds the clients created for the remote paths of a command
type remote struct {
	gcs *storage.Client
}

// register makes the gs:// and s3:// paths among files readable by geoimg
func register(ctx context.Context, files ...string) (*remote, error) {
	r := &remote{}
	opts := []osio.AdapterOption{osio.BlockSize(blockSize), osio.NumCachedBlocks(numCachedBlocks)}
	if debugIO || os.Getenv("GEOIMG_LOG") != "" {
		opts = append(opts, osio.WithLogger(osio.StdLogger))
	}
	var needGS, needS3 bool
	for _, f := range files {
		needGS = needGS || strings.HasPrefix(f, "gs://")
		needS3 = needS3 || strings.HasPrefix(f, "s3://")
	}
	if needGS {
		st, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create gcs storage client: %w", err)
		}
		r.gcs = st
		gsh, err := gcs.Handle(ctx, gcs.GCSClient(st))
		if err != nil {
			return nil, fmt.Errorf("osio gcs.handle: %w", err)
		}
		gsa, err := osio.NewAdapter(gsh, opts...)
		if err != nil {
			return nil, fmt.Errorf("osio.newadapter: %w", err)
		}
		if err := geoimg.RegisterStore("gs://", gsa); err != nil {
			return nil, fmt.Errorf("geoimg.registerstore: %w", err)
		}
	}
	if needS3 {
		s3h, err := s3.Handle(ctx)
		if err != nil {
			return nil, fmt.Errorf("osio s3.handle: %w", err)
		}
		s3a, err := osio.NewAdapter(s3h, opts...)
		if err != nil {
			return nil, fmt.Errorf("osio.newadapter: %w", err)
		}
		if err := geoimg.RegisterStore("s3://", s3a); err != nil {
			return nil, fmt.Errorf("geoimg.registerstore: %w", err)
		}
	}
	return r, nil
}

// outputPath returns the local path a command should write outfile to. For
// gs:// outputs, it is a temporary file that upload sends to the bucket.
func outputPath(outfile string) (string, error) {
	if strings.HasPrefix(outfile, "s3://") {
		return "", fmt.Errorf("writing to s3 is not supported")
	}
	if b, _ := gsparse(outfile); b == "" {
		if strings.HasPrefix(outfile, "gs://") {
			return "", fmt.Errorf("invalid output %s", outfile)
		}
		return outfile, nil
	}
	tmpf, err := os.CreateTemp(geoimg.WorkDir(), "geoimg-*.tif")
	if err != nil {
		return "", err
	}
	tmpf.Close()
	return tmpf.Name(), nil
}

// finish closes the output dataset and uploads it when outfile is on gcs
func (r *remote) finish(ctx context.Context, ds *geoimg.Dataset, outfile string) error {
	local := ds.Filename()
	if err := ds.Close(); err != nil {
		return fmt.Errorf("close %s: %w", local, err)
	}
	bucket, object := gsparse(outfile)
	if bucket == "" {
		return nil
	}
	defer os.Remove(local)
	if r.gcs == nil {
		st, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create gcs storage client: %w", err)
		}
		r.gcs = st
	}
	in, err := os.Open(local)
	if err != nil {
		return err
	}
	defer in.Close()
	w := r.gcs.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		return fmt.Errorf("upload %s: %w", outfile, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", outfile, err)
	}
	return nil
}
