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
	"bytes"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/geoimg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGSParse(t *testing.T) {
	tc := func(in string, expBucket, expObject string) {
		t.Helper()
		b, o := gsparse(in)
		assert.Equal(t, expBucket, b)
		assert.Equal(t, expObject, o)
	}
	tc("sdgfdsf", "", "")
	tc("gs://", "", "")
	tc("gs://a", "", "")
	tc("gs://a/", "", "")
	tc("gs://a/b", "a", "b")
	tc("gs://a/b/c", "a", "b/c")
	tc("gs://a/b/", "a", "b")
	tc("gs://a/b/c/", "a", "b/c")
}

func TestOutputPath(t *testing.T) {
	p, err := outputPath("local.tif")
	assert.NoError(t, err)
	assert.Equal(t, "local.tif", p)
	_, err = outputPath("s3://bucket/out.tif")
	assert.Error(t, err)
	_, err = outputPath("gs://bucket")
	assert.Error(t, err)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	rootCommand.SetOut(out)
	rootCommand.SetArgs(args)
	err := rootCommand.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tif")
	ds, err := geoimg.Create(in, 20, 10, geoimg.Bands(2), geoimg.Type(geoimg.UInt16))
	require.NoError(t, err)
	require.NoError(t, ds.SetBandNames([]string{"red", "nir"}))
	buf, _ := geoimg.NewPixelBuffer(geoimg.UInt16, 2, 10, 20)
	for b := 0; b < 2; b++ {
		for y := 0; y < 10; y++ {
			for x := 0; x < 20; x++ {
				buf.Set(b, y, x, float64(100+y*20+x))
			}
		}
	}
	require.NoError(t, ds.Write(buf))
	require.NoError(t, ds.Close())

	info, err := run(t, "info", "--stats", in)
	require.NoError(t, err)
	assert.Contains(t, info, "Size is 20, 10")
	assert.Contains(t, info, "Name=nir")
	assert.Contains(t, info, "Minimum=100.000, Maximum=299.000")

	saved := filepath.Join(dir, "saved.tif")
	_, err = run(t, "save", "--bands", "nir", "-t", "float32", in, saved)
	require.NoError(t, err)
	sds, err := geoimg.Open(saved)
	require.NoError(t, err)
	assert.Equal(t, 1, sds.NBands())
	assert.Equal(t, geoimg.Float32, sds.DataType())
	assert.Equal(t, []string{"nir"}, sds.BandNames())
	assert.NoError(t, sds.Close())
	bands = nil

	scaled := filepath.Join(dir, "scaled.tif")
	_, err = run(t, "autoscale", "--min", "1", "--max", "255", in, scaled)
	require.NoError(t, err)
	ads, err := geoimg.Open(scaled)
	require.NoError(t, err)
	assert.Equal(t, geoimg.Byte, ads.DataType())
	band, err := ads.Band(0)
	require.NoError(t, err)
	st, err := band.Statistics()
	assert.NoError(t, err)
	assert.Equal(t, 1.0, st.Min)
	assert.Equal(t, 255.0, st.Max)
	assert.NoError(t, band.Close())
	assert.NoError(t, ads.Close())

	warped := filepath.Join(dir, "warped.tif")
	_, err = run(t, "warp", "--srs", "EPSG:3857", "-r", "bilinear", in, warped)
	require.NoError(t, err)
	wds, err := geoimg.Open(warped)
	require.NoError(t, err)
	assert.Equal(t, 3857, wds.SpatialRef().EPSG())
	assert.NoError(t, wds.Close())

	_, err = run(t, "warp", "--resampling", "lanczos", in, warped)
	assert.Error(t, err)
	resampling = "nearest"

	_, err = run(t, "info", filepath.Join(dir, "missing.tif"))
	assert.ErrorIs(t, err, geoimg.ErrNotFound)
}
