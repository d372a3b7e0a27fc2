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
package geoimg

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteWindows(t *testing.T) {
	fn := tempfile()
	defer os.Remove(fn)
	ds := gradient(t, fn, 100, 70, 2, TileSize(32, 16))
	defer ds.Close()

	// window spanning several partial tiles
	win, err := ds.ReadWindow(30, 14, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 5}, win.Shape())
	assert.Equal(t, Float32, win.DataType())
	for b := 0; b < 2; b++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 5; x++ {
				assert.Equal(t, float64(b*1000+(14+y)*100+30+x), win.At(b, y, x))
			}
		}
	}

	// edge tiles are partial
	win, err = ds.ReadWindow(96, 64, 4, 6)
	require.NoError(t, err)
	assert.Equal(t, float64(1000+69*100+99), win.At(1, 5, 3))

	_, err = ds.ReadWindow(96, 64, 5, 6)
	assert.Error(t, err)
	_, err = ds.ReadWindow(-1, 0, 5, 6)
	assert.Error(t, err)
	_, err = ds.ReadWindow(0, 0, 0, 6)
	assert.Error(t, err)
	ec := eh()
	_, err = ds.ReadWindow(0, 0, 0, 6, ErrLogger(ec.ErrorHandler))
	assert.Error(t, err)
	assert.Equal(t, 1, ec.errs)

	patch, _ := NewPixelBuffer(Byte, 2, 3, 40)
	patch.Fill(7)
	require.NoError(t, ds.WriteWindow(20, 30, patch))
	full, err := ds.Read()
	require.NoError(t, err)
	assert.Equal(t, 7.0, full.At(0, 30, 20))
	assert.Equal(t, 7.0, full.At(1, 32, 59))
	assert.Equal(t, float64(30*100+19), full.At(0, 30, 19))
	assert.Equal(t, float64(1000+33*100+59), full.At(1, 33, 59))
	assert.Equal(t, float64(29*100+60), full.At(0, 29, 60))

	one, _ := NewPixelBuffer(Float32, 3, 3)
	assert.ErrorIs(t, ds.WriteWindow(0, 0, one), ErrArity)
	assert.Error(t, ds.WriteWindow(99, 0, patch))

	band, err := ds.Band(1)
	require.NoError(t, err)
	defer band.Close()
	assert.Equal(t, 1, band.Index())
	assert.Equal(t, Float32, band.DataType())
	assert.Equal(t, 100, band.XSize())
	assert.Equal(t, 70, band.YSize())
	assert.Equal(t, 1, band.Structure().NBands)
	bw, err := band.ReadWindow(20, 30, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, bw.Shape())
	assert.Equal(t, []float64{7, 7, 7, 7}, bw.Float64s())
	one.Fill(-3.5)
	require.NoError(t, band.WriteWindow(0, 0, one))
	assert.ErrorIs(t, band.WriteWindow(0, 0, patch), ErrArity)
	bw, _ = band.ReadWindow(0, 0, 4, 1)
	assert.Equal(t, []float64{-3.5, -3.5, -3.5, 1003}, bw.Float64s())
	_, err = ds.Band(2)
	assert.ErrorIs(t, err, ErrBandNotFound)
	_, err = ds.Band(-1)
	assert.ErrorIs(t, err, ErrBandNotFound)
}

func TestPersistence(t *testing.T) {
	fn := tempfile()
	defer os.Remove(fn)
	ds := gradient(t, fn, 50, 40, 3, TileSize(16, 16))
	require.NoError(t, ds.SetBandNames([]string{"red", "green", "blue"}))
	band, _ := ds.Band(2)
	require.NoError(t, band.SetNoData(-9999))
	band.Close()
	require.NoError(t, ds.SetMetadata("sensor", "test"))
	require.NoError(t, ds.Close())

	ds, err := Open(fn)
	require.NoError(t, err)
	assert.Equal(t, []string{"red", "green", "blue"}, ds.BandNames())
	assert.Equal(t, "test", ds.Metadata("sensor"))
	blue, err := ds.BandByName("BLUE")
	require.NoError(t, err)
	nd, ok := blue.NoData()
	assert.True(t, ok)
	assert.Equal(t, -9999.0, nd)
	blue.Close()
	red, _ := ds.Band(0)
	_, ok = red.NoData()
	assert.False(t, ok)
	red.Close()
	buf, err := ds.Read()
	require.NoError(t, err)
	assert.Equal(t, float64(2000+39*50+49), buf.At(2, 39, 49))
	ds.Close()
}

func TestSelect(t *testing.T) {
	fn := tempfile()
	defer os.Remove(fn)
	ds := gradient(t, fn, 20, 10, 3)
	defer ds.Close()
	require.NoError(t, ds.SetBandNames([]string{"b1", "b2", "b3"}))
	assert.True(t, ds.BandExists("b1", "B3"))
	assert.False(t, ds.BandExists("b1", "b4"))

	sel, err := ds.Select("b3", "b1")
	require.NoError(t, err)
	defer sel.Close()
	assert.Equal(t, 2, sel.NBands())
	assert.Equal(t, []string{"b3", "b1"}, sel.BandNames())
	assert.Equal(t, 2, backing.refCount(fn))
	buf, err := sel.Read()
	require.NoError(t, err)
	assert.Equal(t, 2000.0, buf.At(0, 0, 0))
	assert.Equal(t, 0.0, buf.At(1, 0, 0))
	b, err := sel.Band(0)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Index())
	assert.Equal(t, "b3", b.Description())
	b.Close()

	// a selection of a selection
	sub, err := sel.Select("b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, sub.BandNames())
	sub.Close()

	_, err = ds.Select()
	assert.ErrorIs(t, err, ErrArity)
	_, err = ds.SelectBands()
	assert.ErrorIs(t, err, ErrArity)
	_, err = ds.Select("b1", "nope")
	assert.ErrorIs(t, err, ErrBandNotFound)
	_, err = ds.SelectBands(0, 3)
	assert.ErrorIs(t, err, ErrBandNotFound)

	// renaming through a view is visible from all views
	require.NoError(t, sel.SetBandNames([]string{"blue", "red"}))
	assert.Equal(t, []string{"red", "b2", "blue"}, ds.BandNames())
	assert.ErrorIs(t, sel.SetBandNames([]string{"blue"}), ErrArity)
	assert.ErrorIs(t, sel.SetBandNames([]string{"b2", "red"}), ErrDuplicateBand)
	assert.ErrorIs(t, sel.SetBandNames([]string{"x", "X"}), ErrDuplicateBand)
	assert.Equal(t, []string{"red", "b2", "blue"}, ds.BandNames())

	b, _ = ds.Band(1)
	assert.ErrorIs(t, b.SetDescription("Red"), ErrDuplicateBand)
	require.NoError(t, b.SetDescription("green"))
	b.Close()
	assert.Equal(t, []string{"red", "green", "blue"}, ds.BandNames())

	// names given at open time are not persisted
	ro, err := Open(fn, ReadOnly(), BandNames("x", "y", "z"))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, ro.BandNames())
	assert.Equal(t, []string{"red", "green", "blue"}, ds.BandNames())
	xs, err := ro.Select("z")
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, xs.BandNames())
	xs.Close()
	ro.Close()
}

func TestSelectAfterReopen(t *testing.T) {
	fn := tempfile()
	defer os.Remove(fn)
	ds := gradient(t, fn, 10, 10, 2)
	require.NoError(t, ds.SetBandNames([]string{"vv", "vh"}))
	ds.Close()

	ds, err := Open(fn, ReadOnly())
	require.NoError(t, err)
	defer ds.Close()
	sel, err := ds.Select("vh")
	require.NoError(t, err)
	defer sel.Close()
	buf, err := sel.Read()
	require.NoError(t, err)
	assert.Equal(t, 1099.0, buf.At(0, 9, 9))
	assert.ErrorIs(t, sel.SetBandNames([]string{"x"}), ErrReadOnly)
}

func TestNoDataAndMasks(t *testing.T) {
	ds, err := Create("", 4, 3, Bands(2), Type(Int16))
	require.NoError(t, err)
	defer ds.Close()
	data := []int16{
		1, 2, 3, 4,
		5, 0, 7, 8,
		9, 10, 11, 12,

		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, -1,
	}
	buf, _ := WrapPixelBuffer(data, 2, 3, 4)
	require.NoError(t, ds.Write(buf))

	// no nodata: everything is valid
	mask, err := ds.DataMask()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, mask.Shape())
	assert.Equal(t, Byte, mask.DataType())
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, mask.Float64s())

	b0, _ := ds.Band(0)
	defer b0.Close()
	require.NoError(t, b0.SetNoData(0))
	b1, _ := ds.Band(1)
	defer b1.Close()
	require.NoError(t, b1.SetNoData(-1))

	mask, err = ds.NoDataMask()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 1}, mask.Float64s())
	mask, err = ds.DataMask()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 0, 1, 1, 1, 1, 1, 0}, mask.Float64s())
	mask, err = ds.NoDataMask("2")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}, mask.Float64s())
	_, err = ds.NoDataMask("3")
	assert.ErrorIs(t, err, ErrBandNotFound)

	require.NoError(t, ds.ClearNoData())
	_, ok := b0.NoData()
	assert.False(t, ok)
	require.NoError(t, ds.SetNoData(5))
	nd, ok := b1.NoData()
	assert.True(t, ok)
	assert.Equal(t, 5.0, nd)
	mask, _ = ds.NoDataMask()
	assert.Equal(t, []float64{0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0}, mask.Float64s())
	require.NoError(t, b1.ClearNoData())
	_, ok = b1.NoData()
	assert.False(t, ok)
}

func TestNaNNoData(t *testing.T) {
	ds, err := Create("", 3, 1, Type(Float64))
	require.NoError(t, err)
	defer ds.Close()
	buf, _ := WrapPixelBuffer([]float64{1, math.NaN(), 3}, 1, 3)
	require.NoError(t, ds.Write(buf))
	require.NoError(t, ds.SetNoData(math.NaN()))
	mask, err := ds.NoDataMask()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, mask.Float64s())
	b, _ := ds.Band(0)
	defer b.Close()
	st, err := b.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Valid)
	assert.Equal(t, 2.0, st.Mean)
}

func TestGainOffset(t *testing.T) {
	ds, err := Create("", 2, 2, Type(UInt16))
	require.NoError(t, err)
	defer ds.Close()
	buf, _ := WrapPixelBuffer([]uint16{0, 10, 20, 30}, 1, 2, 2)
	require.NoError(t, ds.Write(buf))
	b, _ := ds.Band(0)
	defer b.Close()
	require.NoError(t, b.SetNoData(0))

	ds.SetGain(0.5)
	ds.SetOffset(1)
	assert.Equal(t, 0.5, b.Gain())
	assert.Equal(t, 1.0, b.Offset())
	scaled, err := ds.Read()
	require.NoError(t, err)
	assert.Equal(t, Float64, scaled.DataType())
	// nodata samples are not scaled
	assert.Equal(t, []float64{0, 6, 11, 16}, scaled.Float64s())
	raw, err := ds.Read(Raw())
	require.NoError(t, err)
	assert.Equal(t, UInt16, raw.DataType())
	assert.Equal(t, []float64{0, 10, 20, 30}, raw.Float64s())
	braw, err := b.Read(Raw())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10, 20, 30}, braw.Float64s())

	// bands share the scaling of the view they were obtained from
	b.SetGain(2)
	bs, _ := b.Read()
	assert.Equal(t, []float64{0, 21, 41, 61}, bs.Float64s())
}

func TestReadOnly(t *testing.T) {
	fn := tempfile()
	defer os.Remove(fn)
	ds, err := Create(fn, 10, 10)
	require.NoError(t, err)
	ds.Close()

	ds, err = Open(fn, ReadOnly())
	require.NoError(t, err)
	defer ds.Close()
	buf, _ := NewPixelBuffer(Byte, 1, 10, 10)
	assert.ErrorIs(t, ds.Write(buf), ErrReadOnly)
	assert.ErrorIs(t, ds.SetNoData(0), ErrReadOnly)
	assert.ErrorIs(t, ds.ClearNoData(), ErrReadOnly)
	assert.ErrorIs(t, ds.SetBandNames([]string{"a"}), ErrReadOnly)
	assert.ErrorIs(t, ds.SetMetadata("a", "b"), ErrReadOnly)
	b, _ := ds.Band(0)
	defer b.Close()
	assert.ErrorIs(t, b.Write(buf.Band(0)), ErrReadOnly)
	assert.ErrorIs(t, b.SetDescription("a"), ErrReadOnly)
	assert.ErrorIs(t, b.SetNoData(1), ErrReadOnly)
	assert.ErrorIs(t, b.SetMetadata("a", "b"), ErrReadOnly)
	// reading and derived views are allowed
	_, err = ds.Read()
	assert.NoError(t, err)
	ds.SetGain(2)
	sc, err := ds.Autoscale(0, 1)
	assert.NoError(t, err)
	sc.Close()
}
