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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequence creates a temporary single band dataset holding values, row by row
func sequence(t *testing.T, dtype DataType, width, height int, values []float64) *Dataset {
	t.Helper()
	ds, err := Create("", width, height, Type(dtype), TileSize(16, 16))
	require.NoError(t, err)
	buf, err := NewPixelBuffer(Float64, 1, height, width)
	require.NoError(t, err)
	for i, v := range values {
		buf.Set(0, i/width, i%width, v)
	}
	require.NoError(t, ds.Write(buf))
	return ds
}

func TestStatistics(t *testing.T) {
	ds := sequence(t, Int16, 4, 2, []float64{2, 4, 4, 4, 5, 5, 7, 9})
	defer ds.Close()
	b, err := ds.Band(0)
	require.NoError(t, err)
	defer b.Close()

	st, err := b.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 2.0, st.Min)
	assert.Equal(t, 9.0, st.Max)
	assert.Equal(t, 8, st.Valid)
	assert.InDelta(t, 5.0, st.Mean, 1e-12)
	assert.InDelta(t, 2.0, st.Std, 1e-12)
	mn, err := b.Min()
	assert.NoError(t, err)
	assert.Equal(t, 2.0, mn)
	mx, err := b.Max()
	assert.NoError(t, err)
	assert.Equal(t, 9.0, mx)

	require.NoError(t, b.SetNoData(4))
	st, err = b.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 5, st.Valid)
	assert.InDelta(t, 5.6, st.Mean, 1e-12)

	// writing pixels invalidates cached statistics
	buf, _ := WrapPixelBuffer([]int16{100}, 1, 1)
	require.NoError(t, b.WriteWindow(0, 0, buf))
	st, err = b.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 100.0, st.Max)

	b.SetGain(2)
	st, err = b.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 200.0, st.Max)
	assert.Equal(t, 10.0, st.Min)
	st, err = b.Statistics(Raw())
	require.NoError(t, err)
	assert.Equal(t, 100.0, st.Max)
	st, err = b.Statistics(Force())
	require.NoError(t, err)
	assert.Equal(t, 200.0, st.Max)
}

func TestStatisticsSharedView(t *testing.T) {
	ds := sequence(t, Byte, 3, 1, []float64{1, 2, 3})
	defer ds.Close()
	sel, err := ds.SelectBands(0)
	require.NoError(t, err)
	defer sel.Close()
	b, _ := ds.Band(0)
	defer b.Close()
	bs, _ := sel.Band(0)
	defer bs.Close()

	st, _ := bs.Statistics()
	assert.Equal(t, 3.0, st.Max)
	// a write through another handle on the same file is seen by all views
	buf, _ := WrapPixelBuffer([]uint8{9}, 1, 1)
	require.NoError(t, b.WriteWindow(2, 0, buf))
	st, _ = bs.Statistics()
	assert.Equal(t, 9.0, st.Max)
	require.NoError(t, ds.SetNoData(9))
	st, _ = bs.Statistics()
	assert.Equal(t, 2.0, st.Max)
}

func TestNoValidPixels(t *testing.T) {
	ds := sequence(t, Float32, 2, 2, []float64{math.NaN(), 3, 3, 3})
	defer ds.Close()
	require.NoError(t, ds.SetNoData(3))
	b, _ := ds.Band(0)
	defer b.Close()
	_, err := b.Statistics()
	assert.ErrorIs(t, err, ErrNoValidPixels)
	ec := eh()
	_, err = b.Statistics(ErrLogger(ec.ErrorHandler))
	assert.Error(t, err)
	assert.Equal(t, 1, ec.errs)
	_, err = b.Histogram()
	assert.ErrorIs(t, err, ErrNoValidPixels)
	h, err := b.Histogram(Intervals(4, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), h.Total())
}

func TestHistogram(t *testing.T) {
	ds := sequence(t, Byte, 10, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	defer ds.Close()
	b, _ := ds.Band(0)
	defer b.Close()

	h, err := b.Histogram(Intervals(5, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, 5, h.Len())
	for i := 0; i < 5; i++ {
		bk := h.Bucket(i)
		assert.Equal(t, uint64(2), bk.Count)
		assert.Equal(t, float64(2*i), bk.Min)
		assert.Equal(t, float64(2*i+2), bk.Max)
	}
	assert.Equal(t, uint64(10), h.Total())

	h, err = b.Histogram(Intervals(2, 2, 6))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h.Bucket(0).Count)
	// the maximum falls in the last bucket
	assert.Equal(t, uint64(3), h.Bucket(1).Count)
	h, err = b.Histogram(Intervals(2, 2, 6), IncludeOutOfRange())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), h.Bucket(0).Count)
	assert.Equal(t, uint64(6), h.Bucket(1).Count)

	// default histogram spans the band's extrema
	h, err = b.Histogram()
	require.NoError(t, err)
	assert.Equal(t, 256, h.Len())
	assert.Equal(t, 0.0, h.Bucket(0).Min)
	assert.Equal(t, 9.0, h.Bucket(255).Max)
	assert.Equal(t, uint64(1), h.Bucket(0).Count)
	assert.Equal(t, uint64(1), h.Bucket(255).Count)
	assert.Equal(t, uint64(10), h.Total())

	_, err = b.Histogram(Intervals(2, 6, 2))
	assert.Error(t, err)

	b.SetOffset(100)
	h, err = b.Histogram(Intervals(1, 100, 110))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), h.Total())
	h, err = b.Histogram(Intervals(1, 100, 110), Raw())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), h.Total())
}

func TestConstantHistogram(t *testing.T) {
	ds := sequence(t, Byte, 2, 2, []float64{5, 5, 5, 5})
	defer ds.Close()
	b, _ := ds.Band(0)
	defer b.Close()
	h, err := b.Histogram()
	require.NoError(t, err)
	assert.Equal(t, 4.5, h.Bucket(0).Min)
	assert.Equal(t, 5.5, h.Bucket(255).Max)
	assert.Equal(t, uint64(4), h.Total())
}
