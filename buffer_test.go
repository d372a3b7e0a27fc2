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
)

func TestPixelBuffer(t *testing.T) {
	_, err := NewPixelBuffer(Byte, 10)
	assert.Error(t, err)
	_, err = NewPixelBuffer(Byte, 0, 10)
	assert.Error(t, err)
	_, err = NewPixelBuffer(Byte, 1, 2, 3, 4)
	assert.Error(t, err)
	_, err = NewPixelBuffer(Unknown, 10, 10)
	assert.Error(t, err)

	pb, err := NewPixelBuffer(UInt16, 2, 3, 4)
	assert.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, pb.Shape())
	assert.Equal(t, 2, pb.NBands())
	assert.Equal(t, 3, pb.Height())
	assert.Equal(t, 4, pb.Width())
	assert.Equal(t, UInt16, pb.DataType())
	assert.Len(t, pb.Data().([]uint16), 24)

	pb.Set(1, 2, 3, 70000)
	assert.Equal(t, 65535.0, pb.At(1, 2, 3))
	pb.Set(0, 0, 0, 1.6)
	assert.Equal(t, 2.0, pb.At(0, 0, 0))
	pb.Set(0, 0, 1, -5)
	assert.Equal(t, 0.0, pb.At(0, 0, 1))
	assert.Equal(t, uint16(65535), pb.Data().([]uint16)[23])

	assert.Panics(t, func() { pb.At(2, 0, 0) })
	assert.Panics(t, func() { pb.At(0, 3, 0) })
	assert.Panics(t, func() { pb.Set(0, 0, -1, 0) })

	pb2, err := NewPixelBuffer(Float32, 5, 6)
	assert.NoError(t, err)
	assert.Equal(t, []int{5, 6}, pb2.Shape())
	assert.Equal(t, 1, pb2.NBands())
	pb2.Set(0, 4, 5, 0.1)
	assert.Equal(t, float64(float32(0.1)), pb2.At(0, 4, 5))
}

func TestWrapPixelBuffer(t *testing.T) {
	pb, err := WrapPixelBuffer([]int16{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.NoError(t, err)
	assert.Equal(t, Int16, pb.DataType())
	assert.Equal(t, 6.0, pb.At(0, 1, 2))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, pb.Float64s())

	_, err = WrapPixelBuffer([]int16{1, 2, 3}, 2, 3)
	assert.Error(t, err)
	_, err = WrapPixelBuffer([]string{"a"}, 1, 1)
	assert.Error(t, err)
	_, err = WrapPixelBuffer([]float64{1}, 1)
	assert.Error(t, err)
}

func TestBufferViews(t *testing.T) {
	data := make([]float64, 2*4*5)
	for i := range data {
		data[i] = float64(i)
	}
	pb, _ := WrapPixelBuffer(data, 2, 4, 5)

	b1 := pb.Band(1)
	assert.Equal(t, []int{4, 5}, b1.Shape())
	assert.Equal(t, 20.0, b1.At(0, 0, 0))
	assert.Equal(t, 39.0, b1.At(0, 3, 4))
	assert.Panics(t, func() { pb.Band(2) })
	assert.Panics(t, func() { pb.Band(-1) })

	win := pb.Window(1, 2, 3, 2)
	assert.Equal(t, []int{2, 2, 3}, win.Shape())
	assert.Equal(t, []float64{11, 12, 13, 16, 17, 18, 31, 32, 33, 36, 37, 38}, win.Float64s())
	assert.Panics(t, func() { pb.Window(3, 0, 3, 1) })
	assert.Panics(t, func() { pb.Window(0, 0, 0, 1) })

	// views share storage with their parent
	win.Band(1).Fill(-1)
	assert.Equal(t, -1.0, pb.At(1, 2, 1))
	assert.Equal(t, -1.0, pb.At(1, 3, 3))
	assert.Equal(t, 30.0, pb.At(1, 2, 0))
	assert.Equal(t, 34.0, pb.At(1, 2, 4))
	assert.Equal(t, 11.0, pb.At(0, 2, 1))
}

func TestBufferEqual(t *testing.T) {
	a, _ := WrapPixelBuffer([]float32{1, float32(math.NaN()), 3, 4}, 2, 2)
	b, _ := WrapPixelBuffer([]float64{1, math.NaN(), 3, 4}, 2, 2)
	c, _ := WrapPixelBuffer([]float64{1, math.NaN(), 3, 5}, 2, 2)
	d, _ := WrapPixelBuffer([]float64{1, 2, 3, 4}, 1, 4)
	assert.True(t, a.Equal(b))
	assert.False(t, b.Equal(c))
	assert.False(t, b.Equal(d))

	e, _ := NewPixelBuffer(Byte, 3, 3)
	e.Fill(300)
	assert.Equal(t, []float64{255, 255, 255, 255, 255, 255, 255, 255, 255}, e.Float64s())
}

func TestDataTypes(t *testing.T) {
	for _, tc := range []struct {
		dt   DataType
		name string
		size int
	}{
		{Byte, "uint8", 1},
		{UInt16, "uint16", 2},
		{Int16, "int16", 2},
		{UInt32, "uint32", 4},
		{Int32, "int32", 4},
		{Float32, "float32", 4},
		{Float64, "float64", 8},
		{Unknown, "unknown", 0},
	} {
		assert.Equal(t, tc.name, tc.dt.String())
		assert.Equal(t, tc.size, tc.dt.Size())
		dt, err := ParseDataType(tc.name)
		assert.NoError(t, err)
		assert.Equal(t, tc.dt, dt)
	}
	dt, err := ParseDataType(" Byte")
	assert.NoError(t, err)
	assert.Equal(t, Byte, dt)
	_, err = ParseDataType("complex64")
	assert.Error(t, err)

	assert.True(t, Float32.IsFloat())
	assert.False(t, Int32.IsFloat())
	lo, hi := Int16.Range()
	assert.Equal(t, -32768.0, lo)
	assert.Equal(t, 32767.0, hi)

	assert.Equal(t, 0.0, Byte.Cast(math.NaN()))
	assert.True(t, math.IsNaN(Float64.Cast(math.NaN())))
	assert.Equal(t, 255.0, Byte.Cast(1e9))
	assert.Equal(t, -3.0, Int32.Cast(-2.5))
	assert.Equal(t, 3.0, Int32.Cast(2.5))
	assert.Equal(t, 4294967295.0, UInt32.Cast(math.Inf(1)))
	assert.Equal(t, 12.25, Float64.Cast(12.25))
}
