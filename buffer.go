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
	"encoding/binary"
	"fmt"
	"math"
)

// PixelBuffer is a typed array of samples of shape (bands, height, width),
// or (height, width) when it holds a single band.
//
// The underlying storage is a []uint8, []uint16, []int16, []uint32, []int32,
// []float32 or []float64 depending on the buffer's DataType. Views returned by
// Band and Window share the storage of their parent.
type PixelBuffer struct {
	dtype         DataType
	ndim          int
	bands         int
	height, width int
	offset        int
	rowStride     int
	bandStride    int
	data          interface{}
}

// NewPixelBuffer allocates a zero-filled buffer. shape must be (height, width)
// or (bands, height, width).
func NewPixelBuffer(dtype DataType, shape ...int) (*PixelBuffer, error) {
	pb := &PixelBuffer{dtype: dtype, ndim: len(shape), bands: 1}
	switch len(shape) {
	case 2:
		pb.height, pb.width = shape[0], shape[1]
	case 3:
		pb.bands, pb.height, pb.width = shape[0], shape[1], shape[2]
	default:
		return nil, fmt.Errorf("invalid shape %v", shape)
	}
	if pb.bands <= 0 || pb.height <= 0 || pb.width <= 0 {
		return nil, fmt.Errorf("invalid shape %v", shape)
	}
	n := pb.bands * pb.height * pb.width
	switch dtype {
	case Byte:
		pb.data = make([]uint8, n)
	case UInt16:
		pb.data = make([]uint16, n)
	case Int16:
		pb.data = make([]int16, n)
	case UInt32:
		pb.data = make([]uint32, n)
	case Int32:
		pb.data = make([]int32, n)
	case Float32:
		pb.data = make([]float32, n)
	case Float64:
		pb.data = make([]float64, n)
	default:
		return nil, fmt.Errorf("unsupported data type %s", dtype)
	}
	pb.rowStride = pb.width
	pb.bandStride = pb.width * pb.height
	return pb, nil
}

// WrapPixelBuffer creates a buffer of shape (height, width) or (bands, height,
// width) backed by data, which must be a slice of one of the supported types
// with exactly the number of elements implied by shape.
func WrapPixelBuffer(data interface{}, shape ...int) (*PixelBuffer, error) {
	dtype := bufferType(data)
	if dtype == Unknown {
		return nil, fmt.Errorf("unsupported buffer type %T", data)
	}
	pb, err := NewPixelBuffer(dtype, shape...)
	if err != nil {
		return nil, err
	}
	if bufferLen(data) != pb.bands*pb.height*pb.width {
		return nil, fmt.Errorf("buffer has %d elements, shape %v needs %d",
			bufferLen(data), shape, pb.bands*pb.height*pb.width)
	}
	pb.data = data
	return pb, nil
}

func bufferType(data interface{}) DataType {
	switch data.(type) {
	case []uint8:
		return Byte
	case []uint16:
		return UInt16
	case []int16:
		return Int16
	case []uint32:
		return UInt32
	case []int32:
		return Int32
	case []float32:
		return Float32
	case []float64:
		return Float64
	}
	return Unknown
}

func bufferLen(data interface{}) int {
	switch d := data.(type) {
	case []uint8:
		return len(d)
	case []uint16:
		return len(d)
	case []int16:
		return len(d)
	case []uint32:
		return len(d)
	case []int32:
		return len(d)
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	}
	return 0
}

// DataType returns the type of the samples
func (pb *PixelBuffer) DataType() DataType {
	return pb.dtype
}

// Shape returns (height, width) or (bands, height, width)
func (pb *PixelBuffer) Shape() []int {
	if pb.ndim == 2 {
		return []int{pb.height, pb.width}
	}
	return []int{pb.bands, pb.height, pb.width}
}

// NBands returns the number of bands, 1 for a two dimensional buffer
func (pb *PixelBuffer) NBands() int {
	return pb.bands
}

// Width returns the number of columns
func (pb *PixelBuffer) Width() int {
	return pb.width
}

// Height returns the number of rows
func (pb *PixelBuffer) Height() int {
	return pb.height
}

// Data returns the underlying slice. For views, the slice also contains
// samples outside of the view.
func (pb *PixelBuffer) Data() interface{} {
	return pb.data
}

func (pb *PixelBuffer) index(b, y, x int) int {
	if b < 0 || b >= pb.bands || y < 0 || y >= pb.height || x < 0 || x >= pb.width {
		panic(fmt.Sprintf("index (%d,%d,%d) out of range for shape %v", b, y, x, pb.Shape()))
	}
	return pb.offset + b*pb.bandStride + y*pb.rowStride + x
}

// At returns the sample of band b at row y and column x. b must be 0 for two
// dimensional buffers.
func (pb *PixelBuffer) At(b, y, x int) float64 {
	return getSample(pb.data, pb.index(b, y, x))
}

// Set sets the sample of band b at row y and column x. v is converted with
// DataType.Cast.
func (pb *PixelBuffer) Set(b, y, x int, v float64) {
	setSample(pb.data, pb.index(b, y, x), pb.dtype.Cast(v))
}

// Fill sets all the samples of the buffer to v
func (pb *PixelBuffer) Fill(v float64) {
	v = pb.dtype.Cast(v)
	for b := 0; b < pb.bands; b++ {
		for y := 0; y < pb.height; y++ {
			row := pb.offset + b*pb.bandStride + y*pb.rowStride
			for x := 0; x < pb.width; x++ {
				setSample(pb.data, row+x, v)
			}
		}
	}
}

// Band returns a two dimensional view on band i
func (pb *PixelBuffer) Band(i int) *PixelBuffer {
	if i < 0 || i >= pb.bands {
		panic(fmt.Sprintf("band %d out of range [0,%d)", i, pb.bands))
	}
	v := *pb
	v.ndim = 2
	v.bands = 1
	v.offset = pb.offset + i*pb.bandStride
	return &v
}

// Window returns a view on the w*h samples starting at column x and row y
func (pb *PixelBuffer) Window(x, y, w, h int) *PixelBuffer {
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > pb.width || y+h > pb.height {
		panic(fmt.Sprintf("window [%d,%d,%d,%d] out of range for %dx%d", x, y, w, h, pb.width, pb.height))
	}
	v := *pb
	v.offset = pb.offset + y*pb.rowStride + x
	v.width, v.height = w, h
	return &v
}

// Float64s returns a copy of the samples in (band, row, column) order
func (pb *PixelBuffer) Float64s() []float64 {
	ret := make([]float64, 0, pb.bands*pb.height*pb.width)
	for b := 0; b < pb.bands; b++ {
		for y := 0; y < pb.height; y++ {
			row := pb.offset + b*pb.bandStride + y*pb.rowStride
			for x := 0; x < pb.width; x++ {
				ret = append(ret, getSample(pb.data, row+x))
			}
		}
	}
	return ret
}

// Equal reports whether both buffers have the same shape and the same sample
// values. NaNs compare equal to each other.
func (pb *PixelBuffer) Equal(o *PixelBuffer) bool {
	if pb.bands != o.bands || pb.height != o.height || pb.width != o.width {
		return false
	}
	for b := 0; b < pb.bands; b++ {
		for y := 0; y < pb.height; y++ {
			for x := 0; x < pb.width; x++ {
				v1, v2 := pb.At(b, y, x), o.At(b, y, x)
				if v1 != v2 && !(math.IsNaN(v1) && math.IsNaN(v2)) {
					return false
				}
			}
		}
	}
	return true
}

func getSample(data interface{}, i int) float64 {
	switch d := data.(type) {
	case []uint8:
		return float64(d[i])
	case []uint16:
		return float64(d[i])
	case []int16:
		return float64(d[i])
	case []uint32:
		return float64(d[i])
	case []int32:
		return float64(d[i])
	case []float32:
		return float64(d[i])
	case []float64:
		return d[i]
	}
	panic("unsupported buffer type")
}

func setSample(data interface{}, i int, v float64) {
	switch d := data.(type) {
	case []uint8:
		d[i] = uint8(v)
	case []uint16:
		d[i] = uint16(v)
	case []int16:
		d[i] = int16(v)
	case []uint32:
		d[i] = uint32(v)
	case []int32:
		d[i] = int32(v)
	case []float32:
		d[i] = float32(v)
	case []float64:
		d[i] = v
	default:
		panic("unsupported buffer type")
	}
}

var le = binary.LittleEndian

// rawSample decodes sample i of raw little-endian data of type dtype
func rawSample(dtype DataType, raw []byte, i int) float64 {
	switch dtype {
	case Byte:
		return float64(raw[i])
	case UInt16:
		return float64(le.Uint16(raw[2*i:]))
	case Int16:
		return float64(int16(le.Uint16(raw[2*i:])))
	case UInt32:
		return float64(le.Uint32(raw[4*i:]))
	case Int32:
		return float64(int32(le.Uint32(raw[4*i:])))
	case Float32:
		return float64(math.Float32frombits(le.Uint32(raw[4*i:])))
	case Float64:
		return math.Float64frombits(le.Uint64(raw[8*i:]))
	}
	panic("unsupported data type")
}

// putRawSample encodes v, which must already be representable, as sample i
func putRawSample(dtype DataType, raw []byte, i int, v float64) {
	switch dtype {
	case Byte:
		raw[i] = uint8(v)
	case UInt16:
		le.PutUint16(raw[2*i:], uint16(v))
	case Int16:
		le.PutUint16(raw[2*i:], uint16(int16(v)))
	case UInt32:
		le.PutUint32(raw[4*i:], uint32(v))
	case Int32:
		le.PutUint32(raw[4*i:], uint32(int32(v)))
	case Float32:
		le.PutUint32(raw[4*i:], math.Float32bits(float32(v)))
	case Float64:
		le.PutUint64(raw[8*i:], math.Float64bits(v))
	default:
		panic("unsupported data type")
	}
}

// decodeRow copies the n raw samples of src into pb's row y of band b, starting at column x.
// src must hold samples of type dtype.
func (pb *PixelBuffer) decodeRow(dtype DataType, src []byte, b, y, x, n int) {
	start := pb.index(b, y, x)
	if dtype != pb.dtype {
		for i := 0; i < n; i++ {
			setSample(pb.data, start+i, pb.dtype.Cast(rawSample(dtype, src, i)))
		}
		return
	}
	switch d := pb.data.(type) {
	case []uint8:
		copy(d[start:start+n], src)
	case []uint16:
		for i := 0; i < n; i++ {
			d[start+i] = le.Uint16(src[2*i:])
		}
	case []int16:
		for i := 0; i < n; i++ {
			d[start+i] = int16(le.Uint16(src[2*i:]))
		}
	case []uint32:
		for i := 0; i < n; i++ {
			d[start+i] = le.Uint32(src[4*i:])
		}
	case []int32:
		for i := 0; i < n; i++ {
			d[start+i] = int32(le.Uint32(src[4*i:]))
		}
	case []float32:
		for i := 0; i < n; i++ {
			d[start+i] = math.Float32frombits(le.Uint32(src[4*i:]))
		}
	case []float64:
		for i := 0; i < n; i++ {
			d[start+i] = math.Float64frombits(le.Uint64(src[8*i:]))
		}
	}
}

// encodeRow writes n samples of pb's row y of band b, starting at column x, as raw
// samples of type dtype into dst.
func (pb *PixelBuffer) encodeRow(dtype DataType, dst []byte, b, y, x, n int) {
	start := pb.index(b, y, x)
	if dtype != pb.dtype {
		for i := 0; i < n; i++ {
			putRawSample(dtype, dst, i, dtype.Cast(getSample(pb.data, start+i)))
		}
		return
	}
	switch d := pb.data.(type) {
	case []uint8:
		copy(dst, d[start:start+n])
	case []uint16:
		for i := 0; i < n; i++ {
			le.PutUint16(dst[2*i:], d[start+i])
		}
	case []int16:
		for i := 0; i < n; i++ {
			le.PutUint16(dst[2*i:], uint16(d[start+i]))
		}
	case []uint32:
		for i := 0; i < n; i++ {
			le.PutUint32(dst[4*i:], d[start+i])
		}
	case []int32:
		for i := 0; i < n; i++ {
			le.PutUint32(dst[4*i:], uint32(d[start+i]))
		}
	case []float32:
		for i := 0; i < n; i++ {
			le.PutUint32(dst[4*i:], math.Float32bits(d[start+i]))
		}
	case []float64:
		for i := 0; i < n; i++ {
			le.PutUint64(dst[8*i:], math.Float64bits(d[start+i]))
		}
	}
}
