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
	"fmt"
	"math"
	"strings"

	"github.com/airbusgeo/geoimg/internal/gtiff"
)

// DataType is a pixel data types
type DataType int

const (
	// Unknown / Unset Datatype
	Unknown DataType = iota
	// Byte / UInt8
	Byte
	// UInt16 DataType
	UInt16
	// Int16 DataType
	Int16
	// UInt32 DataType
	UInt32
	// Int32 DataType
	Int32
	// Float32 DataType
	Float32
	// Float64 DataType
	Float64
)

var dataTypeNames = map[DataType]string{
	Unknown: "unknown",
	Byte:    "uint8",
	UInt16:  "uint16",
	Int16:   "int16",
	UInt32:  "uint32",
	Int32:   "int32",
	Float32: "float32",
	Float64: "float64",
}

// String returns the numpy-like name of the type, e.g. "uint8" for Byte
func (dtype DataType) String() string {
	if s, ok := dataTypeNames[dtype]; ok {
		return s
	}
	return fmt.Sprintf("datatype(%d)", int(dtype))
}

// ParseDataType returns the DataType named s. "byte" is accepted for "uint8"
// and the empty string for "unknown".
func ParseDataType(s string) (DataType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "unknown":
		return Unknown, nil
	case "byte":
		return Byte, nil
	}
	for dt, name := range dataTypeNames {
		if name == s {
			return dt, nil
		}
	}
	return Unknown, fmt.Errorf("unknown data type %q", s)
}

// Size returns the number of bytes needed for one instance of DataType
func (dtype DataType) Size() int {
	switch dtype {
	case Byte:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether dtype is a floating point type
func (dtype DataType) IsFloat() bool {
	return dtype == Float32 || dtype == Float64
}

// Range returns the smallest and largest values representable by dtype
func (dtype DataType) Range() (float64, float64) {
	switch dtype {
	case Byte:
		return 0, math.MaxUint8
	case UInt16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case UInt32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Float32:
		return -math.MaxFloat32, math.MaxFloat32
	default:
		return -math.MaxFloat64, math.MaxFloat64
	}
}

// Cast converts v to the closest value representable by dtype: integer types
// are rounded to the nearest integer and clamped to their range.
func (dtype DataType) Cast(v float64) float64 {
	if math.IsNaN(v) {
		if dtype.IsFloat() {
			return v
		}
		return 0
	}
	lo, hi := dtype.Range()
	if !dtype.IsFloat() {
		v = math.Round(v)
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	if dtype == Float32 {
		return float64(float32(v))
	}
	return v
}

func (dtype DataType) sampleFormat() (bits int, format int) {
	switch dtype {
	case Byte, UInt16, UInt32:
		return dtype.Size() * 8, gtiff.SampleUint
	case Int16, Int32:
		return dtype.Size() * 8, gtiff.SampleInt
	default:
		return dtype.Size() * 8, gtiff.SampleFloat
	}
}

func dataTypeFromSampleFormat(bits, format int) (DataType, error) {
	switch {
	case format == gtiff.SampleUint && bits == 8:
		return Byte, nil
	case format == gtiff.SampleUint && bits == 16:
		return UInt16, nil
	case format == gtiff.SampleUint && bits == 32:
		return UInt32, nil
	case format == gtiff.SampleInt && bits == 16:
		return Int16, nil
	case format == gtiff.SampleInt && bits == 32:
		return Int32, nil
	case format == gtiff.SampleFloat && bits == 32:
		return Float32, nil
	case format == gtiff.SampleFloat && bits == 64:
		return Float64, nil
	}
	return Unknown, fmt.Errorf("unsupported sample format %d with %d bits", format, bits)
}

// storedNoData returns the value nodata samples hold once stored as dtype
func (dtype DataType) storedNoData(nd float64) float64 {
	if dtype == Float32 {
		return float64(float32(nd))
	}
	return nd
}
