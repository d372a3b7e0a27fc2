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

// Package gtiff reads and writes the tiled, planar-separate GeoTIFF files
// used as backing storage for geoimg datasets.
package gtiff

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagSamplesPerPixel     = 277
	tagPlanarConfiguration = 284
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagExtraSamples        = 338
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGDALMetadata        = 42112
	tagGDALNoData          = 42113
)

const (
	typeByte   = 1
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

const (
	geoKeyModelType      = 1024
	geoKeyRasterType     = 1025
	geoKeyGeographicType = 2048
	geoKeyProjectedType  = 3072
)

// SampleFormat values as stored in the SampleFormat tag
const (
	SampleUint  = 1
	SampleInt   = 2
	SampleFloat = 3
)

// Compression is the compression scheme applied to tiles
type Compression uint16

const (
	// None stores tiles uncompressed. Tiles can then be rewritten in place.
	None Compression = 1
	// Deflate stores zlib-compressed tiles.
	Deflate Compression = 8
)

var (
	// ErrFormat is returned when a file is not a GeoTIFF this package can handle
	ErrFormat = errors.New("unsupported or corrupt tiff")
	// ErrCompressed is returned when trying to rewrite a tile of a compressed image
	ErrCompressed = errors.New("cannot update tiles of a compressed image")
	// ErrTooLarge is returned when the image does not fit in a classic tiff
	ErrTooLarge = errors.New("image too large for a classic tiff")
)

var le = binary.LittleEndian

// File is the storage an Image is written to
type File interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
}

// Image describes the layout and georeferencing of a GeoTIFF
type Image struct {
	Width, Height         int
	Bands                 int
	TileWidth, TileHeight int
	BitsPerSample         int
	SampleFormat          int
	Compression           Compression

	// GeoTransform is only meaningful if Georeferenced is set
	GeoTransform  [6]float64
	Georeferenced bool
	// EPSG is the code of the coordinate system, 0 if unknown
	EPSG       int
	Geographic bool

	// NoData is the content of the GDAL_NODATA tag, empty if unset
	NoData   string
	Metadata Metadata

	TileOffsets    []uint64
	TileByteCounts []uint64

	dataEnd int64
}

// TilesAcross returns the number of tiles in a row
func (im *Image) TilesAcross() int {
	return (im.Width + im.TileWidth - 1) / im.TileWidth
}

// TilesDown returns the number of tiles in a column
func (im *Image) TilesDown() int {
	return (im.Height + im.TileHeight - 1) / im.TileHeight
}

// TileCount returns the total number of tiles, all bands included
func (im *Image) TileCount() int {
	return im.TilesAcross() * im.TilesDown() * im.Bands
}

// TileIndex returns the index in TileOffsets of tile (tx,ty) of the given band
func (im *Image) TileIndex(band, tx, ty int) int {
	return band*im.TilesAcross()*im.TilesDown() + ty*im.TilesAcross() + tx
}

// TileSize returns the uncompressed size in bytes of a tile
func (im *Image) TileSize() int {
	return im.TileWidth * im.TileHeight * im.BitsPerSample / 8
}

func (im *Image) validate() error {
	if im.Width <= 0 || im.Height <= 0 || im.Bands <= 0 {
		return errors.New("invalid image size")
	}
	if im.TileWidth <= 0 || im.TileHeight <= 0 || im.TileWidth%16 != 0 || im.TileHeight%16 != 0 {
		return errors.New("tile size must be a positive multiple of 16")
	}
	if im.TileWidth > math.MaxUint16 || im.TileHeight > math.MaxUint16 {
		return errors.New("tile size must not exceed 65535")
	}
	switch im.BitsPerSample {
	case 8, 16, 32, 64:
	default:
		return errors.New("invalid bits per sample")
	}
	if im.Compression != None && im.Compression != Deflate {
		return errors.New("invalid compression")
	}
	return nil
}

// noRotation reports whether the geotransform is north-up
func (im *Image) noRotation() bool {
	return im.GeoTransform[2] == 0 && im.GeoTransform[4] == 0
}

func geotransformFromTiepoint(scale, tie []float64) ([6]float64, bool) {
	if len(scale) < 2 || len(tie) < 6 {
		return [6]float64{}, false
	}
	return [6]float64{
		tie[3] - tie[0]*scale[0], scale[0], 0,
		tie[4] + tie[1]*scale[1], 0, -scale[1],
	}, true
}

func geotransformFromMatrix(m []float64) ([6]float64, bool) {
	if len(m) < 16 {
		return [6]float64{}, false
	}
	return [6]float64{m[3], m[0], m[1], m[7], m[4], m[5]}, true
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
