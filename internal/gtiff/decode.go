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

package gtiff

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
)

// Decode parses the first image directory of the tiff contained in r.
func Decode(r io.ReaderAt, size int64) (*Image, error) {
	t, err := tiff.Parse(io.NewSectionReader(r, 0, size), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	ifds := t.IFDs()
	if len(ifds) == 0 {
		return nil, fmt.Errorf("%w: no image directory", ErrFormat)
	}
	ifd := ifds[0]
	im := &Image{}
	u := func(tag uint16) int {
		v := uints(ifd, tag)
		if len(v) == 0 {
			return 0
		}
		return int(v[0])
	}
	im.Width = u(tagImageWidth)
	im.Height = u(tagImageLength)
	im.Bands = u(tagSamplesPerPixel)
	if im.Bands == 0 {
		im.Bands = 1
	}
	im.TileWidth = u(tagTileWidth)
	im.TileHeight = u(tagTileLength)
	im.Compression = Compression(u(tagCompression))
	if im.Compression == 0 {
		im.Compression = None
	}
	im.BitsPerSample = u(tagBitsPerSample)
	im.SampleFormat = u(tagSampleFormat)
	if im.SampleFormat == 0 {
		im.SampleFormat = SampleUint
	}
	if im.TileWidth == 0 || im.TileHeight == 0 {
		return nil, fmt.Errorf("%w: image is not tiled", ErrFormat)
	}
	if im.Bands > 1 && u(tagPlanarConfiguration) != 2 {
		return nil, fmt.Errorf("%w: pixel interleaved images are not supported", ErrFormat)
	}
	if err := im.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	im.TileOffsets = uints(ifd, tagTileOffsets)
	im.TileByteCounts = uints(ifd, tagTileByteCounts)
	if len(im.TileOffsets) != im.TileCount() || len(im.TileByteCounts) != im.TileCount() {
		return nil, fmt.Errorf("%w: expected %d tiles, got %d", ErrFormat, im.TileCount(), len(im.TileOffsets))
	}
	im.dataEnd = headerSize
	for i := range im.TileOffsets {
		if end := int64(im.TileOffsets[i] + im.TileByteCounts[i]); end > im.dataEnd {
			if end > size {
				return nil, fmt.Errorf("%w: tile %d is truncated", ErrFormat, i)
			}
			im.dataEnd = end
		}
	}

	if mt := doubles(ifd, tagModelTransformation); len(mt) > 0 {
		im.GeoTransform, im.Georeferenced = geotransformFromMatrix(mt)
	} else {
		im.GeoTransform, im.Georeferenced = geotransformFromTiepoint(
			doubles(ifd, tagModelPixelScale), doubles(ifd, tagModelTiepoint))
	}
	if im.Georeferenced && !finite(im.GeoTransform[:]...) {
		return nil, fmt.Errorf("%w: invalid georeferencing", ErrFormat)
	}
	parseGeoKeys(im, uints(ifd, tagGeoKeyDirectory))

	im.NoData = ascii(ifd, tagGDALNoData)
	if xm := ascii(ifd, tagGDALMetadata); xm != "" {
		md, err := ParseMetadata(xm)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		im.Metadata = md
	}
	return im, nil
}

func parseGeoKeys(im *Image, keys []uint64) {
	if len(keys) < 4 {
		return
	}
	n := int(keys[3])
	for i := 0; i < n && 4+4*i+3 < len(keys); i++ {
		k := keys[4+4*i:]
		if k[1] != 0 {
			continue
		}
		switch k[0] {
		case geoKeyModelType:
			im.Geographic = k[3] == 2
		case geoKeyGeographicType:
			im.EPSG = int(k[3])
			im.Geographic = true
		case geoKeyProjectedType:
			im.EPSG = int(k[3])
		}
	}
}

// fieldBytes returns the raw value of a field along with the size of a single
// element.
func fieldBytes(ifd tiff.IFD, tag uint16) ([]byte, int, tiff.Field) {
	if !ifd.HasField(tag) {
		return nil, 0, nil
	}
	fld := ifd.GetField(tag)
	n := int(fld.Count())
	b := fld.Value().Bytes()
	if n == 0 || len(b) < n {
		return nil, 0, nil
	}
	return b, len(b) / n, fld
}

func uints(ifd tiff.IFD, tag uint16) []uint64 {
	b, sz, fld := fieldBytes(ifd, tag)
	if fld == nil {
		return nil
	}
	order := fld.Value().Order()
	n := int(fld.Count())
	ret := make([]uint64, n)
	for i := range ret {
		switch sz {
		case 1:
			ret[i] = uint64(b[i])
		case 2:
			ret[i] = uint64(order.Uint16(b[2*i:]))
		case 4:
			ret[i] = uint64(order.Uint32(b[4*i:]))
		case 8:
			ret[i] = order.Uint64(b[8*i:])
		default:
			return nil
		}
	}
	return ret
}

func doubles(ifd tiff.IFD, tag uint16) []float64 {
	b, sz, fld := fieldBytes(ifd, tag)
	if fld == nil || sz != 8 {
		return nil
	}
	order := fld.Value().Order()
	ret := make([]float64, fld.Count())
	for i := range ret {
		ret[i] = math.Float64frombits(order.Uint64(b[8*i:]))
	}
	return ret
}

func ascii(ifd tiff.IFD, tag uint16) string {
	if !ifd.HasField(tag) {
		return ""
	}
	return strings.TrimRight(string(ifd.GetField(tag).Value().Bytes()), "\x00 ")
}

// ReadTile decodes tile idx into dst, which must be TileSize() long.
// Sparse tiles (with a zero offset and size) are returned zero-filled.
func ReadTile(r io.ReaderAt, im *Image, idx int, dst []byte) error {
	if len(dst) != im.TileSize() {
		return fmt.Errorf("tile size mismatch: got %d, want %d", len(dst), im.TileSize())
	}
	off, cnt := int64(im.TileOffsets[idx]), int64(im.TileByteCounts[idx])
	if off == 0 && cnt == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}
	switch im.Compression {
	case None:
		if cnt < int64(len(dst)) {
			return fmt.Errorf("%w: tile %d is too small", ErrFormat, idx)
		}
		_, err := r.ReadAt(dst, off)
		if err == io.EOF {
			err = nil
		}
		return err
	case Deflate:
		zbuf := make([]byte, cnt)
		if _, err := r.ReadAt(zbuf, off); err != nil && err != io.EOF {
			return err
		}
		zr, err := zlib.NewReader(bytes.NewReader(zbuf))
		if err != nil {
			return fmt.Errorf("%w: tile %d: %v", ErrFormat, idx, err)
		}
		defer zr.Close()
		if _, err := io.ReadFull(zr, dst); err != nil {
			return fmt.Errorf("%w: tile %d: %v", ErrFormat, idx, err)
		}
		return nil
	}
	return fmt.Errorf("%w: unsupported compression %d", ErrFormat, im.Compression)
}
