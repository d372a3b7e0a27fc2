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
	"math"
	"sort"
)

const headerSize = 8

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shortEntry(tag uint16, vals ...uint16) entry {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		le.PutUint16(b[2*i:], v)
	}
	return entry{tag: tag, typ: typeShort, count: uint32(len(vals)), data: b}
}

func longEntry(tag uint16, vals ...uint32) entry {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		le.PutUint32(b[4*i:], v)
	}
	return entry{tag: tag, typ: typeLong, count: uint32(len(vals)), data: b}
}

func doubleEntry(tag uint16, vals ...float64) entry {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		le.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return entry{tag: tag, typ: typeDouble, count: uint32(len(vals)), data: b}
}

func asciiEntry(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func repeat16(v uint16, n int) []uint16 {
	r := make([]uint16, n)
	for i := range r {
		r[i] = v
	}
	return r
}

func (im *Image) entries() ([]entry, error) {
	offsets := make([]uint32, len(im.TileOffsets))
	counts := make([]uint32, len(im.TileByteCounts))
	for i := range im.TileOffsets {
		if im.TileOffsets[i] > math.MaxUint32 || im.TileByteCounts[i] > math.MaxUint32 {
			return nil, ErrTooLarge
		}
		offsets[i] = uint32(im.TileOffsets[i])
		counts[i] = uint32(im.TileByteCounts[i])
	}
	ents := []entry{
		longEntry(tagImageWidth, uint32(im.Width)),
		longEntry(tagImageLength, uint32(im.Height)),
		shortEntry(tagBitsPerSample, repeat16(uint16(im.BitsPerSample), im.Bands)...),
		shortEntry(tagCompression, uint16(im.Compression)),
		shortEntry(tagPhotometric, 1),
		shortEntry(tagSamplesPerPixel, uint16(im.Bands)),
		shortEntry(tagPlanarConfiguration, 2),
		shortEntry(tagTileWidth, uint16(im.TileWidth)),
		shortEntry(tagTileLength, uint16(im.TileHeight)),
		longEntry(tagTileOffsets, offsets...),
		longEntry(tagTileByteCounts, counts...),
		shortEntry(tagSampleFormat, repeat16(uint16(im.SampleFormat), im.Bands)...),
	}
	if im.Bands > 1 {
		ents = append(ents, shortEntry(tagExtraSamples, repeat16(0, im.Bands-1)...))
	}
	if im.Georeferenced {
		gt := im.GeoTransform
		if im.noRotation() {
			ents = append(ents,
				doubleEntry(tagModelPixelScale, gt[1], -gt[5], 0),
				doubleEntry(tagModelTiepoint, 0, 0, 0, gt[0], gt[3], 0))
		} else {
			ents = append(ents, doubleEntry(tagModelTransformation,
				gt[1], gt[2], 0, gt[0],
				gt[4], gt[5], 0, gt[3],
				0, 0, 0, 0,
				0, 0, 0, 1))
		}
	}
	if im.EPSG > 0 {
		modelType, csKey := uint16(1), uint16(geoKeyProjectedType)
		if im.Geographic {
			modelType, csKey = 2, geoKeyGeographicType
		}
		ents = append(ents, shortEntry(tagGeoKeyDirectory,
			1, 1, 0, 3,
			geoKeyModelType, 0, 1, modelType,
			geoKeyRasterType, 0, 1, 1,
			csKey, 0, 1, uint16(im.EPSG)))
	}
	if len(im.Metadata.Items) > 0 {
		xm, err := im.Metadata.Marshal()
		if err != nil {
			return nil, err
		}
		ents = append(ents, asciiEntry(tagGDALMetadata, xm))
	}
	if im.NoData != "" {
		ents = append(ents, asciiEntry(tagGDALNoData, im.NoData))
	}
	return ents, nil
}

// encodeIFD lays out the directory for entries at file offset off, with
// values that do not fit in an entry stored right after it.
func encodeIFD(off uint32, ents []entry) []byte {
	sort.Slice(ents, func(i, j int) bool { return ents[i].tag < ents[j].tag })
	buf := make([]byte, 2+12*len(ents)+4)
	le.PutUint16(buf, uint16(len(ents)))
	overflowOff := off + uint32(len(buf))
	var overflow []byte
	for i, e := range ents {
		p := buf[2+12*i:]
		le.PutUint16(p, e.tag)
		le.PutUint16(p[2:], e.typ)
		le.PutUint32(p[4:], e.count)
		if len(e.data) <= 4 {
			copy(p[8:12], e.data)
			continue
		}
		le.PutUint32(p[8:], overflowOff+uint32(len(overflow)))
		overflow = append(overflow, e.data...)
		if len(overflow)%2 == 1 {
			overflow = append(overflow, 0)
		}
	}
	return append(buf, overflow...)
}

// WriteIFD (re)writes the image directory after the tile data, and points the
// file header to it. Anything previously stored after the tile data is discarded.
func WriteIFD(f File, im *Image) error {
	ents, err := im.entries()
	if err != nil {
		return err
	}
	off := im.dataEnd
	if off%2 == 1 {
		off++
	}
	ifd := encodeIFD(uint32(off), ents)
	if off+int64(len(ifd)) > math.MaxUint32 {
		return ErrTooLarge
	}
	if err := f.Truncate(off); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	if _, err := f.WriteAt(ifd, off); err != nil {
		return fmt.Errorf("write ifd: %w", err)
	}
	hdr := []byte{'I', 'I', 42, 0, 0, 0, 0, 0}
	le.PutUint32(hdr[4:], uint32(off))
	if _, err := f.WriteAt(hdr, 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Create initializes f with an uncompressed image whose tiles are all
// preallocated (and zero-filled), so that they can later be updated in place
// with WriteTile.
func Create(f File, im *Image) error {
	im.Compression = None
	if err := im.validate(); err != nil {
		return err
	}
	ntiles := im.TileCount()
	tsize := int64(im.TileSize())
	if headerSize+int64(ntiles)*tsize > math.MaxUint32 {
		return ErrTooLarge
	}
	im.TileOffsets = make([]uint64, ntiles)
	im.TileByteCounts = make([]uint64, ntiles)
	for i := 0; i < ntiles; i++ {
		im.TileOffsets[i] = uint64(headerSize + int64(i)*tsize)
		im.TileByteCounts[i] = uint64(tsize)
	}
	im.dataEnd = headerSize + int64(ntiles)*tsize
	return WriteIFD(f, im)
}

// WriteTile stores the uncompressed content of tile idx in place
func WriteTile(f File, im *Image, idx int, data []byte) error {
	if im.Compression != None {
		return ErrCompressed
	}
	if len(data) != im.TileSize() {
		return fmt.Errorf("tile size mismatch: got %d, want %d", len(data), im.TileSize())
	}
	_, err := f.WriteAt(data, int64(im.TileOffsets[idx]))
	return err
}

// StreamWriter appends tiles sequentially, compressing them if requested.
// It is used to produce files whose tiles are never rewritten.
type StreamWriter struct {
	f   File
	im  *Image
	pos int64
	zb  bytes.Buffer
}

// NewStreamWriter prepares f to receive the tiles of im through WriteTile.
func NewStreamWriter(f File, im *Image) (*StreamWriter, error) {
	if err := im.validate(); err != nil {
		return nil, err
	}
	if err := f.Truncate(0); err != nil {
		return nil, fmt.Errorf("truncate: %w", err)
	}
	im.TileOffsets = make([]uint64, im.TileCount())
	im.TileByteCounts = make([]uint64, im.TileCount())
	return &StreamWriter{f: f, im: im, pos: headerSize}, nil
}

// WriteTile appends the content of tile idx
func (sw *StreamWriter) WriteTile(idx int, data []byte) error {
	if len(data) != sw.im.TileSize() {
		return fmt.Errorf("tile size mismatch: got %d, want %d", len(data), sw.im.TileSize())
	}
	if sw.im.Compression == Deflate {
		sw.zb.Reset()
		zw := zlib.NewWriter(&sw.zb)
		if _, err := zw.Write(data); err != nil {
			return fmt.Errorf("deflate: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("deflate: %w", err)
		}
		data = sw.zb.Bytes()
	}
	if sw.pos+int64(len(data)) > math.MaxUint32 {
		return ErrTooLarge
	}
	if _, err := sw.f.WriteAt(data, sw.pos); err != nil {
		return err
	}
	sw.im.TileOffsets[idx] = uint64(sw.pos)
	sw.im.TileByteCounts[idx] = uint64(len(data))
	sw.pos += int64(len(data))
	if sw.pos%2 == 1 {
		sw.pos++
	}
	return nil
}

// Close writes the image directory
func (sw *StreamWriter) Close() error {
	sw.im.dataEnd = sw.pos
	return WriteIFD(sw.f, sw.im)
}
