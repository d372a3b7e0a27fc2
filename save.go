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
	"os"
	"path/filepath"

	"github.com/airbusgeo/cogger"
	"github.com/airbusgeo/geoimg/internal/gtiff"
	"github.com/google/uuid"
)

// output describes a dataset produced tile by tile by Save and Warp
type output struct {
	path         string
	temp         bool
	width        int
	height       int
	dtype        DataType
	srs          *SpatialRef
	gt           GeoTransform
	tileW, tileH int
	compression  Compression
	cog          bool
	// bands holds the descriptions, nodata values and metadata of the output bands
	bands []*bandState
	meta  map[string]string
}

// fillFunc populates buf, of shape (bands, b.H, b.W), with the content of block b
type fillFunc func(b Block, buf *PixelBuffer) error

// write produces the output file block by block and opens it. Nothing is
// left on disk if it fails.
func (o *output) write(fill fillFunc, em emitter) (*Dataset, error) {
	path, temp := resolvePath(o.path, o.temp)
	if backing.inUse(path) {
		return nil, fmt.Errorf("%w: %s is in use by another dataset", ErrCreation, path)
	}
	bits, format := o.dtype.sampleFormat()
	im := &gtiff.Image{
		Width:         o.width,
		Height:        o.height,
		Bands:         len(o.bands),
		TileWidth:     o.tileW,
		TileHeight:    o.tileH,
		BitsPerSample: bits,
		SampleFormat:  format,
		Compression:   o.compression.tiff(),
	}
	// an unregistered resource is only used to lay out the metadata of im
	layout := &resource{img: im, srs: o.srs, gt: o.gt, bands: o.bands, meta: o.meta}
	layout.syncImage()

	target := path
	if o.cog {
		target = filepath.Join(filepath.Dir(path), "."+uuid.NewString()+".tif")
	}
	if err := o.writeTiles(target, im, fill); err != nil {
		os.Remove(target)
		return nil, err
	}
	if o.cog {
		err := rewriteCOG(target, path)
		os.Remove(target)
		if err != nil {
			os.Remove(path)
			return nil, err
		}
	}
	em.debugf("wrote %s: %dx%dx%d %s", path, o.width, o.height, len(o.bands), o.dtype)
	res, err := backing.open(path, o.cog, temp)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	ds := newDataset(res)
	ds.readOnly = res.readOnly
	return ds, nil
}

func (o *output) writeTiles(target string, im *gtiff.Image, fill fillFunc) error {
	f, err := os.OpenFile(target, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCreation, err)
	}
	defer f.Close()
	sw, err := gtiff.NewStreamWriter(f, im)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCreation, err)
	}
	ss := o.dtype.Size()
	tile := make([]byte, im.TileSize())
	st := Structure{Width: o.width, Height: o.height, BlockWidth: o.tileW, BlockHeight: o.tileH}
	for b, ok := st.FirstBlock(); ok; b, ok = b.Next() {
		buf, err := NewPixelBuffer(o.dtype, len(o.bands), b.H, b.W)
		if err != nil {
			return err
		}
		if err := fill(b, buf); err != nil {
			return err
		}
		for band := range o.bands {
			clear(tile)
			for y := 0; y < b.H; y++ {
				buf.encodeRow(o.dtype, tile[y*o.tileW*ss:], band, y, 0, b.W)
			}
			if err := sw.WriteTile(im.TileIndex(band, b.col, b.row), tile); err != nil {
				return fmt.Errorf("write tile: %w", err)
			}
		}
	}
	if err := sw.Close(); err != nil {
		return fmt.Errorf("write directory: %w", err)
	}
	return f.Close()
}

// rewriteCOG reorganizes the tiff at src as a cloud optimized geotiff at dst
func rewriteCOG(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCreation, err)
	}
	if err := cogger.Rewrite(out, in); err != nil {
		out.Close()
		return fmt.Errorf("cogger.rewrite: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}

// outputBands returns the persisted state of the bands of the view, to be
// carried over to a derived dataset of type dtype.
func (ds *Dataset) outputBands(dtype DataType) []*bandState {
	ds.res.mu.Lock()
	defer ds.res.mu.Unlock()
	bands := make([]*bandState, len(ds.views))
	for i, v := range ds.views {
		src := ds.res.bands[v.index]
		b := &bandState{description: src.description, meta: make(map[string]string, len(src.meta))}
		if v.name != "" {
			b.description = v.name
		}
		if src.hasNoData {
			b.nodata, b.hasNoData = dtype.Cast(src.nodata), true
		}
		for k, val := range src.meta {
			b.meta[k] = val
		}
		bands[i] = b
	}
	return bands
}

func (ds *Dataset) outputMetadata() map[string]string {
	ds.res.mu.Lock()
	defer ds.res.mu.Unlock()
	meta := make(map[string]string, len(ds.res.meta))
	for k, v := range ds.res.meta {
		meta[k] = v
	}
	return meta
}

// Save writes the view to a new dataset at path, with samples scaled and cast
// to dtype with DataType.Cast. An Unknown dtype keeps the dataset's type. Band
// names, nodata values and metadata are carried over. An empty path creates a
// temporary dataset.
//
// The returned dataset must be closed. If Save fails, no file is left at path.
func (ds *Dataset) Save(path string, dtype DataType, opts ...SaveOption) (*Dataset, error) {
	so := saveOpts{
		tileW: ds.res.img.TileWidth,
		tileH: ds.res.img.TileHeight,
	}
	for _, opt := range opts {
		opt.setSaveOpt(&so)
	}
	em := newEmitter(so.errorHandler)
	if err := ds.check(); err != nil {
		return nil, em.fail(err)
	}
	if dtype == Unknown {
		dtype = ds.res.dtype
	}
	if dtype.Size() == 0 {
		return nil, em.fail(fmt.Errorf("save: %w: invalid data type %s", ErrCreation, dtype))
	}
	out := &output{
		path:        path,
		temp:        so.temp,
		width:       ds.XSize(),
		height:      ds.YSize(),
		dtype:       dtype,
		srs:         ds.res.srs,
		gt:          ds.res.gt,
		tileW:       so.tileW,
		tileH:       so.tileH,
		compression: so.compression,
		cog:         so.cog,
		bands:       ds.outputBands(dtype),
		meta:        ds.outputMetadata(),
	}
	scaled := ds.scaled()
	fill := func(b Block, buf *PixelBuffer) error {
		src := buf
		if scaled {
			var err error
			if src, err = NewPixelBuffer(Float64, len(ds.views), b.H, b.W); err != nil {
				return err
			}
		}
		for i, v := range ds.views {
			if err := v.read(ds.res, b.X0, b.Y0, b.W, b.H, src, i, false); err != nil {
				return err
			}
		}
		if scaled {
			for i := range ds.views {
				for y := 0; y < b.H; y++ {
					for x := 0; x < b.W; x++ {
						buf.Set(i, y, x, src.At(i, y, x))
					}
				}
			}
		}
		return nil
	}
	sds, err := out.write(fill, em)
	if err != nil {
		return nil, em.fail(fmt.Errorf("save %s: %w", path, err))
	}
	return sds, nil
}
