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
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/geoimg/internal/gtiff"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// Dataset is a georeferenced raster made of bands sharing the same size,
// geotransform and coordinate system.
//
// A Dataset is a view on a backing file: Select, SelectBands and Autoscale
// return new views on the same file, and Band returns handles on a single
// band. The file is closed, and deleted if temporary, once every Dataset and
// Band referencing it has been closed.
type Dataset struct {
	res      *resource
	views    []*bandView
	readOnly bool
	closed   bool
	// files of the masks of the views, referenced by this dataset
	masks []*resource
}

func newDataset(res *resource) *Dataset {
	ds := &Dataset{res: res, views: make([]*bandView, len(res.bands))}
	for i := range ds.views {
		ds.views[i] = newBandView(i)
	}
	return ds
}

// derive returns a new handle on the same file, holding its own reference
func (ds *Dataset) derive(views []*bandView) *Dataset {
	backing.acquire(ds.res)
	return &Dataset{res: ds.res, views: views, readOnly: ds.readOnly, masks: acquireMasks(views...)}
}

func (ds *Dataset) check() error {
	if ds.closed {
		return ErrClosed
	}
	return nil
}

func (ds *Dataset) checkWritable() error {
	if ds.closed {
		return ErrClosed
	}
	if ds.readOnly {
		return fmt.Errorf("%s: %w", ds.res.path, ErrReadOnly)
	}
	return nil
}

// resolvePath returns the file a dataset is created in, and whether it must be
// deleted once closed
func resolvePath(path string, temp bool) (string, bool) {
	if path == "" {
		return filepath.Join(WorkDir(), "geoimg-"+uuid.NewString()+".tif"), true
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
	default:
		path += ".tif"
	}
	return path, temp
}

// Create creates a new tiled GeoTIFF of width*height pixels.
//
// Unless overridden by options, the dataset has a single Byte band and
// covers the UnitBounds box in EPSG:4326. If path is empty a unique file is
// created in WorkDir() and the dataset is temporary. A ".tif" extension is
// appended to path if missing.
//
// Create fails with ErrCreation if the size, band count, data type or
// coordinate system are invalid or if the file cannot be allocated.
func Create(path string, width, height int, opts ...CreateOption) (*Dataset, error) {
	co := createOpts{
		bands: 1,
		dtype: Byte,
		srs:   "EPSG:4326",
		tileW: 256,
		tileH: 256,
	}
	for _, opt := range opts {
		opt.setCreateOpt(&co)
	}
	em := newEmitter(co.errorHandler)
	ds, err := create(path, width, height, co, nil, nil, em)
	if err != nil {
		return nil, em.fail(err)
	}
	return ds, nil
}

// CreateFrom creates a new dataset with the size, band count, data type,
// georeferencing and nodata values of src. Options override the values
// taken from src, and a BBox option replaces its geotransform.
func CreateFrom(path string, src *Dataset, opts ...CreateOption) (*Dataset, error) {
	if err := src.check(); err != nil {
		return nil, err
	}
	co := createOpts{
		bands: src.NBands(),
		dtype: src.DataType(),
		tileW: src.res.img.TileWidth,
		tileH: src.res.img.TileHeight,
	}
	for _, opt := range opts {
		opt.setCreateOpt(&co)
	}
	em := newEmitter(co.errorHandler)
	sr := src.SpatialRef()
	if co.srs != "" {
		sr = nil
	}
	var gt *GeoTransform
	if co.bbox == nil {
		sgt := src.GeoTransform()
		gt = &sgt
	}
	ds, err := create(path, src.XSize(), src.YSize(), co, sr, gt, em)
	if err != nil {
		return nil, em.fail(err)
	}
	for i, b := range ds.res.bands {
		if i >= len(src.views) {
			break
		}
		b.nodata, b.hasNoData = src.res.noData(src.views[i].index)
		ds.res.dirty = ds.res.dirty || b.hasNoData
	}
	return ds, nil
}

// create allocates the dataset. sr and gt, if not nil, take precedence over
// the srs and bbox options.
func create(path string, width, height int, co createOpts, sr *SpatialRef, gt *GeoTransform, em emitter) (*Dataset, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", ErrCreation, width, height)
	}
	if co.bands <= 0 {
		return nil, fmt.Errorf("%w: invalid band count %d", ErrCreation, co.bands)
	}
	if co.dtype == Unknown || co.dtype.Size() == 0 {
		return nil, fmt.Errorf("%w: invalid data type %s", ErrCreation, co.dtype)
	}
	if sr == nil {
		if co.srs == "" {
			co.srs = "EPSG:4326"
		}
		var err error
		if sr, err = NewSpatialRef(co.srs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCreation, err)
		}
	}
	if gt == nil {
		bbox := UnitBounds
		if co.bbox != nil {
			bbox = *co.bbox
		}
		if !(bbox.Width() > 0) || !(bbox.Height() > 0) {
			return nil, fmt.Errorf("%w: invalid bounding box %v", ErrCreation, bbox)
		}
		ngt := NewGeoTransform(bbox, width, height)
		gt = &ngt
	}
	path, temp := resolvePath(path, co.temp)
	bits, format := co.dtype.sampleFormat()
	im := &gtiff.Image{
		Width:         width,
		Height:        height,
		Bands:         co.bands,
		TileWidth:     co.tileW,
		TileHeight:    co.tileH,
		BitsPerSample: bits,
		SampleFormat:  format,
		Compression:   gtiff.None,
	}
	res, err := backing.create(path, temp, im, co.dtype, sr, *gt)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrCreation, path, err)
	}
	em.debugf("created %s: %dx%dx%d %s in %s", path, width, height, co.bands, co.dtype, sr)
	return newDataset(res), nil
}

// Open opens an existing dataset.
//
// Open fails with ErrNotFound if path does not exist, and with ErrFormat if it
// is not a tiled GeoTIFF. Files that cannot be opened for writing, and files
// read from a registered store, are opened read-only.
//
// If path is already held by another Dataset or Band, both handles share the
// same underlying file.
func Open(path string, opts ...OpenOption) (*Dataset, error) {
	oo := openOpts{}
	for _, opt := range opts {
		opt.setOpenOpt(&oo)
	}
	em := newEmitter(oo.errorHandler)
	res, err := backing.open(path, oo.readOnly, false)
	if err != nil {
		return nil, em.fail(fmt.Errorf("open %s: %w", path, err))
	}
	if res.readOnly && !oo.readOnly {
		em.debugf("%s opened read-only", path)
	}
	ds := newDataset(res)
	ds.readOnly = oo.readOnly || res.readOnly
	if oo.bandNames != nil {
		if len(oo.bandNames) != len(ds.views) {
			backing.release(res)
			return nil, em.fail(fmt.Errorf("open %s: %w: %d names for %d bands", path, ErrArity, len(oo.bandNames), len(ds.views)))
		}
		for i, n := range oo.bandNames {
			ds.views[i].name = n
		}
	}
	return ds, nil
}

// Close releases the dataset's reference on its backing file. The file is
// closed, and removed if temporary, when no other Dataset or Band uses it.
// Closing a closed dataset is a no-op.
func (ds *Dataset) Close(opts ...CloseOption) error {
	co := closeOpts{}
	for _, opt := range opts {
		opt.setCloseOpt(&co)
	}
	if ds.closed {
		return nil
	}
	ds.closed = true
	err := errors.Join(backing.release(ds.res), releaseMasks(ds.masks))
	ds.masks = nil
	if err != nil {
		return newEmitter(co.errorHandler).fail(err)
	}
	return nil
}

// Flush writes pending metadata changes to the backing file
func (ds *Dataset) Flush() error {
	if err := ds.check(); err != nil {
		return err
	}
	return ds.res.flush()
}

// Filename returns the path of the backing file
func (ds *Dataset) Filename() string {
	return ds.res.path
}

// XSize returns the number of columns
func (ds *Dataset) XSize() int {
	return ds.res.img.Width
}

// YSize returns the number of rows
func (ds *Dataset) YSize() int {
	return ds.res.img.Height
}

// NBands returns the number of bands of this view
func (ds *Dataset) NBands() int {
	return len(ds.views)
}

// DataType returns the data type the samples are stored with
func (ds *Dataset) DataType() DataType {
	return ds.res.dtype
}

// GeoTransform returns the affine pixel to georeferenced transform
func (ds *Dataset) GeoTransform() GeoTransform {
	return ds.res.gt
}

// Resolution returns the pixel size, see GeoTransform.Resolution
func (ds *Dataset) Resolution() orb.Point {
	return ds.res.gt.Resolution()
}

// SpatialRef returns the coordinate system of the dataset, nil if unknown
func (ds *Dataset) SpatialRef() *SpatialRef {
	return ds.res.srs
}

// Bounds returns the extent of the dataset in its coordinate system
func (ds *Dataset) Bounds() Bounds {
	return ds.res.gt.Bounds(ds.XSize(), ds.YSize())
}

// Extent returns the extent of the dataset as an orb.Bound
func (ds *Dataset) Extent() orb.Bound {
	return ds.Bounds().Bound()
}

// GeoLoc returns the georeferenced coordinates of pixel position (px,py).
// Pass (x+0.5,y+0.5) for the center of pixel (x,y).
func (ds *Dataset) GeoLoc(px, py float64) orb.Point {
	x, y := ds.res.gt.Apply(px, py)
	return orb.Point{x, y}
}

// Temporary returns whether the backing file is deleted once closed
func (ds *Dataset) Temporary() bool {
	return ds.res.temp
}

// Structure returns the size and tiling of the dataset
func (ds *Dataset) Structure() Structure {
	return ds.res.structure(len(ds.views))
}

// Bands returns an iterator over the bands of the dataset, in order. The
// yielded bands are borrowed from the dataset: they are valid until the
// dataset is closed, and closing them is a no-op.
func (ds *Dataset) Bands() iter.Seq2[int, *Band] {
	return func(yield func(int, *Band) bool) {
		if ds.closed {
			return
		}
		for i, v := range ds.views {
			if !yield(i, &Band{res: ds.res, view: v, readOnly: ds.readOnly, parent: ds}) {
				return
			}
		}
	}
}

// Band returns a handle on the i'th band of the view. The band holds its own
// reference on the backing file and must be closed.
func (ds *Dataset) Band(i int) (*Band, error) {
	if err := ds.check(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(ds.views) {
		return nil, fmt.Errorf("%w: index %d, dataset has %d bands", ErrBandNotFound, i, len(ds.views))
	}
	backing.acquire(ds.res)
	return &Band{res: ds.res, view: ds.views[i], readOnly: ds.readOnly, owned: true, masks: acquireMasks(ds.views[i])}, nil
}

// BandByName returns a handle on the band named name, case insensitively.
// The band must be closed.
func (ds *Dataset) BandByName(name string) (*Band, error) {
	i, err := ds.bandIndex(name)
	if err != nil {
		return nil, err
	}
	return ds.Band(i)
}

func (ds *Dataset) bandName(i int) string {
	if ds.views[i].name != "" {
		return ds.views[i].name
	}
	return ds.res.bandName(ds.views[i].index)
}

func (ds *Dataset) bandIndex(name string) (int, error) {
	for i := range ds.views {
		if strings.EqualFold(ds.bandName(i), name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrBandNotFound, name)
}

// BandNames returns the names of the bands, in order. Unnamed bands are named
// after their 1-based index in the file.
func (ds *Dataset) BandNames() []string {
	names := make([]string, len(ds.views))
	for i := range ds.views {
		names[i] = ds.bandName(i)
	}
	return names
}

// BandExists returns true if all of the given names are bands of the view
func (ds *Dataset) BandExists(names ...string) bool {
	for _, n := range names {
		if _, err := ds.bandIndex(n); err != nil {
			return false
		}
	}
	return true
}

// Select returns a new view on the bands with the given names, in the given
// order. The view must be closed.
func (ds *Dataset) Select(names ...string) (*Dataset, error) {
	if err := ds.check(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("select: %w: no band names", ErrArity)
	}
	idx := make([]int, len(names))
	for i, n := range names {
		bi, err := ds.bandIndex(n)
		if err != nil {
			return nil, fmt.Errorf("select: %w", err)
		}
		idx[i] = bi
	}
	return ds.SelectBands(idx...)
}

// SelectBands returns a new view on the bands at the given 0-based indices,
// in the given order. The view must be closed.
func (ds *Dataset) SelectBands(indices ...int) (*Dataset, error) {
	if err := ds.check(); err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("select: %w: no band indices", ErrArity)
	}
	views := make([]*bandView, len(indices))
	for i, bi := range indices {
		if bi < 0 || bi >= len(ds.views) {
			return nil, fmt.Errorf("select: %w: index %d, dataset has %d bands", ErrBandNotFound, bi, len(ds.views))
		}
		views[i] = ds.views[bi].clone()
	}
	return ds.derive(views), nil
}

// SetBandNames names the bands of the view, in order. The names are persisted
// in the backing file and are shared by all views on it.
//
// SetBandNames fails with ErrArity if len(names) differs from NBands(), and
// with ErrDuplicateBand if two bands of the file would share a name.
func (ds *Dataset) SetBandNames(names []string, opts ...SetBandNamesOption) error {
	so := setBandNamesOpts{}
	for _, opt := range opts {
		opt.setSetBandNamesOpt(&so)
	}
	em := newEmitter(so.errorHandler)
	if err := ds.checkWritable(); err != nil {
		return em.fail(err)
	}
	if len(names) != len(ds.views) {
		return em.fail(fmt.Errorf("set band names: %w: %d names for %d bands", ErrArity, len(names), len(ds.views)))
	}
	err := ds.res.update(func() error {
		final := make([]string, len(ds.res.bands))
		for i := range final {
			final[i] = ds.res.bandNameLocked(i)
		}
		for i, v := range ds.views {
			final[v.index] = names[i]
		}
		seen := make(map[string]bool, len(final))
		for i, n := range final {
			if n == "" {
				continue
			}
			if seen[strings.ToLower(n)] {
				return fmt.Errorf("%w: %q (band %d)", ErrDuplicateBand, n, i)
			}
			seen[strings.ToLower(n)] = true
		}
		for i, v := range ds.views {
			ds.res.bands[v.index].description = names[i]
		}
		return nil
	})
	if err != nil {
		return em.fail(fmt.Errorf("set band names: %w", err))
	}
	for _, v := range ds.views {
		v.name = ""
	}
	return nil
}

// SetNoData sets the nodata value of all the bands of the view
func (ds *Dataset) SetNoData(nd float64, opts ...SetNoDataOption) error {
	return ds.setNoData(nd, true, opts)
}

// ClearNoData removes the nodata value of all the bands of the view
func (ds *Dataset) ClearNoData(opts ...SetNoDataOption) error {
	return ds.setNoData(0, false, opts)
}

func (ds *Dataset) setNoData(nd float64, set bool, opts []SetNoDataOption) error {
	so := setNoDataOpts{}
	for _, opt := range opts {
		opt.setSetNoDataOpt(&so)
	}
	em := newEmitter(so.errorHandler)
	if err := ds.checkWritable(); err != nil {
		return em.fail(err)
	}
	err := ds.res.update(func() error {
		for _, v := range ds.views {
			b := ds.res.bands[v.index]
			b.nodata, b.hasNoData = nd, set
			b.generation++
		}
		return nil
	})
	if err != nil {
		return em.fail(fmt.Errorf("set nodata: %w", err))
	}
	return nil
}

// SetGain sets the gain applied to the raw samples of all the bands of the
// view, before any autoscaling.
func (ds *Dataset) SetGain(gain float64) {
	for _, v := range ds.views {
		v.setGain(gain)
	}
}

// SetOffset sets the offset added to the raw samples of all the bands of the
// view, after gain and before any autoscaling.
func (ds *Dataset) SetOffset(offset float64) {
	for _, v := range ds.views {
		v.setOffset(offset)
	}
}

// AddMask restricts the valid pixels of every band of the view to those
// where band is not 0. Masked pixels are read as nodata, and are ignored by
// statistics, histograms, autoscaling, Save and Warp. band may belong to
// another dataset of the same size; its file is kept open until the masks
// are cleared or the view is closed.
func (ds *Dataset) AddMask(band *Band) error {
	if err := ds.check(); err != nil {
		return err
	}
	if err := band.check(); err != nil {
		return fmt.Errorf("add mask: %w", err)
	}
	if band.XSize() != ds.XSize() || band.YSize() != ds.YSize() {
		return fmt.Errorf("add mask: %w: mask is %dx%d, dataset is %dx%d", ErrArity,
			band.XSize(), band.YSize(), ds.XSize(), ds.YSize())
	}
	for _, v := range ds.views {
		v.masks = append(v.masks[:len(v.masks):len(v.masks)], mask{res: band.res, index: band.view.index})
		v.stats.reset()
		backing.acquire(band.res)
		ds.masks = append(ds.masks, band.res)
	}
	return nil
}

// ClearMasks removes the masks added with AddMask from every band of the view
func (ds *Dataset) ClearMasks() error {
	if err := ds.check(); err != nil {
		return err
	}
	for _, v := range ds.views {
		v.masks = nil
		v.stats.reset()
	}
	err := releaseMasks(ds.masks)
	ds.masks = nil
	return err
}

func (ds *Dataset) scaled() bool {
	for _, v := range ds.views {
		if v.scaled() {
			return true
		}
	}
	return false
}

// Read returns the samples of all bands as a (bands, height, width) buffer.
//
// Samples are scaled with the view's gain, offset and autoscale steps unless
// the Raw option is set. The buffer has the dataset's DataType if no scaling
// applies, Float64 otherwise.
func (ds *Dataset) Read(opts ...DatasetIOOption) (*PixelBuffer, error) {
	return ds.ReadWindow(0, 0, ds.XSize(), ds.YSize(), opts...)
}

// ReadWindow returns the samples of the w*h window at column x and row y, as
// a (bands, h, w) buffer.
func (ds *Dataset) ReadWindow(x, y, w, h int, opts ...DatasetIOOption) (*PixelBuffer, error) {
	ro := datasetIOOpts{}
	for _, opt := range opts {
		opt.setDatasetIOOpt(&ro)
	}
	em := newEmitter(ro.errorHandler)
	if err := ds.check(); err != nil {
		return nil, em.fail(err)
	}
	dtype := ds.res.dtype
	if !ro.raw && ds.scaled() {
		dtype = Float64
	}
	if w <= 0 || h <= 0 {
		return nil, em.fail(fmt.Errorf("read: invalid window size %dx%d", w, h))
	}
	buf, err := NewPixelBuffer(dtype, len(ds.views), h, w)
	if err != nil {
		return nil, em.fail(err)
	}
	for i, v := range ds.views {
		if err := v.read(ds.res, x, y, w, h, buf, i, ro.raw); err != nil {
			return nil, em.fail(fmt.Errorf("read %s: %w", ds.res.path, err))
		}
	}
	return buf, nil
}

// Write stores buf, of shape (NBands(), YSize(), XSize()), in the dataset.
func (ds *Dataset) Write(buf *PixelBuffer, opts ...DatasetIOOption) error {
	return ds.WriteWindow(0, 0, buf, opts...)
}

// WriteWindow stores buf in the window starting at column x and row y. buf
// must have one band per band of the view. Samples are converted to the
// dataset's data type with DataType.Cast, without undoing any scaling of the
// view.
func (ds *Dataset) WriteWindow(x, y int, buf *PixelBuffer, opts ...DatasetIOOption) error {
	wo := datasetIOOpts{}
	for _, opt := range opts {
		opt.setDatasetIOOpt(&wo)
	}
	em := newEmitter(wo.errorHandler)
	if err := ds.checkWritable(); err != nil {
		return em.fail(err)
	}
	if buf.NBands() != len(ds.views) {
		return em.fail(fmt.Errorf("write: %w: buffer has %d bands, dataset has %d", ErrArity, buf.NBands(), len(ds.views)))
	}
	for i, v := range ds.views {
		if err := ds.res.write(v.index, x, y, buf, i); err != nil {
			return em.fail(fmt.Errorf("write %s: %w", ds.res.path, err))
		}
	}
	return nil
}

// NoDataMask returns a (height, width) Byte buffer set to 1 where any of the
// named bands holds its nodata value, and 0 elsewhere. All bands are used if
// no names are given.
func (ds *Dataset) NoDataMask(names ...string) (*PixelBuffer, error) {
	return ds.mask(names, 1)
}

// DataMask is the complement of NoDataMask: 1 where all named bands hold
// valid data.
func (ds *Dataset) DataMask(names ...string) (*PixelBuffer, error) {
	return ds.mask(names, 0)
}

func (ds *Dataset) mask(names []string, nodataValue float64) (*PixelBuffer, error) {
	if err := ds.check(); err != nil {
		return nil, err
	}
	views := ds.views
	if len(names) > 0 {
		views = make([]*bandView, len(names))
		for i, n := range names {
			bi, err := ds.bandIndex(n)
			if err != nil {
				return nil, err
			}
			views[i] = ds.views[bi]
		}
	}
	mask, err := NewPixelBuffer(Byte, ds.YSize(), ds.XSize())
	if err != nil {
		return nil, err
	}
	mask.Fill(1 - nodataValue)
	st := ds.Structure()
	for chunk, ok := st.FirstChunk(ds.res.dtype.Size()); ok; chunk, ok = chunk.Next() {
		buf, err := NewPixelBuffer(ds.res.dtype, chunk.H, chunk.W)
		if err != nil {
			return nil, err
		}
		for _, v := range views {
			nd, has := ds.res.noData(v.index)
			invalid, err := v.invalid(chunk.X0, chunk.Y0, chunk.W, chunk.H)
			if err != nil {
				return nil, err
			}
			if !has && invalid == nil {
				continue
			}
			if has {
				if err := ds.res.read(v.index, chunk.X0, chunk.Y0, chunk.W, chunk.H, buf, 0, 0, 0); err != nil {
					return nil, err
				}
			}
			for y := 0; y < chunk.H; y++ {
				for x := 0; x < chunk.W; x++ {
					if (invalid != nil && invalid[y*chunk.W+x]) || (has && isNoData(buf.At(0, y, x), ds.res.dtype.storedNoData(nd))) {
						mask.Set(0, chunk.Y0+y, chunk.X0+x, nodataValue)
					}
				}
			}
		}
	}
	return mask, nil
}
