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
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/airbusgeo/geoimg/internal/gtiff"
	lru "github.com/hashicorp/golang-lru"
)

// bandState is the persisted state of a single band of a resource
type bandState struct {
	description string
	nodata      float64
	hasNoData   bool
	meta        map[string]string
	// generation is incremented each time the band's pixels are written
	generation uint64
}

// resource is the single storage handle shared by all datasets and bands
// pointing to the same file. Its lifetime is managed by the arena.
type resource struct {
	mu       sync.Mutex
	key      string
	path     string
	temp     bool
	refs     int
	file     *os.File
	reader   io.ReaderAt
	readOnly bool
	closed   bool
	dirty    bool

	img   *gtiff.Image
	dtype DataType
	srs   *SpatialRef
	gt    GeoTransform
	bands []*bandState
	meta  map[string]string
	tiles *lru.Cache
}

// arena holds the open resources, keyed by absolute path. A resource is
// closed, and its file deleted if it is temporary, when its last reference
// is released.
type arena struct {
	mu        sync.Mutex
	resources map[string]*resource
}

var backing = &arena{resources: map[string]*resource{}}

func arenaKey(path string) string {
	if st, _ := storeFor(path); st != nil {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// inUse reports whether path is currently held by a live resource
func (a *arena) inUse(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.resources[arenaKey(path)]
	return ok
}

// create allocates a new uncompressed dataset file. The returned resource
// holds a single reference.
func (a *arena) create(path string, temp bool, im *gtiff.Image, dtype DataType, srs *SpatialRef, gt GeoTransform) (*resource, error) {
	key := arenaKey(path)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.resources[key]; ok {
		return nil, fmt.Errorf("%s is in use by another dataset", path)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	r := &resource{
		key:    key,
		path:   path,
		temp:   temp,
		refs:   1,
		file:   f,
		reader: f,
		img:    im,
		dtype:  dtype,
		srs:    srs,
		gt:     gt,
		meta:   map[string]string{},
	}
	r.bands = make([]*bandState, im.Bands)
	for i := range r.bands {
		r.bands[i] = &bandState{meta: map[string]string{}}
	}
	r.syncImage()
	if err := gtiff.Create(f, im); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	r.tiles, _ = lru.New(tileCacheEntries(im))
	a.resources[key] = r
	return r, nil
}

// open returns the resource for path, loading it if it is not already held.
// temp only applies when the resource is loaded by this call.
func (a *arena) open(path string, readOnly, temp bool) (*resource, error) {
	key := arenaKey(path)
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.resources[key]; ok {
		r.refs++
		return r, nil
	}
	r, err := loadResource(path, readOnly)
	if err != nil {
		return nil, err
	}
	r.key = key
	r.temp = temp
	r.refs = 1
	a.resources[key] = r
	return r, nil
}

func (a *arena) acquire(r *resource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r.refs++
}

// release drops a reference to r. The last release flushes pending metadata,
// closes the file and removes it if the resource is temporary.
func (a *arena) release(r *resource) error {
	a.mu.Lock()
	r.refs--
	if r.refs > 0 {
		a.mu.Unlock()
		return nil
	}
	delete(a.resources, r.key)
	a.mu.Unlock()
	return r.close()
}

// refCount returns the number of live references to the resource at path
func (a *arena) refCount(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.resources[arenaKey(path)]; ok {
		return r.refs
	}
	return 0
}

func tileCacheEntries(im *gtiff.Image) int {
	n := ChunkSize() / im.TileSize()
	if n < 16 {
		n = 16
	}
	return n
}

func loadResource(path string, readOnly bool) (*resource, error) {
	var (
		ra   io.ReaderAt
		f    *os.File
		size int64
		err  error
	)
	if st, key := storeFor(path); st != nil {
		size, err = st.Size(key)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
			}
			return nil, fmt.Errorf("size %s: %w", path, err)
		}
		ra = keyReader{store: st, key: key}
		readOnly = true
	} else {
		fi, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
			}
			return nil, err
		}
		if fi.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrFormat, path)
		}
		size = fi.Size()
		flag := os.O_RDWR
		if readOnly {
			flag = os.O_RDONLY
		}
		f, err = os.OpenFile(path, flag, 0)
		if err != nil && !readOnly && errors.Is(err, os.ErrPermission) {
			f, err = os.Open(path)
			readOnly = true
		}
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
			}
			return nil, err
		}
		ra = f
	}
	fail := func(err error) (*resource, error) {
		if f != nil {
			f.Close()
		}
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	im, err := gtiff.Decode(ra, size)
	if err != nil {
		return fail(err)
	}
	dtype, err := dataTypeFromSampleFormat(im.BitsPerSample, im.SampleFormat)
	if err != nil {
		return fail(err)
	}
	r := &resource{
		path:     path,
		file:     f,
		reader:   ra,
		readOnly: readOnly,
		img:      im,
		dtype:    dtype,
		gt:       GeoTransform{0, 1, 0, 0, 0, 1},
		meta:     map[string]string{},
	}
	if im.Georeferenced {
		r.gt = im.GeoTransform
	}
	if im.EPSG > 0 {
		r.srs, err = NewSpatialRefFromEPSG(im.EPSG)
		if err != nil {
			r.srs = unsupportedSpatialRef(im.EPSG, im.Geographic)
		}
	}
	if err := r.loadMetadata(); err != nil {
		return fail(err)
	}
	r.tiles, _ = lru.New(tileCacheEntries(im))
	return r, nil
}

func (r *resource) loadMetadata() error {
	r.bands = make([]*bandState, r.img.Bands)
	for i := range r.bands {
		r.bands[i] = &bandState{meta: map[string]string{}}
	}
	if r.img.NoData != "" {
		nd, err := parseFloat(r.img.NoData)
		if err != nil {
			return fmt.Errorf("invalid nodata %q", r.img.NoData)
		}
		for _, b := range r.bands {
			b.nodata, b.hasNoData = nd, true
		}
	}
	for _, it := range r.img.Metadata.Items {
		if it.Sample == nil {
			r.meta[it.Name] = it.Value
			continue
		}
		if *it.Sample < 0 || *it.Sample >= len(r.bands) {
			continue
		}
		b := r.bands[*it.Sample]
		switch it.Role {
		case "description":
			b.description = it.Value
		case "nodata":
			nd, err := parseFloat(it.Value)
			if err != nil {
				return fmt.Errorf("invalid nodata %q for band %d", it.Value, *it.Sample)
			}
			b.nodata, b.hasNoData = nd, true
		default:
			b.meta[it.Name] = it.Value
		}
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// syncImage copies the georeferencing and metadata of the resource into its
// image description, ready to be written out.
func (r *resource) syncImage() {
	md := gtiff.Metadata{}
	for _, k := range sortedKeys(r.meta) {
		md.Add(k, r.meta[k])
	}
	for i, b := range r.bands {
		if b.description != "" {
			md.AddBand(i, "DESCRIPTION", "description", b.description)
		}
		if b.hasNoData {
			md.AddBand(i, "NODATA", "nodata", formatFloat(b.nodata))
		}
		for _, k := range sortedKeys(b.meta) {
			md.AddBand(i, k, "", b.meta[k])
		}
	}
	r.img.Metadata = md
	r.img.NoData = ""
	if len(r.bands) > 0 && r.bands[0].hasNoData {
		r.img.NoData = formatFloat(r.bands[0].nodata)
	}
	r.img.GeoTransform = r.gt
	r.img.Georeferenced = true
	r.img.EPSG, r.img.Geographic = 0, false
	if r.srs != nil {
		r.img.EPSG, r.img.Geographic = r.srs.EPSG(), r.srs.Geographic()
	}
}

func (r *resource) checkWritable() error {
	if r.closed {
		return ErrClosed
	}
	if r.readOnly {
		return fmt.Errorf("%s: %w", r.path, ErrReadOnly)
	}
	return nil
}

// update applies fn to the resource's metadata under lock and marks it for
// flushing.
func (r *resource) update(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkWritable(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	r.dirty = true
	return nil
}

func (r *resource) flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

func (r *resource) flushLocked() error {
	if !r.dirty || r.readOnly || r.closed {
		return nil
	}
	r.syncImage()
	if err := gtiff.WriteIFD(r.file, r.img); err != nil {
		return fmt.Errorf("write metadata of %s: %w", r.path, err)
	}
	r.dirty = false
	return nil
}

func (r *resource) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	if !r.temp {
		if err := r.flushLocked(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", r.path, err))
		}
	}
	r.tiles.Purge()
	r.closed = true
	if r.temp {
		if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", r.path, err))
		}
	}
	return errors.Join(errs...)
}

// tile returns the raw content of tile idx. The returned slice must not be modified.
func (r *resource) tile(idx int) ([]byte, error) {
	if v, ok := r.tiles.Get(idx); ok {
		return v.([]byte), nil
	}
	buf := make([]byte, r.img.TileSize())
	if err := gtiff.ReadTile(r.reader, r.img, idx, buf); err != nil {
		return nil, fmt.Errorf("read tile %d of %s: %w", idx, r.path, err)
	}
	r.tiles.Add(idx, buf)
	return buf, nil
}

// tileRange returns the tile rows and columns covering a window
func (r *resource) tileRange(x0, y0, w, h int) (tx0, ty0, tx1, ty1 int) {
	tw, th := r.img.TileWidth, r.img.TileHeight
	return x0 / tw, y0 / th, (x0 + w - 1) / tw, (y0 + h - 1) / th
}

func (r *resource) checkWindow(band, x0, y0, w, h int) error {
	if band < 0 || band >= len(r.bands) {
		return fmt.Errorf("%w: %d", ErrBandNotFound, band)
	}
	if x0 < 0 || y0 < 0 || w <= 0 || h <= 0 || x0+w > r.img.Width || y0+h > r.img.Height {
		return fmt.Errorf("window [%d,%d,%d,%d] out of bounds of %dx%d image", x0, y0, w, h, r.img.Width, r.img.Height)
	}
	return nil
}

// read decodes the w*h window at (x0,y0) of band into band db of dst, at (dx,dy).
func (r *resource) read(band, x0, y0, w, h int, dst *PixelBuffer, db, dx, dy int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := r.checkWindow(band, x0, y0, w, h); err != nil {
		return err
	}
	tw, th := r.img.TileWidth, r.img.TileHeight
	ss := r.dtype.Size()
	tx0, ty0, tx1, ty1 := r.tileRange(x0, y0, w, h)
	for ty := ty0; ty <= ty1; ty++ {
		for tx := tx0; tx <= tx1; tx++ {
			t, err := r.tile(r.img.TileIndex(band, tx, ty))
			if err != nil {
				return err
			}
			ox0, ox1 := max(x0, tx*tw), min(x0+w, (tx+1)*tw)
			oy0, oy1 := max(y0, ty*th), min(y0+h, (ty+1)*th)
			for y := oy0; y < oy1; y++ {
				off := ((y-ty*th)*tw + ox0 - tx*tw) * ss
				dst.decodeRow(r.dtype, t[off:], db, dy+y-y0, dx+ox0-x0, ox1-ox0)
			}
		}
	}
	return nil
}

// write stores band sb of src into the window of band starting at (x0,y0).
func (r *resource) write(band, x0, y0 int, src *PixelBuffer, sb int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkWritable(); err != nil {
		return err
	}
	if r.img.Compression != gtiff.None {
		return fmt.Errorf("%s: %w: pixels of compressed datasets cannot be modified", r.path, ErrReadOnly)
	}
	w, h := src.Width(), src.Height()
	if err := r.checkWindow(band, x0, y0, w, h); err != nil {
		return err
	}
	tw, th := r.img.TileWidth, r.img.TileHeight
	ss := r.dtype.Size()
	tx0, ty0, tx1, ty1 := r.tileRange(x0, y0, w, h)
	defer func() { r.bands[band].generation++ }()
	for ty := ty0; ty <= ty1; ty++ {
		for tx := tx0; tx <= tx1; tx++ {
			idx := r.img.TileIndex(band, tx, ty)
			ox0, ox1 := max(x0, tx*tw), min(x0+w, (tx+1)*tw)
			oy0, oy1 := max(y0, ty*th), min(y0+h, (ty+1)*th)
			t := make([]byte, r.img.TileSize())
			if ox0 != tx*tw || oy0 != ty*th || ox1-ox0 != tw || oy1-oy0 != th {
				cur, err := r.tile(idx)
				if err != nil {
					return err
				}
				copy(t, cur)
			}
			for y := oy0; y < oy1; y++ {
				off := ((y-ty*th)*tw + ox0 - tx*tw) * ss
				src.encodeRow(r.dtype, t[off:], sb, y-y0, ox0-x0, ox1-ox0)
			}
			if err := gtiff.WriteTile(r.file, r.img, idx, t); err != nil {
				r.tiles.Remove(idx)
				return fmt.Errorf("write tile %d of %s: %w", idx, r.path, err)
			}
			r.tiles.Add(idx, t)
		}
	}
	return nil
}

func (r *resource) generation(band int) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bands[band].generation
}

// bandName returns the description of band i, or its 1-based index if unset
func (r *resource) bandName(i int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bandNameLocked(i)
}

func (r *resource) bandNameLocked(i int) string {
	if d := r.bands[i].description; d != "" {
		return d
	}
	return strconv.Itoa(i + 1)
}

func (r *resource) noData(i int) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bands[i].nodata, r.bands[i].hasNoData
}

// unsupportedSpatialRef keeps track of a coordinate system that cannot be
// used for transformations
func unsupportedSpatialRef(code int, geographic bool) *SpatialRef {
	return &SpatialRef{epsg: code, name: "EPSG:" + strconv.Itoa(code), geographic: geographic}
}

// isNoData reports whether v is the nodata value nd. NaN nodata matches NaN samples.
func isNoData(v, nd float64) bool {
	return v == nd || (math.IsNaN(nd) && math.IsNaN(v))
}

func (r *resource) structure(nbands int) Structure {
	return Structure{
		Width:       r.img.Width,
		Height:      r.img.Height,
		BlockWidth:  r.img.TileWidth,
		BlockHeight: r.img.TileHeight,
		NBands:      nbands,
		DataType:    r.dtype,
	}
}
