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

import "github.com/airbusgeo/geoimg/internal/gtiff"

type createOpts struct {
	bands        int
	dtype        DataType
	srs          string
	bbox         *Bounds
	temp         bool
	tileW, tileH int
	errorHandler ErrorHandler
}

// CreateOption is an option that can be passed to Create and CreateFrom
//
// Available CreateOptions are:
//
// • Bands
//
// • Type
//
// • SRS
//
// • BBox
//
// • Temporary
//
// • TileSize
//
// • ErrLogger
type CreateOption interface {
	setCreateOpt(co *createOpts)
}

type openOpts struct {
	readOnly     bool
	bandNames    []string
	errorHandler ErrorHandler
}

// OpenOption is an option passed to Open()
//
// Available OpenOptions are:
//
// • ReadOnly
//
// • BandNames
//
// • ErrLogger
type OpenOption interface {
	setOpenOpt(oo *openOpts)
}

type datasetIOOpts struct {
	raw          bool
	errorHandler ErrorHandler
}

// DatasetIOOption is an option to modify the default behavior of Dataset.Read
// and Dataset.Write
//
// Available DatasetIOOptions are:
//
// • Raw
//
// • ErrLogger
type DatasetIOOption interface {
	setDatasetIOOpt(ro *datasetIOOpts)
}

type bandIOOpts struct {
	raw          bool
	errorHandler ErrorHandler
}

// BandIOOption is an option to modify the default behavior of Band.Read and
// Band.Write
//
// Available BandIOOptions are:
//
// • Raw
//
// • ErrLogger
type BandIOOption interface {
	setBandIOOpt(ro *bandIOOpts)
}

type saveOpts struct {
	compression  Compression
	cog          bool
	temp         bool
	tileW, tileH int
	errorHandler ErrorHandler
}

// SaveOption is an option passed to Dataset.Save()
//
// Available SaveOptions are:
//
// • Compress
//
// • COG
//
// • Temporary
//
// • TileSize
//
// • ErrLogger
type SaveOption interface {
	setSaveOpt(so *saveOpts)
}

type warpOpts struct {
	resampling   ResamplingAlg
	compression  Compression
	cog          bool
	temp         bool
	tileW, tileH int
	errorHandler ErrorHandler
}

// WarpOption is an option passed to Dataset.Warp()
//
// Available WarpOptions are:
//
// • Resampling
//
// • Compress
//
// • COG
//
// • Temporary
//
// • TileSize
//
// • ErrLogger
type WarpOption interface {
	setWarpOpt(wo *warpOpts)
}

type autoscaleOpts struct {
	percent      float64
	errorHandler ErrorHandler
}

// AutoscaleOption is an option passed to Dataset.Autoscale()
//
// Available AutoscaleOptions are:
//
// • Percent
//
// • ErrLogger
type AutoscaleOption interface {
	setAutoscaleOpt(ao *autoscaleOpts)
}

type setBandNamesOpts struct {
	errorHandler ErrorHandler
}

// SetBandNamesOption is an option passed to Dataset.SetBandNames()
//
// Available SetBandNamesOptions are:
//
// • ErrLogger
type SetBandNamesOption interface {
	setSetBandNamesOpt(so *setBandNamesOpts)
}

type setNoDataOpts struct {
	errorHandler ErrorHandler
}

// SetNoDataOption is an option passed to SetNoData() and ClearNoData()
//
// Available SetNoDataOptions are:
//
// • ErrLogger
type SetNoDataOption interface {
	setSetNoDataOpt(so *setNoDataOpts)
}

type closeOpts struct {
	errorHandler ErrorHandler
}

// CloseOption is an option passed to Dataset.Close() or Band.Close()
//
// Available CloseOptions are:
//
// • ErrLogger
type CloseOption interface {
	setCloseOpt(so *closeOpts)
}

type bandsOpt struct {
	n int
}

// Bands sets the number of bands of a created dataset. Defaults to 1.
func Bands(n int) interface {
	CreateOption
} {
	return bandsOpt{n}
}
func (bo bandsOpt) setCreateOpt(co *createOpts) {
	co.bands = bo.n
}

type typeOpt struct {
	dtype DataType
}

// Type sets the data type of a created dataset. Defaults to Byte.
func Type(dtype DataType) interface {
	CreateOption
} {
	return typeOpt{dtype}
}
func (to typeOpt) setCreateOpt(co *createOpts) {
	co.dtype = to.dtype
}

type srsOpt struct {
	def string
}

// SRS sets the coordinate system of a created dataset, as an authority:code
// string such as "EPSG:32631". Defaults to "EPSG:4326".
func SRS(def string) interface {
	CreateOption
} {
	return srsOpt{def}
}
func (so srsOpt) setCreateOpt(co *createOpts) {
	co.srs = so.def
}

type bboxOpt struct {
	b Bounds
}

// BBox sets the extent covered by a created dataset. Defaults to UnitBounds.
func BBox(b Bounds) interface {
	CreateOption
} {
	return bboxOpt{b}
}
func (bo bboxOpt) setCreateOpt(co *createOpts) {
	b := bo.b
	co.bbox = &b
}

type temporaryOpt struct{}

// Temporary flags the created dataset for deletion once its last handle is
// closed. Datasets created with an empty path are always temporary.
func Temporary() interface {
	CreateOption
	SaveOption
	WarpOption
} {
	return temporaryOpt{}
}
func (temporaryOpt) setCreateOpt(co *createOpts) {
	co.temp = true
}
func (temporaryOpt) setSaveOpt(so *saveOpts) {
	so.temp = true
}
func (temporaryOpt) setWarpOpt(wo *warpOpts) {
	wo.temp = true
}

type tileSizeOpt struct {
	w, h int
}

// TileSize sets the dimensions of the internal tiles of the created file.
// Both dimensions must be multiples of 16. Defaults to 256x256.
func TileSize(w, h int) interface {
	CreateOption
	SaveOption
	WarpOption
} {
	return tileSizeOpt{w, h}
}
func (to tileSizeOpt) setCreateOpt(co *createOpts) {
	co.tileW, co.tileH = to.w, to.h
}
func (to tileSizeOpt) setSaveOpt(so *saveOpts) {
	so.tileW, so.tileH = to.w, to.h
}
func (to tileSizeOpt) setWarpOpt(wo *warpOpts) {
	wo.tileW, wo.tileH = to.w, to.h
}

type readOnlyOpt struct{}

// ReadOnly opens the dataset without write access. Datasets are opened
// read-write by default, falling back to read-only if the file is not writable.
func ReadOnly() interface {
	OpenOption
} {
	return readOnlyOpt{}
}
func (readOnlyOpt) setOpenOpt(oo *openOpts) {
	oo.readOnly = true
}

type bandNamesOpt struct {
	names []string
}

// BandNames names the bands of the opened dataset, in order. The names are
// not persisted unless SetBandNames is called.
func BandNames(names ...string) interface {
	OpenOption
} {
	return bandNamesOpt{names}
}
func (bo bandNamesOpt) setOpenOpt(oo *openOpts) {
	oo.bandNames = append([]string(nil), bo.names...)
}

type rawOpt struct{}

// Raw disables the gain, offset and autoscale steps of a dataset view: samples
// are returned as stored, in the dataset's data type.
func Raw() interface {
	DatasetIOOption
	BandIOOption
	HistogramOption
	StatisticsOption
} {
	return rawOpt{}
}
func (rawOpt) setDatasetIOOpt(o *datasetIOOpts) {
	o.raw = true
}
func (rawOpt) setBandIOOpt(o *bandIOOpts) {
	o.raw = true
}
func (rawOpt) setHistogramOpt(o *histogramOpts) {
	o.raw = true
}
func (rawOpt) setStatisticsOpt(o *statisticsOpts) {
	o.raw = true
}

// Compression is the algorithm used to compress the tiles of an output file
type Compression int

const (
	// NoCompression stores tiles as-is. Uncompressed datasets can be modified in place.
	NoCompression Compression = iota
	// Deflate compresses tiles with zlib. Pixels of deflated datasets are read-only.
	Deflate
)

func (c Compression) String() string {
	switch c {
	case Deflate:
		return "deflate"
	default:
		return "none"
	}
}

func (c Compression) tiff() gtiff.Compression {
	if c == Deflate {
		return gtiff.Deflate
	}
	return gtiff.None
}

type compressOpt struct {
	c Compression
}

// Compress sets the compression of the output tiles
func Compress(c Compression) interface {
	SaveOption
	WarpOption
} {
	return compressOpt{c}
}
func (co compressOpt) setSaveOpt(so *saveOpts) {
	so.compression = co.c
}
func (co compressOpt) setWarpOpt(wo *warpOpts) {
	wo.compression = co.c
}

type cogOpt struct{}

// COG writes the output as a cloud optimized geotiff, i.e. with its header and
// tile index at the start of the file. COG outputs are read-only.
func COG() interface {
	SaveOption
	WarpOption
} {
	return cogOpt{}
}
func (cogOpt) setSaveOpt(so *saveOpts) {
	so.cog = true
}
func (cogOpt) setWarpOpt(wo *warpOpts) {
	wo.cog = true
}

type resamplingOpt struct {
	m ResamplingAlg
}

// Resampling defines the resampling algorithm to use. Defaults to Nearest.
func Resampling(alg ResamplingAlg) interface {
	WarpOption
} {
	return resamplingOpt{alg}
}
func (ro resamplingOpt) setWarpOpt(wo *warpOpts) {
	wo.resampling = ro.m
}

type percentOpt struct {
	p float64
}

// Percent makes Autoscale ignore the p percent lowest and p percent highest
// values of each band, which are clamped to the output range.
func Percent(p float64) interface {
	AutoscaleOption
} {
	return percentOpt{p}
}
func (po percentOpt) setAutoscaleOpt(ao *autoscaleOpts) {
	ao.percent = po.p
}
