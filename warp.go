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
)

// ResamplingAlg is a resampling method
type ResamplingAlg int

const (
	//Nearest resampling
	Nearest ResamplingAlg = iota
	// Bilinear resampling
	Bilinear
	// Cubic resampling
	Cubic
)

func (ra ResamplingAlg) String() string {
	switch ra {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	case Cubic:
		return "cubic"
	default:
		return fmt.Sprintf("resampling(%d)", int(ra))
	}
}

// ParseResampling returns the ResamplingAlg named s
func ParseResampling(s string) (ResamplingAlg, error) {
	switch strings.ToLower(s) {
	case "", "nearest", "near":
		return Nearest, nil
	case "bilinear":
		return Bilinear, nil
	case "cubic":
		return Cubic, nil
	}
	return Nearest, fmt.Errorf("unknown resampling %q", s)
}

// resolutionEpsilon absorbs floating point noise when computing the output
// size, so that an extent that is an exact multiple of the resolution does
// not gain a column.
const resolutionEpsilon = 1e-8

// warpGrid computes the georeferencing of the output of a warp: the extent
// of bnds in dst, and xres/yres or default pixel sizes.
func warpGrid(bnds Bounds, srcWidth, srcHeight int, dst *SpatialRef, xres, yres float64) (GeoTransform, int, int, error) {
	if xres < 0 || yres < 0 || math.IsNaN(xres) || math.IsNaN(yres) {
		return GeoTransform{}, 0, 0, fmt.Errorf("%w: %g,%g", ErrResolution, xres, yres)
	}
	if xres == 0 || yres == 0 {
		// keep the number of pixels along the diagonal
		def := math.Hypot(bnds.Width(), bnds.Height()) / math.Hypot(float64(srcWidth), float64(srcHeight))
		if !(def > 0) || math.IsInf(def, 0) {
			def, _ = dst.UnitResolution()
		}
		if xres == 0 {
			xres = def
		}
		if yres == 0 {
			yres = def
		}
	}
	fw := math.Ceil(bnds.Width()/xres - resolutionEpsilon)
	fh := math.Ceil(bnds.Height()/yres - resolutionEpsilon)
	if !(fw > 0) || !(fh > 0) || fw > math.MaxInt32 || fh > math.MaxInt32 {
		return GeoTransform{}, 0, 0, fmt.Errorf("%w: output size %gx%g for resolution %g,%g", ErrResolution, fw, fh, xres, yres)
	}
	gt := GeoTransform{bnds.MinX(), xres, 0, bnds.MaxY(), 0, -yres}
	return gt, int(fw), int(fh), nil
}

// Warp reprojects the view into a new dataset in the srs coordinate system,
// with xres*yres pixels.
//
// The output covers the bounding box of the reprojected extent of the view,
// and has ceil(width/xres) columns and ceil(height/yres) rows. A zero
// resolution selects one keeping the number of pixels along the diagonal of
// the source. Output pixels falling outside of the source get the nodata
// value of their band, or 0.
//
// Warp fails with ErrReprojection if either coordinate system cannot be used,
// and with ErrResolution if the resolution or output size is not positive.
// The returned dataset must be closed. An empty path creates a temporary
// dataset.
func (ds *Dataset) Warp(path string, srs string, xres, yres float64, opts ...WarpOption) (*Dataset, error) {
	wo := warpOpts{
		tileW: ds.res.img.TileWidth,
		tileH: ds.res.img.TileHeight,
	}
	for _, opt := range opts {
		opt.setWarpOpt(&wo)
	}
	em := newEmitter(wo.errorHandler)
	if err := ds.check(); err != nil {
		return nil, em.fail(err)
	}
	wds, err := ds.warp(path, srs, xres, yres, wo, em)
	if err != nil {
		return nil, em.fail(fmt.Errorf("warp: %w", err))
	}
	return wds, nil
}

func (ds *Dataset) warp(path string, srs string, xres, yres float64, wo warpOpts, em emitter) (*Dataset, error) {
	dst, err := NewSpatialRef(srs)
	if err != nil {
		return nil, err
	}
	src := ds.res.srs
	if src == nil {
		return nil, fmt.Errorf("%w: %s has no coordinate system", ErrReprojection, ds.res.path)
	}
	inv, err := NewTransform(dst, src)
	if err != nil {
		return nil, err
	}
	bnds, err := reprojectBounds(ds.Bounds(), src, dst)
	if err != nil {
		return nil, err
	}
	gt, width, height, err := warpGrid(bnds, ds.XSize(), ds.YSize(), dst, xres, yres)
	if err != nil {
		return nil, err
	}
	srcInv, err := ds.res.gt.Invert()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReprojection, err)
	}
	em.debugf("warp %s from %s to %s: %dx%d", ds.res.path, src, dst, width, height)

	dtype := ds.res.dtype
	if ds.scaled() {
		dtype = Float64
	}
	out := &output{
		path:        path,
		temp:        wo.temp,
		width:       width,
		height:      height,
		dtype:       dtype,
		srs:         dst,
		gt:          gt,
		tileW:       wo.tileW,
		tileH:       wo.tileH,
		compression: wo.compression,
		cog:         wo.cog,
		bands:       ds.outputBands(dtype),
		meta:        ds.outputMetadata(),
	}
	w := &warper{
		ds:     ds,
		gt:     gt,
		inv:    inv,
		srcInv: srcInv,
		alg:    wo.resampling,
	}
	for i := range ds.views {
		nd, ok := ds.res.noData(ds.views[i].index)
		w.nodata = append(w.nodata, nd)
		w.hasNoData = append(w.hasNoData, ok)
	}
	wds, err := out.write(w.fill, em)
	if err != nil {
		return nil, err
	}
	em.debugf("warp %s: largest source window %d bytes", ds.res.path, w.peak)
	return wds, nil
}

// warper resamples the source dataset on the blocks of the output grid
type warper struct {
	ds        *Dataset
	gt        GeoTransform
	inv       *Transform
	srcInv    GeoTransform
	alg       ResamplingAlg
	nodata    []float64
	hasNoData []bool
	// size in bytes of the largest source window read
	peak int
}

// fillValue is the value of output pixels with no source data
func (w *warper) fillValue(band int) float64 {
	if w.hasNoData[band] {
		return w.nodata[band]
	}
	return 0
}

func (w *warper) fill(b Block, buf *PixelBuffer) error {
	return w.fillRect(b.X0, b.Y0, b.W, b.H, buf)
}

// fillRect resamples the bw*bh output pixels starting at (x0,y0) into buf.
// Rectangles whose source window does not fit in ChunkSize() are split in
// halves along their longest side.
func (w *warper) fillRect(x0, y0, bw, bh int, buf *PixelBuffer) error {
	n := bw * bh
	px := make([]float64, n)
	py := make([]float64, n)
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			px[y*bw+x], py[y*bw+x] = w.gt.Apply(float64(x0+x)+0.5, float64(y0+y)+0.5)
		}
	}
	ok := make([]bool, n)
	_ = w.inv.TransformEx(px, py, ok)

	sw, sh := w.ds.XSize(), w.ds.YSize()
	minX, minY, maxX, maxY := math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)
	for i := range px {
		if !ok[i] {
			continue
		}
		px[i], py[i] = w.srcInv.Apply(px[i], py[i])
		if px[i] < 0 || py[i] < 0 || px[i] >= float64(sw) || py[i] >= float64(sh) {
			ok[i] = false
			continue
		}
		minX, maxX = math.Min(minX, px[i]), math.Max(maxX, px[i])
		minY, maxY = math.Min(minY, py[i]), math.Max(maxY, py[i])
	}
	if math.IsInf(minX, 1) {
		for band := range w.ds.views {
			w.fillBand(buf, band, bw, bh)
		}
		return nil
	}

	// source window, padded for the resampling kernels
	wx0 := max(0, int(math.Floor(minX))-2)
	wy0 := max(0, int(math.Floor(minY))-2)
	wx1 := min(sw, int(math.Floor(maxX))+3)
	wy1 := min(sh, int(math.Floor(maxY))+3)
	win := window{x0: wx0, y0: wy0, w: wx1 - wx0, h: wy1 - wy0, srcW: sw, srcH: sh}
	size := win.w * win.h * len(w.ds.views) * Float64.Size()
	if size > ChunkSize() && n > 1 {
		if bw >= bh {
			half := bw / 2
			if err := w.fillRect(x0, y0, half, bh, buf.Window(0, 0, half, bh)); err != nil {
				return err
			}
			return w.fillRect(x0+half, y0, bw-half, bh, buf.Window(half, 0, bw-half, bh))
		}
		half := bh / 2
		if err := w.fillRect(x0, y0, bw, half, buf.Window(0, 0, bw, half)); err != nil {
			return err
		}
		return w.fillRect(x0, y0+half, bw, bh-half, buf.Window(0, half, bw, bh-half))
	}
	w.peak = max(w.peak, size)

	sbuf, err := NewPixelBuffer(Float64, len(w.ds.views), win.h, win.w)
	if err != nil {
		return err
	}
	for band, v := range w.ds.views {
		if err := v.read(w.ds.res, win.x0, win.y0, win.w, win.h, sbuf, band, false); err != nil {
			return err
		}
	}
	for band := range w.ds.views {
		w.fillBand(buf, band, bw, bh)
		k := kernel{
			src:       sbuf.Band(band),
			win:       win,
			nodata:    w.ds.res.dtype.storedNoData(w.nodata[band]),
			hasNoData: w.hasNoData[band],
		}
		for i := range px {
			if !ok[i] {
				continue
			}
			v, valid := k.sample(w.alg, px[i], py[i])
			if !valid {
				continue
			}
			buf.Set(band, i/bw, i%bw, v)
		}
	}
	return nil
}

// fillBand sets the bw*bh pixels of band in buf to the band's fill value
func (w *warper) fillBand(buf *PixelBuffer, band, bw, bh int) {
	fv := w.fillValue(band)
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			buf.Set(band, y, x, fv)
		}
	}
}

// window is the part of the source image held in memory
type window struct {
	x0, y0, w, h int
	srcW, srcH   int
}

// kernel interpolates the samples of a single band of a source window
type kernel struct {
	src       *PixelBuffer
	win       window
	nodata    float64
	hasNoData bool
}

// at returns the sample at source pixel (x,y), clamped to the image
func (k kernel) at(x, y int) (float64, bool) {
	x = max(0, min(x, k.win.srcW-1))
	y = max(0, min(y, k.win.srcH-1))
	v := k.src.At(0, y-k.win.y0, x-k.win.x0)
	if math.IsNaN(v) || (k.hasNoData && isNoData(v, k.nodata)) {
		return v, false
	}
	return v, true
}

// sample returns the interpolated value at source position (px,py), in
// pixel/line coordinates. Neighbors holding nodata are excluded and the
// weights of the others renormalized.
func (k kernel) sample(alg ResamplingAlg, px, py float64) (float64, bool) {
	switch alg {
	case Bilinear:
		return k.convolve(px, py, 1, func(t float64) float64 { return 1 - math.Abs(t) })
	case Cubic:
		return k.convolve(px, py, 2, cubicWeight)
	default:
		return k.at(int(math.Floor(px)), int(math.Floor(py)))
	}
}

func (k kernel) convolve(px, py float64, radius int, weight func(float64) float64) (float64, bool) {
	// sample positions relative to pixel centers
	u, v := px-0.5, py-0.5
	x0, y0 := int(math.Floor(u)), int(math.Floor(v))
	var sum, wsum float64
	for j := y0 - radius + 1; j <= y0+radius; j++ {
		wy := weight(v - float64(j))
		if wy == 0 {
			continue
		}
		for i := x0 - radius + 1; i <= x0+radius; i++ {
			wx := weight(u - float64(i))
			if wx == 0 {
				continue
			}
			s, ok := k.at(i, j)
			if !ok {
				continue
			}
			sum += wx * wy * s
			wsum += wx * wy
		}
	}
	if wsum == 0 {
		return 0, false
	}
	return sum / wsum, true
}

// cubicWeight is the Keys cubic convolution kernel with a=-0.5
func cubicWeight(t float64) float64 {
	const a = -0.5
	t = math.Abs(t)
	switch {
	case t <= 1:
		return (a+2)*t*t*t - (a+3)*t*t + 1
	case t < 2:
		return a*t*t*t - 5*a*t*t + 8*a*t - 4*a
	}
	return 0
}
