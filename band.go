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
	"math"
	"strings"
)

// bandView is how a Dataset or Band sees one band of its backing file: which
// band, under which name, and with which scaling.
type bandView struct {
	index        int
	name         string
	gain, offset float64
	steps        []rescale
	masks        []mask
	stats        statsCache
}

// mask restricts the valid pixels of a view to those where a band, possibly
// of another file, is not 0
type mask struct {
	res   *resource
	index int
}

func newBandView(index int) *bandView {
	return &bandView{index: index, gain: 1}
}

func (v *bandView) clone() *bandView {
	nv := *v
	nv.steps = append([]rescale(nil), v.steps...)
	nv.masks = append([]mask(nil), v.masks...)
	return &nv
}

func (v *bandView) scaled() bool {
	return v.gain != 1 || v.offset != 0 || len(v.steps) > 0
}

func (v *bandView) apply(val float64) float64 {
	val = val*v.gain + v.offset
	for _, s := range v.steps {
		val = s.apply(val)
	}
	return val
}

// generation changes whenever the samples of the band or of one of its masks
// are rewritten
func (v *bandView) generation(res *resource) uint64 {
	gen := res.generation(v.index)
	for _, m := range v.masks {
		gen += m.res.generation(m.index)
	}
	return gen
}

// invalid returns, in row-major order, which pixels of the w*h window at
// (x,y) are excluded by the masks of the view. It returns nil if the view
// has no masks.
func (v *bandView) invalid(x, y, w, h int) ([]bool, error) {
	if len(v.masks) == 0 {
		return nil, nil
	}
	out := make([]bool, w*h)
	buf, err := NewPixelBuffer(Float64, h, w)
	if err != nil {
		return nil, err
	}
	for _, m := range v.masks {
		if err := m.res.read(m.index, x, y, w, h, buf, 0, 0, 0); err != nil {
			return nil, fmt.Errorf("read mask: %w", err)
		}
		for i, val := range buf.Float64s() {
			if val == 0 || math.IsNaN(val) {
				out[i] = true
			}
		}
	}
	return out, nil
}

// acquireMasks takes a reference on the files holding the masks of views,
// and returns them for releaseMasks.
func acquireMasks(views ...*bandView) []*resource {
	var held []*resource
	for _, v := range views {
		for _, m := range v.masks {
			backing.acquire(m.res)
			held = append(held, m.res)
		}
	}
	return held
}

func releaseMasks(held []*resource) error {
	var errs []error
	for _, r := range held {
		errs = append(errs, backing.release(r))
	}
	return errors.Join(errs...)
}

func (v *bandView) setGain(g float64) {
	v.gain = g
	v.stats.reset()
}

func (v *bandView) setOffset(o float64) {
	v.offset = o
	v.stats.reset()
}

// read decodes the w*h window at (x,y) into band b of buf, scaling valid
// samples unless raw is set. buf must be of type Float64 if scaling applies.
// Pixels excluded by the masks of the view are set to the nodata value of the
// band, or to NaN (0 for integer buffers) if it has none.
func (v *bandView) read(res *resource, x, y, w, h int, buf *PixelBuffer, b int, raw bool) error {
	if err := res.read(v.index, x, y, w, h, buf, b, 0, 0); err != nil {
		return err
	}
	invalid, err := v.invalid(x, y, w, h)
	if err != nil {
		return err
	}
	scale := !raw && v.scaled()
	if invalid == nil && !scale {
		return nil
	}
	nd, hasNoData := res.noData(v.index)
	nd = res.dtype.storedNoData(nd)
	fill := 0.0
	switch {
	case hasNoData:
		fill = nd
	case buf.DataType().IsFloat():
		fill = math.NaN()
	}
	for yy := 0; yy < h; yy++ {
		for xx := 0; xx < w; xx++ {
			if invalid != nil && invalid[yy*w+xx] {
				buf.Set(b, yy, xx, fill)
				continue
			}
			if !scale {
				continue
			}
			val := buf.At(b, yy, xx)
			if hasNoData && isNoData(val, nd) {
				continue
			}
			buf.Set(b, yy, xx, v.apply(val))
		}
	}
	return nil
}

// Band is a handle on a single band of a dataset.
//
// Bands returned by Dataset.Band and Dataset.BandByName keep the backing
// file open until they are closed, even if the dataset they were obtained
// from is closed first.
type Band struct {
	res      *resource
	view     *bandView
	readOnly bool
	// owned bands hold a reference on res, and on the files of their masks
	owned  bool
	masks  []*resource
	closed bool
	// dataset a borrowed band was yielded by
	parent *Dataset
}

func (band *Band) check() error {
	if band.closed || band.res.closed || (band.parent != nil && band.parent.closed) {
		return ErrClosed
	}
	return nil
}

func (band *Band) checkWritable() error {
	if err := band.check(); err != nil {
		return err
	}
	if band.readOnly {
		return fmt.Errorf("%s: %w", band.res.path, ErrReadOnly)
	}
	return nil
}

// Close releases the band's reference on the backing file. It is a no-op for
// bands yielded by Dataset.Bands, and for already closed bands.
func (band *Band) Close(opts ...CloseOption) error {
	co := closeOpts{}
	for _, opt := range opts {
		opt.setCloseOpt(&co)
	}
	if band.closed || !band.owned {
		band.closed = true
		return nil
	}
	band.closed = true
	err := errors.Join(backing.release(band.res), releaseMasks(band.masks))
	if err != nil {
		return newEmitter(co.errorHandler).fail(err)
	}
	return nil
}

// Index returns the 0-based position of the band in its backing file
func (band *Band) Index() int {
	return band.view.index
}

// Description returns the name of the band
func (band *Band) Description() string {
	if band.view.name != "" {
		return band.view.name
	}
	return band.res.bandName(band.view.index)
}

// SetDescription renames the band. The name is persisted and must not be
// used by another band of the file.
func (band *Band) SetDescription(name string, opts ...SetBandNamesOption) error {
	so := setBandNamesOpts{}
	for _, opt := range opts {
		opt.setSetBandNamesOpt(&so)
	}
	em := newEmitter(so.errorHandler)
	if err := band.checkWritable(); err != nil {
		return em.fail(err)
	}
	err := band.res.update(func() error {
		for i := range band.res.bands {
			if i != band.view.index && name != "" && strings.EqualFold(band.res.bandNameLocked(i), name) {
				return fmt.Errorf("%w: %q (band %d)", ErrDuplicateBand, name, i)
			}
		}
		band.res.bands[band.view.index].description = name
		return nil
	})
	if err != nil {
		return em.fail(fmt.Errorf("set description: %w", err))
	}
	band.view.name = ""
	return nil
}

// XSize returns the number of columns
func (band *Band) XSize() int {
	return band.res.img.Width
}

// YSize returns the number of rows
func (band *Band) YSize() int {
	return band.res.img.Height
}

// DataType returns the data type the samples are stored with
func (band *Band) DataType() DataType {
	return band.res.dtype
}

// Structure returns the size and tiling of the band
func (band *Band) Structure() Structure {
	return band.res.structure(1)
}

// NoData returns the nodata value of the band. ok is false if the band has
// no nodata value.
func (band *Band) NoData() (nodata float64, ok bool) {
	return band.res.noData(band.view.index)
}

// SetNoData sets the band's nodata value
func (band *Band) SetNoData(nd float64, opts ...SetNoDataOption) error {
	return band.setNoData(nd, true, opts)
}

// ClearNoData removes the band's nodata value
func (band *Band) ClearNoData(opts ...SetNoDataOption) error {
	return band.setNoData(0, false, opts)
}

func (band *Band) setNoData(nd float64, set bool, opts []SetNoDataOption) error {
	so := setNoDataOpts{}
	for _, opt := range opts {
		opt.setSetNoDataOpt(&so)
	}
	em := newEmitter(so.errorHandler)
	if err := band.checkWritable(); err != nil {
		return em.fail(err)
	}
	err := band.res.update(func() error {
		b := band.res.bands[band.view.index]
		b.nodata, b.hasNoData = nd, set
		b.generation++
		return nil
	})
	if err != nil {
		return em.fail(fmt.Errorf("set nodata: %w", err))
	}
	return nil
}

// Gain returns the gain applied to raw samples
func (band *Band) Gain() float64 {
	return band.view.gain
}

// Offset returns the offset added to raw samples after gain
func (band *Band) Offset() float64 {
	return band.view.offset
}

// SetGain sets the gain applied to raw samples read through this handle and
// the view it was obtained from.
func (band *Band) SetGain(gain float64) {
	band.view.setGain(gain)
}

// SetOffset sets the offset added to raw samples read through this handle and
// the view it was obtained from.
func (band *Band) SetOffset(offset float64) {
	band.view.setOffset(offset)
}

// Read returns the samples of the band as a (height, width) buffer. See
// Dataset.Read for the scaling rules.
func (band *Band) Read(opts ...BandIOOption) (*PixelBuffer, error) {
	return band.ReadWindow(0, 0, band.XSize(), band.YSize(), opts...)
}

// ReadWindow returns the samples of the w*h window at column x and row y
func (band *Band) ReadWindow(x, y, w, h int, opts ...BandIOOption) (*PixelBuffer, error) {
	ro := bandIOOpts{}
	for _, opt := range opts {
		opt.setBandIOOpt(&ro)
	}
	em := newEmitter(ro.errorHandler)
	if err := band.check(); err != nil {
		return nil, em.fail(err)
	}
	dtype := band.res.dtype
	if !ro.raw && band.view.scaled() {
		dtype = Float64
	}
	if w <= 0 || h <= 0 {
		return nil, em.fail(fmt.Errorf("read: invalid window size %dx%d", w, h))
	}
	buf, err := NewPixelBuffer(dtype, h, w)
	if err != nil {
		return nil, em.fail(err)
	}
	if err := band.view.read(band.res, x, y, w, h, buf, 0, ro.raw); err != nil {
		return nil, em.fail(fmt.Errorf("read band %d of %s: %w", band.view.index, band.res.path, err))
	}
	return buf, nil
}

// Write stores the (height, width) buffer buf in the band. Cached statistics
// are invalidated.
func (band *Band) Write(buf *PixelBuffer, opts ...BandIOOption) error {
	return band.WriteWindow(0, 0, buf, opts...)
}

// WriteWindow stores buf in the window starting at column x and row y.
// Samples are converted with DataType.Cast.
func (band *Band) WriteWindow(x, y int, buf *PixelBuffer, opts ...BandIOOption) error {
	wo := bandIOOpts{}
	for _, opt := range opts {
		opt.setBandIOOpt(&wo)
	}
	em := newEmitter(wo.errorHandler)
	if err := band.checkWritable(); err != nil {
		return em.fail(err)
	}
	if buf.NBands() != 1 {
		return em.fail(fmt.Errorf("write: %w: buffer has %d bands", ErrArity, buf.NBands()))
	}
	if err := band.res.write(band.view.index, x, y, buf, 0); err != nil {
		return em.fail(fmt.Errorf("write band %d of %s: %w", band.view.index, band.res.path, err))
	}
	return nil
}
