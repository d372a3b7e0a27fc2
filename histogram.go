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
)

// Histogram is a band histogram.
type Histogram struct {
	min, max float64
	counts   []uint64
}

// Bucket is a histogram entry. It spans [Min,Max] and contains Count entries.
type Bucket struct {
	Min, Max float64
	Count    uint64
}

//Len returns the number of buckets contained in the histogram
func (h Histogram) Len() int {
	return len(h.counts)
}

//Bucket returns the i'th bucket in the histogram. i must be between 0 and Len()-1.
func (h Histogram) Bucket(i int) Bucket {
	width := (h.max - h.min) / float64(len(h.counts))
	b := Bucket{
		Min:   h.min + width*float64(i),
		Max:   h.min + width*float64(i+1),
		Count: h.counts[i],
	}
	if i == len(h.counts)-1 {
		b.Max = h.max
	}
	return b
}

// Total returns the number of samples counted in the histogram
func (h Histogram) Total() uint64 {
	var n uint64
	for _, c := range h.counts {
		n += c
	}
	return n
}

type histogramOpts struct {
	includeOutside bool
	min, max       float64
	buckets        int
	raw            bool
	errorHandler   ErrorHandler
}

// HistogramOption is an option that can be passed to Band.Histogram()
//
// Available HistogramOptions are:
//
// • Intervals(count int, min,max float64) to compute a histogram with count buckets, spanning [min,max].
//   Each bucket will be (max-min)/count wide. If not provided, 256 buckets spanning the band's
//   minimum and maximum are used.
//
// • IncludeOutOfRange() to populate the first and last bucket with values under/over the specified min/max
//   when used in conjuntion with Intervals()
//
// • Raw
//
// • ErrLogger
type HistogramOption interface {
	setHistogramOpt(ho *histogramOpts)
}

type includeOutsideOpt struct{}

func (ioo includeOutsideOpt) setHistogramOpt(ho *histogramOpts) {
	ho.includeOutside = true
}

// IncludeOutOfRange populates the first and last bucket with values under/over the specified min/max
// when used in conjuntion with Intervals()
func IncludeOutOfRange() interface {
	HistogramOption
} {
	return includeOutsideOpt{}
}

type intervalsOption struct {
	min, max float64
	buckets  int
}

func (io intervalsOption) setHistogramOpt(ho *histogramOpts) {
	ho.min = io.min
	ho.max = io.max
	ho.buckets = io.buckets
}

// Intervals computes a histogram with count buckets, spanning [min,max].
// Each bucket will be (max-min)/count wide. If not provided, the default histogram will be returned.
func Intervals(count int, min, max float64) interface {
	HistogramOption
} {
	return intervalsOption{min: min, max: max, buckets: count}
}

// Histogram computes the histogram of the band's valid samples
func (band *Band) Histogram(opts ...HistogramOption) (Histogram, error) {
	ho := histogramOpts{}
	for _, opt := range opts {
		opt.setHistogramOpt(&ho)
	}
	em := newEmitter(ho.errorHandler)
	if err := band.check(); err != nil {
		return Histogram{}, em.fail(err)
	}
	if ho.buckets == 0 {
		st, err := band.view.statistics(band.res, ho.raw, false)
		if err != nil {
			return Histogram{}, em.fail(fmt.Errorf("histogram: %w", err))
		}
		ho.buckets, ho.min, ho.max = 256, st.Min, st.Max
		if ho.min == ho.max {
			ho.min, ho.max = ho.min-0.5, ho.max+0.5
		}
	}
	if ho.buckets < 0 || !(ho.max > ho.min) {
		return Histogram{}, em.fail(fmt.Errorf("histogram: invalid intervals %d in [%g,%g]", ho.buckets, ho.min, ho.max))
	}
	h, err := band.view.histogram(band.res, ho)
	if err != nil {
		return Histogram{}, em.fail(fmt.Errorf("histogram of band %d of %s: %w", band.view.index, band.res.path, err))
	}
	return h, nil
}

func (v *bandView) histogram(res *resource, ho histogramOpts) (Histogram, error) {
	h := Histogram{min: ho.min, max: ho.max, counts: make([]uint64, ho.buckets)}
	scaled := !ho.raw && v.scaled()
	nd, hasNoData := res.noData(v.index)
	nd = res.dtype.storedNoData(nd)
	structure := res.structure(1)
	width := (h.max - h.min) / float64(ho.buckets)
	for chunk, ok := structure.FirstChunk(res.dtype.Size()); ok; chunk, ok = chunk.Next() {
		buf, err := NewPixelBuffer(res.dtype, chunk.H, chunk.W)
		if err != nil {
			return Histogram{}, err
		}
		if err := res.read(v.index, chunk.X0, chunk.Y0, chunk.W, chunk.H, buf, 0, 0, 0); err != nil {
			return Histogram{}, err
		}
		invalid, err := v.invalid(chunk.X0, chunk.Y0, chunk.W, chunk.H)
		if err != nil {
			return Histogram{}, err
		}
		for j, val := range buf.Float64s() {
			if math.IsNaN(val) || (hasNoData && isNoData(val, nd)) || (invalid != nil && invalid[j]) {
				continue
			}
			if scaled {
				val = v.apply(val)
			}
			i := int(math.Floor((val - h.min) / width))
			if val == h.max {
				i = ho.buckets - 1
			}
			if i < 0 || i >= ho.buckets {
				if !ho.includeOutside {
					continue
				}
				i = max(0, min(i, ho.buckets-1))
			}
			h.counts[i]++
		}
	}
	return h, nil
}
