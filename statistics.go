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

// Statistics on a given band. Nodata and NaN samples are ignored.
type Statistics struct {
	Min, Max, Mean, Std float64
	// Valid is the number of samples the statistics were computed on
	Valid int
}

type statisticsOpts struct {
	raw          bool
	force        bool
	errorHandler ErrorHandler
}

// StatisticsOption is an option that can be passed to Band.Statistics()
//
// Available StatisticsOptions are:
//
// • Raw to compute the statistics of the stored samples, ignoring scaling
//
// • Force to recompute the statistics even if cached ones are up to date
//
// • ErrLogger
type StatisticsOption interface {
	setStatisticsOpt(so *statisticsOpts)
}

type forceOpt struct{}

func (forceOpt) setStatisticsOpt(so *statisticsOpts) {
	so.force = true
}

// Force discards previously computed statistics.
func Force() interface {
	StatisticsOption
} {
	return forceOpt{}
}

// statsCache keeps the last statistics computed for a view, scaled and raw.
// An entry is stale once the band's generation has moved on.
type statsCache struct {
	entries [2]struct {
		valid bool
		gen   uint64
		st    Statistics
	}
}

func (c *statsCache) reset() {
	*c = statsCache{}
}

func (v *bandView) statistics(res *resource, raw, force bool) (Statistics, error) {
	scaled := !raw && v.scaled()
	slot := 0
	if !scaled {
		slot = 1
	}
	gen := v.generation(res)
	if e := v.stats.entries[slot]; !force && e.valid && e.gen == gen {
		return e.st, nil
	}
	st, err := scanStatistics(res, v, scaled)
	if err != nil {
		return Statistics{}, err
	}
	e := &v.stats.entries[slot]
	e.valid, e.gen, e.st = true, gen, st
	return st, nil
}

// scanStatistics computes the statistics of a band in strips of at most
// ChunkSize() bytes, in scanline order.
func scanStatistics(res *resource, v *bandView, scaled bool) (Statistics, error) {
	nd, hasNoData := res.noData(v.index)
	nd = res.dtype.storedNoData(nd)
	structure := res.structure(1)
	st := Statistics{Min: math.Inf(1), Max: math.Inf(-1)}
	var mean, m2 float64
	for chunk, ok := structure.FirstChunk(res.dtype.Size()); ok; chunk, ok = chunk.Next() {
		buf, err := NewPixelBuffer(res.dtype, chunk.H, chunk.W)
		if err != nil {
			return Statistics{}, err
		}
		if err := res.read(v.index, chunk.X0, chunk.Y0, chunk.W, chunk.H, buf, 0, 0, 0); err != nil {
			return Statistics{}, err
		}
		invalid, err := v.invalid(chunk.X0, chunk.Y0, chunk.W, chunk.H)
		if err != nil {
			return Statistics{}, err
		}
		for i, val := range buf.Float64s() {
			if math.IsNaN(val) || (hasNoData && isNoData(val, nd)) || (invalid != nil && invalid[i]) {
				continue
			}
			if scaled {
				val = v.apply(val)
			}
			st.Valid++
			st.Min = math.Min(st.Min, val)
			st.Max = math.Max(st.Max, val)
			d := val - mean
			mean += d / float64(st.Valid)
			m2 += d * (val - mean)
		}
	}
	if st.Valid == 0 {
		return Statistics{}, ErrNoValidPixels
	}
	st.Mean = mean
	st.Std = math.Sqrt(m2 / float64(st.Valid))
	return st, nil
}

// Statistics returns the minimum, maximum, mean and standard deviation of the
// band's valid samples, scaled unless Raw is passed.
//
// Statistics are computed on first use and cached until the band's pixels or
// nodata value change.
func (band *Band) Statistics(opts ...StatisticsOption) (Statistics, error) {
	so := statisticsOpts{}
	for _, opt := range opts {
		opt.setStatisticsOpt(&so)
	}
	em := newEmitter(so.errorHandler)
	if err := band.check(); err != nil {
		return Statistics{}, em.fail(err)
	}
	st, err := band.view.statistics(band.res, so.raw, so.force)
	if err != nil {
		return Statistics{}, em.fail(fmt.Errorf("statistics of band %d of %s: %w", band.view.index, band.res.path, err))
	}
	return st, nil
}

// Min returns the smallest valid value of the band
func (band *Band) Min(opts ...StatisticsOption) (float64, error) {
	st, err := band.Statistics(opts...)
	return st.Min, err
}

// Max returns the largest valid value of the band
func (band *Band) Max(opts ...StatisticsOption) (float64, error) {
	st, err := band.Statistics(opts...)
	return st.Max, err
}
