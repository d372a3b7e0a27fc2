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
)

// percentBuckets is the resolution of the histogram used to locate percentiles
const percentBuckets = 1000

// rescale linearly maps [inMin,inMax] onto [outMin,outMax]. Values outside of
// the input range are clamped, and the input bounds map exactly onto the
// output bounds.
type rescale struct {
	inMin, inMax   float64
	outMin, outMax float64
}

func (r rescale) apply(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return v
	case v <= r.inMin || r.inMax <= r.inMin:
		return r.outMin
	case v >= r.inMax:
		return r.outMax
	}
	out := r.outMin + (v-r.inMin)*(r.outMax-r.outMin)/(r.inMax-r.inMin)
	lo, hi := math.Min(r.outMin, r.outMax), math.Max(r.outMin, r.outMax)
	return math.Max(lo, math.Min(hi, out))
}

// Autoscale returns a new view where each band is linearly rescaled so that
// its minimum maps to minOut and its maximum to maxOut. Bands are scaled
// independently, and the view must be closed.
//
// With Percent(p), the p percent lowest and highest values of each band are
// clamped to minOut and maxOut. Constant bands map to minOut, and bands with
// no valid pixels are left as-is, both emitting a warning.
func (ds *Dataset) Autoscale(minOut, maxOut float64, opts ...AutoscaleOption) (*Dataset, error) {
	ao := autoscaleOpts{}
	for _, opt := range opts {
		opt.setAutoscaleOpt(&ao)
	}
	em := newEmitter(ao.errorHandler)
	if err := ds.check(); err != nil {
		return nil, em.fail(err)
	}
	if ao.percent < 0 || ao.percent >= 50 || math.IsNaN(ao.percent) {
		return nil, em.fail(fmt.Errorf("autoscale: invalid percentile %g", ao.percent))
	}
	views := make([]*bandView, len(ds.views))
	for i, v := range ds.views {
		nv := v.clone()
		views[i] = nv
		lo, hi, err := v.inputRange(ds.res, ao.percent)
		if errors.Is(err, ErrNoValidPixels) {
			if werr := em.warnf("autoscale: band %s has no valid pixels", ds.bandName(i)); werr != nil {
				return nil, werr
			}
			continue
		}
		if err != nil {
			return nil, em.fail(fmt.Errorf("autoscale band %s: %w", ds.bandName(i), err))
		}
		if lo == hi {
			if werr := em.warnf("autoscale: band %s is constant (%g)", ds.bandName(i), lo); werr != nil {
				return nil, werr
			}
		}
		em.debugf("autoscale: band %s [%g,%g] -> [%g,%g]", ds.bandName(i), lo, hi, minOut, maxOut)
		nv.steps = append(nv.steps, rescale{inMin: lo, inMax: hi, outMin: minOut, outMax: maxOut})
		nv.stats.reset()
	}
	return ds.derive(views), nil
}

// inputRange returns the range of the view's values mapped onto the output
// range: the extrema, or the p and 100-p percentiles.
func (v *bandView) inputRange(res *resource, p float64) (float64, float64, error) {
	st, err := v.statistics(res, false, false)
	if err != nil {
		return 0, 0, err
	}
	if p == 0 || st.Min == st.Max {
		return st.Min, st.Max, nil
	}
	h, err := v.histogram(res, histogramOpts{min: st.Min, max: st.Max, buckets: percentBuckets})
	if err != nil {
		return 0, 0, err
	}
	target := float64(h.Total()) * p / 100
	lo, hi := st.Min, st.Max
	cum := 0.0
	for i := 0; i < h.Len(); i++ {
		b := h.Bucket(i)
		if cum+float64(b.Count) > target {
			lo = b.Min
			break
		}
		cum += float64(b.Count)
	}
	cum = 0
	for i := h.Len() - 1; i >= 0; i-- {
		b := h.Bucket(i)
		if cum+float64(b.Count) > target {
			hi = b.Max
			break
		}
		cum += float64(b.Count)
	}
	if lo >= hi {
		return st.Min, st.Max, nil
	}
	return lo, hi, nil
}
