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
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpatialRef(t *testing.T) {
	for _, tc := range []struct {
		def        string
		epsg       int
		name       string
		geographic bool
	}{
		{"EPSG:4326", 4326, "WGS 84", true},
		{"epsg:4326", 4326, "WGS 84", true},
		{"WGS84", 4326, "WGS 84", true},
		{"3857", 3857, "WGS 84 / Pseudo-Mercator", false},
		{"EPSG:900913", 3857, "WGS 84 / Pseudo-Mercator", false},
		{"EPSG:3785", 3857, "WGS 84 / Pseudo-Mercator", false},
		{"EPSG:102100", 3857, "WGS 84 / Pseudo-Mercator", false},
		{"EPSG:32631", 32631, "WGS 84 / UTM zone 31N", false},
		{"EPSG:32760", 32760, "WGS 84 / UTM zone 60S", false},
	} {
		sr, err := NewSpatialRef(tc.def)
		require.NoError(t, err, tc.def)
		assert.Equal(t, tc.epsg, sr.EPSG(), tc.def)
		assert.Equal(t, tc.name, sr.Name(), tc.def)
		assert.Equal(t, tc.geographic, sr.Geographic(), tc.def)
	}
	for _, def := range []string{"", "EPSG:2154", "EPSG:32600", "EPSG:32661", "+proj=utm", "IGNF:LAMB93"} {
		_, err := NewSpatialRef(def)
		assert.ErrorIs(t, err, ErrReprojection, def)
	}

	wgs, _ := NewSpatialRefFromEPSG(4326)
	merc, _ := NewSpatialRefFromEPSG(3857)
	alias, _ := NewSpatialRefFromEPSG(900913)
	assert.Equal(t, "EPSG:3857", alias.String())
	assert.True(t, merc.IsSame(alias))
	assert.False(t, merc.IsSame(wgs))
	assert.False(t, merc.IsSame(nil))
	var nilsr *SpatialRef
	assert.True(t, nilsr.IsSame(nil))
	assert.Equal(t, "", nilsr.String())

	xr, yr := merc.UnitResolution()
	assert.Equal(t, 1.0, xr)
	assert.Equal(t, -1.0, yr)
	xr, yr = wgs.UnitResolution()
	assert.InDelta(t, 1/111319.49, xr, 1e-12)
	assert.Equal(t, -xr, yr)
}

func TestTransform(t *testing.T) {
	wgs, _ := NewSpatialRef("EPSG:4326")
	merc, _ := NewSpatialRef("EPSG:3857")
	utm31, _ := NewSpatialRef("EPSG:32631")
	utm31s, _ := NewSpatialRef("EPSG:32731")

	_, err := NewTransform(nil, wgs)
	assert.ErrorIs(t, err, ErrReprojection)
	_, err = NewTransform(wgs, unsupportedSpatialRef(2154, false))
	assert.ErrorIs(t, err, ErrReprojection)
	same, err := NewTransform(unsupportedSpatialRef(2154, false), unsupportedSpatialRef(2154, false))
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1, 2}, same.TransformPoint(orb.Point{1, 2}))

	trn, err := NewTransform(wgs, merc)
	require.NoError(t, err)
	p := trn.TransformPoint(orb.Point{180, 0})
	assert.InDelta(t, 20037508.34, p[0], 0.01)
	assert.InDelta(t, 0, p[1], 1e-9)

	trn, err = NewTransform(wgs, utm31)
	require.NoError(t, err)
	p = trn.TransformPoint(orb.Point{3, 45})
	assert.InDelta(t, 500000, p[0], 1e-6)
	assert.InDelta(t, 4982950.40, p[1], 0.5)

	// round trips through every supported system
	for _, dst := range []*SpatialRef{merc, utm31, utm31s} {
		fwd, _ := NewTransform(wgs, dst)
		inv, _ := NewTransform(dst, wgs)
		for _, pt := range []orb.Point{{3, 45}, {0.5, 10}, {5.9, -33.3}, {2.1, 0.001}} {
			back := inv.TransformPoint(fwd.TransformPoint(pt))
			assert.InDelta(t, pt[0], back[0], 1e-8, "%v in %s", pt, dst)
			assert.InDelta(t, pt[1], back[1], 1e-8, "%v in %s", pt, dst)
		}
	}
	// utm to mercator goes through wgs84
	u2m, _ := NewTransform(utm31, merc)
	p = u2m.TransformPoint(orb.Point{500000, 0})
	assert.InDelta(t, 333958.47, p[0], 0.01)
	assert.InDelta(t, 0, p[1], 1e-6)

	x := []float64{0, 3}
	y := []float64{0, 45}
	ok := make([]bool, 2)
	trn, _ = NewTransform(wgs, utm31s)
	assert.NoError(t, trn.TransformEx(x, y, ok))
	assert.Equal(t, []bool{true, true}, ok)
	assert.InDelta(t, 10000000, y[0], 1e-6)
	assert.Error(t, trn.TransformEx(x, y[:1], nil))

	x = []float64{0, math.NaN()}
	y = []float64{0, 0}
	trn, _ = NewTransform(wgs, merc)
	err = trn.TransformEx(x, y, ok)
	assert.ErrorIs(t, err, ErrReprojection)
	assert.Equal(t, []bool{true, false}, ok)
}

func TestReprojectBounds(t *testing.T) {
	wgs, _ := NewSpatialRef("EPSG:4326")
	merc, _ := NewSpatialRef("EPSG:3857")
	b, err := reprojectBounds(UnitBounds, wgs, merc)
	require.NoError(t, err)
	assert.InDelta(t, 0, b.MinX(), 1e-9)
	assert.InDelta(t, 0, b.MinY(), 1e-9)
	assert.InDelta(t, 111319.49, b.MaxX(), 0.01)
	assert.InDelta(t, 111325.14, b.MaxY(), 0.01)

	// edges are sampled, not just corners
	utm31, _ := NewSpatialRef("EPSG:32631")
	b, err = reprojectBounds(Bounds{0, 44, 6, 46}, wgs, utm31)
	require.NoError(t, err)
	north := mustTransform(t, wgs, utm31).TransformPoint(orb.Point{3, 46})
	assert.GreaterOrEqual(t, b.MaxY(), north[1])

	_, err = reprojectBounds(UnitBounds, wgs, unsupportedSpatialRef(2154, false))
	assert.ErrorIs(t, err, ErrReprojection)
}

func mustTransform(t *testing.T, src, dst *SpatialRef) *Transform {
	t.Helper()
	trn, err := NewTransform(src, dst)
	require.NoError(t, err)
	return trn
}

func TestBoundsGeoTransform(t *testing.T) {
	b := Bounds{0, 0, 10, 5}
	assert.Equal(t, 10.0, b.Width())
	assert.Equal(t, 5.0, b.Height())
	assert.Equal(t, Bounds{-1, 0, 10, 7}, b.Union(Bounds{-1, 2, 3, 7}))
	assert.Equal(t, b, BoundsFromOrb(b.Bound()))

	gt := NewGeoTransform(b, 20, 10)
	assert.Equal(t, GeoTransform{0, 0.5, 0, 5, 0, -0.5}, gt)
	x, y := gt.Apply(20, 10)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 0.0, y)
	assert.Equal(t, b, gt.Bounds(20, 10))
	assert.Equal(t, orb.Point{0.5, -0.5}, gt.Resolution())
	inv, err := gt.Invert()
	require.NoError(t, err)
	px, py := inv.Apply(10, 0)
	assert.Equal(t, 20.0, px)
	assert.Equal(t, 10.0, py)

	rot := GeoTransform{100, 1, 0.5, 200, 0.25, -1}
	inv, err = rot.Invert()
	require.NoError(t, err)
	gx, gy := rot.Apply(3, 7)
	px, py = inv.Apply(gx, gy)
	assert.InDelta(t, 3, px, 1e-9)
	assert.InDelta(t, 7, py, 1e-9)
	rb := rot.Bounds(10, 10)
	assert.Equal(t, Bounds{100, 190, 115, 202.5}, rb)

	_, err = GeoTransform{0, 1, 2, 0, 2, 4}.Invert()
	assert.Error(t, err)
}
