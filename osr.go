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
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// metersPerDegree is the length of one degree of longitude at the equator
const metersPerDegree = orb.EarthRadius * math.Pi / 180

// SpatialRef is a coordinate reference system identified by an EPSG code.
//
// Supported systems are WGS84 (EPSG:4326), Web Mercator (EPSG:3857) and the
// WGS84 UTM zones (EPSG:32601-32660 and EPSG:32701-32760).
type SpatialRef struct {
	epsg       int
	name       string
	geographic bool
	toWGS84    orb.Projection
	fromWGS84  orb.Projection
}

var mercatorAliases = map[int]bool{3857: true, 3785: true, 900913: true, 102100: true, 102113: true}

func identity(p orb.Point) orb.Point {
	return p
}

// NewSpatialRefFromEPSG creates a SpatialRef from an epsg code
func NewSpatialRefFromEPSG(code int) (*SpatialRef, error) {
	switch {
	case code == 4326:
		return &SpatialRef{epsg: 4326, name: "WGS 84", geographic: true,
			toWGS84: identity, fromWGS84: identity}, nil
	case mercatorAliases[code]:
		return &SpatialRef{epsg: 3857, name: "WGS 84 / Pseudo-Mercator",
			toWGS84: project.Mercator.ToWGS84, fromWGS84: project.WGS84.ToMercator}, nil
	case code > 32600 && code <= 32660, code > 32700 && code <= 32760:
		zone, south := code%100, code > 32700
		hemi := "N"
		if south {
			hemi = "S"
		}
		tm := newUTM(zone, south)
		return &SpatialRef{epsg: code, name: fmt.Sprintf("WGS 84 / UTM zone %d%s", zone, hemi),
			toWGS84: tm.inverse, fromWGS84: tm.forward}, nil
	}
	return nil, fmt.Errorf("%w: unsupported coordinate system EPSG:%d", ErrReprojection, code)
}

// NewSpatialRef parses an authority:code definition such as "EPSG:4326".
// Bare codes ("4326") and "WGS84" are also accepted.
func NewSpatialRef(def string) (*SpatialRef, error) {
	s := strings.ToUpper(strings.TrimSpace(def))
	switch s {
	case "WGS84", "WGS 84":
		return NewSpatialRefFromEPSG(4326)
	}
	s = strings.TrimPrefix(s, "EPSG:")
	code, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot parse coordinate system %q", ErrReprojection, def)
	}
	return NewSpatialRefFromEPSG(code)
}

// EPSG returns the epsg code of the coordinate system
func (sr *SpatialRef) EPSG() int {
	return sr.epsg
}

// Name returns a human readable name
func (sr *SpatialRef) Name() string {
	return sr.name
}

// String returns the authority:code identifier, e.g. "EPSG:4326"
func (sr *SpatialRef) String() string {
	if sr == nil {
		return ""
	}
	return "EPSG:" + strconv.Itoa(sr.epsg)
}

// Geographic returns wether the SpatialRef is geographic
func (sr *SpatialRef) Geographic() bool {
	return sr.geographic
}

// IsSame returns whether two SpatialRefs describe the same projection.
func (sr *SpatialRef) IsSame(other *SpatialRef) bool {
	if sr == nil || other == nil {
		return sr == other
	}
	return sr.epsg == other.epsg
}

// UnitResolution returns the pixel size, in coordinate system units, of a
// grid with a one meter resolution at the equator.
func (sr *SpatialRef) UnitResolution() (float64, float64) {
	if sr.geographic {
		return 1 / metersPerDegree, -1 / metersPerDegree
	}
	return 1, -1
}

// Transform converts coordinates from one SpatialRef to another
type Transform struct {
	src, dst *SpatialRef
}

// NewTransform creates a transformation object from src to dst
func NewTransform(src, dst *SpatialRef) (*Transform, error) {
	if src == nil || dst == nil {
		return nil, fmt.Errorf("%w: missing coordinate system", ErrReprojection)
	}
	if src.IsSame(dst) {
		return &Transform{src: src, dst: dst}, nil
	}
	for _, sr := range []*SpatialRef{src, dst} {
		if sr.toWGS84 == nil || sr.fromWGS84 == nil {
			return nil, fmt.Errorf("%w: unsupported coordinate system %s", ErrReprojection, sr)
		}
	}
	return &Transform{src: src, dst: dst}, nil
}

// TransformPoint converts a single point. The returned point has NaN
// coordinates if the conversion failed.
func (trn *Transform) TransformPoint(p orb.Point) orb.Point {
	if trn.src.IsSame(trn.dst) {
		return p
	}
	return trn.dst.fromWGS84(trn.src.toWGS84(p))
}

// TransformEx reprojects points in place
//
// x and y may not be nil and must be of the same length
//
// successful may be nil or of the same length as x and y. If non nil, it will contain
// true or false depending on wether the corresponding point succeeded transformation or not.
func (trn *Transform) TransformEx(x []float64, y []float64, successful []bool) error {
	if len(x) != len(y) || (successful != nil && len(successful) != len(x)) {
		return fmt.Errorf("mismatched coordinate slices")
	}
	failed := 0
	for i := range x {
		p := trn.TransformPoint(orb.Point{x[i], y[i]})
		ok := !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
		if ok {
			x[i], y[i] = p[0], p[1]
		} else {
			failed++
		}
		if successful != nil {
			successful[i] = ok
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d out of %d points failed to transform", ErrReprojection, failed, len(x))
	}
	return nil
}

// edgePoints is the number of points sampled along each edge of a bounding box
// when reprojecting it
const edgePoints = 21

// reprojectBounds returns the bounding box of the reprojected corners and edges of bnds
func reprojectBounds(bnds Bounds, src, dst *SpatialRef) (Bounds, error) {
	trn, err := NewTransform(src, dst)
	if err != nil {
		return Bounds{}, fmt.Errorf("create coordinate transform: %w", err)
	}
	x := make([]float64, 0, 4*edgePoints)
	y := make([]float64, 0, 4*edgePoints)
	for i := 0; i < edgePoints; i++ {
		f := float64(i) / float64(edgePoints-1)
		px := bnds.MinX() + f*bnds.Width()
		py := bnds.MinY() + f*bnds.Height()
		x = append(x, px, px, bnds.MinX(), bnds.MaxX())
		y = append(y, bnds.MinY(), bnds.MaxY(), py, py)
	}
	ok := make([]bool, len(x))
	_ = trn.TransformEx(x, y, ok)
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	n := 0
	for i := range x {
		if ok[i] {
			b = b.Extend(orb.Point{x[i], y[i]})
			n++
		}
	}
	if n == 0 {
		return Bounds{}, fmt.Errorf("%w: bounds %v cannot be expressed in %s", ErrReprojection, bnds, dst)
	}
	return BoundsFromOrb(b), nil
}
