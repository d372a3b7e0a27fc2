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
	"math"

	"github.com/paulmach/orb"
)

// Bounds is a bounding box, ordered as minx, miny, maxx, maxy
type Bounds [4]float64

// UnitBounds is the [0,0,1,1] box new datasets are georeferenced on by default
var UnitBounds = Bounds{0, 0, 1, 1}

func (b Bounds) MinX() float64 {
	return b[0]
}

func (b Bounds) MinY() float64 {
	return b[1]
}

func (b Bounds) MaxX() float64 {
	return b[2]
}

func (b Bounds) MaxY() float64 {
	return b[3]
}

// Width returns maxx-minx
func (b Bounds) Width() float64 {
	return b[2] - b[0]
}

// Height returns maxy-miny
func (b Bounds) Height() float64 {
	return b[3] - b[1]
}

// Union returns the union of these bounds with other ones
func (b Bounds) Union(other Bounds) Bounds {
	return [4]float64{
		math.Min(b.MinX(), other.MinX()),
		math.Min(b.MinY(), other.MinY()),
		math.Max(b.MaxX(), other.MaxX()),
		math.Max(b.MaxY(), other.MaxY()),
	}
}

// Bound converts the bounds to an orb.Bound
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
}

// BoundsFromOrb converts an orb.Bound
func BoundsFromOrb(b orb.Bound) Bounds {
	return Bounds{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// GeoTransform is the affine transform from pixel/line space to georeferenced
// space: x = gt[0] + px*gt[1] + py*gt[2] ; y = gt[3] + px*gt[4] + py*gt[5]
type GeoTransform [6]float64

// NewGeoTransform returns the north-up geotransform that maps a width*height
// grid onto bounds
func NewGeoTransform(b Bounds, width, height int) GeoTransform {
	return GeoTransform{
		b.MinX(), b.Width() / float64(width), 0,
		b.MaxY(), 0, -b.Height() / float64(height),
	}
}

// Apply returns the georeferenced coordinates of pixel position (px, py)
func (gt GeoTransform) Apply(px, py float64) (float64, float64) {
	return gt[0] + px*gt[1] + py*gt[2], gt[3] + px*gt[4] + py*gt[5]
}

// Invert returns the geotransform mapping georeferenced coordinates back to
// pixel/line space
func (gt GeoTransform) Invert() (GeoTransform, error) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 || math.IsNaN(det) {
		return GeoTransform{}, errors.New("geotransform is not invertible")
	}
	inv := GeoTransform{}
	inv[1] = gt[5] / det
	inv[2] = -gt[2] / det
	inv[4] = -gt[4] / det
	inv[5] = gt[1] / det
	inv[0] = -(inv[1]*gt[0] + inv[2]*gt[3])
	inv[3] = -(inv[4]*gt[0] + inv[5]*gt[3])
	return inv, nil
}

// Resolution returns the pixel size, (gt[1], gt[5]). The y resolution is
// negative for north-up images.
func (gt GeoTransform) Resolution() orb.Point {
	return orb.Point{gt[1], gt[5]}
}

// Bounds returns the extent of a width*height grid
func (gt GeoTransform) Bounds(width, height int) Bounds {
	w, h := float64(width), float64(height)
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for _, c := range [][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x, y := gt.Apply(c[0], c[1])
		b = b.Extend(orb.Point{x, y})
	}
	return BoundsFromOrb(b)
}
