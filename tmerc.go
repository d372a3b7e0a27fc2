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

	"github.com/paulmach/orb"
)

// WGS84 ellipsoid
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
)

// utm is a transverse mercator projection on the WGS84 ellipsoid, using the
// third order Krüger series (sub-millimeter accuracy within a zone).
type utm struct {
	lon0           float64
	falseNorthing  float64
	k0A            float64
	alpha, beta    [3]float64
	delta          [3]float64
	conformalCoeff float64
}

func newUTM(zone int, south bool) *utm {
	n := wgs84F / (2 - wgs84F)
	n2, n3 := n*n, n*n*n
	t := &utm{
		lon0: float64(zone*6-183) * math.Pi / 180,
		k0A:  0.9996 * wgs84A / (1 + n) * (1 + n2/4 + n2*n2/64),
		alpha: [3]float64{
			n/2 - 2*n2/3 + 5*n3/16,
			13*n2/48 - 3*n3/5,
			61 * n3 / 240,
		},
		beta: [3]float64{
			n/2 - 2*n2/3 + 37*n3/96,
			n2/48 + n3/15,
			17 * n3 / 480,
		},
		delta: [3]float64{
			2*n - 2*n2/3 - 2*n3,
			7*n2/3 - 8*n3/5,
			56 * n3 / 15,
		},
		conformalCoeff: 2 * math.Sqrt(n) / (1 + n),
	}
	if south {
		t.falseNorthing = 10000000
	}
	return t
}

func (t *utm) forward(p orb.Point) orb.Point {
	lat := p[1] * math.Pi / 180
	dlon := p[0]*math.Pi/180 - t.lon0
	sinLat := math.Sin(lat)
	tt := math.Sinh(math.Atanh(sinLat) - t.conformalCoeff*math.Atanh(t.conformalCoeff*sinLat))
	xi := math.Atan2(tt, math.Cos(dlon))
	eta := math.Atanh(math.Sin(dlon) / math.Sqrt(1+tt*tt))
	e, nn := eta, xi
	for j := 0; j < 3; j++ {
		k := 2 * float64(j+1)
		e += t.alpha[j] * math.Cos(k*xi) * math.Sinh(k*eta)
		nn += t.alpha[j] * math.Sin(k*xi) * math.Cosh(k*eta)
	}
	return orb.Point{500000 + t.k0A*e, t.falseNorthing + t.k0A*nn}
}

func (t *utm) inverse(p orb.Point) orb.Point {
	xi := (p[1] - t.falseNorthing) / t.k0A
	eta := (p[0] - 500000) / t.k0A
	xip, etap := xi, eta
	for j := 0; j < 3; j++ {
		k := 2 * float64(j+1)
		xip -= t.beta[j] * math.Sin(k*xi) * math.Cosh(k*eta)
		etap -= t.beta[j] * math.Cos(k*xi) * math.Sinh(k*eta)
	}
	chi := math.Asin(math.Sin(xip) / math.Cosh(etap))
	lat := chi
	for j := 0; j < 3; j++ {
		lat += t.delta[j] * math.Sin(2*float64(j+1)*chi)
	}
	lon := t.lon0 + math.Atan2(math.Sinh(etap), math.Cos(xip))
	return orb.Point{lon * 180 / math.Pi, lat * 180 / math.Pi}
}
