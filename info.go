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
	"strings"

	"github.com/airbusgeo/geoimg/internal/gtiff"
)

// Info returns a human readable description of the dataset, in the manner
// of gdalinfo
func (ds *Dataset) Info() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Driver: GTiff/GeoTIFF\n")
	fmt.Fprintf(&sb, "Files: %s\n", ds.res.path)
	fmt.Fprintf(&sb, "Size is %d, %d\n", ds.XSize(), ds.YSize())
	if sr := ds.SpatialRef(); sr != nil {
		fmt.Fprintf(&sb, "Coordinate System is %s (%s)\n", sr, sr.Name())
	}
	gt := ds.GeoTransform()
	fmt.Fprintf(&sb, "Origin = (%.15f,%.15f)\n", gt[0], gt[3])
	fmt.Fprintf(&sb, "Pixel Size = (%.15f,%.15f)\n", gt[1], gt[5])
	writeItems(&sb, "", ds.Metadatas())
	if ds.res.img.Compression != gtiff.None {
		fmt.Fprintf(&sb, "Image Structure Metadata:\n  COMPRESSION=DEFLATE\n")
	}
	fmt.Fprintf(&sb, "Corner Coordinates:\n")
	corners := []struct {
		name   string
		px, py float64
	}{
		{"Upper Left", 0, 0},
		{"Lower Left", 0, float64(ds.YSize())},
		{"Upper Right", float64(ds.XSize()), 0},
		{"Lower Right", float64(ds.XSize()), float64(ds.YSize())},
		{"Center", float64(ds.XSize()) / 2, float64(ds.YSize()) / 2},
	}
	for _, c := range corners {
		p := ds.GeoLoc(c.px, c.py)
		fmt.Fprintf(&sb, "%-11s (%15.7f,%15.7f)\n", c.name, p[0], p[1])
	}
	for i, v := range ds.views {
		fmt.Fprintf(&sb, "Band %d Block=%dx%d Type=%s, Name=%s\n", i+1,
			ds.res.img.TileWidth, ds.res.img.TileHeight, ds.res.dtype, ds.bandName(i))
		if nd, ok := ds.res.noData(v.index); ok {
			fmt.Fprintf(&sb, "  NoData Value=%s\n", formatFloat(nd))
		}
		if v.gain != 1 || v.offset != 0 {
			fmt.Fprintf(&sb, "  Offset: %s,   Scale:%s\n", formatFloat(v.offset), formatFloat(v.gain))
		}
		writeItems(&sb, "  ", ds.res.metadataItems(v.index))
	}
	return sb.String()
}

func writeItems(sb *strings.Builder, indent string, items map[string]string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%sMetadata:\n", indent)
	for _, k := range sortedKeys(items) {
		fmt.Fprintf(sb, "%s  %s=%s\n", indent, k, items[k])
	}
}
