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

package gtiff

import (
	"encoding/xml"
	"fmt"
)

// Item is a single GDAL_METADATA entry. Sample is nil for dataset level items.
type Item struct {
	Name   string `xml:"name,attr"`
	Sample *int   `xml:"sample,attr,omitempty"`
	Role   string `xml:"role,attr,omitempty"`
	Value  string `xml:",chardata"`
}

// Metadata is the content of the GDAL_METADATA tag
type Metadata struct {
	XMLName xml.Name `xml:"GDALMetadata"`
	Items   []Item   `xml:"Item"`
}

// Marshal encodes the metadata as xml
func (md Metadata) Marshal() (string, error) {
	b, err := xml.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

// ParseMetadata decodes the content of a GDAL_METADATA tag
func ParseMetadata(s string) (Metadata, error) {
	md := Metadata{}
	if err := xml.Unmarshal([]byte(s), &md); err != nil {
		return md, fmt.Errorf("parse metadata: %w", err)
	}
	return md, nil
}

// Add appends a dataset level item
func (md *Metadata) Add(name, value string) {
	md.Items = append(md.Items, Item{Name: name, Value: value})
}

// AddBand appends an item for the given band with an optional role
func (md *Metadata) AddBand(band int, name, role, value string) {
	b := band
	md.Items = append(md.Items, Item{Name: name, Sample: &b, Role: role, Value: value})
}
