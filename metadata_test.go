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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetMetadata(t *testing.T) {
	fn := tempfile()
	defer os.Remove(fn)
	ds, err := Create(fn, 20, 20, Bands(2))
	require.NoError(t, err)

	assert.Equal(t, "", ds.Metadata("missing"))
	assert.Nil(t, ds.Metadatas())

	require.NoError(t, ds.SetMetadata("sensor", "msi"))
	require.NoError(t, ds.SetMetadata("level", "1C"))
	assert.Equal(t, "msi", ds.Metadata("sensor"))
	assert.Equal(t, map[string]string{"sensor": "msi", "level": "1C"}, ds.Metadatas())

	// returned maps are copies
	md := ds.Metadatas()
	md["sensor"] = "changed"
	assert.Equal(t, "msi", ds.Metadata("sensor"))

	require.NoError(t, ds.SetMetadata("level", ""))
	assert.Equal(t, map[string]string{"sensor": "msi"}, ds.Metadatas())

	ec := eh()
	assert.Error(t, ds.SetMetadata("", "v", ErrLogger(ec.ErrorHandler)))
	assert.Equal(t, 1, ec.errs)

	b, err := ds.Band(1)
	require.NoError(t, err)
	require.NoError(t, b.SetMetadata("wavelength", "842"))
	require.NoError(t, b.SetDescription("nir"))
	require.NoError(t, b.SetNoData(-1))
	assert.Equal(t, "842", b.Metadata("wavelength"))
	assert.Equal(t, map[string]string{"wavelength": "842"}, b.Metadatas())
	assert.Error(t, b.SetMetadata("", "x"))
	require.NoError(t, b.Close())

	b0, err := ds.Band(0)
	require.NoError(t, err)
	assert.Nil(t, b0.Metadatas())
	require.NoError(t, b0.Close())
	require.NoError(t, ds.Close())

	ds, err = Open(fn)
	require.NoError(t, err)
	defer ds.Close()
	assert.Equal(t, map[string]string{"sensor": "msi"}, ds.Metadatas())
	b, err = ds.BandByName("nir")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, map[string]string{"wavelength": "842"}, b.Metadatas())
	nd, ok := b.NoData()
	assert.True(t, ok)
	assert.Equal(t, -1.0, nd)

	require.NoError(t, b.SetMetadata("wavelength", ""))
	assert.Nil(t, b.Metadatas())
}

func TestMetadataViews(t *testing.T) {
	ds, err := Create("", 10, 10, Bands(3))
	require.NoError(t, err)
	defer ds.Close()
	require.NoError(t, ds.SetBandNames([]string{"r", "g", "b"}))
	sel, err := ds.Select("b", "r")
	require.NoError(t, err)
	defer sel.Close()

	// views share the metadata of their backing file
	require.NoError(t, sel.SetMetadata("shared", "yes"))
	assert.Equal(t, "yes", ds.Metadata("shared"))

	b, err := sel.Band(0)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.SetMetadata("k", "v"))
	db, err := ds.Band(2)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, "v", db.Metadata("k"))
}
