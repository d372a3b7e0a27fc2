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
	"io"
	"os"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore serves in-memory objects keyed by name
type memStore struct {
	objects map[string][]byte
	reads   atomic.Int64
}

func (m *memStore) Size(key string) (int64, error) {
	b, ok := m.objects[key]
	if !ok {
		return 0, syscall.ENOENT
	}
	return int64(len(b)), nil
}

func (m *memStore) ReadAt(key string, p []byte, off int64) (int, error) {
	m.reads.Add(1)
	b, ok := m.objects[key]
	if !ok {
		return 0, syscall.ENOENT
	}
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

var storeSeq atomic.Int64

// uniquePrefix returns a prefix that no other test registered
func uniquePrefix(name string) string {
	return fmt.Sprintf("%s%d://", name, storeSeq.Add(1))
}

// storedGradient returns a memStore holding a 2 band gradient under key
func storedGradient(t *testing.T, key string) *memStore {
	t.Helper()
	fn := tempfile()
	defer os.Remove(fn)
	ds := gradient(t, fn, 40, 30, 2, TileSize(16, 16))
	require.NoError(t, ds.SetMetadata("origin", "mem"))
	require.NoError(t, ds.Close())
	data, err := os.ReadFile(fn)
	require.NoError(t, err)
	return &memStore{objects: map[string][]byte{key: data}}
}

func TestRegisterStore(t *testing.T) {
	st := &memStore{}
	prefix := uniquePrefix("reg")
	assert.Error(t, RegisterStore("", st))
	assert.Error(t, RegisterStore(prefix, nil))
	assert.NoError(t, RegisterStore(prefix, st))
	assert.Error(t, RegisterStore(prefix, st))
}

func TestStoreOpen(t *testing.T) {
	prefix := uniquePrefix("mem")
	st := storedGradient(t, "bucket/grad.tif")
	require.NoError(t, RegisterStore(prefix, st))

	ds, err := Open(prefix + "bucket/grad.tif")
	require.NoError(t, err)
	defer ds.Close()
	assert.Equal(t, 40, ds.XSize())
	assert.Equal(t, 30, ds.YSize())
	assert.Equal(t, 2, ds.NBands())
	assert.Equal(t, "mem", ds.Metadata("origin"))
	assert.Greater(t, st.reads.Load(), int64(0))

	buf, err := ds.ReadWindow(20, 10, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, float64(1000+15*40+25), buf.At(1, 5, 5))

	ec := eh()
	assert.Error(t, ds.Write(buf, ErrLogger(ec.ErrorHandler)))
	assert.Equal(t, 1, ec.errs)
	assert.ErrorIs(t, ds.SetMetadata("k", "v"), ErrReadOnly)

	// a second open shares the resource
	ds2, err := Open(prefix + "bucket/grad.tif")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.refCount(prefix+"bucket/grad.tif"))
	assert.NoError(t, ds2.Close())
	assert.Equal(t, 1, backing.refCount(prefix+"bucket/grad.tif"))

	_, err = Open(prefix + "bucket/missing.tif")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreLongestPrefix(t *testing.T) {
	short := uniquePrefix("lp")
	long := short + "sub/"
	outer := &memStore{objects: map[string][]byte{}}
	inner := storedGradient(t, "grad.tif")
	require.NoError(t, RegisterStore(short, outer))
	require.NoError(t, RegisterStore(long, inner))

	st, key := storeFor(long + "grad.tif")
	assert.Equal(t, inner, st)
	assert.Equal(t, "grad.tif", key)
	st, key = storeFor(short + "other.tif")
	assert.Equal(t, outer, st)
	assert.Equal(t, "other.tif", key)
	st, _ = storeFor("/local/file.tif")
	assert.Nil(t, st)

	ds, err := Open(long + "grad.tif")
	require.NoError(t, err)
	assert.NoError(t, ds.Close())
	_, err = Open(short + "sub2/grad.tif")
	assert.ErrorIs(t, err, ErrNotFound)
}
