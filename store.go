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
	"io"
	"strings"
	"sync"
)

// KeySizerReaderAt is the interface a remote store must implement to be
// registered with RegisterStore.
//
// When registering a store with
//
//	RegisterStore("scheme://",handler)
//
// calling Open("scheme://bucket/myfile.tif") will result in geoimg making calls to
//
//	handler.Size("bucket/myfile.tif")
//	handler.ReadAt("bucket/myfile.tif", buf, offset)
//
// Size is used to determine whether the given key exists, and should return
// an error wrapping os.ErrNotExist (or syscall.ENOENT) if no such key exists.
type KeySizerReaderAt interface {
	ReadAt(key string, buf []byte, off int64) (int, error)
	Size(key string) (int64, error)
}

var stores = struct {
	sync.RWMutex
	handlers map[string]KeySizerReaderAt
}{handlers: map[string]KeySizerReaderAt{}}

// RegisterStore makes datasets whose path starts with prefix readable through
// handler. Datasets opened through a store are read-only.
func RegisterStore(prefix string, handler KeySizerReaderAt) error {
	if prefix == "" || handler == nil {
		return errors.New("empty prefix or nil handler")
	}
	stores.Lock()
	defer stores.Unlock()
	if _, ok := stores.handlers[prefix]; ok {
		return fmt.Errorf("handler already registered on prefix %s", prefix)
	}
	stores.handlers[prefix] = handler
	return nil
}

// storeFor returns the store handling path and the key to request from it
func storeFor(path string) (KeySizerReaderAt, string) {
	stores.RLock()
	defer stores.RUnlock()
	best := ""
	for prefix := range stores.handlers {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return nil, ""
	}
	return stores.handlers[best], path[len(best):]
}

// keyReader exposes a single key of a store as an io.ReaderAt
type keyReader struct {
	store KeySizerReaderAt
	key   string
}

func (kr keyReader) ReadAt(buf []byte, off int64) (int, error) {
	n, err := kr.store.ReadAt(kr.key, buf, off)
	if err == nil && n < len(buf) {
		err = io.EOF
	}
	return n, err
}
