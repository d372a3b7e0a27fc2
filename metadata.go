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
)

type metadataOpts struct {
	errorHandler ErrorHandler
}

// MetadataOption is an option that can be passed to metadata related calls
// Available MetadataOptions are:
//
// • ErrLogger
type MetadataOption interface {
	setMetadataOpt(mo *metadataOpts)
}

// datasetMetadata is the band index under which dataset level items are handled
const datasetMetadata = -1

func (r *resource) metadataLocked(band int) map[string]string {
	if band == datasetMetadata {
		return r.meta
	}
	return r.bands[band].meta
}

func (r *resource) metadataItem(band int, key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metadataLocked(band)[key]
}

func (r *resource) metadataItems(band int) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	md := r.metadataLocked(band)
	if len(md) == 0 {
		return nil
	}
	ret := make(map[string]string, len(md))
	for k, v := range md {
		ret[k] = v
	}
	return ret
}

func (r *resource) setMetadataItem(band int, key, value string) error {
	if key == "" {
		return errors.New("empty metadata key")
	}
	return r.update(func() error {
		md := r.metadataLocked(band)
		if value == "" {
			delete(md, key)
		} else {
			md[key] = value
		}
		return nil
	})
}

// Metadata returns the value of the dataset metadata item key, or an empty
// string if it is not set.
func (ds *Dataset) Metadata(key string, opts ...MetadataOption) string {
	return ds.res.metadataItem(datasetMetadata, key)
}

// Metadatas returns all the dataset metadata items
func (ds *Dataset) Metadatas(opts ...MetadataOption) map[string]string {
	return ds.res.metadataItems(datasetMetadata)
}

// SetMetadata sets the dataset metadata item key to value. An empty value
// removes the item. Items are persisted in the backing file.
func (ds *Dataset) SetMetadata(key, value string, opts ...MetadataOption) error {
	mo := metadataOpts{}
	for _, opt := range opts {
		opt.setMetadataOpt(&mo)
	}
	em := newEmitter(mo.errorHandler)
	if err := ds.checkWritable(); err != nil {
		return em.fail(err)
	}
	if err := ds.res.setMetadataItem(datasetMetadata, key, value); err != nil {
		return em.fail(fmt.Errorf("set metadata %s: %w", key, err))
	}
	return nil
}

// Metadata returns the value of the band metadata item key
func (band *Band) Metadata(key string, opts ...MetadataOption) string {
	return band.res.metadataItem(band.view.index, key)
}

// Metadatas returns all the band metadata items
func (band *Band) Metadatas(opts ...MetadataOption) map[string]string {
	return band.res.metadataItems(band.view.index)
}

// SetMetadata sets the band metadata item key to value. An empty value
// removes the item.
func (band *Band) SetMetadata(key, value string, opts ...MetadataOption) error {
	mo := metadataOpts{}
	for _, opt := range opts {
		opt.setMetadataOpt(&mo)
	}
	em := newEmitter(mo.errorHandler)
	if err := band.checkWritable(); err != nil {
		return em.fail(err)
	}
	if err := band.res.setMetadataItem(band.view.index, key, value); err != nil {
		return em.fail(fmt.Errorf("set metadata %s: %w", key, err))
	}
	return nil
}
