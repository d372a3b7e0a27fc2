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

// Package gcs makes objects stored on Google Cloud Storage buckets readable
// with geoimg.Open.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/geoimg"
	"github.com/airbusgeo/geoimg/internal/blockcache"
	cache "github.com/airbusgeo/geoimg/pkg/blockcache"
	lru "github.com/hashicorp/golang-lru"
	"google.golang.org/api/googleapi"
)

type gcsHandler struct {
	ctx                context.Context
	prefix             string
	client             *storage.Client
	cacher             cache.Cacher
	blockSize          int
	maxCachedBlocks    int
	maxCachedMetadatas int
	blockCache         *blockcache.BlockCache
	sizecache          *lru.Cache
	billingProjectID   string
	splitRanges        bool
}

// Option is an option that can be passed to RegisterHandler
type Option func(o *gcsHandler)

// Prefix is the prefix that a file must have in order to be handled by this handler
// Defaults to "gs://", i.e. this handler will be used when calling geoimg.Open("gs://mybucket/myfile.tif")
func Prefix(prefix string) Option {
	return func(o *gcsHandler) {
		o.prefix = prefix
	}
}

// Client sets the cloud.google.com/go/storage.Client that will be used
// by the handler
func Client(cl *storage.Client) Option {
	return func(o *gcsHandler) {
		o.client = cl
	}
}

// Cacher allows to plugin a custom cache mechanism instead of the default in
// memory lru cache. MaxCachedBlocks() will not be honored if you provide your
// own cacher, it is up to your cacher implementation to handle block eviction
func Cacher(cacher cache.Cacher) Option {
	return func(o *gcsHandler) {
		o.cacher = cacher
	}
}

// BlockSize sets the size of requests that will go out to the storage API.
// Defaults to 1Mb
func BlockSize(bs int) Option {
	if bs < 1 {
		panic("invalid blocksize")
	}
	return func(o *gcsHandler) {
		o.blockSize = bs
	}
}

// MaxCachedBlocks sets the number of blocks to keep in the lru cache.
// Defaults to 1000
func MaxCachedBlocks(n int) Option {
	if n < 1 {
		panic("invalid max cached blocks")
	}
	return func(o *gcsHandler) {
		o.maxCachedBlocks = n
	}
}

// BillingProject sets the project name which should be billed for the requests.
// This is mandatory if the bucket is in requester-pays mode.
func BillingProject(projectID string) Option {
	return func(o *gcsHandler) {
		o.billingProjectID = projectID
	}
}

// SplitConsecutiveRanges forces multiple parallel requests for individual blocks
// when a requested chunk spans multiple blocks, instead of emitting a single request
// spanning multiple blocks.
func SplitConsecutiveRanges(split bool) Option {
	return func(o *gcsHandler) {
		o.splitRanges = split
	}
}

// MaxCachedMetadatas sets the number of objects whose size will be kept in cache.
// This also accounts for non-existing objects, i.e. opening a missing object twice
// only results in a single API call.
func MaxCachedMetadatas(n int) Option {
	if n < 1 {
		panic("invalid max cached metadatas")
	}
	return func(o *gcsHandler) {
		o.maxCachedMetadatas = n
	}
}

// RegisterHandler registers a geoimg store in order to use cloud.google.com/go/storage
// APIs to access objects on cloud storage buckets
func RegisterHandler(ctx context.Context, opts ...Option) error {
	handler := &gcsHandler{
		ctx:                ctx,
		prefix:             "gs://",
		blockSize:          1024 * 1024,
		maxCachedBlocks:    1000,
		maxCachedMetadatas: 10000,
	}
	for _, o := range opts {
		o(handler)
	}
	handler.sizecache, _ = lru.New(handler.maxCachedMetadatas)
	if handler.client == nil {
		cl, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("storage.newclient: %w", err)
		}
		handler.client = cl
	}
	if handler.cacher == nil {
		var err error
		if handler.cacher, err = cache.NewCache(uint(handler.maxCachedBlocks)); err != nil {
			return err
		}
	}
	handler.blockCache = blockcache.New(objectReader{handler}, handler.cacher, uint(handler.blockSize), handler.splitRanges)
	return geoimg.RegisterStore(handler.prefix, handler)
}

func gcsparse(gsURI string) (bucket, object string) {
	gsURI = strings.TrimPrefix(gsURI, "/")
	bucket, object, _ = strings.Cut(gsURI, "/")
	return
}

func (gcs *gcsHandler) bucket(name string) *storage.BucketHandle {
	b := gcs.client.Bucket(name)
	if gcs.billingProjectID != "" {
		b = b.UserProject(gcs.billingProjectID)
	}
	return b
}

// cachedSize returns the cached size of key, -1 for missing objects
func (gcs *gcsHandler) cachedSize(key string) (int64, bool) {
	s, ok := gcs.sizecache.Get(key)
	if !ok {
		return 0, false
	}
	return s.(int64), true
}

// Size implements geoimg.KeySizerReaderAt
func (gcs *gcsHandler) Size(key string) (int64, error) {
	if s, ok := gcs.cachedSize(key); ok {
		if s == -1 {
			return 0, syscall.ENOENT
		}
		return s, nil
	}
	bucket, object := gcsparse(key)
	if len(bucket) == 0 || len(object) == 0 {
		return 0, fmt.Errorf("invalid key %s", key)
	}
	attrs, err := gcs.bucket(bucket).Object(object).Attrs(gcs.ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			gcs.sizecache.Add(key, int64(-1))
			return 0, syscall.ENOENT
		}
		return 0, fmt.Errorf("attrs gs://%s/%s: %w", bucket, object, err)
	}
	gcs.sizecache.Add(key, attrs.Size)
	return attrs.Size, nil
}

// ReadAt implements geoimg.KeySizerReaderAt
func (gcs *gcsHandler) ReadAt(key string, p []byte, off int64) (int, error) {
	if s, ok := gcs.cachedSize(key); ok {
		if s == -1 {
			return 0, syscall.ENOENT
		}
		if off >= s {
			return 0, io.EOF
		}
	}
	return gcs.blockCache.ReadAt(key, p, off)
}

// objectReader issues the range requests backing the block cache
type objectReader struct {
	gcs *gcsHandler
}

func (r objectReader) ReadAt(key string, p []byte, off int64) (int, error) {
	bucket, object := gcsparse(key)
	if len(bucket) == 0 || len(object) == 0 {
		return 0, fmt.Errorf("invalid key %s", key)
	}
	rd, err := r.gcs.bucket(bucket).Object(object).NewRangeReader(r.gcs.ctx, off, int64(len(p)))
	if err != nil {
		var gerr *googleapi.Error
		if off > 0 && errors.As(err, &gerr) && gerr.Code == 416 {
			return 0, io.EOF
		}
		if errors.Is(err, storage.ErrObjectNotExist) {
			r.gcs.sizecache.Add(key, int64(-1))
			return 0, syscall.ENOENT
		}
		return 0, fmt.Errorf("new reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer rd.Close()
	if sz := rd.Attrs.Size; sz > 0 {
		r.gcs.sizecache.Add(key, sz)
	}
	n, err := io.ReadFull(rd, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}
