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

package blockcache

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/airbusgeo/geoimg/pkg/blockcache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// KeyReaderAt is the interface that wraps the basic ReadAt method for the specified key
//
// ReadAt reads len(p) bytes from the resource identified by key into p
// starting at offset off. It returns the number of bytes read (0 <= n <= len(p)) and
// any error encountered. When ReadAt returns n < len(p), it returns a non-nil error
// explaining why more bytes were not returned, io.EOF at the end of the object.
//
// Clients of ReadAt can execute parallel ReadAt calls on the same input source.
type KeyReaderAt interface {
	ReadAt(key string, p []byte, off int64) (int, error)
}

// BlockCache caches fixed-sized chunks of a KeyReaderAt, and exposes a KeyReaderAt
// that feeds primarily from its internal cache, ensuring that concurrent requests
// for the same block only result in a single call to the source reader.
type BlockCache struct {
	blockSize   int64
	inflight    singleflight.Group
	cache       blockcache.Cacher
	reader      KeyReaderAt
	splitRanges bool
}

// New creates a BlockCache reading blockSize chunks from reader. With split, missing
// consecutive blocks are fetched with one request each instead of a single request
// spanning all of them.
func New(reader KeyReaderAt, cache blockcache.Cacher, blockSize uint, split bool) *BlockCache {
	if blockSize == 0 {
		panic("invalid block size")
	}
	return &BlockCache{
		cache:       cache,
		blockSize:   int64(blockSize),
		reader:      reader,
		splitRanges: split,
	}
}

func (b *BlockCache) PurgeKey(key string) {
	b.cache.PurgeKey(key)
}

func (b *BlockCache) Purge() {
	b.cache.Purge()
}

type blockRange struct {
	start int64
	end   int64
}

// blockSet collects the blocks needed by a single read
type blockSet struct {
	mu     sync.Mutex
	blocks map[int64][]byte
}

func (s *blockSet) set(id int64, data []byte) {
	s.mu.Lock()
	s.blocks[id] = data
	s.mu.Unlock()
}

func (b *BlockCache) ReadAt(key string, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	first := off / b.blockSize
	last := (off + int64(len(p)) - 1) / b.blockSize
	set := &blockSet{blocks: make(map[int64][]byte, last-first+1)}
	var missing []int64
	for id := first; id <= last; id++ {
		if data, ok := b.cache.Get(key, uint(id)); ok {
			set.blocks[id] = data
		} else {
			missing = append(missing, id)
		}
	}
	if err := b.fetch(key, missing, set); err != nil {
		return 0, err
	}

	n := 0
	for id := first; id <= last; id++ {
		data := set.blocks[id]
		start := max(off-id*b.blockSize, 0)
		if start < int64(len(data)) {
			n += copy(p[n:], data[start:])
		}
		if int64(len(data)) < b.blockSize {
			break
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *BlockCache) fetch(key string, missing []int64, set *blockSet) error {
	if len(missing) == 0 {
		return nil
	}
	var g errgroup.Group
	if b.splitRanges || len(missing) == 1 {
		for _, id := range missing {
			g.Go(func() error {
				data, err := b.getBlock(key, id)
				if err != nil {
					return err
				}
				set.set(id, data)
				return nil
			})
		}
		return g.Wait()
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	rng := blockRange{start: missing[0], end: missing[0]}
	ranges := []blockRange{}
	for _, id := range missing[1:] {
		if id != rng.end+1 {
			ranges = append(ranges, rng)
			rng = blockRange{start: id, end: id}
		} else {
			rng.end = id
		}
	}
	ranges = append(ranges, rng)
	for _, rng := range ranges {
		g.Go(func() error {
			blocks, err := b.getRange(key, rng)
			if err != nil {
				return err
			}
			for i, data := range blocks {
				set.set(rng.start+int64(i), data)
			}
			return nil
		})
	}
	return g.Wait()
}

// getRange fetches blocks [rng.start,rng.end] with a single request. Blocks
// past the end of the object are returned empty.
func (b *BlockCache) getRange(key string, rng blockRange) ([][]byte, error) {
	if rng.start == rng.end {
		data, err := b.getBlock(key, rng.start)
		return [][]byte{data}, err
	}
	buf := make([]byte, (rng.end-rng.start+1)*b.blockSize)
	n, err := b.reader.ReadAt(key, buf, rng.start*b.blockSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	blocks := make([][]byte, rng.end-rng.start+1)
	for i := range blocks {
		lo := min(int64(i)*b.blockSize, int64(n))
		hi := min(lo+b.blockSize, int64(n))
		blocks[i] = buf[lo:hi:hi]
		b.cache.Add(key, uint(rng.start+int64(i)), blocks[i])
	}
	return blocks, nil
}

// getBlock returns block id of key, sharing the request with concurrent
// callers asking for the same block.
func (b *BlockCache) getBlock(key string, id int64) ([]byte, error) {
	if data, ok := b.cache.Get(key, uint(id)); ok {
		return data, nil
	}
	v, err, _ := b.inflight.Do(fmt.Sprintf("%s#%d", key, id), func() (interface{}, error) {
		buf := make([]byte, b.blockSize)
		n, err := b.reader.ReadAt(key, buf, id*b.blockSize)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		buf = buf[:n:n]
		b.cache.Add(key, uint(id), buf)
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
