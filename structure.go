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

// Block is a rectangular window of an image, part of a regular grid
// of blocks. Blocks on the right and bottom edges may be smaller than the
// nominal block size.
type Block struct {
	X0, Y0 int
	W, H   int
	// column and row of the block in the grid
	col, row int
	grid     grid
}

type grid struct {
	width, height int
	bw, bh        int
	cols, rows    int
}

func newGrid(width, height, bw, bh int) grid {
	return grid{
		width: width, height: height,
		bw: bw, bh: bh,
		cols: (width + bw - 1) / bw,
		rows: (height + bh - 1) / bh,
	}
}

func (g grid) block(col, row int) Block {
	w, h := g.bw, g.bh
	if col == g.cols-1 {
		w = g.width - col*g.bw
	}
	if row == g.rows-1 {
		h = g.height - row*g.bh
	}
	return Block{X0: col * g.bw, Y0: row * g.bh, W: w, H: h, col: col, row: row, grid: g}
}

// Next returns the following block in scanline order. It returns false
// when there are no more blocks.
func (b Block) Next() (Block, bool) {
	col, row := b.col+1, b.row
	if col >= b.grid.cols {
		col = 0
		row++
	}
	if row >= b.grid.rows {
		return Block{}, false
	}
	return b.grid.block(col, row), true
}

// BlockIterator returns the first block of the grid of blockWidth*blockHeight
// blocks covering a width*height image. All sizes must be strictly positive.
//
//	for bl, ok := BlockIterator(w, h, 256, 256); ok; bl, ok = bl.Next() {
//		...
//	}
func BlockIterator(width, height, blockWidth, blockHeight int) (Block, bool) {
	if width <= 0 || height <= 0 || blockWidth <= 0 || blockHeight <= 0 {
		return Block{}, false
	}
	return newGrid(width, height, blockWidth, blockHeight).block(0, 0), true
}

// Structure describes the size and internal tiling of a dataset or band
type Structure struct {
	Width, Height           int
	BlockWidth, BlockHeight int
	NBands                  int
	DataType                DataType
}

// FirstBlock returns the topleft tile of the image
func (st Structure) FirstBlock() (Block, bool) {
	return BlockIterator(st.Width, st.Height, st.BlockWidth, st.BlockHeight)
}

// BlockCount returns the number of tiles in the x and y dimensions
func (st Structure) BlockCount() (int, int) {
	g := newGrid(st.Width, st.Height, st.BlockWidth, st.BlockHeight)
	return g.cols, g.rows
}

// ActualBlockSize returns the number of pixels in the x and y dimensions
// that actually contain data for the given tile
func (st Structure) ActualBlockSize(col, row int) (int, int) {
	g := newGrid(st.Width, st.Height, st.BlockWidth, st.BlockHeight)
	if col < 0 || row < 0 || col >= g.cols || row >= g.rows {
		return 0, 0
	}
	b := g.block(col, row)
	return b.W, b.H
}

// FirstChunk returns the first of the full-width strips, aligned on tile rows,
// that hold at most ChunkSize() bytes of samples of pixelSize bytes each.
// Strips are at least one tile row high.
func (st Structure) FirstChunk(pixelSize int) (Block, bool) {
	rowBytes := st.Width * st.BlockHeight * pixelSize
	n := 1
	if rowBytes > 0 && ChunkSize()/rowBytes > 1 {
		n = ChunkSize() / rowBytes
	}
	return BlockIterator(st.Width, st.Height, st.Width, n*st.BlockHeight)
}
