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
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// Process wide settings. They are initialized from the GEOIMG_VERBOSE,
// GEOIMG_CHUNKSIZE and GEOIMG_WORKDIR environment variables and only
// affect logging and memory usage, never results.
var (
	settingsMu sync.RWMutex
	verbosity  = 1
	chunkSize  = 128 * 1024 * 1024
	workDir    = os.TempDir()
)

func init() {
	if s := strings.TrimSpace(os.Getenv("GEOIMG_VERBOSE")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			log.Printf("failed to parse GEOIMG_VERBOSE %s", s)
		} else {
			verbosity = v
		}
	}
	if s := strings.TrimSpace(os.Getenv("GEOIMG_CHUNKSIZE")); s != "" {
		v, err := ParseByteSize(s)
		if err != nil || v <= 0 {
			log.Printf("failed to parse GEOIMG_CHUNKSIZE %s", s)
		} else {
			chunkSize = v
		}
	}
	if s := strings.TrimSpace(os.Getenv("GEOIMG_WORKDIR")); s != "" {
		workDir = s
	}
}

// Verbosity returns the current verbosity level. 0 is silent, 1 logs warnings,
// 3 and above log debug messages.
func Verbosity() int {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return verbosity
}

// SetVerbosity sets the verbosity level used by the default ErrorHandler
func SetVerbosity(v int) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	verbosity = v
}

// ChunkSize returns the amount of memory in bytes that chunked operations
// (statistics, save, warp) try not to exceed.
func ChunkSize() int {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return chunkSize
}

// SetChunkSize sets the amount of memory in bytes used by chunked operations.
// Values smaller than 64k are raised to 64k.
func SetChunkSize(bytes int) {
	if bytes < 64*1024 {
		bytes = 64 * 1024
	}
	settingsMu.Lock()
	defer settingsMu.Unlock()
	chunkSize = bytes
}

// WorkDir returns the directory temporary datasets are created in
func WorkDir() string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return workDir
}

// SetWorkDir sets the directory temporary datasets are created in
func SetWorkDir(dir string) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	workDir = dir
}

// ParseByteSize parses sizes such as "512k", "128MB", "2MiB", "1g" or "4096".
// Units are powers of 1024 with or without the "i".
func ParseByteSize(size string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(size))
	s = strings.TrimSuffix(strings.TrimSuffix(s, "b"), "i")
	if s != "" && strings.ContainsRune("kmgt", rune(s[len(s)-1])) {
		s += "i"
	}
	v, err := humanize.ParseBytes(s)
	if err != nil || v > math.MaxInt {
		return 0, fmt.Errorf("invalid size %q", size)
	}
	return int(v), nil
}
