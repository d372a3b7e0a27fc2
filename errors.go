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
	"log"
)

var (
	// ErrNotFound is returned when opening a path that does not exist
	ErrNotFound = errors.New("not found")
	// ErrFormat is returned when the backing file is corrupt or not supported
	ErrFormat = errors.New("unsupported format")
	// ErrCreation is returned when a dataset cannot be created with the requested parameters
	ErrCreation = errors.New("cannot create dataset")
	// ErrArity is returned when a list of names does not match the number of bands
	ErrArity = errors.New("band count mismatch")
	// ErrReprojection is returned when no transformation exists between two coordinate systems
	ErrReprojection = errors.New("cannot reproject")
	// ErrResolution is returned when a warp would produce an empty or invalid grid
	ErrResolution = errors.New("invalid resolution")
	// ErrClosed is returned when using a dataset or band that has been closed
	ErrClosed = errors.New("handle is closed")
	// ErrReadOnly is returned when modifying a dataset that was opened read-only
	ErrReadOnly = errors.New("dataset is read-only")
	// ErrBandNotFound is returned when a band index or name does not exist
	ErrBandNotFound = errors.New("band not found")
	// ErrDuplicateBand is returned when two bands would share the same name
	ErrDuplicateBand = errors.New("duplicate band name")
	// ErrNoValidPixels is returned when computing statistics on a band that only holds nodata
	ErrNoValidPixels = errors.New("no valid pixels")
)

// ErrorCategory is the severity of a message emitted during an operation
type ErrorCategory int

const (
	// CE_None is not an error
	CE_None ErrorCategory = iota
	// CE_Debug is a debug level
	CE_Debug
	// CE_Warning is a warning level
	CE_Warning
	// CE_Failure is an error
	CE_Failure
)

func (ec ErrorCategory) String() string {
	switch ec {
	case CE_None:
		return "none"
	case CE_Debug:
		return "debug"
	case CE_Warning:
		return "warning"
	case CE_Failure:
		return "failure"
	}
	return fmt.Sprintf("category(%d)", int(ec))
}

// ErrorHandler is a function that can be used to override geoimg's default behavior
// of writing debug and warning messages to the standard logger and of failing
// on CE_Failure messages.
//
// ErrorHandler is called for every message emitted during an operation. The code
// is an operation specific identifier, or 0.
//
// If the ErrorHandler returns an error, that error will be returned as-is to the caller
// of the parent function
type ErrorHandler func(ec ErrorCategory, code int, msg string) error

func defaultErrorHandler(ec ErrorCategory, code int, msg string) error {
	switch {
	case ec >= CE_Failure:
		if code != 0 {
			return fmt.Errorf("%s (code %d)", msg, code)
		}
		return errors.New(msg)
	case ec == CE_Warning && Verbosity() >= 1:
		log.Printf("geoimg warning: %s", msg)
	case ec == CE_Debug && Verbosity() >= 3:
		log.Printf("geoimg debug: %s", msg)
	}
	return nil
}

// emitter forwards messages of a single operation to its ErrorHandler
type emitter struct {
	eh     ErrorHandler
	custom bool
}

func newEmitter(eh ErrorHandler) emitter {
	if eh == nil {
		return emitter{eh: defaultErrorHandler}
	}
	return emitter{eh: eh, custom: true}
}

func (e emitter) debugf(format string, args ...interface{}) error {
	return e.eh(CE_Debug, 0, fmt.Sprintf(format, args...))
}

func (e emitter) warnf(format string, args ...interface{}) error {
	return e.eh(CE_Warning, 0, fmt.Sprintf(format, args...))
}

// fail hands a failure to the handler. A custom handler's error replaces err,
// err is returned otherwise.
func (e emitter) fail(err error) error {
	if herr := e.eh(CE_Failure, 0, err.Error()); herr != nil && e.custom {
		return herr
	}
	return err
}

type errorCallback struct {
	fn ErrorHandler
}

// ErrLogger is an option to override default error handling.
//
// See ErrorHandler.
func ErrLogger(fn ErrorHandler) interface {
	AutoscaleOption
	BandIOOption
	CloseOption
	CreateOption
	DatasetIOOption
	HistogramOption
	MetadataOption
	OpenOption
	SaveOption
	SetBandNamesOption
	SetNoDataOption
	StatisticsOption
	WarpOption
} {
	return errorCallback{fn}
}

func (ec errorCallback) setAutoscaleOpt(o *autoscaleOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setBandIOOpt(o *bandIOOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setCloseOpt(o *closeOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setCreateOpt(o *createOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setDatasetIOOpt(o *datasetIOOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setHistogramOpt(o *histogramOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setMetadataOpt(o *metadataOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setOpenOpt(o *openOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setSaveOpt(o *saveOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setSetBandNamesOpt(o *setBandNamesOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setSetNoDataOpt(o *setNoDataOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setStatisticsOpt(o *statisticsOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setWarpOpt(o *warpOpts) {
	o.errorHandler = ec.fn
}
