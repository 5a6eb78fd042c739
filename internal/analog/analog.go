// Package analog reads per-key press depth from an analog keyboard.
//
// The production source binds the Wooting analog SDK wrapper library at
// runtime; Simulated serves tests and hardware-less runs. Key codes are
// virtual-key codes as defined by package keys.
package analog

import (
	"errors"
	"fmt"
)

// MaxKeys bounds the number of simultaneously reported keys per poll.
const MaxKeys = 256

// Reading is the depth of one pressed key, in [0,1].
type Reading struct {
	Code  uint16
	Value float64
}

var (
	ErrNotInitialized      = errors.New("analog sdk not initialized")
	ErrNoDevices           = errors.New("no analog devices connected")
	ErrDeviceDisconnected  = errors.New("analog device disconnected")
	ErrLibraryNotFound     = errors.New("analog sdk library not found")
	ErrNoPlugins           = errors.New("analog sdk has no device plugins")
	ErrIncompatibleVersion = errors.New("incompatible analog sdk version")
)

// SDK result codes.
const (
	resultOk                  int32 = 1
	resultUnInitialized       int32 = -2000
	resultNoDevices           int32 = -1999
	resultDeviceDisconnected  int32 = -1998
	resultFailure             int32 = -1997
	resultInvalidArgument     int32 = -1996
	resultNoPlugins           int32 = -1995
	resultFunctionNotFound    int32 = -1994
	resultNoMapping           int32 = -1993
	resultNotAvailable        int32 = -1992
	resultIncompatibleVersion int32 = -1991
	resultDLLNotFound         int32 = -1990
)

// keycodeVirtualKey selects virtual-key codes in set_keycode_mode.
const keycodeVirtualKey int32 = 2

// ResultError is an SDK failure without a dedicated sentinel.
type ResultError struct {
	Op   string
	Code int32
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("analog sdk %s: %s (%d)", e.Op, resultName(e.Code), e.Code)
}

func resultName(code int32) string {
	switch code {
	case resultFailure:
		return "failure"
	case resultInvalidArgument:
		return "invalid argument"
	case resultFunctionNotFound:
		return "function not found"
	case resultNoMapping:
		return "no mapping"
	case resultNotAvailable:
		return "not available"
	default:
		return "unknown result"
	}
}

// resultErr maps a negative SDK result to an error.
func resultErr(op string, code int32) error {
	switch code {
	case resultUnInitialized:
		return ErrNotInitialized
	case resultNoDevices:
		return ErrNoDevices
	case resultDeviceDisconnected:
		return ErrDeviceDisconnected
	case resultNoPlugins:
		return ErrNoPlugins
	case resultIncompatibleVersion:
		return ErrIncompatibleVersion
	case resultDLLNotFound:
		return ErrLibraryNotFound
	}
	return &ResultError{Op: op, Code: code}
}
