// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"sync"

	"github.com/gomlx/clrt/pkg/cl/native"
)

var (
	muDriver      sync.Mutex
	defaultDriver native.API
)

// Driver returns the default native driver, created with native.MustNew on first use.
//
// It panics if no driver can be created.
func Driver() native.API {
	muDriver.Lock()
	defer muDriver.Unlock()
	if defaultDriver == nil {
		defaultDriver = native.MustNew()
	}
	return defaultDriver
}

// SetDriver sets the default native driver returned by Driver.
//
// Objects created with the previous driver keep using it.
func SetDriver(api native.API) {
	muDriver.Lock()
	defer muDriver.Unlock()
	defaultDriver = api
}
