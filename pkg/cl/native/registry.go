// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package native

import (
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Constructor takes a driver specific config string (optionally empty) and returns an API.
type Constructor func(config string) (API, error)

var (
	muRegistry             sync.Mutex
	registeredConstructors = make(map[string]Constructor)
	registrationOrder      []string
)

// Register driver with the given name, and a constructor that takes as input a configuration string that is
// passed along to the driver.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if _, found := registeredConstructors[name]; !found {
		registrationOrder = append(registrationOrder, name)
	}
	registeredConstructors[name] = constructor
}

// List the names of the registered drivers, in registration order.
func List() []string {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	return slices.Clone(registrationOrder)
}

// ConfigEnvVar is the environment variable with the default driver configuration to use.
//
// The format of config is "<driver_name>:<driver_configuration>".
// The "<driver_name>" is the name of a registered driver (e.g.: "opencl" or "sim") and
// "<driver_configuration>" is driver specific.
const ConfigEnvVar = "CLRT_DRIVER"

// DefaultConfig is used as the configuration if ConfigEnvVar is not set.
var DefaultConfig string

// New returns a new default API.
//
// The configuration is taken from:
//
//  1. The environment variable $CLRT_DRIVER, if defined.
//  2. DefaultConfig, if not empty.
//  3. Otherwise, the first registered driver with an empty configuration.
func New() (API, error) {
	if config, found := os.LookupEnv(ConfigEnvVar); found {
		return NewWithConfig(config)
	}
	return NewWithConfig(DefaultConfig)
}

// MustNew returns a new default API or panics if it fails.
func MustNew() API {
	api, err := New()
	if err != nil {
		exceptions.Panicf("native.MustNew(): %+v", err)
	}
	return api
}

// NewWithConfig takes a configuration string formatted as "<driver_name>:<driver_configuration>".
// If only the "<driver_name>" is given, the driver configuration is empty. If the configuration is
// empty, the first registered driver is used.
func NewWithConfig(config string) (API, error) {
	muRegistry.Lock()
	if len(registrationOrder) == 0 {
		muRegistry.Unlock()
		return nil, errors.New(`no registered OpenCL drivers -- maybe import the default ones with import _ "github.com/gomlx/clrt/pkg/cl/native/default"?`)
	}
	driverName, driverConfig := registrationOrder[0], ""
	if config != "" {
		driverName = config
		if idx := strings.Index(config, ":"); idx != -1 {
			driverName, driverConfig = config[:idx], config[idx+1:]
		}
	}
	constructor, found := registeredConstructors[driverName]
	muRegistry.Unlock()
	if !found {
		return nil, errors.Errorf("can't find OpenCL driver %q for configuration %q, registered drivers: %q",
			driverName, config, List())
	}
	api, err := constructor(driverConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create OpenCL driver %q", driverName)
	}
	klog.V(1).Infof("OpenCL driver %q created (config %q)", driverName, driverConfig)
	return api, nil
}
