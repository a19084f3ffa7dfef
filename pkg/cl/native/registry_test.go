// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package native

import (
	"os"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// namedDriver is an API that only knows its name and configuration: calling anything else panics.
type namedDriver struct {
	API
	name, config string
}

func (d *namedDriver) Name() string { return d.name }

func registerTestDrivers() {
	for _, name := range []string{"first", "second"} {
		Register(name, func(config string) (API, error) {
			if config == "fail" {
				return nil, errors.New("bad configuration")
			}
			return &namedDriver{name: name, config: config}, nil
		})
	}
}

func TestRegistry(t *testing.T) {
	registerTestDrivers()
	assert.Equal(t, []string{"first", "second"}, List())

	api, err := NewWithConfig("")
	require.NoError(t, err)
	assert.Equal(t, "first", api.Name())

	api, err = NewWithConfig("second:a=1,b=2")
	require.NoError(t, err)
	assert.Equal(t, "second", api.Name())
	assert.Equal(t, "a=1,b=2", api.(*namedDriver).config)

	_, err = NewWithConfig("third")
	require.ErrorContains(t, err, `can't find OpenCL driver "third"`)

	_, err = NewWithConfig("first:fail")
	require.ErrorContains(t, err, "bad configuration")

	must.M(os.Setenv(ConfigEnvVar, "second"))
	defer func() { must.M(os.Unsetenv(ConfigEnvVar)) }()
	assert.Equal(t, "second", MustNew().Name())

	must.M(os.Setenv(ConfigEnvVar, "second:fail"))
	require.NotNil(t, exceptions.Try(func() { MustNew() }))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "CL_INVALID_KERNEL_NAME", InvalidKernelName.String())
	assert.Equal(t, "CL_UNKNOWN_ERROR(-9999)", ErrorCode(-9999).String())
	assert.True(t, Success.Ok())
	assert.False(t, DeviceNotFound.Ok())
	assert.Equal(t, "Running", Running.String())
	assert.Equal(t, "Error(CL_INVALID_VALUE)", ExecutionStatus(InvalidValue).String())
}
