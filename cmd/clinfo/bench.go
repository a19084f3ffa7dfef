// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/clrt/pkg/cl"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

const saxpySource = `
kernel void saxpy_float(global float* z, global const float* x, global const float* y, float a) {
    const size_t i = get_global_id(0);
    z[i] = a*x[i] + y[i];
}
`

// ProgressbarStyle used by the benchmark.
var ProgressbarStyle = progressbar.ThemeASCII

// bench launches saxpy iterations times on the device, waiting for each launch, and checks the results.
func bench(device *cl.Device, iterations, size int) error {
	ctx := device.Context()
	defer ctx.Release()
	q := ctx.Queue()
	defer q.Release()

	program, err := ctx.BuildFromSource(saxpySource, "")
	if err != nil {
		return errors.WithMessagef(err, "building saxpy for %s", device.Name())
	}
	defer program.Release()
	kernel, found := program.GetKernel("saxpy_float")
	if !found {
		return errors.Errorf("kernel saxpy_float not found in %s", program)
	}
	defer kernel.Release()

	x, y := make([]float32, size), make([]float32, size)
	for i := range x {
		x[i], y[i] = float32(i%1024), 1
	}
	bx, by, bz := cl.Allocate[float32](ctx, size), cl.Allocate[float32](ctx, size), cl.Allocate[float32](ctx, size)
	cl.MemcpyFromHost(q, bx, x, nil)
	cl.MemcpyFromHost(q, by, y, nil)
	kernel.SetArgs(bz, bx, by, cl.Value(float32(2)))

	fmt.Println(titleStyle.Render(fmt.Sprintf("Benchmark: %s", device)))
	term := termenv.NewOutput(os.Stdout)
	term.HideCursor()
	bar := progressbar.NewOptions(iterations,
		progressbar.OptionSetDescription(fmt.Sprintf("saxpy x %s", humanize.Comma(int64(size)))),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("launches"),
		progressbar.OptionSetTheme(ProgressbarStyle),
	)
	start := time.Now()
	for range iterations {
		node := cl.Record()
		kernel.Launch(nil, []int{size}, nil, q, node)
		launch := node.Take()
		launch.Wait()
		launch.Release()
		_ = bar.Add(1)
	}
	q.Finish()
	elapsed := time.Since(start)
	_ = bar.Finish()
	fmt.Println()
	term.ShowCursor()

	// Check results.
	z := make([]float32, size)
	m := q.Map(bz, nil)
	cl.CopyFromMap(z, m)
	q.Unmap(m, nil)
	for _, blob := range []*cl.SvmBlob{bx, by, bz} {
		q.Free(blob, nil)
	}
	q.Finish()
	for i := range z {
		if want := 2*x[i] + y[i]; z[i] != want {
			return errors.Errorf("saxpy on %s: z[%d]=%g, wanted %g", device.Name(), i, z[i], want)
		}
	}

	table := newPlainTable("Metric", "Value")
	table.Row("launches", humanize.Comma(int64(iterations)))
	table.Row("elapsed", elapsed.String())
	table.Row("per launch", (elapsed / time.Duration(iterations)).String())
	table.Row("bytes per launch", humanize.Bytes(uint64(3*4*size)))
	itemsPerSec := float64(iterations) * float64(size) / elapsed.Seconds()
	table.Row("work-items/s", humanize.SIWithDigits(itemsPerSec, 2, ""))
	fmt.Println(table.Render())
	return nil
}
