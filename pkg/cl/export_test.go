// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

// NumPendingPinnedCopies returns the number of asynchronous host copies whose memory is still pinned.
func NumPendingPinnedCopies() int {
	return hostPins.numPending()
}
