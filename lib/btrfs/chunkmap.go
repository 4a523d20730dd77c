// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"fmt"

	"github.com/managarm/blockfs-go/lib/btrfs/btrfsvol"
)

// TranslateSingleStripe is C2's address translator, specialized to the
// invariant spec.md §3/§9 asserts: every chunk maps to exactly one
// physical stripe, on device id 1. It delegates to the underlying
// (multi-device-capable) LogicalVolume.Resolve and then validates the
// result, the Go analogue of original_source's PhysicalAddress
// translation constructor (upper_bound into cachedChunks_, decrement,
// assert the addressed range is contained, assert stripe.device_id == 1).
func (fs *FS) TranslateSingleStripe(laddr btrfsvol.LogicalAddr) (btrfsvol.PhysicalAddr, btrfsvol.AddrDelta, error) {
	paddrs, maxlen := fs.LV.Resolve(laddr)
	if len(paddrs) == 0 {
		return 0, 0, fmt.Errorf("logical address %v: not mapped by any chunk", laddr)
	}
	if len(paddrs) != 1 {
		return 0, 0, fmt.Errorf("logical address %v: maps to %d physical stripes, want exactly 1 (single-stripe invariant)", laddr, len(paddrs))
	}
	for qpa := range paddrs {
		if qpa.Dev != 1 {
			return 0, 0, fmt.Errorf("logical address %v: maps to device id %v, want 1 (single-device invariant)", laddr, qpa.Dev)
		}
		return qpa.Addr, maxlen, nil
	}
	panic("unreachable")
}
