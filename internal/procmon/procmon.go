// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package procmon samples this process's own resource usage for
// inclusion in status publications, using the teacher's
// sbinet/pmon dependency (previously only declared, never imported by
// any committed teacher file in the retrieval pack).
package procmon

import (
	"os"
	"time"

	"github.com/sbinet/pmon"
)

// Snapshot is a lightweight self-health sample attached to status
// envelopes under "process".
type Snapshot struct {
	Time time.Time `json:"time"`
	CPU  float64   `json:"cpu_pct"`
	RSS  uint64    `json:"rss_bytes"`
	VMem uint64    `json:"vmem_bytes"`
}

// Sample returns a fresh Snapshot of the current process. Any error
// sampling /proc is swallowed into a zero-valued Snapshot: self-health
// reporting must never be allowed to destabilize status publication.
func Sample() Snapshot {
	st, err := pmon.Snapshot(os.Getpid())
	if err != nil {
		return Snapshot{Time: time.Now()}
	}
	return Snapshot{
		Time: st.Time,
		CPU:  st.CPU,
		RSS:  st.RSS,
		VMem: st.VMem,
	}
}
