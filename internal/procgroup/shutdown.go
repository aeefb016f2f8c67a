// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"syscall"
	"time"
)

// Terminate runs the pool's release escalation: SIGTERM, wait grace, SIGTERM
// again, wait a shorter second grace, then SIGKILL. It consumes and returns
// the error from waitCh. Safe to call on nil commands (returns nil).
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	secondGrace := grace * 2 / 5
	if secondGrace <= 0 {
		secondGrace = 2 * time.Second
	}

	_ = Kill(cmd, syscall.SIGTERM)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	_ = Kill(cmd, syscall.SIGTERM)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(secondGrace):
	}

	_ = Kill(cmd, syscall.SIGKILL)
	return <-waitCh
}
