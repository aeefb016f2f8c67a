// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pool

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// sampleMemoryUsedRatio reads /proc/meminfo and returns (total-available)/total.
// It is intentionally cheap: a single file read, no caching layer of its own
// — Acquire calls it on the hot path but the kernel keeps /proc/meminfo in
// memory, and guard checks never loop or retry.
func sampleMemoryUsedRatio() (float64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var total, available float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total, _ = strconv.ParseFloat(fields[1], 64)
		case "MemAvailable:":
			available, _ = strconv.ParseFloat(fields[1], 64)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if total <= 0 {
		return 0, fmt.Errorf("pool: could not parse MemTotal from /proc/meminfo")
	}
	return (total - available) / total, nil
}

// sampleAvailableFDs returns process-level headroom: the configured rlimit
// for open files minus the number currently open, read from /proc/self/fd.
func sampleAvailableFDs() (int, error) {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0, err
	}
	limit, err := readFDLimit()
	if err != nil {
		return 0, err
	}
	return limit - len(entries), nil
}

func readFDLimit() (int, error) {
	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "Max open files") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		// fields: "Max" "open" "files" <soft> <hard> ...
		return strconv.Atoi(fields[3])
	}
	return 0, fmt.Errorf("pool: Max open files not found in /proc/self/limits")
}
