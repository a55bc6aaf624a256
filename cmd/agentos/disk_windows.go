// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

//go:build windows

package main

import "golang.org/x/sys/windows"

func availableBytes(path string) (uint64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	var free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, nil, nil); err != nil {
		return 0, err
	}
	return free, nil
}
