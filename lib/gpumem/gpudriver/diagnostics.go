// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gpudriver

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// DeviceInfo summarizes one device for startup logging. It is
// produced independently of Binding.Initialize: NVML covers device
// enumeration and health, not allocation, so a diagnostics failure
// never blocks the CUDA driver binding from initializing.
type DeviceInfo struct {
	Ordinal       int
	Name          string
	TotalMemory   uint64
	FreeMemory    uint64
	DriverVersion string
}

// Diagnose queries NVML for information about the device at the given
// ordinal. Callers should treat a returned error as advisory: log it
// and continue startup, since NVML may be unavailable in environments
// (containers without device injection, cgo-disabled builds indirectly
// affecting nvml's dlopen) where the CUDA driver binding still works.
func Diagnose(ordinal int) (DeviceInfo, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return DeviceInfo{}, fmt.Errorf("nvml.Init: %s", nvml.ErrorString(ret))
	}
	defer nvml.Shutdown()

	device, ret := nvml.DeviceGetHandleByIndex(ordinal)
	if ret != nvml.SUCCESS {
		return DeviceInfo{}, fmt.Errorf("nvml.DeviceGetHandleByIndex(%d): %s", ordinal, nvml.ErrorString(ret))
	}

	name, ret := nvml.DeviceGetName(device)
	if ret != nvml.SUCCESS {
		return DeviceInfo{}, fmt.Errorf("nvml.DeviceGetName: %s", nvml.ErrorString(ret))
	}

	memory, ret := nvml.DeviceGetMemoryInfo(device)
	if ret != nvml.SUCCESS {
		return DeviceInfo{}, fmt.Errorf("nvml.DeviceGetMemoryInfo: %s", nvml.ErrorString(ret))
	}

	driverVersion, ret := nvml.SystemGetDriverVersion()
	if ret != nvml.SUCCESS {
		return DeviceInfo{}, fmt.Errorf("nvml.SystemGetDriverVersion: %s", nvml.ErrorString(ret))
	}

	return DeviceInfo{
		Ordinal:       ordinal,
		Name:          name,
		TotalMemory:   memory.Total,
		FreeMemory:    memory.Free,
		DriverVersion: driverVersion,
	}, nil
}
