package models

import (
	"fmt"
	"os"
	"runtime"
)

// DeviceCheck reports a device when it is usable on this host.
type DeviceCheck struct {
	Name   string
	Class  DeviceClass
	Detect func() bool
}

var (
	// CPU 总是可用，作为探测链的最后一环
	cpuDevice = Device{Name: "cpu", Class: DeviceStandard}

	knownDevices = map[string]DeviceClass{
		"cuda":  DeviceAccelerated,
		"rocm":  DeviceAccelerated,
		"metal": DeviceAccelerated,
		"cpu":   DeviceStandard,
	}
)

// DefaultChecks returns the check chain: specialized accelerator first,
// then generic accelerators. CPU is implied.
func DefaultChecks() []DeviceCheck {
	return []DeviceCheck{
		{Name: "cuda", Class: DeviceAccelerated, Detect: anyPathExists("/dev/nvidia0", "/proc/driver/nvidia/version")},
		{Name: "rocm", Class: DeviceAccelerated, Detect: anyPathExists("/dev/kfd")},
		{Name: "metal", Class: DeviceAccelerated, Detect: func() bool {
			return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
		}},
	}
}

func anyPathExists(paths ...string) func() bool {
	return func() bool {
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				return true
			}
		}
		return false
	}
}

// DeviceDetector picks the execution device. An override other than "" or
// "auto" short-circuits probing.
type DeviceDetector struct {
	override string
	checks   []DeviceCheck
}

// NewDeviceDetector 创建设备探测器，checks 为空时使用 DefaultChecks
func NewDeviceDetector(override string, checks ...DeviceCheck) (*DeviceDetector, error) {
	if override != "" && override != "auto" {
		if _, ok := knownDevices[override]; !ok {
			return nil, fmt.Errorf("unknown device %q", override)
		}
	}
	if len(checks) == 0 {
		checks = DefaultChecks()
	}
	return &DeviceDetector{override: override, checks: checks}, nil
}

// Detect runs the check chain and returns the first usable device.
func (d *DeviceDetector) Detect() Device {
	if d.override != "" && d.override != "auto" {
		return Device{Name: d.override, Class: knownDevices[d.override]}
	}
	for _, p := range d.checks {
		if p.Detect != nil && p.Detect() {
			return Device{Name: p.Name, Class: p.Class}
		}
	}
	return cpuDevice
}
