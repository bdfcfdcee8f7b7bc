package models

import "fmt"

// Kind 模型种类
type Kind string

const (
	KindEmbedding  Kind = "embedding"
	KindEntailment Kind = "entailment"
)

// Kinds returns every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindEmbedding, KindEntailment}
}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindEmbedding, KindEntailment:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown model kind %q", s)
	}
}

// DeviceClass 设备等级
type DeviceClass string

const (
	DeviceAccelerated DeviceClass = "accelerated"
	DeviceStandard    DeviceClass = "standard"
)

// ParseDeviceClass parses a device class name.
func ParseDeviceClass(s string) (DeviceClass, error) {
	switch DeviceClass(s) {
	case DeviceAccelerated, DeviceStandard:
		return DeviceClass(s), nil
	default:
		return "", fmt.Errorf("unknown device class %q", s)
	}
}

// Device 执行设备
type Device struct {
	Name  string      `json:"name"`
	Class DeviceClass `json:"class"`
}

func (d Device) String() string {
	return d.Name + "/" + string(d.Class)
}
