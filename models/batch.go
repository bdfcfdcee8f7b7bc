package models

import (
	"fmt"
	"strings"
)

type batchKey struct {
	kind  Kind
	class DeviceClass
}

// BatchSizeTable maps (kind, device class) to the preferred batch size.
// It is read-only after construction.
type BatchSizeTable struct {
	sizes map[batchKey]int
}

// DefaultBatchSizes returns the built-in table.
func DefaultBatchSizes() *BatchSizeTable {
	return &BatchSizeTable{sizes: map[batchKey]int{
		{KindEmbedding, DeviceAccelerated}:  64,
		{KindEmbedding, DeviceStandard}:     16,
		{KindEntailment, DeviceAccelerated}: 32,
		{KindEntailment, DeviceStandard}:    8,
	}}
}

// NewBatchSizeTable returns the default table with overrides applied.
// Override keys have the form "<kind>/<device_class>".
func NewBatchSizeTable(overrides map[string]int) (*BatchSizeTable, error) {
	t := DefaultBatchSizes()
	for key, size := range overrides {
		kindName, className, ok := strings.Cut(key, "/")
		if !ok {
			return nil, fmt.Errorf("batch size key %q: want <kind>/<device_class>", key)
		}
		kind, err := ParseKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("batch size key %q: %w", key, err)
		}
		class, err := ParseDeviceClass(className)
		if err != nil {
			return nil, fmt.Errorf("batch size key %q: %w", key, err)
		}
		if size <= 0 {
			return nil, fmt.Errorf("batch size for %q must be positive", key)
		}
		t.sizes[batchKey{kind, class}] = size
	}
	return t, nil
}

// Lookup returns the batch size, or 1 for an unknown combination.
func (t *BatchSizeTable) Lookup(kind Kind, class DeviceClass) int {
	if size, ok := t.sizes[batchKey{kind, class}]; ok {
		return size
	}
	return 1
}
