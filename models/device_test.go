package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func check(name string, class DeviceClass, present bool) DeviceCheck {
	return DeviceCheck{Name: name, Class: class, Detect: func() bool { return present }}
}

func TestDeviceDetector_CheckOrder(t *testing.T) {
	tests := []struct {
		name   string
		checks []DeviceCheck
		want   Device
	}{
		{
			name: "specialized accelerator wins",
			checks: []DeviceCheck{
				check("cuda", DeviceAccelerated, true),
				check("rocm", DeviceAccelerated, true),
			},
			want: Device{Name: "cuda", Class: DeviceAccelerated},
		},
		{
			name: "generic accelerator when specialized absent",
			checks: []DeviceCheck{
				check("cuda", DeviceAccelerated, false),
				check("metal", DeviceAccelerated, true),
			},
			want: Device{Name: "metal", Class: DeviceAccelerated},
		},
		{
			name: "cpu fallback",
			checks: []DeviceCheck{
				check("cuda", DeviceAccelerated, false),
				check("rocm", DeviceAccelerated, false),
			},
			want: Device{Name: "cpu", Class: DeviceStandard},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det, err := NewDeviceDetector("auto", tt.checks...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, det.Detect())
		})
	}
}

func TestDeviceDetector_Override(t *testing.T) {
	det, err := NewDeviceDetector("cpu", check("cuda", DeviceAccelerated, true))
	require.NoError(t, err)
	assert.Equal(t, Device{Name: "cpu", Class: DeviceStandard}, det.Detect())

	det, err = NewDeviceDetector("cuda", check("cuda", DeviceAccelerated, false))
	require.NoError(t, err)
	assert.Equal(t, Device{Name: "cuda", Class: DeviceAccelerated}, det.Detect())

	_, err = NewDeviceDetector("tpu")
	assert.Error(t, err)
}

func TestDeviceDetector_DefaultChecksAlwaysYieldDevice(t *testing.T) {
	det, err := NewDeviceDetector("")
	require.NoError(t, err)
	d := det.Detect()
	assert.NotEmpty(t, d.Name)
	assert.Contains(t, []DeviceClass{DeviceAccelerated, DeviceStandard}, d.Class)
}

func TestBatchSizeTable(t *testing.T) {
	tbl := DefaultBatchSizes()
	assert.Equal(t, 64, tbl.Lookup(KindEmbedding, DeviceAccelerated))
	assert.Equal(t, 16, tbl.Lookup(KindEmbedding, DeviceStandard))
	assert.Equal(t, 32, tbl.Lookup(KindEntailment, DeviceAccelerated))
	assert.Equal(t, 8, tbl.Lookup(KindEntailment, DeviceStandard))
	assert.Equal(t, 1, tbl.Lookup(Kind("rerank"), DeviceStandard))
}

func TestNewBatchSizeTable_Overrides(t *testing.T) {
	tbl, err := NewBatchSizeTable(map[string]int{"entailment/standard": 4})
	require.NoError(t, err)
	assert.Equal(t, 4, tbl.Lookup(KindEntailment, DeviceStandard))
	assert.Equal(t, 32, tbl.Lookup(KindEntailment, DeviceAccelerated))

	for _, bad := range []map[string]int{
		{"entailment": 4},
		{"rerank/standard": 4},
		{"entailment/tpu": 4},
		{"embedding/standard": 0},
	} {
		_, err := NewBatchSizeTable(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("embedding")
	require.NoError(t, err)
	assert.Equal(t, KindEmbedding, k)

	_, err = ParseKind("vision")
	assert.Error(t, err)
	assert.Equal(t, []Kind{KindEmbedding, KindEntailment}, Kinds())
}
