package api

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifyOptions_TimeBudget(t *testing.T) {
	assert.Equal(t, time.Duration(0), VerifyOptions{}.TimeBudget())
	assert.Equal(t, 1500*time.Millisecond, VerifyOptions{TimeBudgetMS: 1500}.TimeBudget())
	assert.Equal(t, time.Duration(math.MaxInt64), VerifyOptions{TimeBudgetMS: math.MaxInt64}.TimeBudget())
	assert.Equal(t, time.Duration(math.MinInt64), VerifyOptions{TimeBudgetMS: math.MinInt64}.TimeBudget())
}
