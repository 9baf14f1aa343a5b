package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHardeningOptsDefaultsPidsLimit(t *testing.T) {
	opts := hardeningOpts(0)
	assert.Len(t, opts, 3)
}

func TestHardeningOptsRespectsExplicitLimit(t *testing.T) {
	opts := hardeningOpts(128)
	assert.Len(t, opts, 3)
}

func TestStatsFromMetricHandlesNilData(t *testing.T) {
	stats, err := statsFromMetric(nil)
	assert := assert.New(t)
	assert.NoError(err)
	assert.NotNil(stats)
	assert.Zero(stats.CPUPercent)
}
