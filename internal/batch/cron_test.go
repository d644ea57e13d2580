package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronForInterval(t *testing.T) {
	tests := []struct {
		hours int
		want  string
	}{
		{1, "0 */1 * * *"},
		{2, "0 */2 * * *"},
		{6, "0 */6 * * *"},
		{8, "0 */8 * * *"},
		{12, "0 */12 * * *"},
		{24, "0 0 * * *"},
		{5, "@every 5h"},
		{7, "@every 7h"},
		{36, "@every 36h"},
		{48, "@every 48h"},
		{168, "@every 168h"},
	}
	for _, tt := range tests {
		got, err := CronForInterval(tt.hours)
		require.NoError(t, err, "hours=%d", tt.hours)
		assert.Equal(t, tt.want, got, "hours=%d", tt.hours)
	}
}

func TestCronForIntervalRejectsNonPositive(t *testing.T) {
	for _, hours := range []int{0, -1, -24} {
		_, err := CronForInterval(hours)
		assert.Error(t, err, "hours=%d", hours)
	}
}
