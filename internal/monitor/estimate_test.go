package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
	"github.com/ey-asu-rnd/streamguard/internal/platform"
)

func TestEstimateOutputSizeMB(t *testing.T) {
	tests := []struct {
		name       string
		entries    uint64
		formats    []OutputFormat
		compressed bool
		want       uint64
	}{
		{"csv", 1_000_000, []OutputFormat{FormatCSV}, false, 496},
		{"csv compressed", 1_000_000, []OutputFormat{FormatCSV}, true, 100},
		{"all formats", 10_000, []OutputFormat{FormatCSV, FormatJSON, FormatParquet}, false, 18},
		{"json", 1000, []OutputFormat{FormatJSON}, false, 1},
		{"no entries", 0, []OutputFormat{FormatJSON}, false, 0},
		{"no formats", 1000, nil, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateOutputSizeMB(tt.entries, tt.formats, tt.compressed)
			if got != tt.want {
				t.Errorf("EstimateOutputSizeMB() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEstimateMemoryMB(t *testing.T) {
	// (500 + 4*300 + 200) * 10000 * 1.5 = 28.5e6 bytes
	assert.Equal(t, uint64(28), EstimateMemoryMB(10_000, 4))
	assert.Equal(t, uint64(0), EstimateMemoryMB(0, 4))
	assert.Equal(t, uint64(1), EstimateMemoryMB(1, 0))
}

func TestCheckSufficientMemory(t *testing.T) {
	assert.NoError(t, CheckSufficientMemory(10_000, 4, 0))
	assert.NoError(t, CheckSufficientMemory(10_000, 4, 28))

	err := CheckSufficientMemory(10_000, 4, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, sgerrors.ErrMemoryExhausted)
	assert.Contains(t, err.Error(), "approximately 3571")
}

func TestCheckSufficientDiskSpace(t *testing.T) {
	probe := platform.NewFake(100000, 1000)
	formats := []OutputFormat{FormatCSV}

	assert.NoError(t, CheckSufficientDiskSpace(probe, ".", 1_000_000, formats, false, 100))

	err := CheckSufficientDiskSpace(probe, ".", 1_000_000, formats, false, 600)
	var exhausted *sgerrors.DiskExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, uint64(1096), exhausted.RequiredMB)

	err = CheckSufficientDiskSpace(platform.Null{}, ".", 1, formats, false, 0)
	assert.ErrorIs(t, err, sgerrors.ErrUnsupported)
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats("csv, Parquet")
	require.NoError(t, err)
	assert.Equal(t, []OutputFormat{FormatCSV, FormatParquet}, got)

	_, err = ParseFormats("xml")
	assert.True(t, sgerrors.IsValidation(err))

	_, err = ParseFormats(" , ")
	assert.True(t, sgerrors.IsValidation(err))
}

func TestCalculatePlan(t *testing.T) {
	probe := platform.NewFake(100000, 50000)
	p := CalculatePlan(PlanInput{
		Entries:       10_000,
		Formats:       []OutputFormat{FormatJSON},
		AvgLines:      4,
		Rate:          1000,
		MinFreeMB:     100,
		MemoryLimitMB: 1024,
	}, probe)

	assert.True(t, p.Sufficient())
	assert.True(t, p.DiskKnown)
	assert.Equal(t, uint64(50000), p.AvailableDiskMB)
	assert.Equal(t, p.OutputMB+100, p.RequiredDiskMB)
	assert.Equal(t, 10*time.Second, p.Duration)

	report := p.Format()
	assert.Contains(t, report, "Capacity Plan")
	assert.Contains(t, report, "10.0K")
	assert.Contains(t, report, "10s")
}

func TestCalculatePlan_Insufficient(t *testing.T) {
	probe := platform.NewFake(100, 10)
	p := CalculatePlan(PlanInput{
		Entries:       1_000_000,
		Formats:       []OutputFormat{FormatCSV},
		AvgLines:      4,
		MemoryLimitMB: 10,
	}, probe)

	assert.False(t, p.Sufficient())
	assert.Error(t, p.DiskErr)
	assert.Error(t, p.MemoryErr)
	assert.Contains(t, p.Format(), "INSUFFICIENT")
	assert.Contains(t, p.Format(), "unpaced")
}
