package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	disk := NewDiskExhausted(40, 150)
	assert.ErrorIs(t, disk, ErrDiskExhausted)
	assert.ErrorIs(t, disk, ErrResourceExhausted)
	assert.NotErrorIs(t, disk, ErrMemoryExhausted)
	assert.Contains(t, disk.Error(), "only 40 MB available, need at least 150 MB")

	mem := NewMemoryExhausted(1100, 1024)
	assert.ErrorIs(t, mem, ErrMemoryExhausted)
	assert.ErrorIs(t, mem, ErrResourceExhausted)

	cpu := &CPUOverloadError{Load: 0.97, Threshold: 0.95, IsCritical: true, Message: "cpu overloaded"}
	assert.ErrorIs(t, cpu, ErrCPUOverloaded)
	assert.NotErrorIs(t, cpu, ErrResourceExhausted)

	em := &EmergencyError{Level: "emergency", Message: "memory at 99%"}
	assert.ErrorIs(t, em, ErrDegradationEmergency)
	assert.Equal(t, "degradation level emergency: memory at 99%", em.Error())
}

func TestTypedErrorsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("write batch 7: %w", NewDiskExhausted(10, 150))

	var disk *DiskExhaustedError
	if assert.True(t, errors.As(err, &disk)) {
		assert.Equal(t, uint64(10), disk.AvailableMB)
		assert.Equal(t, uint64(150), disk.RequiredMB)
	}
	assert.True(t, IsResourceError(err))
	assert.True(t, IsTerminal(err))
}

func TestCategories(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		terminal   bool
		retriable  bool
		validation bool
	}{
		{"disk", NewDiskExhausted(1, 2), true, false, false},
		{"emergency", &EmergencyError{Level: "emergency"}, true, false, false},
		{"closed", ErrChannelClosed, true, false, false},
		{"aborted", Wrap(ErrAborted, "producer 2"), true, false, false},
		{"send timeout", ErrSendTimeout, false, true, false},
		{"cpu", &CPUOverloadError{}, false, true, false},
		{"invalid value", NewInvalidValue("sink.format", "csv", "unknown"), false, false, true},
		{"missing", NewMissingField("sink.dir"), false, false, true},
		{"other", errors.New("boom"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, IsTerminal(tt.err), "IsTerminal")
			assert.Equal(t, tt.retriable, IsRetriable(tt.err), "IsRetriable")
			assert.Equal(t, tt.validation, IsValidation(tt.err), "IsValidation")
		})
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ignored"))

	err := Wrap(ErrSinkClosed, "segment sink")
	assert.EqualError(t, err, "segment sink: sink closed")
	assert.ErrorIs(t, err, ErrSinkClosed)
}

func TestConstructors(t *testing.T) {
	assert.EqualError(t, NewValidation("channel.capacity", "must be positive"),
		"invalid channel.capacity: must be positive: invalid configuration")
	assert.EqualError(t, NewInvalidValue("sink.format", "csv", "must be segment or parquet"),
		"invalid sink.format 'csv': must be segment or parquet: invalid configuration")
	assert.EqualError(t, NewMissingField("sink.dir"), "sink.dir: missing required field")
}
