package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "plain sentinel", err: ErrSubmitFailed, want: KindSubmitFailed},
		{name: "wrapped sentinel", err: fmt.Errorf("click: %w", ErrComposeNotFound), want: KindComposeNotFound},
		{name: "phase error", err: NewPhaseError(PhaseSessionEstablished, ErrAuthFailure), want: KindAuthFailure},
		{name: "timeout wins over inner cause", err: fmt.Errorf("%w: %w", ErrTimeout, ErrSubmitFailed), want: KindTimeout},
		{name: "io failure", err: NewPhaseError(PhaseMediaAttached, fmt.Errorf("%w: stat a.jpg", ErrIOFailure)), want: KindIOFailure},
		{name: "unknown", err: errors.New("boom"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestPhaseError(t *testing.T) {
	err := NewPhaseError(PhaseComposeOpened, ErrComposeNotFound)

	assert.ErrorIs(t, err, ErrComposeNotFound)
	assert.Equal(t, "phase ComposeOpened: compose surface not found", err.Error())

	phase, ok := PhaseOf(fmt.Errorf("attempt 2: %w", err))
	require.True(t, ok)
	assert.Equal(t, PhaseComposeOpened, phase)

	_, ok = PhaseOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestNewJob(t *testing.T) {
	tests := []struct {
		name       string
		images     []string
		maxImages  int
		wantErr    bool
		wantImages []string
	}{
		{
			name:       "single image",
			images:     []string{"a.jpg"},
			maxImages:  4,
			wantImages: []string{"a.jpg"},
		},
		{
			name:       "truncated to max",
			images:     []string{"a.jpg", "b.jpg", "c.jpg"},
			maxImages:  2,
			wantImages: []string{"a.jpg", "b.jpg"},
		},
		{
			name:       "zero max keeps all",
			images:     []string{"a.jpg", "b.jpg"},
			maxImages:  0,
			wantImages: []string{"a.jpg", "b.jpg"},
		},
		{
			name:      "no images",
			images:    nil,
			maxImages: 4,
			wantErr:   true,
		},
		{
			name:      "empty path",
			images:    []string{"a.jpg", ""},
			maxImages: 4,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := NewJob(tt.images, "caption", tt.maxImages)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidJob)
				assert.Nil(t, job)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, job.ID)
			assert.Equal(t, tt.wantImages, job.Images)
			assert.Equal(t, "caption", job.Caption)
			assert.Zero(t, job.AttemptCount)
			assert.False(t, job.EnqueuedAt.IsZero())
		})
	}
}

func TestAttempt_PhaseTracking(t *testing.T) {
	a := NewAttempt(1, time.Time{})
	assert.Equal(t, PhaseSessionEstablished, a.Phase())

	a.SetPhase(PhaseSubmitted)
	a.Fail(ErrSubmitFailed)

	assert.Equal(t, PhaseSubmitted, a.Phase())
	assert.ErrorIs(t, a.LastError(), ErrSubmitFailed)
}
