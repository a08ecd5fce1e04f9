package routing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestTypeMismatchIsProtocolViolation(t *testing.T) {
	err := fmt.Errorf("peer n4: %w", ErrTypeMismatch)
	require.ErrorIs(t, err, ErrProtocolViolation)
	require.NotErrorIs(t, ErrProtocolViolation, ErrTypeMismatch, "plain protocol violation must not match ErrTypeMismatch")
}

func TestFaultKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{fmt.Errorf("x: %w", ErrTypeMismatch), "type_mismatch"},
		{fmt.Errorf("x: %w", ErrProtocolViolation), "protocol_violation"},
		{fmt.Errorf("x: %w", ErrBounds), "bounds"},
		{fmt.Errorf("x: %w", ErrConfiguration), "configuration"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FaultKind(tt.err), "FaultKind(%v)", tt.err)
	}
}

func TestIsFault(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("node not found"), false},
		{fmt.Errorf("x: %w", ErrTypeMismatch), true},
		{fmt.Errorf("x: %w", ErrProtocolViolation), true},
		{fmt.Errorf("x: %w", ErrBounds), true},
		{fmt.Errorf("x: %w", ErrConfiguration), true},
		{multierr.Combine(errors.New("boom"), fmt.Errorf("x: %w", ErrBounds)), true},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, IsFault(tt.err), "IsFault(%v)", tt.err)
	}
}
