package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Attempts: 3, Delay: time.Millisecond}, zerolog.Nop(), "test", func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestDo_ReraisesLastErrorAfterExhaustion(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := Do(context.Background(), Config{Attempts: 2, Delay: time.Millisecond}, zerolog.Nop(), "test", func(ctx context.Context) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 2, calls)
}
