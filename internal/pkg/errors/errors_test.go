package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIngestionErrorMatchesSentinelAndCause(t *testing.T) {
	cause := fmt.Errorf("%w: upsert batch 0: boom", ErrStorage)
	err := error(&IngestionError{Title: "paper", Err: cause})

	require.True(t, errors.Is(err, ErrIngestion))
	require.True(t, errors.Is(err, ErrStorage))
	require.False(t, errors.Is(err, ErrFetch))
	require.Contains(t, err.Error(), "paper")

	var ie *IngestionError
	require.True(t, errors.As(err, &ie))
	require.Equal(t, "paper", ie.Title)
}

func TestIngestionErrorWithoutCause(t *testing.T) {
	err := &IngestionError{Title: "x"}
	require.True(t, errors.Is(err, ErrIngestion))
	require.Equal(t, "failed to ingest document: x", err.Error())
}
