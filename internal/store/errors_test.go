package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestClassify(t *testing.T) {
	require.NoError(t, classify(nil))

	require.ErrorIs(t, classify(mongo.ErrNoDocuments), ErrNotFound)

	require.ErrorIs(t, classify(mongo.CommandError{Code: indexNotFound, Message: "IndexNotFound"}), ErrIndexNotReady)
	require.ErrorIs(t, classify(mongo.CommandError{Code: 2, Message: "the query requires an index"}), ErrIndexNotReady)

	require.ErrorIs(t, classify(context.DeadlineExceeded), ErrUnavailable)

	// unknown errors pass through untouched
	boom := errors.New("boom")
	require.ErrorIs(t, classify(boom), boom)
	require.NotErrorIs(t, classify(boom), ErrUnavailable)
}
