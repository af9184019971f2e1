package store

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// The three failure classes callers are required to tell apart. A missing
// server-side index renders as "setup in progress" upstream, not as an error
// and not as an empty result, so it must stay distinguishable.
var (
	ErrNotFound      = errors.New("not found")
	ErrIndexNotReady = errors.New("index not ready")
	ErrUnavailable   = errors.New("store unavailable")
)

// indexNotFound is the server code returned when a query needs an index that
// has not been built yet.
const indexNotFound = 27

// classify maps driver errors onto the store taxonomy. Unknown errors pass
// through untouched so nothing gets silently collapsed.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		if cmdErr.Code == indexNotFound || strings.Contains(strings.ToLower(cmdErr.Message), "index") {
			return ErrIndexNotReady
		}
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return ErrUnavailable
	}
	return err
}
