package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2024-03-01T12:30:00Z")
	require.NoError(t, err)
	require.Equal(t, Timestamp(1709296200000), ts)

	ts, err = ParseTimestamp("2024-03-01T12:30:00.250Z")
	require.NoError(t, err)
	require.Equal(t, Timestamp(1709296200250), ts)

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
}

func TestTimestampRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	ts := TimestampFromTime(now)
	require.Equal(t, now, ts.Time())
	require.Equal(t, "2024-03-01T12:30:00Z", ts.String())
}

func TestTimestampZero(t *testing.T) {
	var ts Timestamp
	require.True(t, ts.IsZero())
	require.Equal(t, "", ts.String())
	require.Equal(t, Timestamp(0), TimestampFromTime(time.Time{}))
}

func TestTimestampOrdering(t *testing.T) {
	a, b := Timestamp(100), Timestamp(200)
	require.True(t, a.Before(b))
	require.False(t, b.Before(a))
	require.False(t, a.Before(a))
}

// Documents written by different clients carry timestamps in different BSON
// shapes; all must decode to the same millis.
func TestTimestampDecodesMixedBSONShapes(t *testing.T) {
	want := Timestamp(1709296200000)

	type doc struct {
		At Timestamp `bson:"at"`
	}

	cases := map[string]interface{}{
		"datetime": primitive.NewDateTimeFromTime(want.Time()),
		"string":   "2024-03-01T12:30:00Z",
		"int64":    int64(1709296200000),
	}
	for name, raw := range cases {
		b, err := bson.Marshal(bson.M{"at": raw})
		require.NoError(t, err, name)
		var d doc
		require.NoError(t, bson.Unmarshal(b, &d), name)
		require.Equal(t, want, d.At, name)
	}

	b, err := bson.Marshal(bson.M{"at": nil})
	require.NoError(t, err)
	var d doc
	require.NoError(t, bson.Unmarshal(b, &d))
	require.True(t, d.At.IsZero())
}
