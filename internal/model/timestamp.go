package model

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Timestamp is epoch milliseconds UTC. Stored documents carry timestamps either
// as server-assigned date values or as client ISO-8601 strings; both are
// normalized to this one comparable type at the store boundary so nothing
// downstream ever compares mixed representations.
type Timestamp int64

func TimestampFromTime(t time.Time) Timestamp {
	if t.IsZero() {
		return 0
	}
	return Timestamp(t.UnixMilli())
}

func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return TimestampFromTime(t), nil
}

func (ts Timestamp) IsZero() bool { return ts == 0 }

func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts)).UTC()
}

func (ts Timestamp) Before(other Timestamp) bool { return ts < other }

func (ts Timestamp) String() string {
	if ts == 0 {
		return ""
	}
	return ts.Time().Format(time.RFC3339)
}

func (ts Timestamp) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(primitive.NewDateTimeFromTime(ts.Time()))
}

// UnmarshalBSONValue accepts the three timestamp shapes observed in the wild:
// BSON datetime, ISO-8601 string, and raw int64 millis.
func (ts *Timestamp) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bson.TypeDateTime:
		var dt primitive.DateTime
		if err := bson.UnmarshalValue(t, data, &dt); err != nil {
			return err
		}
		*ts = Timestamp(dt)
	case bson.TypeString:
		var s string
		if err := bson.UnmarshalValue(t, data, &s); err != nil {
			return err
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		*ts = parsed
	case bson.TypeInt64:
		var n int64
		if err := bson.UnmarshalValue(t, data, &n); err != nil {
			return err
		}
		*ts = Timestamp(n)
	case bson.TypeNull:
		*ts = 0
	default:
		return fmt.Errorf("timestamp: unsupported bson type %s", t)
	}
	return nil
}
