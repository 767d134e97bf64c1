package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitter_Bounds(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 10; attempt++ {
		for i := 0; i < 50; i++ {
			d := backoffWithJitter(min, max, attempt)
			assert.Greater(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, max)
		}
	}
}

func TestBackoffWithJitter_Grows(t *testing.T) {
	// the jittered value never drops below half of the exponential step
	d := backoffWithJitter(100*time.Millisecond, 10*time.Second, 4)
	assert.GreaterOrEqual(t, d, 400*time.Millisecond)
}

func TestTraceHook(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: HeaderTraceID, Value: []byte("abc")}}}
	ctx, err := TraceHook().BeforeHandle(context.Background(), "t", km)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceID(ctx))
	_, ok := StartTime(ctx)
	assert.True(t, ok)

	ctx, err = TraceHook().BeforeHandle(context.Background(), "t", kafka.Message{})
	require.NoError(t, err)
	assert.Empty(t, TraceID(ctx))
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))
}
