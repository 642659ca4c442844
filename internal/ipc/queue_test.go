package ipc

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFramePreservesNestedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Envelope{
		ID: "req-1",
		Body: Message{
			"cmd":     "list_windows",
			"windows": []map[string]any{{"title": "Term", "window_id": 42}},
			"tags":    []string{"a", "b"},
			"nothing": nil,
		},
	}))

	env, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, "req-1", env.ID)
	require.Equal(t, "list_windows", env.Body.Cmd())
	require.Equal(t, []any{map[string]any{"title": "Term", "window_id": float64(42)}}, env.Body["windows"])
	require.Equal(t, []any{"a", "b"}, env.Body["tags"])
	require.True(t, env.Body.Has("nothing"))
	require.Nil(t, env.Body["nothing"])
}

func TestWriteFrameRejectsUnsupportedValue(t *testing.T) {
	err := WriteFrame(&bytes.Buffer{}, Envelope{Body: Message{"ch": make(chan int)}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "encode message body")
}

func TestMessageAccessors(t *testing.T) {
	msg := Message{"cmd": "speak", "error": "boom", "_startup_error": "Trace"}
	require.Equal(t, "speak", msg.Cmd())

	text, ok := msg.ErrorText()
	require.True(t, ok)
	require.Equal(t, "boom", text)

	diag, ok := msg.StartupError()
	require.True(t, ok)
	require.Equal(t, "Trace", diag)

	_, ok = Message{"text": "hi"}.ErrorText()
	require.False(t, ok)
	require.Equal(t, "{_startup_error:Trace cmd:speak error:boom}", msg.Describe())
}

func TestConsumerDeliversInOrder(t *testing.T) {
	producer, consumer := newQueuePair(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, producer.Put(context.Background(), Envelope{ID: id, Body: Message{"n": id}}))
	}

	for _, want := range []string{"a", "b", "c"} {
		env, err := consumer.Get(context.Background(), time.Second)
		require.NoError(t, err)
		require.Equal(t, want, env.ID)
	}
}

func TestConsumerGetTimesOut(t *testing.T) {
	_, consumer := newQueuePair(t)

	started := time.Now()
	_, err := consumer.Get(context.Background(), 30*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond)

	_, ok := consumer.GetNowait()
	require.False(t, ok)
}

func TestConsumerGetHonoursCancellation(t *testing.T) {
	_, consumer := newQueuePair(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := consumer.Get(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestConsumerDrainsBufferedFramesAfterWriterCloses(t *testing.T) {
	producer, consumer := newQueuePair(t)

	require.NoError(t, producer.Put(context.Background(), Envelope{Body: Message{"_startup_error": "RuntimeError: boom"}}))
	require.NoError(t, producer.Close())
	require.NoError(t, producer.Close())

	select {
	case <-consumer.Done():
	case <-time.After(time.Second):
		t.Fatal("consumer did not observe end of stream")
	}

	env, ok := consumer.GetNowait()
	require.True(t, ok)
	diag, isSentinel := env.Body.StartupError()
	require.True(t, isSentinel)
	require.Equal(t, "RuntimeError: boom", diag)

	_, err := consumer.Get(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, consumer.Err())
}

func TestProducerPutAfterCloseFails(t *testing.T) {
	producer, _ := newQueuePair(t)
	require.NoError(t, producer.Close())

	err := producer.Put(context.Background(), Envelope{Body: Message{"cmd": "listen"}})
	require.ErrorIs(t, err, ErrClosed)
}

func TestServeEchoesRequestIDs(t *testing.T) {
	reqProducer, reqConsumer := newQueuePair(t)
	respProducer, respConsumer := newQueuePair(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, reqConsumer, respProducer, HandlerFunc(func(_ context.Context, msg Message) Message {
			if msg.Cmd() == "stop" {
				cancel()
			}
			return Message{"echo": msg.Cmd()}
		}))
	}()

	require.NoError(t, reqProducer.Put(context.Background(), Envelope{ID: "one", Body: Message{"cmd": "listen"}}))
	env, err := respConsumer.Get(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, "one", env.ID)
	require.Equal(t, "listen", env.Body.String("echo"))

	require.NoError(t, reqProducer.Put(context.Background(), Envelope{ID: "two", Body: Message{"cmd": "stop"}}))
	env, err = respConsumer.Get(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, "two", env.ID)
	require.Equal(t, "stop", env.Body.String("echo"))

	require.NoError(t, <-serveDone)
}

func TestServeReturnsWhenRequestPipeCloses(t *testing.T) {
	reqProducer, reqConsumer := newQueuePair(t)
	respProducer, _ := newQueuePair(t)

	require.NoError(t, reqProducer.Close())
	err := Serve(context.Background(), reqConsumer, respProducer, HandlerFunc(func(context.Context, Message) Message {
		return nil
	}))
	require.NoError(t, err)
}

func newQueuePair(t *testing.T) (*Producer, *Consumer) {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	producer := NewProducer(w)
	consumer := NewConsumer(r, nil)
	t.Cleanup(func() {
		_ = producer.Close()
		_ = consumer.Close()
	})
	return producer, consumer
}
