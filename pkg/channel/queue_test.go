package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hzcy/chatbetter2api/pkg/protocol"
)

func TestQueue_FIFO(t *testing.T) {
	q := newQueue("c")
	for _, s := range []string{"A", "AB", "ABC"} {
		q.Push(protocol.Completion{Content: s})
	}
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}

	for _, want := range []string{"A", "AB", "ABC"} {
		got, err := q.Pop(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got.Content != want {
			t.Errorf("Pop() = %q, want %q", got.Content, want)
		}
	}
}

func TestQueue_FailAfterBufferedFragments(t *testing.T) {
	q := newQueue("c")
	q.Push(protocol.Completion{Content: "partial"})
	q.Fail(ErrChannelClosed)

	if got, err := q.Pop(context.Background()); err != nil || got.Content != "partial" {
		t.Fatalf("Pop() = %+v, %v", got, err)
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Pop() error = %v, want ErrChannelClosed", err)
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := newQueue("c")
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(protocol.Completion{Content: "late"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := q.Pop(ctx)
	if err != nil || got.Content != "late" {
		t.Fatalf("Pop() = %+v, %v", got, err)
	}
}

func TestQueue_PopHonorsContext(t *testing.T) {
	q := newQueue("c")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Pop() error = %v, want deadline exceeded", err)
	}
}
