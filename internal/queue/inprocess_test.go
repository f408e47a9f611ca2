package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/drlike/asthmabot/internal/schema"
)

func TestInProcessQueueDelivers(t *testing.T) {
	var mu sync.Mutex
	var got []*AnalysisTask

	q := NewInProcessQueue(func(ctx context.Context, task *AnalysisTask) {
		mu.Lock()
		got = append(got, task)
		mu.Unlock()
	}, 2)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := q.Enqueue(ctx, &AnalysisTask{
			UserKey:       "user-1",
			History:       []string{"사용자: 기침을 해요"},
			ExtractedData: schema.NewExtractedData(),
			CallbackURL:   "https://kakao.example/callback",
		})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Errorf("delivered %d tasks, want 5", len(got))
	}
	for _, task := range got {
		if task.UserKey != "user-1" {
			t.Errorf("userKey = %q, want user-1", task.UserKey)
		}
	}
}

func TestInProcessQueueClosedRejectsEnqueue(t *testing.T) {
	q := NewInProcessQueue(func(ctx context.Context, task *AnalysisTask) {}, 1)
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	err := q.Enqueue(context.Background(), &AnalysisTask{UserKey: "u"})
	if err == nil {
		t.Fatal("enqueue after close should fail")
	}

	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestInProcessQueueEnqueueRespectsContext(t *testing.T) {
	block := make(chan struct{})
	q := NewInProcessQueue(func(ctx context.Context, task *AnalysisTask) {
		<-block
	}, 1)
	defer func() {
		close(block)
		_ = q.Close()
	}()

	// Fill the worker and the buffer.
	ctx := context.Background()
	_ = q.Enqueue(ctx, &AnalysisTask{UserKey: "head"})
	for i := 0; i < 64; i++ {
		_ = q.Enqueue(ctx, &AnalysisTask{UserKey: "fill"})
	}

	cancelled, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(cancelled, &AnalysisTask{UserKey: "late"}); err == nil {
		t.Fatal("enqueue into full queue should honor context deadline")
	}
}
