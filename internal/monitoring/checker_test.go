package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/ingest-cli/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	st := newMockStore(model.Source{Key: "a", State: model.SourceStateActive})
	checker := NewChecker(New(st, nil, DefaultThresholds()), nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Contains(t, st.savedNS["a"], model.NamespaceIncidents)
	assert.Contains(t, st.savedNS["a"], model.NamespaceHealth)
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(New(newMockStore(), nil, DefaultThresholds()), nil, 0)
	assert.Equal(t, 15*time.Minute, checker.interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
