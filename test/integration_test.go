//go:build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/arcana/internal/assets"
	"github.com/user/arcana/internal/deck"
	"github.com/user/arcana/internal/interpret"
	"github.com/user/arcana/internal/reading"
	"github.com/user/arcana/internal/store"
	"github.com/user/arcana/internal/types"
	"github.com/user/arcana/pkg/llm"
	"github.com/user/arcana/pkg/llm/openai"
)

// captureTransport records everything the orchestrator sends.
type captureTransport struct {
	mu    sync.Mutex
	sends []string
}

func (c *captureTransport) SendText(_ context.Context, _ types.ChatID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, text)
	return nil
}

func (c *captureTransport) SendImage(_ context.Context, _ types.ChatID, _, caption string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, caption)
	return nil
}

func (c *captureTransport) contains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sends {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func TestEndToEnd(t *testing.T) {
	// OpenAI-compatible completion endpoint.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "The cards foretell a long journey."}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := openai.New(&llm.Config{
		BaseURL:   server.URL,
		APIKey:    "test-key",
		Model:     "gpt-4o-mini",
		MaxTokens: 500,
	})
	interpreter, err := interpret.New(provider, "gpt-4o-mini", 256)
	if err != nil {
		t.Fatal(err)
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "arcana.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	transport := &captureTransport{}
	orch := reading.New(st, deck.Default(), transport, interpreter, assets.New(t.TempDir()), reading.Options{
		Pace:          0,
		MaxConcurrent: 2,
		Admins:        []int64{99},
	})

	ctx := context.Background()
	orch.Start(ctx)
	defer orch.Stop()

	err = orch.HandleReadingRequest(ctx, reading.Request{
		UserID:   1,
		Username: "seeker",
		ChatID:   10,
		Question: "What awaits me on my travels?",
		Now:      time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !orch.WaitIdle(10 * time.Second) {
		t.Fatal("session did not finish")
	}

	if !transport.contains("long journey") {
		t.Errorf("interpretation did not reach the transport: %v", transport.sends)
	}

	stats, err := st.QueryStats(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 || stats.Success != 1 {
		t.Errorf("expected one success entry, got %+v", stats)
	}

	// Second request from the same user hits the default cooldown.
	err = orch.HandleReadingRequest(ctx, reading.Request{
		UserID:   1,
		ChatID:   10,
		Question: "And now?",
		Now:      time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !orch.WaitIdle(10 * time.Second) {
		t.Fatal("session did not finish")
	}

	if !transport.contains("not enough magical energy") {
		t.Error("expected a cooldown notice on the second request")
	}
	stats, err = st.QueryStats(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 {
		t.Errorf("rejected request must not add a log entry, got %+v", stats)
	}
}
