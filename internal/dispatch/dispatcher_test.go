package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/datadrive/analysis-backend/internal"
	"github.com/datadrive/analysis-backend/internal/store"
)

// stubProvider returns a canned response, optionally blocking until released
// so tests can hold a query in flight. started receives one value when a
// call reaches the provider.
type stubProvider struct {
	response string
	err      error
	block    chan struct{}
	started  chan struct{}
}

func (s *stubProvider) Model() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, _, _ string) (string, error) {
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.response, s.err
}

func storeWithActiveFile() *store.SessionStore {
	s := store.NewSessionStore()
	s.AddFile(internal.DataFile{
		ID:      "f1",
		Name:    "sales.csv",
		Columns: []string{"region", "units", "revenue"},
		Rows: []map[string]any{
			{"region": "EMEA", "units": "10", "revenue": "120.5"},
			{"region": "APAC", "units": "7", "revenue": "88.0"},
		},
		Summary: &internal.DataSummary{
			RowCount:       2,
			NumericColumns: []string{"units", "revenue"},
			DateColumns:    []string{},
			TextColumns:    []string{"region"},
		},
	})
	return s
}

func TestSubmitQueryAppendsUserAndAssistant(t *testing.T) {
	s := storeWithActiveFile()
	p := &stubProvider{response: "Summary: {\"kind\":\"insight\",\"title\":\"Overview\"}"}
	d := NewDispatcher(s, p, zap.NewNop())

	before := len(s.Messages())
	reply, err := d.SubmitQuery(context.Background(), "summarize")
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != before+2 {
		t.Fatalf("appended %d messages, want 2", len(msgs)-before)
	}
	if msgs[before].Role != internal.RoleUser || msgs[before].Content != "summarize" {
		t.Errorf("first appended message = %+v, want the user query", msgs[before])
	}
	last := msgs[before+1]
	if last.Role != internal.RoleAssistant || last.Pending {
		t.Errorf("assistant message not finalized: %+v", last)
	}
	if last.Analysis == nil || last.Analysis.Kind != internal.KindInsight {
		t.Errorf("analysis = %+v, want kind insight", last.Analysis)
	}
	if reply.ID != last.ID {
		t.Error("returned reply should be the stored assistant message")
	}
	if ctx := s.Context(); len(ctx) != 1 || ctx[0] != "summarize" {
		t.Errorf("recent context = %v", ctx)
	}
}

func TestSubmitQueryWithoutActiveFile(t *testing.T) {
	s := store.NewSessionStore()
	d := NewDispatcher(s, &stubProvider{response: "hi"}, zap.NewNop())
	if _, err := d.SubmitQuery(context.Background(), "summarize"); !errors.Is(err, ErrNoActiveFile) {
		t.Errorf("err = %v, want ErrNoActiveFile", err)
	}
	if len(s.Messages()) != 0 {
		t.Error("nothing should be appended when no file is active")
	}
}

func TestSubmitQueryUpstreamFailure(t *testing.T) {
	s := storeWithActiveFile()
	p := &stubProvider{err: errors.New("upstream down")}
	d := NewDispatcher(s, p, zap.NewNop())

	reply, err := d.SubmitQuery(context.Background(), "summarize")
	if err != nil {
		t.Fatalf("upstream failure should resolve into the transcript, got %v", err)
	}
	if reply.ErrorText == "" {
		t.Error("expected errorText on the assistant message")
	}
	if reply.Analysis != nil {
		t.Error("failed query must not carry a structured payload")
	}
	if reply.Pending {
		t.Error("failed query must not stay pending")
	}

	// The transcript stays intact and a new attempt is allowed.
	if _, err := d.SubmitQuery(context.Background(), "again"); err != nil {
		t.Errorf("second attempt blocked: %v", err)
	}
}

func TestSubmitQuerySingleFlight(t *testing.T) {
	s := storeWithActiveFile()
	p := &stubProvider{response: "ok", block: make(chan struct{}), started: make(chan struct{}, 1)}
	d := NewDispatcher(s, p, zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = d.SubmitQuery(context.Background(), "first")
	}()

	// Wait for the first query to reach the provider, then the slot is held.
	select {
	case <-p.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first query never reached the provider")
	}
	if _, err := d.SubmitQuery(context.Background(), "second"); !errors.Is(err, ErrQueryInFlight) {
		t.Fatalf("second query err = %v, want ErrQueryInFlight", err)
	}

	close(p.block)
	wg.Wait()

	// Slot released: a new submission goes through.
	if _, err := d.SubmitQuery(context.Background(), "third"); err != nil {
		t.Errorf("query after release failed: %v", err)
	}
}

func TestClearChatWhilePending(t *testing.T) {
	s := storeWithActiveFile()
	p := &stubProvider{response: "late answer", block: make(chan struct{})}
	d := NewDispatcher(s, p, zap.NewNop())

	done := make(chan internal.Message, 1)
	go func() {
		m, _ := d.SubmitQuery(context.Background(), "summarize")
		done <- m
	}()

	// Wait until the pending assistant message exists, then clear.
	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs := s.Messages()
		if len(msgs) > 0 && msgs[len(msgs)-1].Pending {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pending message never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.ClearChat()
	close(p.block)

	reply := <-done
	if reply.ID != "" {
		t.Errorf("resolution after clear should find nothing, got %+v", reply)
	}
	for _, m := range s.Messages() {
		if m.ErrorText != "" || m.Pending {
			t.Errorf("no trailing error or pending message expected, got %+v", m)
		}
	}
}

func TestSubmitQueryPlainTextResponse(t *testing.T) {
	s := storeWithActiveFile()
	p := &stubProvider{response: "Just prose, no payload."}
	d := NewDispatcher(s, p, zap.NewNop())

	reply, err := d.SubmitQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}
	if reply.Analysis != nil {
		t.Error("plain prose should not carry a payload")
	}
	if reply.Content != "Just prose, no payload." {
		t.Errorf("content = %q", reply.Content)
	}
}
