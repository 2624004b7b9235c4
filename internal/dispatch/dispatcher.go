// Package dispatch orchestrates one analysis round-trip: session context in,
// completion call out, normalized assistant message back into the store.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/datadrive/analysis-backend/internal"
	"github.com/datadrive/analysis-backend/internal/analysis"
	"github.com/datadrive/analysis-backend/internal/provider"
	"github.com/datadrive/analysis-backend/internal/store"
)

var (
	// ErrQueryInFlight is returned when a submission arrives while another
	// round-trip is still outstanding. At most one query is in flight per
	// session; callers retry after the pending one resolves.
	ErrQueryInFlight = errors.New("a query is already in flight")

	// ErrNoActiveFile is returned when no data file is selected.
	ErrNoActiveFile = errors.New("no active data file selected")
)

type Dispatcher struct {
	store    *store.SessionStore
	provider provider.CompletionProvider
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight bool
}

func NewDispatcher(s *store.SessionStore, p provider.CompletionProvider, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{store: s, provider: p, logger: logger}
}

func (d *Dispatcher) acquire() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight {
		return false
	}
	d.inFlight = true
	return true
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	d.inFlight = false
	d.mu.Unlock()
}

// SubmitQuery runs one round-trip against the active data file: it appends
// the user message, records the query in the recent-context window, calls
// the completion service and resolves a pending assistant message with the
// interpreted result. Upstream failures resolve the pending message with an
// error text instead; they are not retried and not escalated beyond the
// transcript. The returned message is the final assistant record.
func (d *Dispatcher) SubmitQuery(ctx context.Context, query string) (internal.Message, error) {
	file, ok := d.store.ActiveFile()
	if !ok {
		return internal.Message{}, ErrNoActiveFile
	}
	if !d.acquire() {
		return internal.Message{}, ErrQueryInFlight
	}
	defer d.release()

	d.store.AddMessage(internal.Message{Role: internal.RoleUser, Content: query})
	d.store.PushContext(query)

	pending := d.store.AddMessage(internal.Message{
		Role:    internal.RoleAssistant,
		Pending: true,
	})

	prompt := analysis.BuildPrompt(query, analysis.FileContextFrom(file), d.store.Context(), d.store.Config())

	raw, err := d.provider.Complete(ctx, analysis.SystemPrompt, prompt)
	if err != nil {
		d.logger.Error("completion call failed",
			zap.String("file", file.Name),
			zap.Error(err))
		d.resolve(pending.ID, internal.MessagePatch{
			Content:   strPtr("The analysis request failed. Please try again."),
			Pending:   boolPtr(false),
			ErrorText: strPtr(err.Error()),
		})
		return d.find(pending.ID), nil
	}

	interp := analysis.Interpret(raw)
	d.logger.Info("query resolved",
		zap.String("file", file.Name),
		zap.Bool("structured", interp.Analysis != nil))
	d.resolve(pending.ID, internal.MessagePatch{
		Content:  strPtr(interp.Content),
		Analysis: interp.Analysis,
		Pending:  boolPtr(false),
	})
	return d.find(pending.ID), nil
}

func (d *Dispatcher) resolve(id string, patch internal.MessagePatch) {
	d.store.UpdateMessage(id, patch)
}

// find returns the stored message by id. The transcript may have been
// cleared while the call was outstanding; then the zero message is returned.
func (d *Dispatcher) find(id string) internal.Message {
	for _, m := range d.store.Messages() {
		if m.ID == id {
			return m
		}
	}
	return internal.Message{}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
