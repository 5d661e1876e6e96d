package adapter

// budgetedAdapter wraps an Adapter with pre-flight budget checks and
// post-call usage recording:
//
//	base, _ := adapter.NewAdapter(cfg)
//	safe := adapter.NewBudgetedAdapter(base, tracker, conversationID)
//
// It satisfies the same Adapter interface, so callers do not change.

import (
	"context"
	"errors"

	"github.com/insurelens/insurelens-ai/internal/llm/budget"
	"github.com/insurelens/insurelens-ai/internal/llm/types"
)

type budgetedAdapter struct {
	inner          Adapter
	tracker        budget.Tracker
	conversationID string
}

// NewBudgetedAdapter binds an adapter to one conversation's budget.
func NewBudgetedAdapter(inner Adapter, tracker budget.Tracker, conversationID string) Adapter {
	return &budgetedAdapter{inner: inner, tracker: tracker, conversationID: conversationID}
}

func (a *budgetedAdapter) Complete(ctx context.Context, messages []types.Message) (types.CompletionResponse, error) {
	if err := a.check(ctx, messages); err != nil {
		return types.CompletionResponse{}, err
	}

	resp, err := a.inner.Complete(ctx, messages)
	if err != nil {
		return resp, err
	}

	caps := a.inner.Capabilities()
	if err := a.tracker.Record(ctx, a.conversationID, caps.Provider, caps.Model, resp.Usage); err != nil {
		// Recording failure does not void the answer the user already paid for.
		return resp, nil
	}
	return resp, nil
}

func (a *budgetedAdapter) CompleteStream(ctx context.Context, messages []types.Message) (<-chan types.StreamChunk, error) {
	if err := a.check(ctx, messages); err != nil {
		return nil, err
	}

	inner, err := a.inner.CompleteStream(ctx, messages)
	if err != nil {
		return nil, err
	}

	caps := a.inner.Capabilities()
	out := make(chan types.StreamChunk, 16)
	go func() {
		defer close(out)
		for chunk := range inner {
			if chunk.Done {
				_ = a.tracker.Record(ctx, a.conversationID, caps.Provider, caps.Model, chunk.Usage)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (a *budgetedAdapter) check(ctx context.Context, messages []types.Message) error {
	if err := a.tracker.CheckGlobal(ctx); err != nil {
		return err
	}
	estimated, err := a.inner.CountTokens(ctx, messages)
	if err != nil {
		if errors.Is(err, ErrProviderNotConfigured) {
			return err
		}
		estimated = 0
	}
	return a.tracker.CheckConversation(ctx, a.conversationID, estimated)
}

func (a *budgetedAdapter) CountTokens(ctx context.Context, messages []types.Message) (int, error) {
	return a.inner.CountTokens(ctx, messages)
}

func (a *budgetedAdapter) Capabilities() types.Capabilities { return a.inner.Capabilities() }

func (a *budgetedAdapter) Provider() ProviderType { return a.inner.Provider() }

func (a *budgetedAdapter) Configured() bool { return a.inner.Configured() }
