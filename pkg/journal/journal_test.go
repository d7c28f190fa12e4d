package journal_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/journal"
)

func openStore(t *testing.T) (*journal.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := journal.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStore_AppendGetList(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)

	var ids []string
	for _, status := range []string{"COMPLETED", "FAILED", "CANCELLED"} {
		rec := &journal.Record{ExecutionID: "exec-" + status, Chain: "demo", Status: status}
		require.NoError(t, s.Append(rec))
		require.NotEmpty(t, rec.ID)
		ids = append(ids, rec.ID)
	}

	got, err := s.Get(ids[1])
	require.NoError(t, err)
	assert.Equal(t, "FAILED", got.Status)
	assert.Equal(t, "demo", got.Chain)

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})

	two, err := s.List(2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "CANCELLED", two[0].Status)
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)
	_, err := s.Get("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, journal.ErrNotFound)
}

func TestStore_RejectsInvalidID(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)
	assert.Error(t, s.Append(&journal.Record{ID: "not-a-ulid"}))
}

func TestStore_Persists(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := journal.Open(path)
	require.NoError(t, err)
	rec := &journal.Record{ExecutionID: "x", Status: "COMPLETED", Elapsed: 3 * time.Second}
	require.NoError(t, s.Append(rec))
	require.NoError(t, s.Close())

	s, err = journal.Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, got.Elapsed)
}

func TestRecorder_RecordsExecution(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)
	rec := journal.NewRecorder(s, "orders", nil)

	reg := chain.NewRegistry(nil)
	calls := 0
	require.NoError(t, reg.RegisterAll(
		chain.Func("validate", func(context.Context, *chain.Context) (*chain.Result, error) {
			return chain.Succeeded(nil), nil
		}),
		chain.Func("charge", func(context.Context, *chain.Context) (*chain.Result, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("gateway busy")
			}
			return chain.Succeeded(nil), nil
		}),
		chain.Func("ship", func(context.Context, *chain.Context) (*chain.Result, error) {
			return nil, errors.New("no courier")
		}),
	))
	cfg := chain.DefaultConfig()
	cfg.Retry = &chain.RetryPolicy{MaxAttempts: 2}
	exec, err := chain.NewExecutor(reg, cfg, chain.WithEventHandler(rec.Observe))
	require.NoError(t, err)

	pctx := chain.NewContext()
	require.NoError(t, exec.Execute(t.Context(), pctx))
	require.NoError(t, rec.Err())

	list, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, pctx.ExecutionID(), got.ExecutionID)
	assert.Equal(t, "orders", got.Chain)
	assert.Equal(t, "COMPLETED", got.Status)
	require.Len(t, got.Handlers, 3)

	assert.Equal(t, journal.HandlerRecord{Name: "validate", Attempts: 1, Outcome: journal.OutcomeSuccess, Elapsed: got.Handlers[0].Elapsed}, got.Handlers[0])
	assert.Equal(t, 2, got.Handlers[1].Attempts)
	assert.Equal(t, journal.OutcomeSuccess, got.Handlers[1].Outcome)
	assert.Empty(t, got.Handlers[1].Error)
	assert.Equal(t, journal.OutcomeFailure, got.Handlers[2].Outcome)
	assert.Equal(t, 2, got.Handlers[2].Attempts)
	assert.Contains(t, got.Handlers[2].Error, "no courier")
}

func TestRecorder_SkippedAndCancelled(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)
	rec := journal.NewRecorder(s, "manual", nil)

	rec.Observe(chain.Event{Type: chain.EventChainStarted, ExecutionID: "e1", Status: chain.StatusRunning})
	rec.Observe(chain.Event{Type: chain.EventHandlerSkipped, ExecutionID: "e1", Handler: "optional"})
	rec.Observe(chain.Event{
		Type: chain.EventChainCancelled, ExecutionID: "e1", Status: chain.StatusCancelled,
		Err: context.Canceled,
	})

	list, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "CANCELLED", list[0].Status)
	assert.Equal(t, context.Canceled.Error(), list[0].Error)
	assert.Equal(t, []journal.HandlerRecord{{Name: "optional", Outcome: journal.OutcomeSkipped}}, list[0].Handlers)
	assert.False(t, list[0].StartedAt.IsZero())
}
