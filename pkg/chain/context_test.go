package chain_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
)

func TestContextExecutionIDIsUniqueAndStable(t *testing.T) {
	t.Parallel()
	a := chain.NewContext()
	b := chain.NewContext()
	require.NotEmpty(t, a.ExecutionID())
	assert.NotEqual(t, a.ExecutionID(), b.ExecutionID())

	id := a.ExecutionID()
	a.Set("k", 1)
	a.SetResult("h", chain.Succeeded(nil))
	assert.Equal(t, id, a.ExecutionID())
}

func TestAttrTyped(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContext()
	pctx.Set("count", 3)
	pctx.Set("name", "intake")

	n, ok, err := chain.Attr[int](pctx, "count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok, err = chain.Attr[int](pctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = chain.Attr[int](pctx, "name")
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrTypeMismatch)
	var tm *chain.TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "name", tm.Key)
	assert.Equal(t, "int", tm.Want)
	assert.Equal(t, "string", tm.Got)
}

func TestAttrOr(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContext()
	v, err := chain.AttrOr(pctx, "flag", true)
	require.NoError(t, err)
	assert.True(t, v)

	pctx.Set("flag", false)
	v, err = chain.AttrOr(pctx, "flag", true)
	require.NoError(t, err)
	assert.False(t, v)
}

func TestComputeIfAbsent(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContext()
	calls := 0
	factory := func() (string, error) {
		calls++
		return "computed", nil
	}

	v, err := chain.ComputeIfAbsent(pctx, "k", factory)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)

	v, err = chain.ComputeIfAbsent(pctx, "k", factory)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
	assert.Equal(t, 1, calls)
}

func TestComputeIfAbsentFactoryError(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContext()
	boom := errors.New("boom")
	_, err := chain.ComputeIfAbsent(pctx, "k", func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, pctx.Has("k"))
}

func TestComputeIfAbsentTypeMismatch(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContext()
	pctx.Set("k", "text")
	_, err := chain.ComputeIfAbsent(pctx, "k", func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, chain.ErrTypeMismatch)
}

func TestComputeIfAbsentConcurrent(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContext()
	var mu sync.Mutex
	calls := 0
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := chain.ComputeIfAbsent(pctx, "shared", func() (int, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				return 42, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}

func TestResultsAndSuccess(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContext()
	pctx.SetResult("validate", chain.Succeeded(map[string]int{"rows": 10}))
	pctx.SetResult("upload", chain.Failed("E_UPLOAD", "bucket missing"))

	assert.True(t, pctx.IsHandlerSuccess("validate"))
	assert.False(t, pctx.IsHandlerSuccess("upload"))
	assert.False(t, pctx.IsHandlerSuccess("never-ran"))

	data, ok, err := chain.ResultData[map[string]int](pctx, "validate")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, data["rows"])

	_, _, err = chain.ResultData[string](pctx, "validate")
	assert.ErrorIs(t, err, chain.ErrTypeMismatch)

	assert.Len(t, pctx.Results(), 2)
}

func TestContextReset(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContextFrom(map[string]any{"seed": "x"})
	id := pctx.ExecutionID()
	pctx.SetResult("a", chain.Succeeded(nil))
	pctx.MarkBroken()
	pctx.SetErr(errors.New("old"))

	pctx.Reset()

	assert.NotEqual(t, id, pctx.ExecutionID())
	assert.Empty(t, pctx.Snapshot())
	assert.Empty(t, pctx.Results())
	assert.False(t, pctx.IsBroken())
	assert.NoError(t, pctx.Err())
	assert.Empty(t, pctx.CurrentHandler())
}

func TestSnapshotIsIndependent(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContext()
	pctx.Set("a", "1")
	snap := pctx.Snapshot()
	snap["a"] = "2"
	assert.Equal(t, "1", pctx.GetString("a"))

	pctx.Merge(map[string]any{"b": "3"})
	pctx.Delete("a")
	assert.False(t, pctx.Has("a"))
	assert.Equal(t, "3", pctx.GetString("b"))
	assert.Empty(t, pctx.GetString("missing"))
}
