package remote

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/kvdoc"
)

// recorder collects progress reports.
type recorder struct {
	mu     sync.Mutex
	values []float64
}

func (r *recorder) report(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) take() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.values
	r.values = nil
	return v
}

func assertProgress(t *testing.T, values []float64) {
	t.Helper()
	require.NotEmpty(t, values)
	for i, v := range values {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		if i > 0 {
			assert.Greater(t, v, values[i-1], "progress must increase: %v", values)
		}
	}
	assert.Equal(t, 1.0, values[len(values)-1])
}

func TestProgress_Operations(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	store := blob.NewInMem()
	s := newTestSyncer(t, store, withPartSizeLimit(1), func(c *Config) { c.Progress = rec.report })

	c1 := kvdoc.New(testDocID, "C1")
	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
		c1.Set(kv[0], kv[1])
		_, err := s.SaveRemote(ctx, c1)
		require.NoError(t, err)
		assertProgress(t, rec.take())
	}

	_, err := s.SaveRemote(ctx, c1)
	require.NoError(t, err)
	assertProgress(t, rec.take())

	_, err = s.MergeFromRemoteClients(ctx, kvdoc.New(testDocID, "C2"))
	require.NoError(t, err)
	assertProgress(t, rec.take())

	_, err = s.CreateFromRemote(ctx, testDocID, "")
	require.NoError(t, err)
	assertProgress(t, rec.take())
}

func TestProgress_OnlyFinishReportsOne(t *testing.T) {
	var got []float64
	p := newProgress(func(v float64) { got = append(got, v) })
	p.add(2)
	p.step()
	p.step()
	p.add(2)
	p.step()
	p.step()
	p.finish()

	assert.Equal(t, []float64{1.0 / 3, 2.0 / 3, 4.0 / 5, 1}, got)
}

func TestProgress_NilCallback(t *testing.T) {
	p := newProgress(nil)
	p.add(1)
	p.step()
	p.finish()
}
