// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package settingscache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadThrough_PopulatesOnce(t *testing.T) {
	c := New[string]("test", 0)
	defer c.Close()

	var calls atomic.Int32
	populate := func(context.Context) (string, error) {
		calls.Add(1)
		return "v1", nil
	}

	v, err := c.ReadThrough(context.Background(), "k", populate)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	v, err = c.ReadThrough(context.Background(), "k", populate)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestReadThrough_ConcurrentMissCoalesces(t *testing.T) {
	c := New[int]("test", 0)
	defer c.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	populate := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	const readers = 32
	var started, done sync.WaitGroup
	results := make([]int, readers)
	errs := make([]error, readers)
	started.Add(readers)
	done.Add(readers)
	for i := range readers {
		go func() {
			defer done.Done()
			started.Done()
			results[i], errs[i] = c.ReadThrough(context.Background(), "shared", populate)
		}()
	}
	started.Wait()
	// Give the readers time to pile up on the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range readers {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, results[i])
	}
}

func TestReadThrough_ErrorNotCached(t *testing.T) {
	c := New[string]("test", 0)
	defer c.Close()

	boom := errors.New("boom")
	_, err := c.ReadThrough(context.Background(), "k", func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get("k")
	assert.False(t, ok)

	v, err := c.ReadThrough(context.Background(), "k", func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestRemove_ForcesRepopulate(t *testing.T) {
	c := New[string]("test", 0)
	defer c.Close()

	var calls atomic.Int32
	populate := func(context.Context) (string, error) {
		n := calls.Add(1)
		if n == 1 {
			return "first", nil
		}
		return "second", nil
	}

	v, err := c.ReadThrough(context.Background(), "k", populate)
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	c.Remove("k")
	_, ok := c.Get("k")
	assert.False(t, ok)

	v, err = c.ReadThrough(context.Background(), "k", populate)
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestRemove_DuringPopulateDiscardsStaleValue(t *testing.T) {
	c := New[string]("test", 0)
	defer c.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	var staleResult string
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		staleResult, _ = c.ReadThrough(context.Background(), "k", func(context.Context) (string, error) {
			close(entered)
			<-release
			return "stale", nil
		})
	}()

	<-entered
	c.Remove("k")

	fresh, err := c.ReadThrough(context.Background(), "k", func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", fresh)

	close(release)
	wg.Wait()
	assert.Equal(t, "stale", staleResult)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestClear(t *testing.T) {
	c := New[int]("test", 0)
	defer c.Close()

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.ReadThrough(context.Background(), k, func(context.Context) (int, error) { return 1, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Len())
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestTTLExpiry(t *testing.T) {
	c := New[string]("test", 20*time.Millisecond)
	defer c.Close()

	_, err := c.ReadThrough(context.Background(), "k", func(context.Context) (string, error) { return "v", nil })
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := c.Get("k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
