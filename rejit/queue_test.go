// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rejit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/clrprofiler/libpf"
)

func rewrite(tokens ...libpf.MethodToken) *RewriteItem {
	item := &RewriteItem{}
	for _, tok := range tokens {
		item.Methods = append(item.Methods, libpf.Method{Module: 1, Token: tok})
	}
	return item
}

func TestQueueFIFO(t *testing.T) {
	q := newQueue()
	i1, i2, i3 := rewrite(1), rewrite(2), rewrite(3)
	require.NoError(t, q.push(i1))
	require.NoError(t, q.push(i2))
	require.NoError(t, q.push(i3))
	assert.Equal(t, 3, q.len())

	assert.Same(t, i1, q.pop())
	assert.Same(t, i2, q.pop())
	assert.Same(t, i3, q.pop())
	assert.Equal(t, 0, q.len())
}

func TestQueueClose(t *testing.T) {
	q := newQueue()
	i1 := rewrite(1)
	require.NoError(t, q.push(i1))

	assert.True(t, q.close(shutdownItem{}))
	assert.False(t, q.close(shutdownItem{}))
	assert.ErrorIs(t, q.push(rewrite(2)), ErrShutdown)

	assert.Same(t, i1, q.pop())
	assert.Equal(t, shutdownItem{}, q.pop())
	assert.Equal(t, 0, q.len())
}

func TestQueuePopBlocks(t *testing.T) {
	q := newQueue()
	popped := make(chan WorkItem)
	go func() {
		popped <- q.pop()
	}()

	select {
	case <-popped:
		t.Fatal("pop returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	item := rewrite(7)
	require.NoError(t, q.push(item))
	select {
	case got := <-popped:
		assert.Same(t, item, got)
	case <-time.After(5 * time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestQueueProducers(t *testing.T) {
	q := newQueue()
	const producers, perProducer = 8, 100

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				assert.NoError(t, q.push(rewrite(libpf.MethodToken(p*perProducer+i))))
			}
		}()
	}

	// Items of one producer keep their order.
	last := map[int]int{}
	for range producers * perProducer {
		tok := int(q.pop().(*RewriteItem).Methods[0].Token)
		p, i := tok/perProducer, tok%perProducer
		if prev, ok := last[p]; ok {
			assert.Greater(t, i, prev)
		}
		last[p] = i
	}
	wg.Wait()
}

func TestCompletion(t *testing.T) {
	c := NewCompletion()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	c.resolve(3)
	c.resolve(5)
	<-c.Done()
	n, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Resolving a missing completion is allowed.
	var missing *Completion
	missing.resolve(1)
}
