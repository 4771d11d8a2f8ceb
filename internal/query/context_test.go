// SPDX-License-Identifier: GPL-3.0-or-later

package query

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveWinsOverLateExpiry(t *testing.T) {
	c := &Context{}
	c.reset()

	require.True(t, c.TryResolve([]byte("answer")))
	require.Equal(t, StatusAnswerWritten, c.Status())
	require.False(t, c.TryExpire())
	require.Equal(t, StatusAnswerWritten, c.Status())
}

func TestExpireWinsOverLateResolve(t *testing.T) {
	c := &Context{}
	c.reset()

	require.True(t, c.TryExpire())
	require.Equal(t, StatusExpired, c.Status())
	require.False(t, c.TryResolve([]byte("too late")))
	require.Nil(t, c.RawAnswer)
}

func TestOnlyOneWinnerUnderConcurrency(t *testing.T) {
	c := &Context{}
	c.reset()

	var wg sync.WaitGroup
	var resolved, expired atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if c.TryResolve([]byte("x")) {
				resolved.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			if c.TryExpire() {
				expired.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), resolved.Load()+expired.Load())
}

func TestArmTimerFiresOnExpiry(t *testing.T) {
	c := &Context{}
	c.reset()

	done := make(chan struct{})
	c.SetOnDone(func(ctx *Context) {
		close(done)
	})
	c.ArmTimer(10 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expiry callback never fired")
	}
	require.Equal(t, StatusExpired, c.Status())
}

func TestResolveFiresOnDoneOnceAndStopsTimer(t *testing.T) {
	c := &Context{}
	c.reset()

	var calls atomic.Int32
	c.SetOnDone(func(ctx *Context) {
		calls.Add(1)
	})
	c.ArmTimer(10 * time.Millisecond)
	require.True(t, c.TryResolve([]byte("answer")))
	require.Equal(t, int32(1), calls.Load())

	// The timer must have been stopped by TryResolve, so it never
	// fires a second, spurious OnDone.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, StatusAnswerWritten, c.Status())
}

func TestPoolReusesContexts(t *testing.T) {
	p := NewPool()
	c1 := p.Get()
	c1.RawQuery = []byte("q")
	p.Put(c1)

	c2 := p.Get()
	require.Same(t, c1, c2)
	require.Nil(t, c2.RawQuery)
}
