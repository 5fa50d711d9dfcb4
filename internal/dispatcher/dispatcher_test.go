package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jordanhubbard/inanna/pkg/messages"
)

func testConfig() Config {
	return Config{
		QueueCapacity: 100,
		PollInterval:  10 * time.Millisecond,
		ErrorPause:    time.Millisecond,
	}
}

func runAsync(t *testing.T, d *Dispatcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return cancel, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher loop did not exit")
		return nil
	}
}

func TestSubmitRejectsNil(t *testing.T) {
	d := New(testConfig())
	assert.ErrorIs(t, d.Submit(nil), ErrNilEnvelope)
}

func TestSubmitQueueFull(t *testing.T) {
	d := New(testConfig())
	for i := 0; i < 100; i++ {
		require.NoError(t, d.Submit(messages.Text(fmt.Sprintf("msg %d", i), "s", "o")))
	}
	err := d.Submit(messages.Text("one too many", "s", "o"))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 100, d.Len())
	assert.Equal(t, 100, d.Pending())
}

func TestNewAppliesDefaults(t *testing.T) {
	d := New(Config{})
	assert.Equal(t, 100, d.Capacity())
	assert.Equal(t, StateIdle, d.State())
}

func TestFIFOOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := New(testConfig())
	var mu sync.Mutex
	var sessions []string
	d.Handle(messages.TypeText, func(_ context.Context, env *messages.Envelope) error {
		mu.Lock()
		sessions = append(sessions, env.SessionID)
		mu.Unlock()
		return nil
	})

	for i := 0; i < 20; i++ {
		require.NoError(t, d.Submit(messages.Text("hola", fmt.Sprintf("s%02d", i), "test")))
	}
	cancel, done := runAsync(t, d)
	defer cancel()

	ctx, cancelDrain := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelDrain()
	require.NoError(t, d.Drain(ctx))

	require.NoError(t, d.Shutdown())
	assert.NoError(t, waitDone(t, done))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sessions, 20)
	for i, s := range sessions {
		assert.Equal(t, fmt.Sprintf("s%02d", i), s)
	}
}

func TestRoutesByType(t *testing.T) {
	d := New(testConfig())
	var got []messages.MessageType
	record := func(_ context.Context, env *messages.Envelope) error {
		got = append(got, env.Type)
		return nil
	}
	d.Handle(messages.TypeText, record)
	d.Handle(messages.TypeVoiceTranscript, record)
	d.Handle(messages.TypeStartListening, record)

	require.NoError(t, d.Submit(messages.Text("a", "s", "o")))
	require.NoError(t, d.Submit(messages.VoiceTranscript("b", "s", "o")))
	require.NoError(t, d.Submit(messages.StartListening("s", "o")))
	require.NoError(t, d.Submit(messages.NewEnvelope("tipo_desconocido", "c", "s", "o")))
	require.NoError(t, d.Shutdown())

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, []messages.MessageType{
		messages.TypeText, messages.TypeVoiceTranscript, messages.TypeStartListening,
	}, got)
	assert.Equal(t, 0, d.Pending(), "unknown types still count as processed")
	assert.Equal(t, StateTerminated, d.State())
}

func TestSentinelProcessedAfterQueuedEnvelopes(t *testing.T) {
	d := New(testConfig())
	var count int
	d.Handle(messages.TypeText, func(context.Context, *messages.Envelope) error {
		count++
		return nil
	})
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Submit(messages.Text("x", "s", "o")))
	}
	require.NoError(t, d.Shutdown())

	assert.NoError(t, d.Run(context.Background()))
	assert.Equal(t, 5, count)
}

func TestSubmitAfterShutdown(t *testing.T) {
	d := New(testConfig())
	require.NoError(t, d.Shutdown())
	assert.NoError(t, d.Shutdown(), "second shutdown is a no-op")
	assert.ErrorIs(t, d.Submit(messages.Text("late", "s", "o")), ErrShuttingDown)
}

func TestShutdownWithFullQueue(t *testing.T) {
	cfg := testConfig()
	cfg.QueueCapacity = 1
	d := New(cfg)
	require.NoError(t, d.Submit(messages.Text("x", "s", "o")))
	assert.ErrorIs(t, d.Shutdown(), ErrQueueFull)
}

func TestHandlerPanicDoesNotStopLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var reported atomic.Int32
	d := New(testConfig(), WithErrorHook(func(*messages.Envelope, error, string) {
		reported.Add(1)
	}))

	var ok atomic.Int32
	d.Handle(messages.TypeText, func(_ context.Context, env *messages.Envelope) error {
		switch env.Payload {
		case "panic":
			panic("kaboom")
		case "fail":
			return errors.New("handler failed")
		}
		ok.Add(1)
		return nil
	})

	require.NoError(t, d.Submit(messages.Text("panic", "s", "o")))
	require.NoError(t, d.Submit(messages.Text("fail", "s", "o")))
	require.NoError(t, d.Submit(messages.Text("fine", "s", "o")))
	require.NoError(t, d.Shutdown())

	cancel, done := runAsync(t, d)
	defer cancel()
	assert.NoError(t, waitDone(t, done))

	assert.Equal(t, int32(2), reported.Load())
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, 0, d.Pending())
}

func TestPanicReportIncludesStack(t *testing.T) {
	var stack string
	d := New(testConfig(), WithErrorHook(func(_ *messages.Envelope, _ error, s string) { stack = s }))
	d.Handle(messages.TypeText, func(context.Context, *messages.Envelope) error { panic("kaboom") })
	require.NoError(t, d.Submit(messages.Text("x", "s", "o")))
	require.NoError(t, d.Shutdown())
	require.NoError(t, d.Run(context.Background()))
	assert.Contains(t, stack, "goroutine")
}

func TestIdleHookRunsOnTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	idle := make(chan struct{}, 1)
	d := New(testConfig(), WithIdleHook(func(context.Context) {
		select {
		case idle <- struct{}{}:
		default:
		}
	}))
	cancel, done := runAsync(t, d)

	select {
	case <-idle:
	case <-time.After(2 * time.Second):
		t.Fatal("idle hook never ran")
	}
	cancel()
	assert.ErrorIs(t, waitDone(t, done), context.Canceled)
}

func TestRunRejectsSecondLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := New(testConfig())
	cancel, done := runAsync(t, d)
	defer cancel()

	require.Eventually(t, func() bool { return d.running.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, d.Run(context.Background()), ErrAlreadyRunning)

	require.NoError(t, d.Shutdown())
	assert.NoError(t, waitDone(t, done))
}

func TestConcurrentProducers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := New(testConfig())
	var processed atomic.Int32
	d.Handle(messages.TypeText, func(context.Context, *messages.Envelope) error {
		processed.Add(1)
		return nil
	})
	cancel, done := runAsync(t, d)
	defer cancel()

	var wg sync.WaitGroup
	var accepted atomic.Int32
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := d.Submit(messages.Text("x", fmt.Sprintf("p%d", p), "o")); err == nil {
					accepted.Add(1)
				}
			}
		}(p)
	}
	wg.Wait()

	ctx, cancelDrain := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelDrain()
	require.NoError(t, d.Drain(ctx))
	assert.Equal(t, accepted.Load(), processed.Load())

	require.NoError(t, d.Shutdown())
	assert.NoError(t, waitDone(t, done))
}

func TestSubmitRacingShutdownIsProcessed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	for round := 0; round < 20; round++ {
		cfg := testConfig()
		cfg.QueueCapacity = 500
		d := New(cfg)
		var processed atomic.Int32
		d.Handle(messages.TypeText, func(context.Context, *messages.Envelope) error {
			processed.Add(1)
			return nil
		})
		cancel, done := runAsync(t, d)

		var wg sync.WaitGroup
		var accepted atomic.Int32
		start := make(chan struct{})
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < 50; i++ {
					if err := d.Submit(messages.Text("x", "s", "o")); err == nil {
						accepted.Add(1)
					}
				}
			}()
		}
		close(start)
		require.NoError(t, d.Shutdown())
		wg.Wait()

		require.NoError(t, waitDone(t, done))
		cancel()
		assert.Equal(t, accepted.Load(), processed.Load(), "round %d", round)
		assert.Equal(t, 0, d.Pending(), "round %d", round)
	}
}

func TestDrainHonoursContext(t *testing.T) {
	d := New(testConfig())
	require.NoError(t, d.Submit(messages.Text("x", "s", "o")))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Drain(ctx), context.DeadlineExceeded)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "processing", StateProcessing.String())
	assert.Equal(t, "shutting_down", StateShuttingDown.String())
	assert.Equal(t, "terminated", StateTerminated.String())
}
