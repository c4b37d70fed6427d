package input

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCountersDrainResets(t *testing.T) {
	var c Counters
	for i := 0; i < 3; i++ {
		c.Record(Key)
	}
	c.Record(Click)
	c.Record(Scroll)
	k, cl := c.Drain()
	if k != 3 || cl != 2 {
		t.Fatalf("drain = %d,%d", k, cl)
	}
	if k, cl = c.Drain(); k != 0 || cl != 0 {
		t.Fatalf("second drain = %d,%d", k, cl)
	}
}

func TestCountersNoLostIncrements(t *testing.T) {
	var c Counters
	const writers, per = 8, 5000
	var wg sync.WaitGroup
	var total atomic.Uint64
	done := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case <-done:
				return
			default:
				k, cl := c.Drain()
				total.Add(k + cl)
			}
		}
	}()
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				if w%2 == 0 {
					c.Record(Key)
				} else {
					c.Record(Click)
				}
			}
		}(w)
	}
	wg.Wait()
	close(done)
	<-drained
	k, cl := c.Drain()
	total.Add(k + cl)
	if got := total.Load(); got != writers*per {
		t.Fatalf("observed %d increments, want %d", got, writers*per)
	}
}

func TestReadEvents(t *testing.T) {
	var c Counters
	src := "k\nk 4\nc\ns 2\n\nbogus\nk x\n"
	if err := ReadEvents(strings.NewReader(src), &c); err != nil {
		t.Fatal(err)
	}
	k, cl := c.Drain()
	if k != 5 || cl != 3 {
		t.Fatalf("counts = %d,%d", k, cl)
	}
}

func TestFileListener(t *testing.T) {
	p := filepath.Join(t.TempDir(), "events")
	if err := os.WriteFile(p, []byte("k 10\nc 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var c Counters
	if err := FileListener(p, &c)(context.Background()); err != nil {
		t.Fatal(err)
	}
	if k, cl := c.Drain(); k != 10 || cl != 2 {
		t.Fatalf("counts = %d,%d", k, cl)
	}
	if err := FileListener(filepath.Join(t.TempDir(), "missing"), &c)(context.Background()); err == nil {
		t.Fatal("expected open error")
	}
}

func TestSuperviseRestarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		Supervise(ctx, "test", time.Millisecond, quiet(), func(context.Context) error {
			if calls.Add(1) >= 3 {
				cancel()
				return nil
			}
			return errors.New("boom")
		})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	if calls.Load() != 3 {
		t.Fatalf("listen called %d times", calls.Load())
	}
}

func TestSuperviseStopsDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Supervise(ctx, "slow", time.Hour, quiet(), func(context.Context) error { return nil })
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor ignored cancellation")
	}
}

type failingDetector struct{}

func (failingDetector) Playing() (bool, error) { return false, errors.New("no device") }

func TestAudioPoller(t *testing.T) {
	var flag AudioFlag
	ctx, cancel := context.WithCancel(context.Background())
	p := &AudioPoller{Detector: StaticDetector(true), Flag: &flag, Interval: time.Millisecond, Logger: quiet()}
	go p.Run(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for !flag.Active() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if !flag.Active() {
		t.Fatal("flag never became active")
	}

	flag.Set(true)
	ctx2, cancel2 := context.WithCancel(context.Background())
	p2 := &AudioPoller{Detector: failingDetector{}, Flag: &flag, Interval: time.Millisecond, Logger: quiet()}
	go p2.Run(ctx2)
	deadline = time.Now().Add(2 * time.Second)
	for flag.Active() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel2()
	if flag.Active() {
		t.Fatal("detector error should read as inactive")
	}
}

func TestProcAsoundDetector(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "card0", "pcm0p", "sub0")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	status := filepath.Join(sub, "status")
	if err := os.WriteFile(status, []byte("closed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := ProcAsoundDetector{Root: root}
	if on, err := d.Playing(); err != nil || on {
		t.Fatalf("closed stream: %v %v", on, err)
	}
	if err := os.WriteFile(status, []byte("state: RUNNING\nowner_pid: 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if on, err := d.Playing(); err != nil || !on {
		t.Fatalf("running stream: %v %v", on, err)
	}
}
