package txring

import (
	"testing"
	"time"
)

func TestRingBasicHandoff(t *testing.T) {
	r := New(4, 16)
	stop := make(chan struct{})
	defer close(stop)

	r.Finalize(1, 4, 0, stop)
	slot, ok := r.Next(stop)
	if !ok {
		t.Fatalf("expected a ready slot")
	}
	if slot.FrameIndex != 1 || slot.Recovery != 4 {
		t.Fatalf("unexpected slot contents: %+v", slot)
	}
	r.Done()
	if r.Backlog() != 0 {
		t.Fatalf("expected empty backlog after Done, got %d", r.Backlog())
	}
}

func TestRingBackpressureBlocksProducer(t *testing.T) {
	r := New(3, 4)
	stop := make(chan struct{})
	defer close(stop)

	r.Finalize(0, 0, 0, stop)
	r.Finalize(1, 0, 0, stop) // T=3, backlog=2: the next slot to fill is the last free one

	waited := make(chan struct{})
	go func() {
		r.Finalize(2, 0, 0, stop) // must block until a slot frees
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatalf("Finalize returned before the ring had room")
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := r.Next(stop); !ok {
		t.Fatalf("expected ready slot")
	}
	r.Done() // frees one slot; the blocked Finalize should now proceed

	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatalf("Finalize did not unblock after Done freed a slot")
	}
}

func TestRingNextRespectsStop(t *testing.T) {
	r := New(2, 4)
	stop := make(chan struct{})
	done := make(chan bool, 1)
	go func() {
		_, ok := r.Next(stop)
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	close(stop)
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected Next to abort on stop")
		}
	case <-time.After(time.Second):
		t.Fatalf("Next did not return after stop closed")
	}
}
