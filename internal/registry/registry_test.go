package registry

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/danmuck/napmirror/internal/protocol"
	"github.com/danmuck/napmirror/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

type item struct {
	name string
}

func TestPutGetRemove(t *testing.T) {
	testlog.Start(t)
	r := New[*item]()
	a := &item{name: "a"}
	r.Put(10, a)

	got, ok := r.Get(10)
	if !ok || got != a {
		t.Fatalf("get failed: ok=%v got=%v", ok, got)
	}
	if !r.Remove(10) {
		t.Fatalf("remove should report an existing entry")
	}
	if _, ok := r.Get(10); ok {
		t.Fatalf("removed handle must not be found")
	}
	if r.Remove(10) {
		t.Fatalf("second remove should be a no-op")
	}
	if a.name != "a" {
		t.Fatalf("registry must not touch removed objects")
	}
}

func TestPutOverwritesReusedHandle(t *testing.T) {
	testlog.Start(t)
	r := New[*item]()
	r.Put(7, &item{name: "old"})
	r.Remove(7)
	fresh := &item{name: "new"}
	r.Put(7, fresh)
	if got, _ := r.Get(7); got != fresh {
		t.Fatalf("reused handle should map to the new object")
	}
	if r.Len() != 1 {
		t.Fatalf("unexpected len: %d", r.Len())
	}
}

func TestLiveHandlesMatchAddsMinusRemoves(t *testing.T) {
	testlog.Start(t)
	rng := rand.New(rand.NewSource(42))
	r := New[int]()
	live := map[protocol.Handle]bool{}

	for i := 0; i < 500; i++ {
		h := protocol.Handle(rng.Intn(40) + 1)
		if rng.Intn(3) == 0 {
			r.Remove(h)
			delete(live, h)
			continue
		}
		r.Put(h, i)
		live[h] = true
	}

	want := make([]protocol.Handle, 0, len(live))
	for h := range live {
		want = append(want, h)
	}
	slices.Sort(want)
	if diff := cmp.Diff(want, r.Handles()); diff != "" {
		t.Fatalf("live handles mismatch (-want +got):\n%s", diff)
	}
}

func TestClear(t *testing.T) {
	testlog.Start(t)
	r := New[int]()
	r.Put(1, 1)
	r.Put(2, 2)
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("clear left %d entries", r.Len())
	}
}
