package procio

import "testing"

func TestRingBufferEvictsFromHead(t *testing.T) {
	rb := newRingBuffer(5)
	rb.push([]byte("abc"))
	rb.push([]byte("defgh"))
	got := string(rb.snapshot())
	if got != "defgh" {
		t.Fatalf("got %q want %q", got, "defgh")
	}
}

func TestRingBufferZeroCapKeepsNothing(t *testing.T) {
	rb := newRingBuffer(0)
	rb.push([]byte("anything"))
	if len(rb.snapshot()) != 0 {
		t.Fatalf("expected empty snapshot, got %q", rb.snapshot())
	}
}

func TestRingBufferSingleChunkLargerThanCap(t *testing.T) {
	rb := newRingBuffer(4)
	rb.push([]byte("0123456789"))
	if got := string(rb.snapshot()); got != "6789" {
		t.Fatalf("got %q want 6789", got)
	}
}

func TestRingBufferExactCapMatchInvariant(t *testing.T) {
	// Property 1 from spec.md §8: recorded buffer == B[max(0,|B|-L)..|B|].
	b := []byte("the quick brown fox jumps over the lazy dog")
	L := 10
	rb := newRingBuffer(L)
	// simulate arbitrary chunking
	for i := 0; i < len(b); i += 7 {
		end := i + 7
		if end > len(b) {
			end = len(b)
		}
		rb.push(b[i:end])
	}
	want := b[len(b)-L:]
	if got := string(rb.snapshot()); got != string(want) {
		t.Fatalf("got %q want %q", got, want)
	}
}
