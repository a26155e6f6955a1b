package ctrlc

import "testing"

func TestIssuedReset(t *testing.T) {
	set(false)
	if Issued() {
		t.Fatal("latch should start clear")
	}

	set(true)
	if !Issued() {
		t.Fatal("latch should be set")
	}
	if prev := IssuedReset(); !prev {
		t.Fatal("IssuedReset should report the previous value")
	}
	if Issued() {
		t.Fatal("latch should be clear after reset")
	}
}
