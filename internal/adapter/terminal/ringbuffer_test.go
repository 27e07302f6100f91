package terminal

import "testing"

func TestRingBuffer_Overflow(t *testing.T) {
	rb := newRingBuffer(10)
	rb.Write([]byte("0123456789"))
	if rb.Truncated() {
		t.Error("exactly full buffer should not report truncation")
	}

	rb.Write([]byte("ABCDE"))
	if got := rb.String(); got != "56789ABCDE" {
		t.Errorf("String() after overflow = %q, want %q", got, "56789ABCDE")
	}
	if !rb.Truncated() {
		t.Error("expected truncation after overflow")
	}

	rb.Reset()
	if got := rb.String(); got != "" {
		t.Errorf("String() after Reset = %q, want empty", got)
	}
	if rb.Truncated() {
		t.Error("Reset should clear truncation")
	}
}
