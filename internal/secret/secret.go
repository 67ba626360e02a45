// Package secret provides best-effort in-memory wiping of sensitive byte
// buffers. Wiping cannot defeat swapping or core dumps; it narrows the
// window during which key material is recoverable from process memory.
package secret

import "runtime"

// Wipe zeroes the provided buffer. The function is marked noinline to
// reduce the chance of the compiler eliding the writes.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}

// Buffer owns a sensitive byte slice and wipes it when released. A cleanup
// is registered so the bytes are zeroed even if the owner forgets to call
// Wipe, but callers should still wipe explicitly as early as possible.
type Buffer struct {
	b []byte
}

// NewBuffer takes ownership of b. The caller must not retain or reuse b.
func NewBuffer(b []byte) *Buffer {
	buf := &Buffer{b: b}
	runtime.AddCleanup(buf, Wipe, b)
	return buf
}

// Bytes returns the underlying slice. The slice is borrowed: it becomes
// invalid after Wipe and must not outlive the Buffer.
func (s *Buffer) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

// Len returns the buffer length, zero after wiping.
func (s *Buffer) Len() int {
	if s == nil {
		return 0
	}
	return len(s.b)
}

// Wipe zeroes the buffer and detaches it. Safe to call more than once.
func (s *Buffer) Wipe() {
	if s == nil || s.b == nil {
		return
	}
	Wipe(s.b)
	s.b = nil
}
