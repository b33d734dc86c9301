// Package confidential implements the confidentiality boundary: a container
// whose value can be replaced freely but only read back through a Sealer.
package confidential

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Box holds exactly one value of T in sealed form. The whole value is the
// unit of confidentiality; there are no field-level reads.
type Box[T any] struct {
	mu      sync.RWMutex
	sealer  Sealer
	sealed  []byte
	set     bool
	sealErr error
}

// New returns an empty box. Get fails with ErrNotInitialized until Set is called.
func New[T any](sealer Sealer) *Box[T] {
	return &Box[T]{sealer: sealer}
}

// NewWith returns a box already holding v
func NewWith[T any](sealer Sealer, v T) *Box[T] {
	b := New[T](sealer)
	b.Set(v)
	return b
}

// Set replaces the held value. It never fails: if sealing does, the failure
// is kept and reported as ErrDecryptionFailed by the next Get.
func (b *Box[T]) Set(v T) {
	var sealed []byte
	plaintext, err := json.Marshal(v)
	if err == nil {
		sealed, err = b.sealer.Seal(plaintext)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.set = true
	b.sealed = sealed
	b.sealErr = err
}

// Get opens the held value. Every call returns a fresh copy.
func (b *Box[T]) Get(ctx context.Context) (T, error) {
	var zero T

	b.mu.RLock()
	set, sealed, sealErr := b.set, b.sealed, b.sealErr
	b.mu.RUnlock()

	if !set {
		return zero, ErrNotInitialized
	}
	if sealErr != nil {
		return zero, fmt.Errorf("%w: %v", ErrDecryptionFailed, sealErr)
	}

	plaintext, err := b.sealer.Open(ctx, sealed)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	var v T
	if err := json.Unmarshal(plaintext, &v); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return v, nil
}

// Sealed exposes the current ciphertext for persistence. ok is false when
// nothing (or nothing usable) has been set.
func (b *Box[T]) Sealed() (blob []byte, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.set || b.sealErr != nil {
		return nil, false
	}
	return append([]byte(nil), b.sealed...), true
}

// Restore installs a previously persisted ciphertext without opening it.
// A blob from a different key is accepted here and rejected on Get.
func (b *Box[T]) Restore(blob []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set = true
	b.sealed = append([]byte(nil), blob...)
	b.sealErr = nil
}
