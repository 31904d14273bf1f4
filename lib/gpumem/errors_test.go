// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gpumem

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := newError(KindOutOfMemory, "truncate", "/buf", errors.New("driver failure"))
	fmtWrapped := fmt.Errorf("context: %w", base)
	wrapped := errors.New("context: " + base.Error())

	if got := KindOf(base); got != KindOutOfMemory {
		t.Fatalf("KindOf(base) = %v, want %v", got, KindOutOfMemory)
	}
	if got := KindOf(fmtWrapped); got != KindOutOfMemory {
		t.Fatalf("KindOf(%%w-wrapped) = %v, want %v", got, KindOutOfMemory)
	}
	if got := KindOf(wrapped); got != 0 {
		t.Fatalf("KindOf(plain wrapped string) = %v, want 0", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(newError(KindNotFound, "getattr", "/buf", nil)) {
		t.Fatal("IsNotFound = false, want true")
	}
	if IsNotFound(newError(KindIOError, "unlink", "/buf", nil)) {
		t.Fatal("IsNotFound = true, want false")
	}
	if IsNotFound(nil) {
		t.Fatal("IsNotFound(nil) = true, want false")
	}
}

func TestIsNotSupported(t *testing.T) {
	if !IsNotSupported(newError(KindNotSupported, "truncate", "/buf", nil)) {
		t.Fatal("IsNotSupported = false, want true")
	}
	if IsNotSupported(newError(KindNotFound, "truncate", "/buf", nil)) {
		t.Fatal("IsNotSupported = true, want false")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("driver failure")
	err := newError(KindOutOfMemory, "truncate", "/buf", cause)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is(err, cause) = false, want true")
	}
}
