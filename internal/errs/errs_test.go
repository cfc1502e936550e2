package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_WalksChain(t *testing.T) {
	inner := E(KindDeviceUnavailable, "device.Login", "", errors.New("connection refused"))
	outer := E(KindAuth, "device.Login", "login endpoint unreachable", inner)
	wrapped := fmt.Errorf("dashboard: %w", outer)

	if !Is(wrapped, KindAuth) {
		t.Error("expected auth kind in chain")
	}
	if !Is(wrapped, KindDeviceUnavailable) {
		t.Error("expected device_unavailable kind in chain")
	}
	if Is(wrapped, KindStoreUnavailable) {
		t.Error("did not expect store_unavailable")
	}
	if KindOf(wrapped) != KindAuth {
		t.Errorf("expected outermost kind auth, got %q", KindOf(wrapped))
	}
}

func TestIs_PlainError(t *testing.T) {
	if Is(errors.New("boom"), KindNotFound) {
		t.Error("plain error must not match any kind")
	}
	if KindOf(nil) != "" {
		t.Error("nil error has no kind")
	}
}

func TestError_Message(t *testing.T) {
	err := E(KindValidation, "provisioning.Create", "username is required", nil)
	want := "provisioning.Create: validation: username is required"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
