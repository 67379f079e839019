package xerrors

import (
	"errors"
	"testing"
)

var errStoreDown = errors.New("store: unavailable")

func TestWrap(t *testing.T) {
	if err := Wrap(nil, "claim"); err != nil {
		t.Errorf("Wrap(nil) = %v，期望 nil", err)
	}

	wrapped := Wrap(errStoreDown, "claim partition 7")
	if wrapped.Error() != "claim partition 7: store: unavailable" {
		t.Errorf("Wrap(err).Error() = %q", wrapped.Error())
	}
	if !errors.Is(wrapped, errStoreDown) {
		t.Error("errors.Is(wrapped, base) = false，期望 true")
	}
}

func TestWrapf(t *testing.T) {
	if err := Wrapf(nil, "partition %d", 1); err != nil {
		t.Errorf("Wrapf(nil) = %v，期望 nil", err)
	}

	wrapped := Wrapf(errStoreDown, "partition %d", 42)
	if wrapped.Error() != "partition 42: store: unavailable" {
		t.Errorf("Wrapf(err).Error() = %q", wrapped.Error())
	}
}

func TestWithCode(t *testing.T) {
	if err := WithCode(nil, "CODE"); err != nil {
		t.Errorf("WithCode(nil) = %v，期望 nil", err)
	}

	coded := WithCode(errStoreDown, "storage_unavailable")
	if coded.Error() != "[storage_unavailable] store: unavailable" {
		t.Errorf("WithCode(err).Error() = %q", coded.Error())
	}
	if code := GetCode(Wrap(coded, "outer")); code != "storage_unavailable" {
		t.Errorf("GetCode = %q，期望 storage_unavailable", code)
	}
	if !errors.Is(coded, errStoreDown) {
		t.Error("coded error should keep its cause")
	}
	if code := GetCode(errStoreDown); code != "" {
		t.Errorf("GetCode(plain) = %q，期望空串", code)
	}
}

func TestIsAny(t *testing.T) {
	other := errors.New("other")
	err := Wrap(errStoreDown, "ctx")

	if !IsAny(err, other, errStoreDown) {
		t.Error("IsAny should match the second target")
	}
	if IsAny(err, other) {
		t.Error("IsAny should not match unrelated targets")
	}
	if IsAny(nil, other) {
		t.Error("IsAny(nil) should be false")
	}
}

func TestCombine(t *testing.T) {
	if err := Combine(nil, nil); err != nil {
		t.Errorf("Combine(nil, nil) = %v，期望 nil", err)
	}

	if err := Combine(nil, errStoreDown); err != errStoreDown {
		t.Errorf("Combine 单个错误应原样返回，got %v", err)
	}

	other := errors.New("close failed")
	combined := Combine(errStoreDown, other)
	if !errors.Is(combined, errStoreDown) || !errors.Is(combined, other) {
		t.Error("combined error should match every member")
	}
	if combined.Error() != "store: unavailable (and 1 more errors)" {
		t.Errorf("Combine().Error() = %q", combined.Error())
	}
}

func TestMust(t *testing.T) {
	if v := Must(7, nil); v != 7 {
		t.Errorf("Must = %d，期望 7", v)
	}

	defer func() {
		if recover() == nil {
			t.Error("Must should panic on error")
		}
	}()
	Must(0, errStoreDown)
}
