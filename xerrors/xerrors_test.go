package xerrors

import (
	"errors"
	"testing"
)

func TestWrap(t *testing.T) {
	if err := Wrap(nil, "context"); err != nil {
		t.Errorf("Wrap(nil) = %v，期望 nil", err)
	}

	base := errors.New("base error")
	wrapped := Wrap(base, "context")
	if wrapped.Error() != "context: base error" {
		t.Errorf("Wrap(err).Error() = %q，期望 %q", wrapped.Error(), "context: base error")
	}
	if !errors.Is(wrapped, base) {
		t.Error("errors.Is(wrapped, base) = false，期望 true")
	}
}

func TestWrapf(t *testing.T) {
	if err := Wrapf(nil, "lock %s", "C1"); err != nil {
		t.Errorf("Wrapf(nil) = %v，期望 nil", err)
	}

	wrapped := Wrapf(ErrNotFound, "lock %s", "C1")
	if wrapped.Error() != "lock C1: not found" {
		t.Errorf("Wrapf(err).Error() = %q", wrapped.Error())
	}
	if !Is(wrapped, ErrNotFound) {
		t.Error("Is(wrapped, ErrNotFound) = false，期望 true")
	}
}

func TestMark(t *testing.T) {
	if err := Mark(nil, ErrUnavailable); err != nil {
		t.Errorf("Mark(nil) = %v，期望 nil", err)
	}

	base := errors.New("dial tcp: connection refused")
	marked := Mark(base, ErrUnavailable)
	if marked.Error() != base.Error() {
		t.Errorf("Mark 不应修改错误消息，得到 %q", marked.Error())
	}
	if !Is(marked, ErrUnavailable) {
		t.Error("Is(marked, ErrUnavailable) = false，期望 true")
	}
	if !Is(marked, base) {
		t.Error("Is(marked, base) = false，期望 true")
	}

	// 已经带有该类别时原样返回
	if again := Mark(marked, ErrUnavailable); again != marked {
		t.Error("重复 Mark 应返回原错误")
	}
}

func TestWithCode(t *testing.T) {
	if err := WithCode(nil, "CODE"); err != nil {
		t.Errorf("WithCode(nil) = %v，期望 nil", err)
	}

	coded := WithCode(errors.New("store down"), "STORE_DOWN")
	if coded.Error() != "[STORE_DOWN] store down" {
		t.Errorf("WithCode(err).Error() = %q", coded.Error())
	}
	if code := GetCode(Wrap(coded, "acquire")); code != "STORE_DOWN" {
		t.Errorf("GetCode = %q，期望 STORE_DOWN", code)
	}
	if code := GetCode(errors.New("plain")); code != "" {
		t.Errorf("GetCode(plain) = %q，期望空", code)
	}
}

func TestCombine(t *testing.T) {
	if err := Combine(nil, nil); err != nil {
		t.Errorf("Combine(nil, nil) = %v，期望 nil", err)
	}

	a := errors.New("a")
	if err := Combine(nil, a); err != a {
		t.Errorf("单个错误应原样返回，得到 %v", err)
	}

	b := errors.New("b")
	err := Combine(a, nil, b)
	if err.Error() != "a (and 1 more errors)" {
		t.Errorf("Combine(a, b).Error() = %q", err.Error())
	}
	if !errors.Is(err, a) || !errors.Is(err, b) {
		t.Error("合并后的错误应能匹配每个原始错误")
	}
}

func TestMust(t *testing.T) {
	if v := Must(42, nil); v != 42 {
		t.Errorf("Must(42, nil) = %d", v)
	}

	defer func() {
		if recover() == nil {
			t.Error("Must(_, err) 应当 panic")
		}
	}()
	Must(0, errors.New("boom"))
}
