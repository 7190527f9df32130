package store

import (
	"errors"
	"testing"
)

type payload struct {
	Name   string
	Values []float64
}

func TestPutGetRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	want := payload{Name: "policy", Values: []float64{1, 2, 3}}
	if err := s.Put("policy", want); err != nil {
		t.Fatal(err)
	}

	var got payload
	if err := s.Get("policy", &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != want.Name || len(got.Values) != len(want.Values) {
		t.Errorf("round trip mismatch: want %+v, got %+v", want, got)
	}
	for i := range want.Values {
		if got.Values[i] != want.Values[i] {
			t.Errorf("value %d mismatch: want %v, got %v", i,
				want.Values[i], got.Values[i])
		}
	}
}

func TestGetMissingSlot(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var got payload
	err = s.Get("never-written", &got)
	if !errors.Is(err, ErrNoSlot) {
		t.Errorf("expected ErrNoSlot, got %v", err)
	}
}

func TestPutReplacesSlot(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Put("policy", payload{Name: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("policy", payload{Name: "second"}); err != nil {
		t.Fatal(err)
	}

	var got payload
	if err := s.Get("policy", &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "second" {
		t.Errorf("expected replaced slot, got %q", got.Name)
	}
}

func TestHasAndDelete(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if s.Has("policy") {
		t.Error("Has should be false before any write")
	}
	if err := s.Put("policy", payload{Name: "x"}); err != nil {
		t.Fatal(err)
	}
	if !s.Has("policy") {
		t.Error("Has should be true after write")
	}
	if err := s.Delete("policy"); err != nil {
		t.Fatal(err)
	}
	if s.Has("policy") {
		t.Error("Has should be false after delete")
	}
	if err := s.Delete("policy"); err != nil {
		t.Errorf("deleting a missing slot should not error, got %v", err)
	}
}

func TestInvalidSlotName(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put("", payload{}); err == nil {
		t.Error("expected error for empty slot name")
	}
	if err := s.Put("a/b", payload{}); err == nil {
		t.Error("expected error for slot name with path separator")
	}
}
