package expreplay

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/habib256/pocketcosmos-sub000/timestep"
)

// transitionWithReward builds a transition tagged by its reward so tests
// can identify which transitions survive eviction.
func transitionWithReward(reward float64) timestep.Transition {
	state := mat.NewVecDense(2, []float64{reward, 0})
	next := mat.NewVecDense(2, []float64{reward, 1})
	return timestep.Transition{
		State:     state,
		Action:    0,
		Reward:    reward,
		NextState: next,
		Done:      false,
	}
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(0, 10, 5, 1); err == nil {
		t.Error("expected error for non-positive minimum capacity")
	}
	if _, err := New(1, 0, 1, 1); err == nil {
		t.Error("expected error for non-positive maximum capacity")
	}
	if _, err := New(1, 4, 8, 1); err == nil {
		t.Error("expected error when batch size exceeds capacity")
	}
}

func TestSampleErrors(t *testing.T) {
	b, err := New(2, 10, 2, 1)
	if err != nil {
		t.Fatal(err)
	}

	_, err = b.Sample()
	if !IsEmptyBuffer(err) {
		t.Errorf("expected empty buffer error, got %v", err)
	}

	b.Add(transitionWithReward(1))
	_, err = b.Sample()
	if !IsInsufficientSamples(err) {
		t.Errorf("expected insufficient samples error, got %v", err)
	}

	b.Add(transitionWithReward(2))
	if _, err := b.Sample(); err != nil {
		t.Errorf("expected successful sample, got %v", err)
	}
}

func TestFIFOEviction(t *testing.T) {
	b, err := New(1, 3, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 4; i++ {
		b.Add(transitionWithReward(float64(i)))
	}

	if b.Capacity() != 3 {
		t.Errorf("capacity after overflow should be 3, got %d",
			b.Capacity())
	}

	// The first transition must have been evicted
	if b.Contains(func(tr timestep.Transition) bool {
		return tr.Reward == 1
	}) {
		t.Error("oldest transition was not evicted")
	}
	for i := 2; i <= 4; i++ {
		reward := float64(i)
		if !b.Contains(func(tr timestep.Transition) bool {
			return tr.Reward == reward
		}) {
			t.Errorf("transition with reward %v missing after eviction",
				reward)
		}
	}
}

func TestSampleReturnsUniqueTransitions(t *testing.T) {
	b, err := New(4, 8, 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		b.Add(transitionWithReward(float64(i)))
	}

	batch, err := b.Sample()
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 4 {
		t.Fatalf("expected batch of 4, got %d", len(batch))
	}

	seen := make(map[float64]bool)
	for _, tr := range batch {
		if seen[tr.Reward] {
			t.Errorf("transition with reward %v sampled twice", tr.Reward)
		}
		seen[tr.Reward] = true
	}
}

func BenchmarkAdd(b *testing.B) {
	buf, err := New(32, 1024, 32, 1)
	if err != nil {
		b.Fatal(err)
	}
	tr := transitionWithReward(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Add(tr)
	}
}

func BenchmarkSample(b *testing.B) {
	buf, err := New(32, 1024, 32, 1)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 1024; i++ {
		buf.Add(transitionWithReward(float64(i)))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := buf.Sample(); err != nil {
			b.Fatal(err)
		}
	}
}

func TestClear(t *testing.T) {
	b, err := New(1, 4, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		b.Add(transitionWithReward(float64(i)))
	}

	b.Clear()
	if b.Capacity() != 0 {
		t.Errorf("capacity after clear should be 0, got %d", b.Capacity())
	}
	if _, err := b.Sample(); !IsEmptyBuffer(err) {
		t.Errorf("expected empty buffer error after clear, got %v", err)
	}
}
