package network

import (
	"testing"

	G "gorgonia.org/gorgonia"
)

func testActivations(n int) []*Activation {
	acts := make([]*Activation, n)
	for i := range acts {
		acts[i] = ReLU()
	}
	return acts
}

func testBiases(n int) []bool {
	biases := make([]bool, n)
	for i := range biases {
		biases[i] = true
	}
	return biases
}

func TestNewQNetworkValidation(t *testing.T) {
	if _, err := NewQNetwork(4, 1, 2, []int{8, 8}, testBiases(1),
		G.GlorotU(1.0), testActivations(2)); err == nil {
		t.Error("expected error for mismatched bias count")
	}
	if _, err := NewQNetwork(4, 1, 2, []int{8}, testBiases(1),
		G.GlorotU(1.0), testActivations(2)); err == nil {
		t.Error("expected error for mismatched activation count")
	}
	if _, err := NewQNetwork(0, 1, 2, nil, nil, G.GlorotU(1.0),
		nil); err == nil {
		t.Error("expected error for non-positive feature count")
	}
}

func TestSetInputValidation(t *testing.T) {
	net, err := NewQNetwork(3, 2, 2, []int{4}, testBiases(1),
		G.GlorotU(1.0), testActivations(1))
	if err != nil {
		t.Fatal(err)
	}

	if err := net.SetInput(make([]float64, 5)); err == nil {
		t.Error("expected error for wrong input length")
	}
	if err := net.SetInput(make([]float64, 6)); err != nil {
		t.Errorf("expected valid input to be accepted, got %v", err)
	}
}

func TestLearnablesIncludeWeightsAndBiases(t *testing.T) {
	net, err := NewQNetwork(3, 1, 2, []int{4, 4}, []bool{true, false},
		G.GlorotU(1.0), testActivations(2))
	if err != nil {
		t.Fatal(err)
	}

	// Two hidden layers (one biased) plus the always-biased output layer
	want := 3 + 2
	if len(net.Learnables()) != want {
		t.Errorf("learnables: want %d, have %d", want,
			len(net.Learnables()))
	}
	if len(net.Model()) != want {
		t.Errorf("model: want %d, have %d", want, len(net.Model()))
	}
}

func sameValues(t *testing.T, a, b *QNetwork) bool {
	t.Helper()
	av, bv := a.Learnables(), b.Learnables()
	if len(av) != len(bv) {
		t.Fatalf("learnable count mismatch: %d vs %d", len(av), len(bv))
	}
	for i := range av {
		ad := av[i].Value().Data().([]float64)
		bd := bv[i].Value().Data().([]float64)
		if len(ad) != len(bd) {
			return false
		}
		for j := range ad {
			if ad[j] != bd[j] {
				return false
			}
		}
	}
	return true
}

func TestCloneWithBatchCopiesWeights(t *testing.T) {
	net, err := NewQNetwork(3, 1, 2, []int{4}, testBiases(1),
		G.GlorotU(1.0), testActivations(1))
	if err != nil {
		t.Fatal(err)
	}

	clone, err := net.CloneWithBatch(16)
	if err != nil {
		t.Fatal(err)
	}
	if clone.BatchSize() != 16 {
		t.Errorf("clone batch size: want 16, have %d", clone.BatchSize())
	}
	if !sameValues(t, net, clone) {
		t.Error("clone weights differ from the source network")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	src, err := NewQNetwork(3, 1, 2, []int{4}, testBiases(1),
		G.GlorotU(1.0), testActivations(1))
	if err != nil {
		t.Fatal(err)
	}
	dst, err := NewQNetwork(3, 1, 2, []int{4}, testBiases(1), G.Zeroes(),
		testActivations(1))
	if err != nil {
		t.Fatal(err)
	}
	if sameValues(t, src, dst) {
		t.Fatal("test requires differing initial weights")
	}

	snap, err := src.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if err := dst.Restore(snap); err != nil {
		t.Fatal(err)
	}
	if !sameValues(t, src, dst) {
		t.Error("restored weights differ from the snapshot source")
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	src, err := NewQNetwork(3, 1, 2, []int{4}, testBiases(1),
		G.GlorotU(1.0), testActivations(1))
	if err != nil {
		t.Fatal(err)
	}

	snap, err := src.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	// Mutating the network must not reach into the snapshot
	other, err := NewQNetwork(3, 1, 2, []int{4}, testBiases(1), G.Zeroes(),
		testActivations(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Set(other); err != nil {
		t.Fatal(err)
	}

	restored, err := FromWeights(snap, 1)
	if err != nil {
		t.Fatal(err)
	}
	if sameValues(t, src, restored) {
		t.Error("snapshot should hold the original weights, not the " +
			"mutated ones")
	}
}

func TestRestoreRejectsMismatchedArchitecture(t *testing.T) {
	src, err := NewQNetwork(3, 1, 2, []int{4}, testBiases(1),
		G.GlorotU(1.0), testActivations(1))
	if err != nil {
		t.Fatal(err)
	}
	snap, err := src.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	other, err := NewQNetwork(3, 1, 2, []int{8}, testBiases(1),
		G.GlorotU(1.0), testActivations(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Restore(snap); err == nil {
		t.Error("expected error restoring into a different architecture")
	}
}

func TestReleasedSnapshotCannotBeRestored(t *testing.T) {
	src, err := NewQNetwork(3, 1, 2, []int{4}, testBiases(1),
		G.GlorotU(1.0), testActivations(1))
	if err != nil {
		t.Fatal(err)
	}
	snap, err := src.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	snap.Release()
	if !snap.Released() {
		t.Fatal("snapshot should report released")
	}
	if err := src.Restore(snap); err == nil {
		t.Error("expected error restoring a released snapshot")
	}

	var nilSnap *Weights
	nilSnap.Release() // must not panic
}
