package main

import "testing"

func TestKLAnnealWeight(t *testing.T) {
	const anneal = 20000

	if w := klAnnealWeight(0, anneal); w != 0 {
		t.Fatalf("weight at step 0 = %v, want 0", w)
	}
	if w := klAnnealWeight(anneal/2, anneal); w != 0.5 {
		t.Fatalf("weight at midpoint = %v, want 0.5", w)
	}
	if w := klAnnealWeight(anneal, anneal); w != 1 {
		t.Fatalf("weight at %d = %v, want 1", anneal, w)
	}
	if w := klAnnealWeight(anneal*10, anneal); w != 1 {
		t.Fatalf("weight past the ramp = %v, want 1", w)
	}
}

func TestKLAnnealWeightMonotonic(t *testing.T) {
	prev := float32(-1)
	for step := 0; step <= 2000; step += 100 {
		w := klAnnealWeight(step, 1000)
		if w < prev {
			t.Fatalf("weight decreased at step %d: %v < %v", step, w, prev)
		}
		prev = w
	}
}

func TestKLAnnealWeightZeroSteps(t *testing.T) {
	if w := klAnnealWeight(0, 0); w != 1 {
		t.Fatalf("weight with no annealing = %v, want 1", w)
	}
}
