package gacha

import "testing"

func TestDrawBounds(t *testing.T) {
	got, err := Draw(0, NewSeededRNG(1))
	if err != nil || got {
		t.Fatalf("p=0 should never hit; got=%v err=%v", got, err)
	}
	got, err = Draw(1, NewSeededRNG(1))
	if err != nil || !got {
		t.Fatalf("p=1 should always hit; got=%v err=%v", got, err)
	}
	if _, err := Draw(-0.1, nil); err == nil {
		t.Fatalf("negative p must error")
	}
	if _, err := Draw(1.1, nil); err == nil {
		t.Fatalf("p>1 must error")
	}
	if _, err := DrawRatio(1, 0, nil); err == nil {
		t.Fatalf("zero denominator must error")
	}
}

func TestDrawRatioStatApprox(t *testing.T) {
	const n = 100000
	rng := NewSeededRNG(42)
	hit := 0
	for i := 0; i < n; i++ {
		ok, err := DrawRatio(3, 10, rng)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			hit++
		}
	}
	freq := float64(hit) / float64(n)
	// should be around 0.3
	if diff := freq - 0.3; diff > 0.01 || diff < -0.01 {
		t.Fatalf("freq=%f not close to 0.3", freq)
	}
}

func TestSeededIntNInRange(t *testing.T) {
	rng := NewSeededRNG(7)
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		v := rng.IntN(5)
		if v < 0 || v >= 5 {
			t.Fatalf("IntN(5) out of range: %d", v)
		}
		seen[v] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected all 5 values, saw %v", seen)
	}
	if DefaultRNG().IntN(1) != 0 {
		t.Fatalf("IntN(1) must be 0")
	}
}
