package tensor

import "math/rand"

// FillRand fills dst with reproducible values in (-scale/2, scale/2). The
// same seed always yields the same sequence.
func FillRand(dst []float32, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range dst {
		dst[i] = (rng.Float32() - 0.5) * scale
	}
}
