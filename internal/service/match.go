package service

import "math"

// Normalize returns v scaled to unit length. A zero vector is returned
// unchanged (its norm is treated as 1).
func Normalize(v []float64) []float64 {
	n := norm(v)
	if n == 0 {
		n = 1
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

func NormalizeAll(vs [][]float64) [][]float64 {
	out := make([][]float64, len(vs))
	for i, v := range vs {
		out[i] = Normalize(v)
	}
	return out
}

// Mean is the component-wise mean. All vectors must share the first one's length.
func Mean(vs [][]float64) []float64 {
	if len(vs) == 0 {
		return nil
	}
	out := make([]float64, len(vs[0]))
	for _, v := range vs {
		for i := range out {
			out[i] += v[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(vs))
	}
	return out
}

// CosineSimilarity returns 0 when either vector has zero norm or the
// lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (na * nb)
}

// BestScore scores every sample and the aggregate of all samples against the
// centroid and each stored embedding, returning the maximum.
func BestScore(samples [][]float64, centroid []float64, stored [][]float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	candidates := make([][]float64, 0, len(samples)+1)
	candidates = append(candidates, samples...)
	candidates = append(candidates, Normalize(Mean(samples)))

	best := math.Inf(-1)
	for _, c := range candidates {
		if s := CosineSimilarity(c, centroid); s > best {
			best = s
		}
		for _, ref := range stored {
			if s := CosineSimilarity(c, ref); s > best {
				best = s
			}
		}
	}
	if math.IsInf(best, -1) {
		return 0
	}
	return best
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
