package tfidf

import "math"

// Vectorize maps term counts onto a vector of model.Dimension() entries.
// tf is count/total over all counted words, including out-of-vocabulary
// ones, which are then dropped. The result is L2-normalized; a vector with
// no in-vocabulary weight is returned as zeros.
func Vectorize(counts map[string]int, model *Model) []float64 {
	vec := make([]float64, model.Dimension())
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return vec
	}
	for term, c := range counts {
		idx, ok := model.Index(term)
		if !ok {
			continue
		}
		tf := float64(c) / float64(total)
		vec[idx] = tf * model.IDF(term)
	}
	norm := Norm(vec)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Norm returns the Euclidean length of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Dot returns the inner product of a and b over their common prefix.
func Dot(a, b []float64) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
