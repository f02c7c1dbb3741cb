package windowstats

import "math"

// Average returns the arithmetic mean, 0 for an empty slice.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance is the population variance (divides by N).
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Average(values)
	var sumSquares float64
	for _, v := range values {
		d := v - mean
		sumSquares += d * d
	}
	variance := sumSquares / float64(len(values))
	if variance < 0 {
		variance = 0
	}
	return variance
}

func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

func ZScore(value, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (value - mean) / std
}

// EWMA weights the sample k positions before the newest by alpha*(1-alpha)^k,
// normalized so the weights over the slice sum to one.
func EWMA(values []float64, alpha float64) float64 {
	if len(values) == 0 {
		return 0
	}
	decay := 1 - alpha
	var num, den float64
	for _, v := range values {
		num = num*decay + v
		den = den*decay + 1
	}
	return num / den
}
