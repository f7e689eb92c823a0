package stats

import "github.com/herlein/rflab/pkg/fixed"

// Mean returns the arithmetic mean of a sample, or 0 when empty.
func Mean(data []fixed.Fixed) fixed.Fixed {
	if len(data) == 0 {
		return 0
	}
	var sum fixed.Fixed
	for _, v := range data {
		sum += v
	}
	return sum.DivInt(int32(len(data)))
}

// Variance returns the sample variance (n-1 denominator), or 0 with fewer
// than two samples.
func Variance(data []fixed.Fixed) fixed.Fixed {
	if len(data) < 2 {
		return 0
	}
	m := Mean(data)
	var sum fixed.Fixed
	for _, v := range data {
		d := v - m
		sum += d.Mul(d)
	}
	return sum.DivInt(int32(len(data) - 1))
}

// StdDev returns the sample standard deviation.
func StdDev(data []fixed.Fixed) fixed.Fixed {
	return fixed.Sqrt(Variance(data))
}

// Median returns the median. The input is not modified; a working copy of
// the same length is allocated and sorted in place.
func Median(data []fixed.Fixed) fixed.Fixed {
	n := len(data)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return data[0]
	}

	sorted := make([]fixed.Fixed, n)
	copy(sorted, data)
	insertionSort(sorted)

	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

func insertionSort(data []fixed.Fixed) {
	for i := 1; i < len(data); i++ {
		v := data[i]
		j := i - 1
		for j >= 0 && data[j] > v {
			data[j+1] = data[j]
			j--
		}
		data[j+1] = v
	}
}

// Range returns max - min, or 0 when empty.
func Range(data []fixed.Fixed) fixed.Fixed {
	if len(data) == 0 {
		return 0
	}
	minV, maxV := data[0], data[0]
	for _, v := range data[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	return maxV - minV
}

// Correlation returns the Pearson correlation coefficient of two equal
// prefixes, or 0 with fewer than two samples or zero variance.
func Correlation(x, y []fixed.Fixed) fixed.Fixed {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < 2 {
		return 0
	}

	mx := Mean(x[:n])
	my := Mean(y[:n])

	var num, denX, denY fixed.Fixed
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		dy := y[i] - my
		num += dx.Mul(dy)
		denX += dx.Mul(dx)
		denY += dy.Mul(dy)
	}

	den := fixed.Sqrt(denX).Mul(fixed.Sqrt(denY))
	if den == 0 {
		return 0
	}
	return num.Div(den)
}

// Covariance returns the sample covariance of two equal prefixes.
func Covariance(x, y []fixed.Fixed) fixed.Fixed {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < 2 {
		return 0
	}

	mx := Mean(x[:n])
	my := Mean(y[:n])

	var sum fixed.Fixed
	for i := 0; i < n; i++ {
		sum += (x[i] - mx).Mul(y[i] - my)
	}
	return sum.DivInt(int32(n - 1))
}

// CrossCorrelation fills result[lag] with the mean lagged product of x and
// y for lag in [0, min(maxLag, n)).
func CrossCorrelation(x, y []fixed.Fixed, result []fixed.Fixed, maxLag int) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	for lag := 0; lag < maxLag && lag < n && lag < len(result); lag++ {
		var sum fixed.Fixed
		for i := 0; i < n-lag; i++ {
			sum += x[i].Mul(y[i+lag])
		}
		result[lag] = sum.DivInt(int32(n - lag))
	}
}
