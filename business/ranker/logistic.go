package ranker

import (
	"math"
	"math/rand"
)

const modelNameLogistic = "logistic_sgd"

// logisticModel is a standardized logistic regression fitted by SGD with
// balanced class weights. Mean and Std are the training-set moments so
// scoring standardizes inputs the same way training did.
type logisticModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Mean    []float64 `json:"mean"`
	Std     []float64 `json:"std"`
}

const (
	logisticEpochs       = 60
	logisticLearningRate = 0.1
	logisticL2           = 1e-4
)

func trainLogistic(X [][]float64, y []float64, seed int64) *logisticModel {
	n := len(X)
	if n == 0 {
		return &logisticModel{}
	}
	dims := len(X[0])

	mean, std := moments(X, dims)
	Z := make([][]float64, n)
	for i, row := range X {
		z := make([]float64, dims)
		for j := range row {
			z[j] = (row[j] - mean[j]) / std[j]
		}
		Z[i] = z
	}

	var pos float64
	for _, label := range y {
		pos += label
	}
	neg := float64(n) - pos
	// balanced weights so the downsampled majority class does not dominate
	wPos, wNeg := 1.0, 1.0
	if pos > 0 && neg > 0 {
		wPos = float64(n) / (2 * pos)
		wNeg = float64(n) / (2 * neg)
	}

	m := &logisticModel{
		Weights: make([]float64, dims),
		Mean:    mean,
		Std:     std,
	}

	rng := rand.New(rand.NewSource(seed))
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < logisticEpochs; epoch++ {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		lr := logisticLearningRate / (1 + 0.05*float64(epoch))

		for _, i := range order {
			p := sigmoid(dot(m.Weights, Z[i]) + m.Bias)
			w := wNeg
			if y[i] > 0.5 {
				w = wPos
			}
			grad := w * (p - y[i])
			for j := range m.Weights {
				m.Weights[j] -= lr * (grad*Z[i][j] + logisticL2*m.Weights[j])
			}
			m.Bias -= lr * grad
		}
	}
	return m
}

func (m *logisticModel) Predict(x []float64) float64 {
	s := m.Bias
	for j, w := range m.Weights {
		if j >= len(x) {
			break
		}
		s += w * (x[j] - m.Mean[j]) / m.Std[j]
	}
	return sigmoid(s)
}

func moments(X [][]float64, dims int) (mean, std []float64) {
	mean = make([]float64, dims)
	std = make([]float64, dims)
	n := float64(len(X))

	for _, row := range X {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	for _, row := range X {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
		if std[j] < 1e-9 {
			std[j] = 1
		}
	}
	return mean, std
}

func sigmoid(s float64) float64 {
	return 1 / (1 + math.Exp(-s))
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
