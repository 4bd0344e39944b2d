// Package sanity trains a tiny regression network to prove that the numeric
// backend produces finite, decreasing losses.
package sanity

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Device names the compute backend in use.
const Device = "cpu (gonum)"

var (
	// ErrInvalidInput is returned for non-positive sizes or learning rates.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNonFinite is returned when a loss is NaN or infinite.
	ErrNonFinite = errors.New("loss is not finite")
)

type Options struct {
	Samples      int
	Inputs       int
	Hidden       int
	Epochs       int
	LearningRate float64
	Seed         uint64
}

func DefaultOptions() Options {
	return Options{
		Samples:      1000,
		Inputs:       10,
		Hidden:       50,
		Epochs:       5,
		LearningRate: 0.01,
	}
}

// Train fits Linear(Inputs, Hidden) -> ReLU -> Linear(Hidden, 1) to random
// normal data with MSE loss and Adam, one full-batch step per epoch. progress,
// if not nil, is called after every epoch. The returned slice holds each
// epoch's loss, measured before that epoch's update.
func Train(opts Options, progress func(epoch int, loss float64)) ([]float64, error) {
	if opts.Samples < 1 || opts.Inputs < 1 || opts.Hidden < 1 || opts.Epochs < 1 || !(opts.LearningRate > 0) {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidInput, opts)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	x := randn(rng, opts.Samples, opts.Inputs)
	y := randn(rng, opts.Samples, 1)

	net := newMLP(rng, opts.Inputs, opts.Hidden)
	optim := newAdam(opts.LearningRate, net.params())

	losses := make([]float64, 0, opts.Epochs)
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		loss := net.backward(x, y)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return losses, fmt.Errorf("%w: epoch %d", ErrNonFinite, epoch)
		}
		optim.step()

		losses = append(losses, loss)
		if progress != nil {
			progress(epoch, loss)
		}
	}
	return losses, nil
}

func randn(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(r, c, data)
}

// param is a trainable tensor with its gradient.
type param struct {
	value *mat.Dense
	grad  *mat.Dense
}

func newParam(r, c int) *param {
	return &param{value: mat.NewDense(r, c, nil), grad: mat.NewDense(r, c, nil)}
}

type mlp struct {
	w1, b1, w2, b2 *param
}

// newMLP initializes weights and biases uniformly in ±1/sqrt(fan_in).
func newMLP(rng *rand.Rand, inputs, hidden int) *mlp {
	m := &mlp{
		w1: newParam(inputs, hidden),
		b1: newParam(1, hidden),
		w2: newParam(hidden, 1),
		b2: newParam(1, 1),
	}
	uniform(rng, m.w1.value, inputs)
	uniform(rng, m.b1.value, inputs)
	uniform(rng, m.w2.value, hidden)
	uniform(rng, m.b2.value, hidden)
	return m
}

func uniform(rng *rand.Rand, d *mat.Dense, fanIn int) {
	bound := 1 / math.Sqrt(float64(fanIn))
	data := d.RawMatrix().Data
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * bound
	}
}

func (m *mlp) params() []*param {
	return []*param{m.w1, m.b1, m.w2, m.b2}
}

// forward returns the hidden activations and the predictions.
func (m *mlp) forward(x *mat.Dense) (hidden, out *mat.Dense) {
	n, _ := x.Dims()
	_, h := m.w1.value.Dims()

	hidden = mat.NewDense(n, h, nil)
	hidden.Mul(x, m.w1.value)
	hidden.Apply(func(_, j int, v float64) float64 {
		return math.Max(0, v+m.b1.value.At(0, j))
	}, hidden)

	out = mat.NewDense(n, 1, nil)
	out.Mul(hidden, m.w2.value)
	b2 := m.b2.value.At(0, 0)
	out.Apply(func(_, _ int, v float64) float64 { return v + b2 }, out)
	return hidden, out
}

func (m *mlp) loss(x, y *mat.Dense) float64 {
	_, out := m.forward(x)
	return mse(out, y)
}

func mse(out, y *mat.Dense) float64 {
	n, _ := y.Dims()
	var diff mat.Dense
	diff.Sub(out, y)
	return mat.Dot(diff.ColView(0), diff.ColView(0)) / float64(n)
}

// backward fills every param's grad and returns the loss.
func (m *mlp) backward(x, y *mat.Dense) float64 {
	n, _ := x.Dims()
	hidden, out := m.forward(x)
	loss := mse(out, y)

	// dL/dout = 2(out - y)/n
	dOut := mat.NewDense(n, 1, nil)
	dOut.Sub(out, y)
	dOut.Scale(2/float64(n), dOut)

	m.w2.grad.Mul(hidden.T(), dOut)
	m.b2.grad.Set(0, 0, mat.Sum(dOut))

	_, h := hidden.Dims()
	dHidden := mat.NewDense(n, h, nil)
	dHidden.Mul(dOut, m.w2.value.T())
	dHidden.Apply(func(i, j int, v float64) float64 {
		if hidden.At(i, j) <= 0 {
			return 0
		}
		return v
	}, dHidden)

	m.w1.grad.Mul(x.T(), dHidden)
	for j := 0; j < h; j++ {
		m.b1.grad.Set(0, j, mat.Sum(dHidden.ColView(j)))
	}
	return loss
}

// adam implements Adam with bias correction.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	params                []*param
	m, v                  [][]float64
}

func newAdam(lr float64, params []*param) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8, params: params}
	for _, p := range params {
		size := len(p.value.RawMatrix().Data)
		a.m = append(a.m, make([]float64, size))
		a.v = append(a.v, make([]float64, size))
	}
	return a
}

func (a *adam) step() {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))

	for k, p := range a.params {
		values := p.value.RawMatrix().Data
		grads := p.grad.RawMatrix().Data
		m, v := a.m[k], a.v[k]
		for i, g := range grads {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			values[i] -= a.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.eps)
		}
	}
}
