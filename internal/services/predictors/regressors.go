package predictors

import (
	"fmt"
	"math"
	"sort"

	"IPHForecast/internal/domain/models"
	domsvc "IPHForecast/internal/domain/service"

	"gonum.org/v1/gonum/floats"
)

// Linear is an ordinary linear regressor.
type Linear struct {
	name      string
	intercept float64
	coef      []float64
}

func NewLinear(name string, intercept float64, coef []float64) *Linear {
	return &Linear{name: name, intercept: intercept, coef: coef}
}

func (m *Linear) Name() string               { return m.name }
func (m *Linear) Kind() domsvc.PredictorKind { return domsvc.KindPoint }

func (m *Linear) Predict(fv models.FeatureVector) (float64, error) {
	return m.intercept + floats.Dot(m.coef, fv.Slice()), nil
}

// Tree is one regression tree.
type Tree struct {
	name  string
	nodes []Node
}

func (t *Tree) Name() string               { return t.name }
func (t *Tree) Kind() domsvc.PredictorKind { return domsvc.KindPoint }

func (t *Tree) Predict(fv models.FeatureVector) (float64, error) {
	x := fv.Slice()
	i := 0
	for hops := 0; hops <= len(t.nodes); hops++ {
		if i < 0 || i >= len(t.nodes) {
			return 0, fmt.Errorf("%s: node index %d out of range", t.name, i)
		}
		n := t.nodes[i]
		if n.Left == -1 {
			return n.Value, nil
		}
		if n.Feature < 0 || n.Feature >= len(x) {
			return 0, fmt.Errorf("%s: feature index %d out of range", t.name, n.Feature)
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return 0, fmt.Errorf("%s: cycle in tree", t.name)
}

// Forest averages its member trees and exposes them for band estimation.
type Forest struct {
	name    string
	members []domsvc.Predictor
}

func NewForest(name string, members []domsvc.Predictor) *Forest {
	return &Forest{name: name, members: members}
}

func (f *Forest) Name() string                { return f.name }
func (f *Forest) Kind() domsvc.PredictorKind  { return domsvc.KindEnsemble }
func (f *Forest) Members() []domsvc.Predictor { return f.members }

func (f *Forest) Predict(fv models.FeatureVector) (float64, error) {
	if len(f.members) == 0 {
		return 0, fmt.Errorf("%s: no members", f.name)
	}
	sum := 0.0
	for _, m := range f.members {
		y, err := m.Predict(fv)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", f.name, err)
		}
		sum += y
	}
	return sum / float64(len(f.members)), nil
}

// Boosted is an additive tree model. Stages are not independent estimates,
// so it is a point predictor.
type Boosted struct {
	name  string
	base  float64
	rate  float64
	trees []*Tree
}

func (b *Boosted) Name() string               { return b.name }
func (b *Boosted) Kind() domsvc.PredictorKind { return domsvc.KindPoint }

func (b *Boosted) Predict(fv models.FeatureVector) (float64, error) {
	y := b.base
	for _, t := range b.trees {
		v, err := t.Predict(fv)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", b.name, err)
		}
		y += b.rate * v
	}
	return y, nil
}

// KNN averages the targets of the k nearest training samples.
type KNN struct {
	name     string
	k        int
	distance bool
	samples  [][]float64
	targets  []float64
}

func (m *KNN) Name() string               { return m.name }
func (m *KNN) Kind() domsvc.PredictorKind { return domsvc.KindPoint }

func (m *KNN) Predict(fv models.FeatureVector) (float64, error) {
	x := fv.Slice()
	type neighbour struct {
		d float64
		y float64
	}
	ns := make([]neighbour, len(m.samples))
	for i, s := range m.samples {
		ns[i] = neighbour{d: floats.Distance(s, x, 2), y: m.targets[i]}
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i].d < ns[j].d })
	ns = ns[:m.k]

	if !m.distance {
		sum := 0.0
		for _, n := range ns {
			sum += n.y
		}
		return sum / float64(len(ns)), nil
	}
	var num, den float64
	for _, n := range ns {
		if n.d == 0 {
			return n.y, nil
		}
		w := 1 / n.d
		num += w * n.y
		den += w
	}
	if den == 0 || math.IsNaN(num) {
		return 0, fmt.Errorf("%s: degenerate distance weights", m.name)
	}
	return num / den, nil
}
