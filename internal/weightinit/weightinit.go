// Package weightinit implements the WeightInitializer strategies of spec
// §4.8: ways to produce a starting weight vector for a label's Newton run,
// from plain zero up to a data-driven warm start shared across all labels.
package weightinit

import (
	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/matrix"
	"github.com/dismec-go/dismec/internal/objective"
	"github.com/dismec-go/dismec/internal/solver"
)

// Initializer produces the starting weight vector for label k's training
// problem. The returned slice has length x.Cols() and is fresh on every call
// (callers are free to mutate it, e.g. hand it straight to
// NewtonSolver.Minimize's init parameter).
type Initializer interface {
	Init(k core.LabelID, x matrix.FeatureMatrix, labelColumn []core.Real) ([]core.Real, error)
}

// Zero always starts from the origin.
type Zero struct{}

func (Zero) Init(_ core.LabelID, x matrix.FeatureMatrix, _ []core.Real) ([]core.Real, error) {
	return make([]core.Real, x.Cols()), nil
}

// Constant starts every coordinate at the fixed value V.
type Constant struct {
	V core.Real
}

func (c Constant) Init(_ core.LabelID, x matrix.FeatureMatrix, _ []core.Real) ([]core.Real, error) {
	out := make([]core.Real, x.Cols())
	for i := range out {
		out[i] = c.V
	}
	return out, nil
}

// WeightSource is implemented by anything that can hand back a previously
// trained weight vector for a label, most notably modelio.Model -- defined
// here as a minimal interface rather than imported directly, so weightinit
// does not need to depend on the model-file package.
type WeightSource interface {
	WeightsForLabel(k core.LabelID) ([]core.Real, error)
}

// Pretrained copies a previously trained model's weights, for continuing
// training (e.g. after a resumed partial model load) rather than starting
// cold.
type Pretrained struct {
	Source WeightSource
}

func (p Pretrained) Init(k core.LabelID, x matrix.FeatureMatrix, _ []core.Real) ([]core.Real, error) {
	w, err := p.Source.WeightsForLabel(k)
	if err != nil {
		return nil, err
	}
	if len(w) != x.Cols() {
		return nil, core.Errorf(core.InvalidArgument, "pretrained weights for label %d have dimension %d, expected %d", k, len(w), x.Cols())
	}
	out := make([]core.Real, len(w))
	copy(out, w)
	return out, nil
}

// meanVectors computes mu+ (mean feature vector of the positive instances of
// labelColumn) and muAll (mean over all instances) in one pass over x.
func meanVectors(x matrix.FeatureMatrix, labelColumn []core.Real) (muPos, muAll []core.Real, nPos, n int) {
	d := x.Cols()
	muPos = make([]core.Real, d)
	muAll = make([]core.Real, d)
	n = x.Rows()
	for i := 0; i < n; i++ {
		x.RowAddScaled(i, 1, muAll)
		if labelColumn[i] > 0 {
			x.RowAddScaled(i, 1, muPos)
			nPos++
		}
	}
	if n > 0 {
		inv := core.Real(1) / core.Real(n)
		for j := range muAll {
			muAll[j] *= inv
		}
	}
	if nPos > 0 {
		inv := core.Real(1) / core.Real(nPos)
		for j := range muPos {
			muPos[j] *= inv
		}
	}
	return muPos, muAll, nPos, n
}

func dotf(a, b []core.Real) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// FeatureMean implements mean-score initializer (MSI): it builds
// w as a linear combination u*mu+ + v*mu_all of the positive-class mean
// feature vector and the overall mean feature vector, choosing (u, v) so
// that the predicted score on the average positive instance is PosTarget and
// the score on the average instance is the positive-fraction-blended target
// f = p*(PosTarget-NegTarget) + NegTarget, p = n+/n, anchoring the second
// equation on mu_all (the stand-in for "a typical instance", since the true
// negative mean is not itself tracked): solving the symmetric 2x2 system
//
//	[ mu+.mu+   mu+.muAll ] [u]   [PosTarget]
//	[ mu+.muAll muAll.muAll ] [v] = [f]
//
// Falls back to (u, v) = (0, -1) -- i.e. w = -mu_all -- if that system is
// singular.
type FeatureMean struct {
	PosTarget, NegTarget core.Real
}

func (f FeatureMean) Init(_ core.LabelID, x matrix.FeatureMatrix, labelColumn []core.Real) ([]core.Real, error) {
	muPos, muAll, nPos, n := meanVectors(x, labelColumn)
	u, v := f.solve(muPos, muAll, nPos, n)
	out := make([]core.Real, x.Cols())
	for j := range out {
		out[j] = u*muPos[j] + v*muAll[j]
	}
	return out, nil
}

func (f FeatureMean) solve(muPos, muAll []core.Real, nPos, n int) (u, v core.Real) {
	a11 := dotf(muPos, muPos)
	a12 := dotf(muPos, muAll)
	a22 := dotf(muAll, muAll)
	var p float64
	if n > 0 {
		p = float64(nPos) / float64(n)
	}
	blended := p*(float64(f.PosTarget)-float64(f.NegTarget)) + float64(f.NegTarget)
	sol, ok := solveLinearSystem([][]float64{{a11, a12}, {a12, a22}}, []float64{float64(f.PosTarget), blended})
	if !ok {
		return 0, -1
	}
	return core.Real(sol[0]), core.Real(sol[1])
}

// MultiPositive implements variant for labels with a handful of
// positives: when the label has at most MaxPositives positives, it solves a
// small ridge-regularized dual system over the basis {mu_all, x_pos_1, ...,
// x_pos_K} (the overall mean standing in for the negative class, each
// positive instance its own basis vector), targeting NegTarget on the mu_all
// basis vector and PosTarget on every positive's basis vector, then
// reconstructs w as the resulting linear combination. Labels with more than
// MaxPositives positives fall back to FeatureMean.
type MultiPositive struct {
	MaxPositives         int
	PosTarget, NegTarget core.Real
	Ridge                core.Real // diagonal regularization added to the Gram matrix
}

func (m MultiPositive) Init(k core.LabelID, x matrix.FeatureMatrix, labelColumn []core.Real) ([]core.Real, error) {
	d := x.Cols()
	positives := make([]int, 0, m.MaxPositives+1)
	for i, y := range labelColumn {
		if y > 0 {
			positives = append(positives, i)
			if len(positives) > m.MaxPositives {
				break
			}
		}
	}
	if len(positives) == 0 || len(positives) > m.MaxPositives {
		return FeatureMean{PosTarget: m.PosTarget, NegTarget: m.NegTarget}.Init(k, x, labelColumn)
	}

	muAll := make([]core.Real, d)
	n := x.Rows()
	for i := 0; i < n; i++ {
		x.RowAddScaled(i, 1, muAll)
	}
	if n > 0 {
		inv := core.Real(1) / core.Real(n)
		for j := range muAll {
			muAll[j] *= inv
		}
	}

	basis := make([][]core.Real, 0, len(positives)+1)
	basis = append(basis, muAll)
	for _, i := range positives {
		row := make([]core.Real, d)
		x.RowAddScaled(i, 1, row)
		basis = append(basis, row)
	}

	size := len(basis)
	gram := make([][]float64, size)
	target := make([]float64, size)
	target[0] = float64(m.NegTarget)
	for i := 1; i < size; i++ {
		target[i] = float64(m.PosTarget)
	}
	for i := range gram {
		gram[i] = make([]float64, size)
		for j := range gram[i] {
			gram[i][j] = dotf(basis[i], basis[j])
		}
		gram[i][i] += float64(m.Ridge)
	}

	alpha, ok := solveLinearSystem(gram, target)
	if !ok {
		return FeatureMean{PosTarget: m.PosTarget, NegTarget: m.NegTarget}.Init(k, x, labelColumn)
	}
	out := make([]core.Real, d)
	for i, a := range alpha {
		av := core.Real(a)
		for j := range out {
			out[j] += av * basis[i][j]
		}
	}
	return out, nil
}

// OVAPrimal implements global warm start: it solves the
// all-labels-negative problem once (y_i = -1 for every instance, uniform
// cost) using Reg/Loss/Solver, then hands that single solution out as every
// label's starting point. The minimization is memoized across Init calls
// sharing the same OVAPrimal value, since it does not depend on k.
type OVAPrimal struct {
	Reg    objective.Objective
	Loss   objective.MarginFunction
	Solver *solver.NewtonSolver

	computed bool
	warm     []core.Real
	err      error
}

func (o *OVAPrimal) Init(_ core.LabelID, x matrix.FeatureMatrix, _ []core.Real) ([]core.Real, error) {
	if !o.computed {
		o.warm, o.err = o.solve(x)
		o.computed = true
	}
	if o.err != nil {
		return nil, o.err
	}
	out := make([]core.Real, len(o.warm))
	copy(out, o.warm)
	return out, nil
}

func (o *OVAPrimal) solve(x matrix.FeatureMatrix) ([]core.Real, error) {
	allNeg := make([]core.Real, x.Rows())
	cost := make([]core.Real, x.Rows())
	for i := range allNeg {
		allNeg[i] = -1
		cost[i] = 1
	}
	loss, err := objective.NewLinearClassifierLoss(x, allNeg, cost, o.Loss, o.Reg)
	if err != nil {
		return nil, err
	}
	s := o.Solver
	if s == nil {
		s = solver.NewNewtonSolver()
	}
	w := core.NewZeroHashedVector(x.Cols())
	result := s.Minimize(loss, w, make([]core.Real, x.Cols()))
	if result.Status != solver.Success && result.Status != solver.TimedOut {
		return nil, core.Errorf(core.NumericFailure, "OVA primal warm-start solve did not converge: %s", result.Status)
	}
	out := make([]core.Real, w.Len())
	copy(out, w.Data())
	return out, nil
}
