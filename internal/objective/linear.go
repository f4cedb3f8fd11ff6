package objective

import (
	"math"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/matrix"
)

// LinearClassifierLoss implements f(w) = sum_i c_i*phi(y_i*(x_iᵀw)) + R(w)
//. It caches Xᵀw keyed by the hash of the last w it saw, and
// derives the per-instance derivative/curvature vectors from that cache, so
// that Value/Gradient/HessianTimesDirection/DiagPreconditioner calls for the
// same w never recompute the matrix product.
type LinearClassifierLoss struct {
	x    matrix.FeatureMatrix
	phi  MarginFunction
	reg  Objective
	cost []core.Real // per-instance c_i, from the LabelWeighting contract
	y    []core.Real // per-instance label in {-1,+1}

	scoreHash core.VectorHash
	score     []core.Real // cached Xw

	derivHash core.VectorHash
	deriv     []core.Real // cached c_i*y_i*phi.Grad(y_i*score_i)

	curvHash core.VectorHash
	curv     []core.Real // cached c_i*phi.Quad(y_i*score_i)

	// line search cache, valid after ProjectToLine
	lineXw   []core.Real // Xw at the projected base point
	lineXd   []core.Real // Xd for the projected direction
	lineHash core.VectorHash
}

// NewLinearClassifierLoss builds a loss over feature matrix x, with targets y
// (dense +-1 per instance), per-instance costs cost, margin function phi and
// regularizer reg. len(y) and len(cost) must equal x.Rows().
func NewLinearClassifierLoss(x matrix.FeatureMatrix, y, cost []core.Real, phi MarginFunction, reg Objective) (*LinearClassifierLoss, error) {
	if len(y) != x.Rows() {
		return nil, core.Errorf(core.InvalidArgument, "label vector has %d entries, expected %d", len(y), x.Rows())
	}
	if len(cost) != x.Rows() {
		return nil, core.Errorf(core.InvalidArgument, "cost vector has %d entries, expected %d", len(cost), x.Rows())
	}
	return &LinearClassifierLoss{x: x, phi: phi, reg: reg, y: y, cost: cost}, nil
}

// SetLabelsAndCosts re-points the loss at a new label's targets/costs without
// reallocating the loss object; used by TrainingSpec.UpdateObjective (spec
// §4.11) to reuse one Objective instance across labels on the same thread.
// It invalidates every label-dependent cache.
func (l *LinearClassifierLoss) SetLabelsAndCosts(y, cost []core.Real) error {
	if len(y) != l.x.Rows() || len(cost) != l.x.Rows() {
		return core.Errorf(core.InvalidArgument, "label/cost vectors must have %d entries", l.x.Rows())
	}
	l.y = y
	l.cost = cost
	l.scoreHash = core.InvalidHash
	l.derivHash = core.InvalidHash
	l.curvHash = core.InvalidHash
	l.lineHash = core.InvalidHash
	return nil
}

func (l *LinearClassifierLoss) NumVariables() int64 { return int64(l.x.Cols()) }

func (l *LinearClassifierLoss) scoreFor(w *core.HashedVector) []core.Real {
	if w.Hash() == l.scoreHash && l.score != nil {
		return l.score
	}
	if l.score == nil {
		l.score = make([]core.Real, l.x.Rows())
	}
	data := w.Data()
	for i := 0; i < l.x.Rows(); i++ {
		l.score[i] = l.x.RowDot(i, data)
	}
	l.scoreHash = w.Hash()
	return l.score
}

func (l *LinearClassifierLoss) derivativeFor(w *core.HashedVector) []core.Real {
	if w.Hash() == l.derivHash && l.deriv != nil {
		return l.deriv
	}
	score := l.scoreFor(w)
	if l.deriv == nil {
		l.deriv = make([]core.Real, l.x.Rows())
	}
	for i, s := range score {
		m := l.y[i] * s
		l.deriv[i] = l.cost[i] * l.y[i] * l.phi.Grad(m)
	}
	l.derivHash = w.Hash()
	return l.deriv
}

func (l *LinearClassifierLoss) curvatureFor(w *core.HashedVector) []core.Real {
	if w.Hash() == l.curvHash && l.curv != nil {
		return l.curv
	}
	score := l.scoreFor(w)
	if l.curv == nil {
		l.curv = make([]core.Real, l.x.Rows())
	}
	for i, s := range score {
		m := l.y[i] * s
		l.curv[i] = l.cost[i] * l.phi.Quad(m)
	}
	l.curvHash = w.Hash()
	return l.curv
}

func (l *LinearClassifierLoss) Value(w *core.HashedVector) (core.Real, error) {
	if err := CheckDimension(l, "w", w.Len()); err != nil {
		return 0, err
	}
	score := l.scoreFor(w)
	var sum float64
	for i, s := range score {
		m := l.y[i] * s
		sum += float64(l.cost[i]) * float64(l.phi.Value(m))
	}
	regVal, err := l.reg.Value(w)
	if err != nil {
		return 0, err
	}
	return core.Real(sum) + regVal, nil
}

func (l *LinearClassifierLoss) Gradient(w *core.HashedVector, out []core.Real) error {
	if err := CheckDimension(l, "w", w.Len()); err != nil {
		return err
	}
	if len(out) != l.x.Cols() {
		return core.Errorf(core.InvalidArgument, "gradient output has dimension %d, expected %d", len(out), l.x.Cols())
	}
	deriv := l.derivativeFor(w)
	for j := range out {
		out[j] = 0
	}
	for i := 0; i < l.x.Rows(); i++ {
		l.x.RowAddScaled(i, deriv[i], out)
	}
	return l.reg.Gradient(w, out)
}

func (l *LinearClassifierLoss) GradientAtZero(out []core.Real) error {
	if len(out) != l.x.Cols() {
		return core.Errorf(core.InvalidArgument, "gradient output has dimension %d, expected %d", len(out), l.x.Cols())
	}
	for j := range out {
		out[j] = 0
	}
	g0 := l.phi.Grad(0)
	for i := 0; i < l.x.Rows(); i++ {
		d := l.cost[i] * l.y[i] * g0
		l.x.RowAddScaled(i, d, out)
	}
	return l.reg.GradientAtZero(out)
}

func (l *LinearClassifierLoss) HessianTimesDirection(w *core.HashedVector, d []core.Real, out []core.Real) error {
	if err := CheckDimension(l, "w", w.Len()); err != nil {
		return err
	}
	if len(d) != l.x.Cols() || len(out) != l.x.Cols() {
		return core.Errorf(core.InvalidArgument, "direction/output must have dimension %d", l.x.Cols())
	}
	curv := l.curvatureFor(w)
	xd := make([]core.Real, l.x.Rows())
	for i := 0; i < l.x.Rows(); i++ {
		xd[i] = l.x.RowDot(i, d)
	}
	for j := range out {
		out[j] = 0
	}
	for i := 0; i < l.x.Rows(); i++ {
		l.x.RowAddScaled(i, curv[i]*xd[i], out)
	}
	return l.reg.HessianTimesDirection(w, d, out)
}

func (l *LinearClassifierLoss) DiagPreconditioner(w *core.HashedVector, out []core.Real) error {
	if err := CheckDimension(l, "w", w.Len()); err != nil {
		return err
	}
	if len(out) != l.x.Cols() {
		return core.Errorf(core.InvalidArgument, "preconditioner output has dimension %d, expected %d", len(out), l.x.Cols())
	}
	curv := l.curvatureFor(w)
	for j := range out {
		out[j] = 0
	}
	for i := 0; i < l.x.Rows(); i++ {
		h := curv[i]
		l.x.VisitRow(i, func(col int, value core.Real) {
			out[col] += h * value * value
		})
	}
	return l.reg.DiagPreconditioner(w, out)
}

func (l *LinearClassifierLoss) GradientAndPreconditioner(w *core.HashedVector, gradOut, precondOut []core.Real) error {
	if err := l.Gradient(w, gradOut); err != nil {
		return err
	}
	return l.DiagPreconditioner(w, precondOut)
}

func (l *LinearClassifierLoss) ProjectToLine(w *core.HashedVector, d []core.Real) error {
	if err := CheckDimension(l, "w", w.Len()); err != nil {
		return err
	}
	score := l.scoreFor(w)
	if l.lineXw == nil || len(l.lineXw) != l.x.Rows() {
		l.lineXw = make([]core.Real, l.x.Rows())
		l.lineXd = make([]core.Real, l.x.Rows())
	}
	copy(l.lineXw, score)
	for i := 0; i < l.x.Rows(); i++ {
		l.lineXd[i] = l.x.RowDot(i, d)
	}
	l.lineHash = w.Hash()
	return l.reg.ProjectToLine(w, d)
}

func (l *LinearClassifierLoss) LookupOnLine(t core.Real) core.Real {
	var sum float64
	for i := 0; i < l.x.Rows(); i++ {
		s := l.lineXw[i] + t*l.lineXd[i]
		m := l.y[i] * s
		sum += float64(l.cost[i]) * float64(l.phi.Value(m))
	}
	return core.Real(sum) + l.reg.LookupOnLine(t)
}

// DeclareVectorOnLastLine updates the Xᵀw cache to the score vector computed
// during the last ProjectToLine/LookupOnLine sequence evaluated at step t,
// avoiding a full matrix-vector product when the caller (the Newton solver)
// already knows w now equals that exact position (HashedVector /
// Xᵀw cache").
func (l *LinearClassifierLoss) DeclareVectorOnLastLine(w *core.HashedVector, t core.Real) {
	if l.score == nil || len(l.score) != l.x.Rows() {
		l.score = make([]core.Real, l.x.Rows())
	}
	for i := range l.score {
		l.score[i] = l.lineXw[i] + t*l.lineXd[i]
	}
	l.scoreHash = w.Hash()
	l.derivHash = core.InvalidHash
	l.curvHash = core.InvalidHash
	l.reg.DeclareVectorOnLastLine(w, t)
}

var _ Objective = (*LinearClassifierLoss)(nil)

// finite helper used by solvers to classify NaN/Inf results
// NewtonSolver "Non-finite f or ||g|| at iteration 0 -> Failed").
func IsFinite(v core.Real) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
