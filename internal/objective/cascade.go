package objective

import (
	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/matrix"
)

// CascadeLoss is the dense+sparse variant: w is concatenated
// as [w_dense | w_sparse], the feature matrix is a pair of dense and sparse
// submatrices sharing N rows, and the regularizer is applied piecewise
// (potentially different strength on each half). All other contracts are
// unchanged from LinearClassifierLoss.
type CascadeLoss struct {
	dense  matrix.FeatureMatrix
	sparse matrix.FeatureMatrix
	phi    MarginFunction
	y      []core.Real
	cost   []core.Real

	// regDense/regSparse are applied to w[:nDense] and w[nDense:] respectively.
	// Each must itself ignore the coordinates outside its half, which is
	// trivially true since each is handed a sub-slice view.
	regDense, regSparse Objective

	nDense, nSparse int

	scoreHash core.VectorHash
	score     []core.Real

	derivHash core.VectorHash
	deriv     []core.Real

	curvHash core.VectorHash
	curv     []core.Real

	lineScore []core.Real
	lineDense []core.Real
	lineSpars []core.Real
	lineXd    []core.Real
}

// NewCascadeLoss builds a cascade loss over a dense submatrix and a sparse
// submatrix that must share the same row count.
func NewCascadeLoss(dense, sparse matrix.FeatureMatrix, y, cost []core.Real, phi MarginFunction, regDense, regSparse Objective) (*CascadeLoss, error) {
	if dense.Rows() != sparse.Rows() {
		return nil, core.Errorf(core.InvalidArgument, "dense and sparse halves have %d vs %d rows", dense.Rows(), sparse.Rows())
	}
	if len(y) != dense.Rows() || len(cost) != dense.Rows() {
		return nil, core.Errorf(core.InvalidArgument, "label/cost vectors must have %d entries", dense.Rows())
	}
	return &CascadeLoss{
		dense: dense, sparse: sparse, phi: phi, y: y, cost: cost,
		regDense: regDense, regSparse: regSparse,
		nDense: dense.Cols(), nSparse: sparse.Cols(),
	}, nil
}

// SetLabelsAndCosts re-points the loss at a new label's targets/costs
// without reallocating the loss object, mirroring
// LinearClassifierLoss.SetLabelsAndCosts; used by TrainingSpec.UpdateObjective
// to reuse one Objective instance across labels on the same
// thread.
func (c *CascadeLoss) SetLabelsAndCosts(y, cost []core.Real) error {
	if len(y) != c.dense.Rows() || len(cost) != c.dense.Rows() {
		return core.Errorf(core.InvalidArgument, "label/cost vectors must have %d entries", c.dense.Rows())
	}
	c.y = y
	c.cost = cost
	c.scoreHash = core.InvalidHash
	c.derivHash = core.InvalidHash
	c.curvHash = core.InvalidHash
	return nil
}

func (c *CascadeLoss) NumVariables() int64 { return int64(c.nDense + c.nSparse) }

func (c *CascadeLoss) split(w []core.Real) (dPart, sPart []core.Real) {
	return w[:c.nDense], w[c.nDense:]
}

func (c *CascadeLoss) scoreFor(w *core.HashedVector) []core.Real {
	if w.Hash() == c.scoreHash && c.score != nil {
		return c.score
	}
	if c.score == nil {
		c.score = make([]core.Real, c.dense.Rows())
	}
	dPart, sPart := c.split(w.Data())
	for i := 0; i < c.dense.Rows(); i++ {
		c.score[i] = c.dense.RowDot(i, dPart) + c.sparse.RowDot(i, sPart)
	}
	c.scoreHash = w.Hash()
	return c.score
}

func (c *CascadeLoss) derivativeFor(w *core.HashedVector) []core.Real {
	if w.Hash() == c.derivHash && c.deriv != nil {
		return c.deriv
	}
	score := c.scoreFor(w)
	if c.deriv == nil {
		c.deriv = make([]core.Real, c.dense.Rows())
	}
	for i, s := range score {
		m := c.y[i] * s
		c.deriv[i] = c.cost[i] * c.y[i] * c.phi.Grad(m)
	}
	c.derivHash = w.Hash()
	return c.deriv
}

func (c *CascadeLoss) curvatureFor(w *core.HashedVector) []core.Real {
	if w.Hash() == c.curvHash && c.curv != nil {
		return c.curv
	}
	score := c.scoreFor(w)
	if c.curv == nil {
		c.curv = make([]core.Real, c.dense.Rows())
	}
	for i, s := range score {
		m := c.y[i] * s
		c.curv[i] = c.cost[i] * c.phi.Quad(m)
	}
	c.curvHash = w.Hash()
	return c.curv
}

func (c *CascadeLoss) Value(w *core.HashedVector) (core.Real, error) {
	if err := CheckDimension(c, "w", w.Len()); err != nil {
		return 0, err
	}
	score := c.scoreFor(w)
	var sum float64
	for i, s := range score {
		m := c.y[i] * s
		sum += float64(c.cost[i]) * float64(c.phi.Value(m))
	}
	dPart, sPart := c.split(w.Data())
	dVal, err := c.regDense.Value(core.NewHashedVector(append([]core.Real(nil), dPart...)))
	if err != nil {
		return 0, err
	}
	sVal, err := c.regSparse.Value(core.NewHashedVector(append([]core.Real(nil), sPart...)))
	if err != nil {
		return 0, err
	}
	return core.Real(sum) + dVal + sVal, nil
}

func (c *CascadeLoss) Gradient(w *core.HashedVector, out []core.Real) error {
	if err := CheckDimension(c, "w", w.Len()); err != nil {
		return err
	}
	deriv := c.derivativeFor(w)
	outDense, outSparse := c.split(out)
	for j := range outDense {
		outDense[j] = 0
	}
	for j := range outSparse {
		outSparse[j] = 0
	}
	for i := 0; i < c.dense.Rows(); i++ {
		c.dense.RowAddScaled(i, deriv[i], outDense)
		c.sparse.RowAddScaled(i, deriv[i], outSparse)
	}
	dPart, sPart := c.split(w.Data())
	if err := c.regDense.Gradient(core.NewHashedVector(append([]core.Real(nil), dPart...)), outDense); err != nil {
		return err
	}
	return c.regSparse.Gradient(core.NewHashedVector(append([]core.Real(nil), sPart...)), outSparse)
}

func (c *CascadeLoss) GradientAtZero(out []core.Real) error {
	outDense, outSparse := c.split(out)
	for j := range outDense {
		outDense[j] = 0
	}
	for j := range outSparse {
		outSparse[j] = 0
	}
	g0 := c.phi.Grad(0)
	for i := 0; i < c.dense.Rows(); i++ {
		d := c.cost[i] * c.y[i] * g0
		c.dense.RowAddScaled(i, d, outDense)
		c.sparse.RowAddScaled(i, d, outSparse)
	}
	if err := c.regDense.GradientAtZero(outDense); err != nil {
		return err
	}
	return c.regSparse.GradientAtZero(outSparse)
}

func (c *CascadeLoss) HessianTimesDirection(w *core.HashedVector, d []core.Real, out []core.Real) error {
	if err := CheckDimension(c, "w", w.Len()); err != nil {
		return err
	}
	curv := c.curvatureFor(w)
	dDense, dSparse := c.split(d)
	xd := make([]core.Real, c.dense.Rows())
	for i := 0; i < c.dense.Rows(); i++ {
		xd[i] = c.dense.RowDot(i, dDense) + c.sparse.RowDot(i, dSparse)
	}
	outDense, outSparse := c.split(out)
	for j := range outDense {
		outDense[j] = 0
	}
	for j := range outSparse {
		outSparse[j] = 0
	}
	for i := 0; i < c.dense.Rows(); i++ {
		scale := curv[i] * xd[i]
		c.dense.RowAddScaled(i, scale, outDense)
		c.sparse.RowAddScaled(i, scale, outSparse)
	}
	wDense, wSparse := c.split(w.Data())
	if err := c.regDense.HessianTimesDirection(core.NewHashedVector(append([]core.Real(nil), wDense...)), dDense, outDense); err != nil {
		return err
	}
	return c.regSparse.HessianTimesDirection(core.NewHashedVector(append([]core.Real(nil), wSparse...)), dSparse, outSparse)
}

func (c *CascadeLoss) DiagPreconditioner(w *core.HashedVector, out []core.Real) error {
	if err := CheckDimension(c, "w", w.Len()); err != nil {
		return err
	}
	curv := c.curvatureFor(w)
	outDense, outSparse := c.split(out)
	for j := range outDense {
		outDense[j] = 0
	}
	for j := range outSparse {
		outSparse[j] = 0
	}
	for i := 0; i < c.dense.Rows(); i++ {
		h := curv[i]
		c.dense.VisitRow(i, func(col int, value core.Real) {
			outDense[col] += h * value * value
		})
		c.sparse.VisitRow(i, func(col int, value core.Real) {
			outSparse[col] += h * value * value
		})
	}
	wDense, wSparse := c.split(w.Data())
	if err := c.regDense.DiagPreconditioner(core.NewHashedVector(append([]core.Real(nil), wDense...)), outDense); err != nil {
		return err
	}
	return c.regSparse.DiagPreconditioner(core.NewHashedVector(append([]core.Real(nil), wSparse...)), outSparse)
}

func (c *CascadeLoss) GradientAndPreconditioner(w *core.HashedVector, gradOut, precondOut []core.Real) error {
	if err := c.Gradient(w, gradOut); err != nil {
		return err
	}
	return c.DiagPreconditioner(w, precondOut)
}

func (c *CascadeLoss) ProjectToLine(w *core.HashedVector, d []core.Real) error {
	if err := CheckDimension(c, "w", w.Len()); err != nil {
		return err
	}
	score := c.scoreFor(w)
	if c.lineScore == nil || len(c.lineScore) != len(score) {
		c.lineScore = make([]core.Real, len(score))
	}
	copy(c.lineScore, score)
	dDense, dSparse := c.split(d)
	c.lineDense = append(c.lineDense[:0], dDense...)
	c.lineSpars = append(c.lineSpars[:0], dSparse...)
	if c.lineXd == nil || len(c.lineXd) != len(score) {
		c.lineXd = make([]core.Real, len(score))
	}
	for i := 0; i < c.dense.Rows(); i++ {
		c.lineXd[i] = c.dense.RowDot(i, dDense) + c.sparse.RowDot(i, dSparse)
	}

	wDense, wSparse := c.split(w.Data())
	if err := c.regDense.ProjectToLine(core.NewHashedVector(append([]core.Real(nil), wDense...)), dDense); err != nil {
		return err
	}
	return c.regSparse.ProjectToLine(core.NewHashedVector(append([]core.Real(nil), wSparse...)), dSparse)
}

func (c *CascadeLoss) LookupOnLine(t core.Real) core.Real {
	var sum float64
	for i := 0; i < c.dense.Rows(); i++ {
		s := c.lineScore[i] + t*c.lineXd[i]
		m := c.y[i] * s
		sum += float64(c.cost[i]) * float64(c.phi.Value(m))
	}
	return core.Real(sum) + c.regDense.LookupOnLine(t) + c.regSparse.LookupOnLine(t)
}

func (c *CascadeLoss) DeclareVectorOnLastLine(w *core.HashedVector, t core.Real) {
	if c.score == nil || len(c.score) != c.dense.Rows() {
		c.score = make([]core.Real, c.dense.Rows())
	}
	for i := 0; i < c.dense.Rows(); i++ {
		c.score[i] = c.lineScore[i] + t*c.lineXd[i]
	}
	c.scoreHash = w.Hash()
	c.derivHash = core.InvalidHash
	c.curvHash = core.InvalidHash
	wDense, wSparse := c.split(w.Data())
	c.regDense.DeclareVectorOnLastLine(core.NewHashedVector(append([]core.Real(nil), wDense...)), t)
	c.regSparse.DeclareVectorOnLastLine(core.NewHashedVector(append([]core.Real(nil), wSparse...)), t)
}

var _ Objective = (*CascadeLoss)(nil)
