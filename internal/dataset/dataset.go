// Package dataset implements external dataset loaders: the XMC
// and SLICE text formats, read into a shared-immutable feature matrix plus
// an inverted label index so that TrainingSpec.LabelSource can hand back a
// dense +-1 target column for any label in O(N) without re-scanning the
// raw file.
package dataset

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/matrix"
)

// Dataset is an in-memory training set: N instances over D features, with
// each instance tagged by zero or more of L labels.
type Dataset struct {
	N, D int
	L    int64

	X matrix.FeatureMatrix

	// instanceLabels[i] holds instance i's label ids, sorted ascending, used
	// by SaveXMC to round-trip the file's label column.
	instanceLabels [][]int64

	// labelIndex maps a label id to the sorted list of instances carrying
	// it, built once at load time so LabelColumn doesn't rescan all N rows'
	// label sets per call.
	labelIndex map[int64][]int
}

// NumFeatures, NumInstances and NumLabels expose the dataset's shape;
// NumLabels satisfies the quantity the driver needs to size [label_begin,
// label_end) ranges against.
func (d *Dataset) NumFeatures() int  { return d.D }
func (d *Dataset) NumInstances() int { return d.N }
func (d *Dataset) NumLabels() int64  { return d.L }

// FeatureMatrix returns the dataset's shared-immutable feature matrix.
func (d *Dataset) FeatureMatrix() matrix.FeatureMatrix { return d.X }

// LabelColumn builds label k's dense +-1 target column, satisfying
// trainspec.LabelSource.
func (d *Dataset) LabelColumn(k core.LabelID) ([]core.Real, error) {
	if int64(k) < 0 || int64(k) >= d.L {
		return nil, core.Errorf(core.InvalidArgument, "label %d out of range [0,%d)", k, d.L)
	}
	col := make([]core.Real, d.N)
	for i := range col {
		col[i] = -1
	}
	for _, i := range d.labelIndex[int64(k)] {
		col[i] = 1
	}
	return col, nil
}

func buildLabelIndex(instanceLabels [][]int64) map[int64][]int {
	index := make(map[int64][]int)
	for i, labels := range instanceLabels {
		for _, l := range labels {
			index[l] = append(index[l], i)
		}
	}
	return index
}

// ReadXMC parses the XMC text format: a header line `N D L`
// followed by N lines of `lbl1,lbl2,... ftr:val ftr:val ...`. Blank lines
// and lines starting with `#` are skipped, matching the original
// xmc-aalto/dismecpp reader's tolerance (src/io/xmc.cpp). If oneBased is
// true, both label ids and feature indices are decremented by one on read.
func ReadXMC(path string, oneBased bool) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.Errorf(core.IOError, "opening xmc dataset %q: %v", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	header, ok := nextDataLine(scanner)
	if !ok {
		return nil, core.Errorf(core.IOError, "xmc dataset %q has no header line", path)
	}
	n, d, l, err := parseXMCHeader(header)
	if err != nil {
		return nil, errors.Wrapf(err, "xmc dataset %q", path)
	}

	rowStart := make([]int32, 1, n+1)
	var indices []int32
	var values []core.Real
	instanceLabels := make([][]int64, 0, n)

	row := 0
	for {
		line, ok := nextDataLine(scanner)
		if !ok {
			break
		}
		labels, feats, err := parseXMCLine(line, oneBased)
		if err != nil {
			return nil, errors.Wrapf(err, "xmc dataset %q, instance %d", path, row)
		}
		for _, lbl := range labels {
			if lbl < 0 || lbl >= l {
				return nil, core.Errorf(core.IOError, "xmc dataset %q, instance %d: label %d out of range [0,%d)", path, row, lbl, l)
			}
		}
		sort.Slice(feats, func(a, b int) bool { return feats[a].index < feats[b].index })
		for _, fv := range feats {
			if fv.index < 0 || int(fv.index) >= d {
				return nil, core.Errorf(core.IOError, "xmc dataset %q, instance %d: feature index %d out of range [0,%d)", path, row, fv.index, d)
			}
			indices = append(indices, fv.index)
			values = append(values, fv.value)
		}
		rowStart = append(rowStart, int32(len(indices)))
		instanceLabels = append(instanceLabels, labels)
		row++
	}
	if err := scanner.Err(); err != nil {
		return nil, core.Errorf(core.IOError, "reading xmc dataset %q: %v", path, err)
	}
	if row != n {
		return nil, core.Errorf(core.IOError, "xmc dataset %q: header declared %d instances, found %d", path, n, row)
	}

	x, err := matrix.NewSparse(n, d, rowStart, indices, values)
	if err != nil {
		return nil, err
	}
	return &Dataset{
		N: n, D: d, L: int64(l),
		X:              x,
		instanceLabels: instanceLabels,
		labelIndex:     buildLabelIndex(instanceLabels),
	}, nil
}

type featureValue struct {
	index int32
	value core.Real
}

func nextDataLine(scanner *bufio.Scanner) (string, bool) {
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		return line, true
	}
	return "", false
}

func parseXMCHeader(line string) (n, d, l int, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return 0, 0, 0, core.Errorf(core.IOError, "header %q must have exactly 3 fields, got %d", line, len(fields))
	}
	vals := make([]int, 3)
	for i, f := range fields {
		v, convErr := strconv.Atoi(f)
		if convErr != nil {
			return 0, 0, 0, core.Errorf(core.IOError, "header %q: field %q is not an integer", line, f)
		}
		if v <= 0 {
			return 0, 0, 0, core.Errorf(core.IOError, "header %q: field %q must be positive", line, f)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

// parseXMCLine splits one data line into its label list and (index, value)
// feature pairs. Leading whitespace is skipped; the first field is read as
// the comma-separated label list when it contains no ':', and otherwise the
// line has no labels and that field is already a feature pair.
func parseXMCLine(line string, oneBased bool) (labels []int64, feats []featureValue, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil, nil
	}
	start := 0
	if !strings.Contains(fields[0], ":") {
		for _, part := range strings.Split(fields[0], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, convErr := strconv.ParseInt(part, 10, 64)
			if convErr != nil {
				return nil, nil, core.Errorf(core.IOError, "invalid label %q", part)
			}
			if oneBased {
				v--
			}
			labels = append(labels, v)
		}
		start = 1
	}
	for _, field := range fields[start:] {
		idx, val, convErr := parseFeature(field)
		if convErr != nil {
			return nil, nil, convErr
		}
		if oneBased {
			idx--
		}
		feats = append(feats, featureValue{index: int32(idx), value: val})
	}
	sort.Slice(labels, func(a, b int) bool { return labels[a] < labels[b] })
	return labels, feats, nil
}

func parseFeature(field string) (index int32, value core.Real, err error) {
	parts := strings.SplitN(field, ":", 2)
	if len(parts) != 2 {
		return 0, 0, core.Errorf(core.IOError, "feature field %q is not index:value", field)
	}
	idx, convErr := strconv.Atoi(parts[0])
	if convErr != nil {
		return 0, 0, core.Errorf(core.IOError, "feature field %q has non-integer index", field)
	}
	val, convErr := strconv.ParseFloat(parts[1], 32)
	if convErr != nil {
		return 0, 0, core.Errorf(core.IOError, "feature field %q has non-numeric value", field)
	}
	return int32(idx), core.Real(val), nil
}

// SaveXMC writes ds back out in XMC format, with feature values formatted
// to precision significant digits.
func SaveXMC(path string, ds *Dataset, precision int) error {
	f, err := os.Create(path)
	if err != nil {
		return core.Errorf(core.IOError, "creating xmc dataset %q: %v", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintf(w, "%d %d %d\n", ds.N, ds.D, ds.L); err != nil {
		return core.Errorf(core.IOError, "writing xmc dataset %q: %v", path, err)
	}
	for i := 0; i < ds.N; i++ {
		labelStrs := make([]string, len(ds.instanceLabels[i]))
		for j, l := range ds.instanceLabels[i] {
			labelStrs[j] = strconv.FormatInt(l, 10)
		}
		if _, err := fmt.Fprint(w, strings.Join(labelStrs, ",")); err != nil {
			return core.Errorf(core.IOError, "writing xmc dataset %q: %v", path, err)
		}
		var lineErr error
		ds.X.VisitRow(i, func(col int, value core.Real) {
			if lineErr != nil {
				return
			}
			_, lineErr = fmt.Fprintf(w, " %d:%.*g", col, precision, value)
		})
		if lineErr != nil {
			return core.Errorf(core.IOError, "writing xmc dataset %q: %v", path, lineErr)
		}
		if _, err := fmt.Fprint(w, "\n"); err != nil {
			return core.Errorf(core.IOError, "writing xmc dataset %q: %v", path, err)
		}
	}
	return w.Flush()
}

// ReadSlice parses the two-file SLICE format: featuresPath holds one
// `idx:val ...` line per instance with a leading `N D` header line;
// labelsPath holds one comma-separated label-id line per instance with a
// leading `N L` header line.
func ReadSlice(featuresPath, labelsPath string) (*Dataset, error) {
	ff, err := os.Open(featuresPath)
	if err != nil {
		return nil, core.Errorf(core.IOError, "opening slice features %q: %v", featuresPath, err)
	}
	defer ff.Close()
	lf, err := os.Open(labelsPath)
	if err != nil {
		return nil, core.Errorf(core.IOError, "opening slice labels %q: %v", labelsPath, err)
	}
	defer lf.Close()

	fScanner := bufio.NewScanner(ff)
	fScanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lScanner := bufio.NewScanner(lf)
	lScanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	fHeader, ok := nextDataLine(fScanner)
	if !ok {
		return nil, core.Errorf(core.IOError, "slice features %q has no header", featuresPath)
	}
	nF, d, err := parseTwoFieldHeader(fHeader)
	if err != nil {
		return nil, errors.Wrapf(err, "slice features %q", featuresPath)
	}

	lHeader, ok := nextDataLine(lScanner)
	if !ok {
		return nil, core.Errorf(core.IOError, "slice labels %q has no header", labelsPath)
	}
	nL, l, err := parseTwoFieldHeader(lHeader)
	if err != nil {
		return nil, errors.Wrapf(err, "slice labels %q", labelsPath)
	}
	if nF != nL {
		return nil, core.Errorf(core.ConsistencyError, "slice features declares %d instances, labels declares %d", nF, nL)
	}
	n := nF

	rowStart := make([]int32, 1, n+1)
	var indices []int32
	var values []core.Real
	instanceLabels := make([][]int64, 0, n)

	for row := 0; row < n; row++ {
		fLine, ok := nextDataLine(fScanner)
		if !ok {
			return nil, core.Errorf(core.IOError, "slice features %q: expected %d instances, found %d", featuresPath, n, row)
		}
		_, feats, err := parseXMCLine(" "+fLine, false) // features-only line: its first field contains ':', so no labels are read
		if err != nil {
			return nil, errors.Wrapf(err, "slice features %q, instance %d", featuresPath, row)
		}
		sort.Slice(feats, func(a, b int) bool { return feats[a].index < feats[b].index })
		for _, fv := range feats {
			if fv.index < 0 || int(fv.index) >= d {
				return nil, core.Errorf(core.IOError, "slice features %q, instance %d: feature index %d out of range [0,%d)", featuresPath, row, fv.index, d)
			}
			indices = append(indices, fv.index)
			values = append(values, fv.value)
		}
		rowStart = append(rowStart, int32(len(indices)))

		lLine, ok := nextDataLine(lScanner)
		if !ok {
			return nil, core.Errorf(core.IOError, "slice labels %q: expected %d instances, found %d", labelsPath, n, row)
		}
		labels, err := parseLabelList(lLine)
		if err != nil {
			return nil, errors.Wrapf(err, "slice labels %q, instance %d", labelsPath, row)
		}
		for _, lbl := range labels {
			if lbl < 0 || lbl >= int64(l) {
				return nil, core.Errorf(core.IOError, "slice labels %q, instance %d: label %d out of range [0,%d)", labelsPath, row, lbl, l)
			}
		}
		instanceLabels = append(instanceLabels, labels)
	}

	x, err := matrix.NewSparse(n, d, rowStart, indices, values)
	if err != nil {
		return nil, err
	}
	return &Dataset{
		N: n, D: d, L: int64(l),
		X:              x,
		instanceLabels: instanceLabels,
		labelIndex:     buildLabelIndex(instanceLabels),
	}, nil
}

func parseTwoFieldHeader(line string) (a, b int, err error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, core.Errorf(core.IOError, "header %q must have exactly 2 fields, got %d", line, len(fields))
	}
	av, err1 := strconv.Atoi(fields[0])
	bv, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || av <= 0 || bv <= 0 {
		return 0, 0, core.Errorf(core.IOError, "header %q must be two positive integers", line)
	}
	return av, bv, nil
}

func parseLabelList(line string) ([]int64, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	parts := strings.Split(line, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, core.Errorf(core.IOError, "invalid label %q", p)
		}
		out = append(out, v)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out, nil
}
