package modelio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/pkg/errors"
)

// writeWeightFile serializes model's weights to path in the given format.
// Null writes nothing; it exists for testing only.
func writeWeightFile(path string, model *Model, format Format) error {
	switch format {
	case Null:
		return nil
	case DenseText:
		return writeDenseText(path, model)
	case SparseText:
		return writeSparseText(path, model)
	case DenseBinary:
		return writeDenseBinary(path, model)
	default:
		return core.Errorf(core.InvalidArgument, "unsupported weight file format %v", format)
	}
}

func writeDenseText(path string, model *Model) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create weight file %q", path)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for k := model.spec.FirstLabel; k < model.spec.End(); k++ {
		row, err := model.WeightsForLabel(k)
		if err != nil {
			return err
		}
		for j, v := range row {
			if j > 0 {
				w.WriteByte(' ')
			}
			fmt.Fprintf(w, "%g", v)
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to flush weight file %q", path)
	}
	return f.Close()
}

func writeSparseText(path string, model *Model) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create weight file %q", path)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for k := model.spec.FirstLabel; k < model.spec.End(); k++ {
		idx, err := model.localIndex(k)
		if err != nil {
			return err
		}
		if model.sparse {
			for i, e := range model.sparseRows[idx] {
				if i > 0 {
					w.WriteByte(' ')
				}
				fmt.Fprintf(w, "%d:%g", e.index, e.value)
			}
		} else {
			first := true
			for j, v := range model.dense[idx*model.numFeatures : (idx+1)*model.numFeatures] {
				if v == 0 {
					continue
				}
				if !first {
					w.WriteByte(' ')
				}
				fmt.Fprintf(w, "%d:%g", j, v)
				first = false
			}
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to flush weight file %q", path)
	}
	return f.Close()
}

// writeDenseBinary writes a NumPy-compatible .npy file: magic + version +
// header dict (shape, dtype, fortran_order) + row-major raw float32 data.
func writeDenseBinary(path string, model *Model) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create weight file %q", path)
	}
	defer f.Close()

	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }",
		model.spec.LabelCount, model.numFeatures)
	// pad so that len(magic+version+headerlen+header) is a multiple of 64,
	// and the header ends with a newline, per the .npy format spec.
	const prefixLen = 10 // magic(6) + version(2) + headerlen(2)
	total := prefixLen + len(header) + 1
	pad := (64 - total%64) % 64
	header = header + strings.Repeat(" ", pad) + "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.WriteByte(1)
	buf.WriteByte(0)
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	if _, err := f.Write(buf.Bytes()); err != nil {
		return errors.Wrapf(err, "failed to write .npy header to %q", path)
	}

	rowBuf := make([]byte, model.numFeatures*4)
	for k := model.spec.FirstLabel; k < model.spec.End(); k++ {
		row, err := model.WeightsForLabel(k)
		if err != nil {
			return err
		}
		for j, v := range row {
			binary.LittleEndian.PutUint32(rowBuf[j*4:], math.Float32bits(float32(v)))
		}
		if _, err := f.Write(rowBuf); err != nil {
			return errors.Wrapf(err, "failed to write .npy body to %q", path)
		}
	}
	return f.Close()
}

// readWeightFile loads entry's weights from path into a Model covering
// exactly entry's label range, honoring want (the caller's sparse/dense
// preference). Null-format entries cannot be read back (they
// were never written). numLabels is the owning metadata file's total label
// count, needed only to build a valid PartialModelSpec for the result.
func readWeightFile(path string, entry WeightFileEntry, numFeatures int, numLabels int64, want SparsePreference) (*Model, error) {
	spec := core.PartialModelSpec{FirstLabel: entry.First, LabelCount: entry.Count, TotalLabels: numLabels}
	switch entry.Format {
	case Null:
		return nil, core.Errorf(core.IOError, "weight file entry for [%d,%d) uses the Null format and was never written", entry.First, entry.end())
	case DenseText:
		return readDenseText(path, spec, numFeatures, want)
	case SparseText:
		return readSparseText(path, spec, numFeatures, want)
	case DenseBinary:
		return readDenseBinary(path, spec, numFeatures, want)
	default:
		return nil, core.Errorf(core.InvalidArgument, "unsupported weight file format %v", entry.Format)
	}
}

// SparsePreference controls whether PartialModelLoader.LoadModel materializes
// a Model as dense or sparse storage, independent of the on-disk format.
type SparsePreference int

const (
	MatchOnDisk SparsePreference = iota
	ForceDense
	ForceSparse
)

func newModelFor(spec core.PartialModelSpec, numFeatures int, onDiskSparse bool, want SparsePreference) (*Model, error) {
	sparse := onDiskSparse
	switch want {
	case ForceDense:
		sparse = false
	case ForceSparse:
		sparse = true
	}
	if sparse {
		return NewSparseModel(spec, numFeatures)
	}
	return NewDenseModel(spec, numFeatures)
}

func readDenseText(path string, spec core.PartialModelSpec, numFeatures int, want SparsePreference) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open weight file %q", path)
	}
	defer f.Close()
	m, err := newModelFor(spec, numFeatures, false, want)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)
	k := spec.FirstLabel
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != numFeatures {
			return nil, core.Errorf(core.IOError, "weight file %q label %d has %d values, expected %d", path, k, len(fields), numFeatures)
		}
		row := make([]core.Real, numFeatures)
		for j, tok := range fields {
			v, err := strconv.ParseFloat(tok, 32)
			if err != nil {
				return nil, core.Errorf(core.IOError, "weight file %q label %d: %v", path, k, err)
			}
			row[j] = core.Real(v)
		}
		if err := m.SetWeightsForLabel(k, row); err != nil {
			return nil, err
		}
		k++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read weight file %q", path)
	}
	if k != spec.End() {
		return nil, core.Errorf(core.IOError, "weight file %q has %d label rows, expected %d", path, k-spec.FirstLabel, spec.LabelCount)
	}
	return m, nil
}

func readSparseText(path string, spec core.PartialModelSpec, numFeatures int, want SparsePreference) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open weight file %q", path)
	}
	defer f.Close()
	m, err := newModelFor(spec, numFeatures, true, want)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)
	k := spec.FirstLabel
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		row := make([]core.Real, numFeatures)
		if line != "" {
			for _, tok := range strings.Fields(line) {
				parts := strings.SplitN(tok, ":", 2)
				if len(parts) != 2 {
					return nil, core.Errorf(core.IOError, "weight file %q label %d: malformed entry %q", path, k, tok)
				}
				idx, err := strconv.Atoi(parts[0])
				if err != nil {
					return nil, core.Errorf(core.IOError, "weight file %q label %d: %v", path, k, err)
				}
				val, err := strconv.ParseFloat(parts[1], 32)
				if err != nil {
					return nil, core.Errorf(core.IOError, "weight file %q label %d: %v", path, k, err)
				}
				if idx < 0 || idx >= numFeatures {
					return nil, core.Errorf(core.IOError, "weight file %q label %d: index %d out of range [0,%d)", path, k, idx, numFeatures)
				}
				row[idx] = core.Real(val)
			}
		}
		if err := m.SetWeightsForLabel(k, row); err != nil {
			return nil, err
		}
		k++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read weight file %q", path)
	}
	if k != spec.End() {
		return nil, core.Errorf(core.IOError, "weight file %q has %d label rows, expected %d", path, k-spec.FirstLabel, spec.LabelCount)
	}
	return m, nil
}

func readDenseBinary(path string, spec core.PartialModelSpec, numFeatures int, want SparsePreference) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read weight file %q", path)
	}
	if len(data) < 10 || string(data[:6]) != "\x93NUMPY" {
		return nil, core.Errorf(core.IOError, "weight file %q is not a valid .npy file", path)
	}
	headerLen := int(binary.LittleEndian.Uint16(data[8:10]))
	if len(data) < 10+headerLen {
		return nil, core.Errorf(core.IOError, "weight file %q has a truncated .npy header", path)
	}
	header := string(data[10 : 10+headerLen])
	if !strings.Contains(header, "'descr': '<f4'") {
		return nil, core.Errorf(core.IOError, "weight file %q: only little-endian float32 .npy files are supported, header was %q", path, header)
	}
	if strings.Contains(header, "'fortran_order': True") {
		return nil, core.Errorf(core.IOError, "weight file %q: column-major (fortran_order) .npy files are not supported, row-major required", path)
	}
	body := data[10+headerLen:]
	expected := int(spec.LabelCount) * numFeatures * 4
	if len(body) != expected {
		return nil, core.Errorf(core.IOError, "weight file %q has %d body bytes, expected %d for shape (%d,%d)", path, len(body), expected, spec.LabelCount, numFeatures)
	}
	m, err := newModelFor(spec, numFeatures, false, want)
	if err != nil {
		return nil, err
	}
	row := make([]core.Real, numFeatures)
	k := spec.FirstLabel
	for off := 0; off < len(body); off += numFeatures * 4 {
		for j := 0; j < numFeatures; j++ {
			bits := binary.LittleEndian.Uint32(body[off+j*4:])
			row[j] = core.Real(math.Float32frombits(bits))
		}
		if err := m.SetWeightsForLabel(k, row); err != nil {
			return nil, err
		}
		k++
	}
	return m, nil
}
