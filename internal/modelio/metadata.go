package modelio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// metadataJSON is the on-disk JSON shape: num-features,
// num-labels, date, and an array of WeightFileEntry-shaped objects.
type metadataJSON struct {
	NumFeatures int64           `json:"num-features"`
	NumLabels   int64           `json:"num-labels"`
	Date        string          `json:"date"`
	Files       []fileEntryJSON `json:"files"`
}

type fileEntryJSON struct {
	First    int64  `json:"first"`
	Count    int64  `json:"count"`
	Filename string `json:"filename"`
	Format   string `json:"format"`
}

func toJSONEntry(e WeightFileEntry) fileEntryJSON {
	return fileEntryJSON{First: int64(e.First), Count: e.Count, Filename: e.Filename, Format: e.Format.String()}
}

func fromJSONEntry(e fileEntryJSON) (WeightFileEntry, error) {
	f, err := parseFormat(e.Format)
	if err != nil {
		return WeightFileEntry{}, err
	}
	return WeightFileEntry{First: core.LabelID(e.First), Count: e.Count, Filename: e.Filename, Format: f}, nil
}

// readMetadata parses path's metadata file. A missing file is reported as the
// unwrapped os error, so callers can test for it with os.IsNotExist.
func readMetadata(path string) (numFeatures, numLabels int64, entries []WeightFileEntry, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, nil, err
	}
	var doc metadataJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, 0, nil, core.Errorf(core.IOError, "malformed metadata file %q: %v", path, err)
	}
	entries = make([]WeightFileEntry, 0, len(doc.Files))
	for _, fe := range doc.Files {
		entry, err := fromJSONEntry(fe)
		if err != nil {
			return 0, 0, nil, errors.Wrapf(err, "metadata file %q", path)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].First < entries[j].First })
	return doc.NumFeatures, doc.NumLabels, entries, nil
}

// writeMetadataAtomic serializes the given fields to path by writing a
// sibling temp file and renaming it into place, so a crash mid-write never
// leaves a half-written metadata file behind.
func writeMetadataAtomic(path string, numFeatures, numLabels int64, entries []WeightFileEntry) error {
	doc := metadataJSON{
		NumFeatures: numFeatures,
		NumLabels:   numLabels,
		Date:        time.Now().UTC().Format(time.RFC3339),
		Files:       make([]fileEntryJSON, len(entries)),
	}
	for i, e := range entries {
		doc.Files[i] = toJSONEntry(e)
	}
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal metadata")
	}

	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, filepath.Base(path)+".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write temp metadata file %q", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "failed to rename %q to %q", tmp, path)
	}
	return nil
}
