package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/kilianp07/eta/core/model"
)

// ErrDatasetLoad is returned when the source is missing, unreadable, lacks a
// required column or holds no usable row after parsing.
var ErrDatasetLoad = errors.New("dataset: load failed")

// Dataset is an ordered set of feature rows with their delivery time. It is
// not modified after Load.
type Dataset struct {
	Rows   []model.FeatureRow `json:"rows"`
	Target []float64          `json:"target"`

	// Columns lists the header of the source file.
	Columns []string `json:"columns"`
	// RawRows is the number of data lines read, before any row was dropped.
	RawRows int `json:"raw_rows"`
	// Missing counts empty or unparseable cells per column in the source.
	Missing map[string]int `json:"missing"`
	// Imputed counts cells filled with the column mode.
	Imputed map[string]int `json:"imputed"`
	// Dropped counts rows discarded for a missing or negative value that
	// could not be imputed.
	Dropped int `json:"dropped"`
	// Duplicates counts data lines identical to an earlier one.
	Duplicates int `json:"duplicates"`
}

// Len returns the number of usable rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// MissingTotal sums the missing cells over all columns.
func (d *Dataset) MissingTotal() int {
	total := 0
	for _, n := range d.Missing {
		total += n
	}
	return total
}

// Subset returns a dataset holding the rows at idx, in that order.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		Rows:    make([]model.FeatureRow, len(idx)),
		Target:  make([]float64, len(idx)),
		Columns: d.Columns,
	}
	for i, j := range idx {
		out.Rows[i] = d.Rows[j]
		out.Target[i] = d.Target[j]
	}
	return out
}

// Split shuffles row indices with a generator seeded by seed and returns the
// train and test parts. The test part holds ceil(testRatio*n) rows; the
// train part always keeps at least one row.
func Split(d *Dataset, testRatio float64, seed int64) (train, test *Dataset, err error) {
	if testRatio < 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("dataset: test ratio must be in [0,1), got %v", testRatio)
	}
	n := d.Len()
	if n == 0 {
		return nil, nil, fmt.Errorf("%w: empty dataset", ErrDatasetLoad)
	}
	nTest := int(math.Ceil(testRatio * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return d.Subset(perm[nTest:]), d.Subset(perm[:nTest]), nil
}
