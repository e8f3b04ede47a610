// Package output writes the two run artifacts: the dense per-step CSV and
// the sparse JSON-lines event log.
package output

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/talgya/pqnwatch/internal/detect"
	"github.com/talgya/pqnwatch/internal/engine"
)

// DenseHeader is the column order of the dense metrics file.
var DenseHeader = []string{
	"t", "step", "sym", "C", "E", "rnorm", "purity", "S",
	"detg", "det_thr", "reso_hit_freq", "reso_hit_mag",
	"ew_varE", "ew_ac1E", "ew_dS",
	"harm_sub_power", "harm_fund_power", "harm_2f_power", "harm_3f_power",
}

// DenseWriter streams one CSV row per step. Undefined values are empty strings.
type DenseWriter struct {
	w           *csv.Writer
	wroteHeader bool
}

// NewDenseWriter wraps w; the header is written with the first row.
func NewDenseWriter(w io.Writer) *DenseWriter {
	return &DenseWriter{w: csv.NewWriter(w)}
}

// Write appends the row for res.
func (d *DenseWriter) Write(res engine.StepResult) error {
	if !d.wroteHeader {
		if err := d.w.Write(DenseHeader); err != nil {
			return err
		}
		d.wroteHeader = true
	}
	if err := d.w.Write(DenseRow(res)); err != nil {
		return err
	}
	return d.w.Error()
}

// Flush writes any buffered rows.
func (d *DenseWriter) Flush() error {
	if !d.wroteHeader {
		if err := d.w.Write(DenseHeader); err != nil {
			return err
		}
		d.wroteHeader = true
	}
	d.w.Flush()
	return d.w.Error()
}

// DenseRow formats res in DenseHeader order.
func DenseRow(res engine.StepResult) []string {
	row := make([]string, 0, len(DenseHeader))
	row = append(row,
		fixed(res.T),
		strconv.Itoa(res.Step),
		res.Symbol.String(),
		fixed(res.Obs.C),
		fixed(res.Obs.E),
		fixed(res.Obs.RNorm),
		fixed(res.Obs.Purity),
		fixed(res.Obs.Entropy),
	)

	if res.DetDefined {
		row = append(row, sci(res.Det), sci(res.Threshold))
	} else {
		row = append(row, "", "")
	}

	if res.Spectrum != nil && res.Spectrum.Hit != nil {
		row = append(row, fixed(res.Spectrum.Hit.Freq), fixed(res.Spectrum.Hit.Mag))
	} else {
		row = append(row, "", "")
	}

	if res.Warning.Defined {
		row = append(row, fixed(res.Warning.VarE), fixed(res.Warning.AC1E))
	} else {
		row = append(row, "", "")
	}
	row = append(row, fixed(res.Warning.DeltaS))

	for b := detect.BandSub; b <= detect.Band3F; b++ {
		if res.Spectrum != nil {
			row = append(row, fixed(res.Spectrum.Harmonics[b].Mag))
		} else {
			row = append(row, "")
		}
	}
	return row
}

func fixed(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func sci(x float64) string {
	return strconv.FormatFloat(x, 'e', 12, 64)
}
