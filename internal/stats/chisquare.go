package stats

import "github.com/rotisserie/eris"

// chiSquareAlpha is the fixed significance threshold for ChiSquare.
const chiSquareAlpha = 0.05

type ChiSquareResult struct {
	ChiSquare        float64 `json:"chi2"`
	PValue           float64 `json:"p_value"`
	Significant      bool    `json:"significant"`
	DegreesOfFreedom int     `json:"degrees_of_freedom"`
}

// ChiSquare tests independence of the rows and columns of a contingency
// table. Cells whose expected count is zero are skipped.
func ChiSquare(observed [][]int) (ChiSquareResult, error) {
	rows := len(observed)
	if rows < 2 {
		return ChiSquareResult{}, eris.Wrapf(ErrInvalidArgument, "table needs at least 2 rows, got %d", rows)
	}
	cols := len(observed[0])
	if cols < 2 {
		return ChiSquareResult{}, eris.Wrapf(ErrInvalidArgument, "table needs at least 2 columns, got %d", cols)
	}

	rowTotals := make([]int, rows)
	colTotals := make([]int, cols)
	grand := 0
	for i, row := range observed {
		if len(row) != cols {
			return ChiSquareResult{}, eris.Wrapf(ErrInvalidArgument, "row %d has %d columns, want %d", i, len(row), cols)
		}
		for j, v := range row {
			if v < 0 {
				return ChiSquareResult{}, eris.Wrapf(ErrInvalidArgument, "cell [%d][%d] is negative", i, j)
			}
			rowTotals[i] += v
			colTotals[j] += v
			grand += v
		}
	}

	res := ChiSquareResult{
		PValue:           1,
		DegreesOfFreedom: (rows - 1) * (cols - 1),
	}
	if grand == 0 {
		return res, nil
	}

	for i, row := range observed {
		for j, v := range row {
			expected := float64(rowTotals[i]) * float64(colTotals[j]) / float64(grand)
			if expected == 0 {
				continue
			}
			diff := float64(v) - expected
			res.ChiSquare += diff * diff / expected
		}
	}

	if res.ChiSquare > 0 {
		res.PValue = 1 - ChiSquareCDF(res.ChiSquare, res.DegreesOfFreedom)
	}
	res.Significant = res.PValue < chiSquareAlpha
	return res, nil
}

// ConversionTable builds the 2x2 converted/not-converted table for two arms.
func ConversionTable(nC, xC, nT, xT int) [][]int {
	return [][]int{
		{xC, nC - xC},
		{xT, nT - xT},
	}
}
