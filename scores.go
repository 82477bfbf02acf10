package main

import "fmt"

// Published raw-sum to interval-score crosswalks for the two joint
// instruments. The interval scale is not linear in the raw sum, and the
// SCB thresholds are defined against this exact scale, so these values
// are reproduced verbatim rather than computed. 0 maps to 100 (perfect
// joint health) and the maximum raw sum maps to 0 (total disability).
// Raw sums are whole numbers; interpolation is never performed.

var koosJrIntervalScores = [29]float64{
	100.000, // 0
	91.975,  // 1
	84.600,  // 2
	79.914,  // 3
	76.332,  // 4
	73.342,  // 5
	70.704,  // 6
	68.284,  // 7
	65.994,  // 8
	63.776,  // 9
	61.583,  // 10
	59.381,  // 11
	57.140,  // 12
	54.840,  // 13
	52.465,  // 14
	50.012,  // 15
	47.487,  // 16
	44.905,  // 17
	42.281,  // 18
	39.625,  // 19
	36.931,  // 20
	34.174,  // 21
	31.307,  // 22
	28.251,  // 23
	24.875,  // 24
	20.941,  // 25
	16.006,  // 26
	9.910,   // 27
	0.000,   // 28
}

var hoosJrIntervalScores = [25]float64{
	100.000, // 0
	92.340,  // 1
	85.257,  // 2
	80.550,  // 3
	76.776,  // 4
	73.472,  // 5
	70.426,  // 6
	67.516,  // 7
	64.664,  // 8
	61.815,  // 9
	58.930,  // 10
	55.985,  // 11
	52.965,  // 12
	49.858,  // 13
	46.652,  // 14
	43.335,  // 15
	39.902,  // 16
	36.363,  // 17
	32.735,  // 18
	29.009,  // 19
	25.103,  // 20
	20.805,  // 21
	15.633,  // 22
	8.290,   // 23
	0.000,   // 24
}

// OutOfRangeError reports a raw sum outside the valid integer domain
// for an instrument. Raw sums are never clamped; a bad value fails
// loudly because the interval score feeds regulatory thresholds.
type OutOfRangeError struct {
	Instrument string
	RawSum     int
	Max        int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("raw sum %d out of range for %s (valid 0-%d)", e.RawSum, e.Instrument, e.Max)
}

// convertScore maps a bounded integer raw sum to the 0-100 interval
// scale for the given joint instrument.
func convertScore(instrument string, rawSum int) (float64, error) {
	switch instrument {
	case InstrumentKoosJr:
		if rawSum < 0 || rawSum > len(koosJrIntervalScores)-1 {
			return 0, &OutOfRangeError{Instrument: instrument, RawSum: rawSum, Max: len(koosJrIntervalScores) - 1}
		}
		return koosJrIntervalScores[rawSum], nil

	case InstrumentHoosJr:
		if rawSum < 0 || rawSum > len(hoosJrIntervalScores)-1 {
			return 0, &OutOfRangeError{Instrument: instrument, RawSum: rawSum, Max: len(hoosJrIntervalScores) - 1}
		}
		return hoosJrIntervalScores[rawSum], nil

	default:
		return 0, fmt.Errorf("no interval crosswalk for instrument: %s", instrument)
	}
}

// assessmentScore resolves the interval score for an assessment,
// converting the raw sum when one was recorded and otherwise falling
// back to a pre-converted score.
func assessmentScore(a *Assessment) (float64, bool) {
	if a == nil {
		return 0, false
	}
	if a.RawSum != nil {
		score, err := convertScore(a.Instrument, *a.RawSum)
		if err != nil {
			return 0, false
		}
		return score, true
	}
	if a.IntervalScore != nil {
		return *a.IntervalScore, true
	}
	return 0, false
}
