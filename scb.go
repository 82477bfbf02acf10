package main

// Substantial Clinical Benefit thresholds, fixed per instrument on the
// interval (0-100) scale.
const (
	scbThresholdKoosJr = 20.0
	scbThresholdHoosJr = 22.0
)

const (
	scbReasonMissingScore       = "missing pre-op or post-op score"
	scbReasonInstrumentMismatch = "pre-op and post-op instruments differ"
	scbReasonUnknownInstrument  = "no SCB threshold for instrument"
)

// SCBVerdict is the clinical-benefit determination for one matched
// pre-op/post-op score pair. A non-evaluable verdict is deliberately
// distinct from achieved=false so a missing pair is never reported as
// failure to improve.
type SCBVerdict struct {
	Instrument  string   `json:"instrument"`
	Evaluable   bool     `json:"evaluable"`
	Reason      string   `json:"reason,omitempty"`
	PreopScore  *float64 `json:"preopScore,omitempty"`
	PostopScore *float64 `json:"postopScore,omitempty"`
	Delta       float64  `json:"delta"`
	Threshold   float64  `json:"threshold"`
	Achieved    bool     `json:"achieved"`
}

func scbThreshold(instrument string) (float64, bool) {
	switch instrument {
	case InstrumentKoosJr:
		return scbThresholdKoosJr, true
	case InstrumentHoosJr:
		return scbThresholdHoosJr, true
	default:
		return 0, false
	}
}

// evaluateSCB determines clinical benefit for an already-matched score
// pair. Finding the pair is the classifier's job (see matchEpisode);
// this function never searches.
func evaluateSCB(instrument string, preopScore, postopScore *float64) SCBVerdict {
	verdict := SCBVerdict{Instrument: instrument}

	threshold, ok := scbThreshold(instrument)
	if !ok {
		verdict.Reason = scbReasonUnknownInstrument
		return verdict
	}
	verdict.Threshold = threshold

	if preopScore == nil || postopScore == nil {
		verdict.Reason = scbReasonMissingScore
		return verdict
	}

	verdict.Evaluable = true
	verdict.PreopScore = preopScore
	verdict.PostopScore = postopScore
	verdict.Delta = *postopScore - *preopScore
	verdict.Achieved = verdict.Delta >= threshold

	return verdict
}

// evaluateSCBPair resolves interval scores from a matched assessment
// pair and evaluates clinical benefit. The pair must share one
// instrument; a cross-instrument delta has no clinical meaning.
func evaluateSCBPair(preop, postop *Assessment) SCBVerdict {
	if preop == nil || postop == nil {
		return SCBVerdict{Evaluable: false, Reason: scbReasonMissingScore}
	}

	if preop.Instrument != postop.Instrument {
		return SCBVerdict{
			Instrument: preop.Instrument,
			Evaluable:  false,
			Reason:     scbReasonInstrumentMismatch,
		}
	}

	preScore, preOk := assessmentScore(preop)
	postScore, postOk := assessmentScore(postop)
	if !preOk || !postOk {
		verdict := SCBVerdict{Instrument: preop.Instrument, Reason: scbReasonMissingScore}
		if threshold, ok := scbThreshold(preop.Instrument); ok {
			verdict.Threshold = threshold
		}
		return verdict
	}

	return evaluateSCB(preop.Instrument, &preScore, &postScore)
}
