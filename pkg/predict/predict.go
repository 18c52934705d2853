package predict

import (
	"math"
	"sort"

	"github.com/mchmarny/overunder/pkg/hash"
)

const (
	// Threshold is the score at or above which the high label is chosen.
	Threshold = 50

	maxConfidence = 95
	digitRatioMin = 0.5
	entropyMin    = 3.5
	varianceMin   = 20
	firstByteMin  = 127
	patternsMax   = 3
	sequentialMax = 2
)

// Live prediction labels.
const (
	LabelXiu = "Xỉu"
	LabelTai = "Tài"
)

// Legacy labels found in older history data. SideOf maps them alongside
// the live labels.
const (
	LegacyLabelOver  = "TRÊN"
	LegacyLabelUnder = "DƯỚI"
)

// Side is the reconciled over/under reading of a label.
type Side string

const (
	SideOver    Side = "over"
	SideUnder   Side = "under"
	SideUnknown Side = ""
)

// Weight is one binary scoring condition.
type Weight struct {
	Name   string
	Points int
	Match  func(r *hash.Record) bool
}

// Weights are evaluated independently; their points sum to 100.
var Weights = []Weight{
	{"first-byte", 25, func(r *hash.Record) bool { return r.FirstByte > firstByteMin }},
	{"entropy", 20, func(r *hash.Record) bool { return r.Entropy > entropyMin }},
	{"digit-ratio", 15, func(r *hash.Record) bool { return digitRatio(r) > digitRatioMin }},
	{"variance", 15, func(r *hash.Record) bool { return r.Variance > varianceMin }},
	{"repeating", 10, func(r *hash.Record) bool { return r.RepeatingPatterns < patternsMax }},
	{"sequential", 10, func(r *hash.Record) bool { return r.SequentialCount < sequentialMax }},
	{"middle-byte", 5, func(r *hash.Record) bool { return r.MiddleByte%2 == 0 }},
}

// Factors are the rounded inputs shown next to a prediction.
type Factors struct {
	FirstByte  int     `json:"firstByte" yaml:"firstByte"`
	Entropy    float64 `json:"entropy" yaml:"entropy"`
	DigitRatio int     `json:"digitRatio" yaml:"digitRatio"`
	Variance   float64 `json:"variance" yaml:"variance"`
	Patterns   int     `json:"patterns" yaml:"patterns"`
	Sequential int     `json:"sequential" yaml:"sequential"`
}

// Prediction is the scored outcome for one hash.
type Prediction struct {
	Label       string   `json:"prediction" yaml:"prediction"`
	Icon        string   `json:"predictionIcon" yaml:"predictionIcon"`
	Description string   `json:"predictionDescription" yaml:"predictionDescription"`
	Confidence  int      `json:"confidence" yaml:"confidence"`
	Score       int      `json:"score" yaml:"score"`
	Matched     []string `json:"matched" yaml:"matched"`
	Factors     Factors  `json:"factors" yaml:"factors"`
}

// Score sums the points of every matching weight.
func Score(r *hash.Record) int {
	if r == nil {
		return 0
	}
	score := 0
	for _, w := range Weights {
		if w.Match(r) {
			score += w.Points
		}
	}
	return score
}

// Confidence grows with the distance of the score from the threshold.
func Confidence(score int) int {
	d := score - Threshold
	if d < 0 {
		d = -d
	}
	return min(maxConfidence, Threshold+d)
}

// Predict derives the full prediction for a record.
func Predict(r *hash.Record) *Prediction {
	p := &Prediction{
		Matched: make([]string, 0, len(Weights)),
	}
	if r == nil {
		p.Label = LabelTai
		p.Icon, p.Description = presentation(p.Label)
		p.Confidence = Confidence(0)
		return p
	}

	for _, w := range Weights {
		if w.Match(r) {
			p.Score += w.Points
			p.Matched = append(p.Matched, w.Name)
		}
	}

	p.Label = LabelFor(p.Score)
	p.Icon, p.Description = presentation(p.Label)
	p.Confidence = Confidence(p.Score)
	p.Factors = Factors{
		FirstByte:  r.FirstByte,
		Entropy:    round2(r.Entropy),
		DigitRatio: int(math.Round(digitRatio(r) * 100)),
		Variance:   round2(r.Variance),
		Patterns:   r.RepeatingPatterns,
		Sequential: r.SequentialCount,
	}
	return p
}

// LabelFor maps a score to its live label.
func LabelFor(score int) string {
	if score >= Threshold {
		return LabelXiu
	}
	return LabelTai
}

// SideOf reconciles live and legacy labels. The history view rendered Tài
// as "over", which is the mapping used here.
func SideOf(label string) Side {
	switch label {
	case LabelTai, LegacyLabelOver:
		return SideOver
	case LabelXiu, LegacyLabelUnder:
		return SideUnder
	default:
		return SideUnknown
	}
}

// PossibleScores lists every reachable score in ascending order.
func PossibleScores() []int {
	seen := map[int]bool{0: true}
	for _, w := range Weights {
		next := make(map[int]bool, len(seen)*2)
		for s := range seen {
			next[s] = true
			next[s+w.Points] = true
		}
		seen = next
	}

	list := make([]int, 0, len(seen))
	for s := range seen {
		list = append(list, s)
	}
	sort.Ints(list)
	return list
}

func presentation(label string) (icon, description string) {
	if label == LabelXiu {
		return "📉", "Result is likely above average"
	}
	return "📈", "Result is likely below average"
}

func digitRatio(r *hash.Record) float64 {
	return float64(r.DigitCount) / hash.Length
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
