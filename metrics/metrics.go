// Package metrics evaluates binary classifiers on one or
// more tasks.
package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// These are the names of the metrics in a Result, in the
// order they appear.
const (
	Loss             = "Loss"
	BalancedAccuracy = "Balanced accuracy"
	AuROC            = "auROC"
	AuPRC            = "auPRC"
	// Recall values are stored as fractions in [0, 1];
	// Result.String prints them as percentages.
	RecallAt5FDR     = "Recall at 5% FDR"
	RecallAt10FDR    = "Recall at 10% FDR"
	RecallAt20FDR    = "Recall at 20% FDR"
	NumPositives     = "Num Positives"
	NumNegatives     = "Num Negatives"
)

const logLossEpsilon = 1e-15

// A Metric is a named value.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type jsonMetric struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the metric, writing non-finite
// values as the strings "NaN", "+Inf" and "-Inf".
func (m Metric) MarshalJSON() ([]byte, error) {
	var value []byte
	var err error
	switch {
	case math.IsNaN(m.Value):
		value, err = json.Marshal("NaN")
	case math.IsInf(m.Value, 1):
		value, err = json.Marshal("+Inf")
	case math.IsInf(m.Value, -1):
		value, err = json.Marshal("-Inf")
	default:
		value, err = json.Marshal(m.Value)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonMetric{Name: m.Name, Value: value})
}

// UnmarshalJSON decodes a metric written by MarshalJSON.
// A null value decodes as NaN.
func (m *Metric) UnmarshalJSON(data []byte) error {
	var raw jsonMetric
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Name = raw.Name
	if len(raw.Value) == 0 || string(raw.Value) == "null" {
		m.Value = math.NaN()
		return nil
	}
	if raw.Value[0] == '"' {
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			m.Value = math.NaN()
		case "+Inf", "Inf":
			m.Value = math.Inf(1)
		case "-Inf":
			m.Value = math.Inf(-1)
		default:
			return fmt.Errorf("metric %s: invalid value %q", raw.Name, s)
		}
		return nil
	}
	return json.Unmarshal(raw.Value, &m.Value)
}

// A Result is an ordered mapping from metric names to
// values for a single task.
type Result []Metric

// Names returns the metric names in order.
func (r Result) Names() []string {
	res := make([]string, len(r))
	for i, m := range r {
		res[i] = m.Name
	}
	return res
}

// Values returns the metric values in order.
func (r Result) Values() []float64 {
	res := make([]float64, len(r))
	for i, m := range r {
		res[i] = m.Value
	}
	return res
}

// Get looks up a metric by name.
func (r Result) Get(name string) (float64, bool) {
	for _, m := range r {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

// String formats the result on two lines.
func (r Result) String() string {
	get := func(name string) float64 {
		v, _ := r.Get(name)
		return v
	}
	return fmt.Sprintf("Loss: %.4f\tBalanced Accuracy: %.2f%%\t auROC: %.3f\t auPRC: %.3f\n"+
		"\tRecall at 5%%|10%%|20%% FDR: %.1f%%|%.1f%%|%.1f%%\t Num Positives: %d\t Num Negatives: %d",
		get(Loss), get(BalancedAccuracy), get(AuROC), get(AuPRC),
		100*get(RecallAt5FDR), 100*get(RecallAt10FDR), 100*get(RecallAt20FDR),
		int(get(NumPositives)), int(get(NumNegatives)))
}

// A ClassificationResult stores one Result per task.
type ClassificationResult struct {
	Results []Result
}

// Evaluate computes a ClassificationResult.
//
// Both labels and predictions are indexed first by sample
// and then by task.
// Predictions are probabilities of the positive class.
// Labels below zero are treated as missing and ignored.
func Evaluate(labels, predictions [][]float64) (*ClassificationResult, error) {
	if len(labels) != len(predictions) {
		return nil, fmt.Errorf("evaluate: %d labels but %d predictions",
			len(labels), len(predictions))
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("evaluate: no samples")
	}
	numTasks := len(labels[0])
	res := &ClassificationResult{}
	for task := 0; task < numTasks; task++ {
		var taskLabels []bool
		var taskPreds []float64
		for i, l := range labels {
			if len(l) != numTasks || len(predictions[i]) != numTasks {
				return nil, fmt.Errorf("evaluate: sample %d has the wrong number of tasks", i)
			}
			if l[task] < 0 {
				continue
			}
			taskLabels = append(taskLabels, l[task] > 0.5)
			taskPreds = append(taskPreds, predictions[i][task])
		}
		res.Results = append(res.Results, EvaluateTask(taskLabels, taskPreds))
	}
	return res, nil
}

// EvaluateTask computes the metrics for a single task.
func EvaluateTask(labels []bool, predictions []float64) Result {
	var numPos, numNeg int
	for _, l := range labels {
		if l {
			numPos++
		} else {
			numNeg++
		}
	}
	curve := newPRCurve(labels, predictions)
	return Result{
		{Loss, LogLoss(labels, predictions)},
		{BalancedAccuracy, BalancedAcc(labels, predictions, 0.5)},
		{AuROC, AreaUnderROC(labels, predictions)},
		{AuPRC, curve.area()},
		{RecallAt5FDR, curve.recallAtFDR(0.05)},
		{RecallAt10FDR, curve.recallAtFDR(0.1)},
		{RecallAt20FDR, curve.recallAtFDR(0.2)},
		{NumPositives, float64(numPos)},
		{NumNegatives, float64(numNeg)},
	}
}

// Mean averages a metric across all tasks.
func (c *ClassificationResult) Mean(name string) float64 {
	var sum float64
	for _, r := range c.Results {
		v, ok := r.Get(name)
		if !ok {
			return math.NaN()
		}
		sum += v
	}
	return sum / float64(len(c.Results))
}

// String formats every task's result.
func (c *ClassificationResult) String() string {
	if len(c.Results) == 1 {
		return c.Results[0].String()
	}
	var buf bytes.Buffer
	for i, r := range c.Results {
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "Task %d: %s", i, r)
	}
	return buf.String()
}

// LogLoss computes the mean binary cross-entropy, with
// predictions clipped away from 0 and 1.
func LogLoss(labels []bool, predictions []float64) float64 {
	var sum float64
	for i, l := range labels {
		p := math.Min(math.Max(predictions[i], logLossEpsilon), 1-logLossEpsilon)
		if l {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(len(labels))
}

// BalancedAcc computes the mean of the true positive and
// true negative rates, as a percentage.
// Predictions above threshold are positive.
//
// If either class is absent, the result is NaN.
func BalancedAcc(labels []bool, predictions []float64, threshold float64) float64 {
	var tp, tn, pos, neg float64
	for i, l := range labels {
		predicted := predictions[i] > threshold
		if l {
			pos++
			if predicted {
				tp++
			}
		} else {
			neg++
			if !predicted {
				tn++
			}
		}
	}
	if pos == 0 || neg == 0 {
		return math.NaN()
	}
	return 100 * (tp/pos + tn/neg) / 2
}

// AreaUnderROC computes the area under the receiver
// operating characteristic curve.
//
// If either class is absent, the result is NaN.
func AreaUnderROC(labels []bool, predictions []float64) float64 {
	if !hasBothClasses(labels) {
		return math.NaN()
	}
	y := append([]float64{}, predictions...)
	classes := append([]bool{}, labels...)
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// AreaUnderPRC computes the trapezoidal area under the
// precision-recall curve.
func AreaUnderPRC(labels []bool, predictions []float64) float64 {
	return newPRCurve(labels, predictions).area()
}

// RecallAtFDR finds the largest recall achievable while
// keeping the false discovery rate at or below fdr.
func RecallAtFDR(labels []bool, predictions []float64, fdr float64) float64 {
	return newPRCurve(labels, predictions).recallAtFDR(fdr)
}

func hasBothClasses(labels []bool) bool {
	var pos, neg bool
	for _, l := range labels {
		if l {
			pos = true
		} else {
			neg = true
		}
	}
	return pos && neg
}

// prCurve stores precision-recall points in order of
// increasing recall, starting at (0, 1) and ending at the
// first threshold which reaches full recall.
type prCurve struct {
	Recall    []float64
	Precision []float64
}

func newPRCurve(labels []bool, predictions []float64) *prCurve {
	var numPos int
	for _, l := range labels {
		if l {
			numPos++
		}
	}
	res := &prCurve{Recall: []float64{0}, Precision: []float64{1}}
	if numPos == 0 {
		return res
	}

	indices := make([]int, len(labels))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return predictions[indices[i]] > predictions[indices[j]]
	})

	var tp, fp int
	for i, idx := range indices {
		if labels[idx] {
			tp++
		} else {
			fp++
		}
		if i+1 < len(indices) && predictions[indices[i+1]] == predictions[idx] {
			continue
		}
		res.Recall = append(res.Recall, float64(tp)/float64(numPos))
		res.Precision = append(res.Precision, float64(tp)/float64(tp+fp))
		if tp == numPos {
			break
		}
	}
	return res
}

func (p *prCurve) area() float64 {
	if len(p.Recall) < 2 {
		return math.NaN()
	}
	return integrate.Trapezoidal(p.Recall, p.Precision)
}

func (p *prCurve) recallAtFDR(fdr float64) float64 {
	for i := len(p.Recall) - 1; i >= 0; i-- {
		if 1-p.Precision[i] <= fdr {
			return p.Recall[i]
		}
	}
	return 0
}
