package ml

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// StratifiedSplit returns train and test row indices with the class ratio of
// y preserved in both halves. The shuffle is seeded.
func StratifiedSplit(y []float64, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in (0,1), got %v", testSize)
	}
	if len(y) < 2 {
		return nil, nil, ErrEmptyTraining
	}

	rng := rand.New(rand.NewSource(seed))
	byClass := map[float64][]int{}
	for i, v := range y {
		byClass[v] = append(byClass[v], i)
	}
	classes := make([]float64, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Float64s(classes)

	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		nTest := int(float64(len(idx))*testSize + 0.5)
		if nTest >= len(idx) {
			nTest = len(idx) - 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// KFold partitions 0..n-1 into k shuffled folds.
func KFold(n, k int, seed int64) ([][]int, error) {
	if k < 2 || k > n {
		return nil, fmt.Errorf("cannot split %d rows into %d folds", n, k)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([][]int, k)
	for i, r := range perm {
		folds[i%k] = append(folds[i%k], r)
	}
	return folds, nil
}

// ClassReport is the per-class part of a classification report.
type ClassReport struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Evaluation summarises a classifier on a held-out set.
type Evaluation struct {
	Accuracy        float64                `json:"accuracy"`
	ConfusionMatrix [2][2]int              `json:"confusionMatrix"`
	Classes         map[string]ClassReport `json:"classes"`
	Threshold       float64                `json:"threshold"`
	CVMean          float64                `json:"cvMean,omitempty"`
	CVStd           float64                `json:"cvStd,omitempty"`
	Importances     []FeatureImportance    `json:"featureImportance,omitempty"`
}

// Evaluate scores the model on X and y. A row is predicted as class 1 when
// its class-1 probability is at least threshold.
func Evaluate(model Classifier, X *mat.Dense, y []float64, threshold float64) (*Evaluation, error) {
	n, _ := X.Dims()
	if n == 0 || len(y) != n {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrFeatureWidth, n, len(y))
	}

	var cm [2][2]int
	for i := 0; i < n; i++ {
		proba, err := model.PredictProba(X.RawRowView(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		pred := 0
		if proba[1] >= threshold {
			pred = 1
		}
		actual := 0
		if y[i] >= 0.5 {
			actual = 1
		}
		cm[actual][pred]++
	}

	eval := &Evaluation{
		Accuracy:        float64(cm[0][0]+cm[1][1]) / float64(n),
		ConfusionMatrix: cm,
		Classes:         map[string]ClassReport{},
		Threshold:       threshold,
	}
	for c := 0; c < 2; c++ {
		tp := cm[c][c]
		predicted := cm[0][c] + cm[1][c]
		support := cm[c][0] + cm[c][1]
		r := ClassReport{Support: support}
		if predicted > 0 {
			r.Precision = float64(tp) / float64(predicted)
		}
		if support > 0 {
			r.Recall = float64(tp) / float64(support)
		}
		if r.Precision+r.Recall > 0 {
			r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
		}
		eval.Classes[fmt.Sprint(c)] = r
	}
	return eval, nil
}

// Trainer fits a fresh classifier on the given rows.
type Trainer func(X *mat.Dense, y []float64) (Classifier, error)

// CrossValidate runs k-fold cross validation and returns the per-fold
// accuracies with their mean and population standard deviation.
func CrossValidate(train Trainer, X *mat.Dense, y []float64, k int, seed int64, threshold float64) ([]float64, float64, float64, error) {
	n, _ := X.Dims()
	folds, err := KFold(n, k, seed)
	if err != nil {
		return nil, 0, 0, err
	}

	scores := make([]float64, 0, k)
	for i, holdout := range folds {
		var fitIdx []int
		for j, fold := range folds {
			if j != i {
				fitIdx = append(fitIdx, fold...)
			}
		}
		model, err := train(SelectRows(X, fitIdx), SelectValues(y, fitIdx))
		if err != nil {
			return nil, 0, 0, fmt.Errorf("fold %d: %w", i, err)
		}
		eval, err := Evaluate(model, SelectRows(X, holdout), SelectValues(y, holdout), threshold)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("fold %d: %w", i, err)
		}
		scores = append(scores, eval.Accuracy)
	}

	mean, std := stat.PopMeanStdDev(scores, nil)
	return scores, mean, std, nil
}

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// RankImportances pairs names with importances, highest first.
func RankImportances(names []string, importances []float64) []FeatureImportance {
	out := make([]FeatureImportance, 0, len(names))
	for i, name := range names {
		if i >= len(importances) {
			break
		}
		out = append(out, FeatureImportance{Feature: name, Importance: importances[i]})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Importance > out[b].Importance })
	return out
}
