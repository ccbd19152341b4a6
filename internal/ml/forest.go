package ml

import (
	"fmt"

	"github.com/sjwhitworth/golearn/base"
	"github.com/sjwhitworth/golearn/ensemble"
	"github.com/sjwhitworth/golearn/trees"
	"gonum.org/v1/gonum/mat"
)

const classAttribute = "label"

// ForestConfig controls random forest training. MaxFeatures is the number of
// features each tree is grown on; zero or anything above the feature count
// gives every tree all of them.
type ForestConfig struct {
	Trees       int `json:"trees"`
	MaxFeatures int `json:"maxFeatures"`
}

func DefaultForestConfig() ForestConfig {
	return ForestConfig{Trees: 100}
}

// RandomForest wraps golearn's bagged ID3 forest. The class-1 probability is
// the fraction of trees voting for class 1. The fitted trees live in a
// separate golearn model file, written by SaveModel and read by LoadModel.
type RandomForest struct {
	Meta
	Config      ForestConfig `json:"config"`
	Width       int          `json:"numFeatures"`
	Features    int          `json:"featuresPerTree"`
	Importances []float64    `json:"importances"`

	forest *ensemble.RandomForest
}

func NewRandomForest(cfg ForestConfig) *RandomForest {
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	return &RandomForest{Config: cfg}
}

// Fit grows Config.Trees trees on bootstrap samples of X. Labels of 0.5 and
// above count as class 1.
func (f *RandomForest) Fit(X *mat.Dense, y []float64) error {
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return ErrEmptyTraining
	}
	if len(y) != n {
		return fmt.Errorf("%w: %d rows but %d labels", ErrFeatureWidth, n, len(y))
	}

	features := f.Config.MaxFeatures
	if features <= 0 || features > p {
		features = p
	}

	g, err := newGrid(p, n)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		g.setRow(i, X.RawRowView(i), y[i] >= 0.5)
	}

	forest := ensemble.NewRandomForest(f.Config.Trees, features)
	if err := forest.Fit(g.inst); err != nil {
		return fmt.Errorf("fit forest: %w", err)
	}
	if forest.Model == nil || len(forest.Model.Models) == 0 {
		return fmt.Errorf("fit forest: no trees grown")
	}

	f.forest = forest
	f.Width = p
	f.Features = features
	f.Importances = importances(forest, p)
	return nil
}

func (f *RandomForest) NumFeatures() int {
	return f.Width
}

// PredictProba returns [P(0), P(1)] for one row. Each call builds its own
// grid so a fitted forest can serve concurrent requests.
func (f *RandomForest) PredictProba(x []float64) ([]float64, error) {
	if f.forest == nil || f.forest.Model == nil {
		return nil, ErrNotFitted
	}
	if err := checkRow(x, f.Width); err != nil {
		return nil, err
	}

	g, err := newGrid(f.Width, 1)
	if err != nil {
		return nil, err
	}
	g.setRow(0, x, false)

	var votes, total int
	for _, tree := range f.forest.Model.Models {
		out, err := tree.Predict(g.inst)
		if err != nil {
			return nil, fmt.Errorf("tree predict: %w", err)
		}
		if base.GetClass(out, 0) == "1" {
			votes++
		}
		total++
	}
	p1 := float64(votes) / float64(total)
	return []float64{1 - p1, p1}, nil
}

// SaveModel writes the fitted trees to path in golearn's model format.
func (f *RandomForest) SaveModel(path string) error {
	if f.forest == nil {
		return ErrNotFitted
	}
	if err := f.forest.Save(path); err != nil {
		return fmt.Errorf("save forest %s: %w", path, err)
	}
	return nil
}

// LoadModel reads trees written by SaveModel. Width and Features must already
// be set, as they are after decoding the JSON envelope.
func (f *RandomForest) LoadModel(path string) error {
	if f.Width == 0 {
		return ErrNotFitted
	}
	forest := ensemble.NewRandomForest(f.Config.Trees, f.Features)
	if err := forest.Load(path); err != nil {
		return fmt.Errorf("load forest %s: %w", path, err)
	}
	if forest.Model == nil || len(forest.Model.Models) == 0 {
		return fmt.Errorf("load forest %s: no trees", path)
	}
	f.forest = forest
	return nil
}

func attributeName(j int) string {
	return fmt.Sprintf("f%d", j)
}

type grid struct {
	inst      *base.DenseInstances
	specs     []base.AttributeSpec
	class     *base.CategoricalAttribute
	classSpec base.AttributeSpec
}

// newGrid lays out width float columns plus the categorical class column.
// Both class values are registered up front so "0" and "1" always decode the
// same way.
func newGrid(width, rows int) (*grid, error) {
	g := &grid{inst: base.NewDenseInstances(), specs: make([]base.AttributeSpec, width)}
	for j := 0; j < width; j++ {
		g.specs[j] = g.inst.AddAttribute(base.NewFloatAttribute(attributeName(j)))
	}

	g.class = base.NewCategoricalAttribute()
	g.class.SetName(classAttribute)
	g.class.GetSysValFromString("0")
	g.class.GetSysValFromString("1")
	g.classSpec = g.inst.AddAttribute(g.class)
	if err := g.inst.AddClassAttribute(g.class); err != nil {
		return nil, fmt.Errorf("class attribute: %w", err)
	}
	if err := g.inst.Extend(rows); err != nil {
		return nil, fmt.Errorf("allocate %d rows: %w", rows, err)
	}
	return g, nil
}

func (g *grid) setRow(i int, x []float64, positive bool) {
	for j, v := range x {
		g.inst.Set(g.specs[j], i, base.PackFloatToBytes(v))
	}
	label := "0"
	if positive {
		label = "1"
	}
	g.inst.Set(g.classSpec, i, g.class.GetSysValFromString(label))
}

// importances sums the weighted gini decrease of every split per feature,
// normalised within each tree and then across the forest.
func importances(forest *ensemble.RandomForest, width int) []float64 {
	index := make(map[string]int, width)
	for j := 0; j < width; j++ {
		index[attributeName(j)] = j
	}

	out := make([]float64, width)
	for _, model := range forest.Model.Models {
		var root *trees.DecisionTreeNode
		switch t := model.(type) {
		case *trees.ID3DecisionTree:
			root = t.Root
		case *trees.RandomTree:
			root = t.Root
		}
		if root == nil {
			continue
		}

		tree := make([]float64, width)
		accumulateGain(root, index, tree)
		var total float64
		for _, v := range tree {
			total += v
		}
		if total == 0 {
			continue
		}
		for j, v := range tree {
			out[j] += v / total
		}
	}

	var total float64
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

func accumulateGain(node *trees.DecisionTreeNode, index map[string]int, into []float64) {
	if node == nil || len(node.Children) == 0 || node.SplitRule == nil || node.SplitRule.SplitAttr == nil {
		return
	}
	j, ok := index[node.SplitRule.SplitAttr.GetName()]
	if ok {
		n, impurity := distGini(node.ClassDist)
		gain := n * impurity
		for _, child := range node.Children {
			cn, ci := distGini(child.ClassDist)
			gain -= cn * ci
		}
		switch {
		case n == 0:
			into[j]++
		case gain > 0:
			into[j] += gain
		}
	}
	for _, child := range node.Children {
		accumulateGain(child, index, into)
	}
}

// distGini returns the row count and gini impurity of a class distribution.
func distGini(dist map[string]int) (float64, float64) {
	var n, sumSq float64
	for _, c := range dist {
		n += float64(c)
	}
	if n == 0 {
		return 0, 0
	}
	for _, c := range dist {
		p := float64(c) / n
		sumSq += p * p
	}
	return n, 1 - sumSq
}
