// internal/artifacts/bundle.go
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	apperrors "loan-eligibility/internal/common/errors"
	"loan-eligibility/internal/dataset"
	"loan-eligibility/internal/ml"
	"loan-eligibility/internal/models"
)

const (
	ManifestFile = "manifest.json"
	ScalerFile   = "scaler.json"
)

// ModelFile returns the file name of a variant's fitted model.
func ModelFile(variant string) string {
	return variant + "_model.json"
}

// ForestFile returns the file name of a variant's golearn tree file, written
// next to the model envelope for estimators that keep state outside JSON.
func ForestFile(variant string) string {
	return variant + "_model.golearn"
}

// MetricsFile returns the file name of a variant's evaluation report.
func MetricsFile(variant string) string {
	return variant + "_metrics.json"
}

// Manifest describes a trained bundle.
type Manifest struct {
	SchemaVersion  string   `json:"schemaVersion"`
	Features       []string `json:"features"`
	Target         string   `json:"target"`
	Variants       []string `json:"variants"`
	DefaultVariant string   `json:"defaultVariant"`
	CreatedAt      string   `json:"createdAt"`
	// FillValues holds the training-set mode or median of each fill-policy
	// field, used when a single application leaves one empty.
	FillValues map[string]string `json:"fillValues,omitempty"`
}

// modelEnvelope tags a serialised model with its kind.
type modelEnvelope struct {
	Kind  string          `json:"kind"`
	Model json.RawMessage `json:"model"`
}

// fileBacked is implemented by models whose fitted state is written by a
// library serialiser rather than encoding/json.
type fileBacked interface {
	SaveModel(path string) error
	LoadModel(path string) error
}

// Bundle is everything the serving path needs. It is built once and only
// read afterwards, so it is shared across goroutines without locking.
type Bundle struct {
	Manifest  Manifest
	Schema    models.FeatureSchema
	Scaler    *ml.MinMaxScaler
	Models    map[string]ml.Classifier
	Metrics   map[string]*ml.Evaluation
	Reference *dataset.Matrix
}

// Variants lists the loaded model variants in sorted order.
func (b *Bundle) Variants() []string {
	out := make([]string, 0, len(b.Models))
	for v := range b.Models {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Model returns the classifier for variant, or the manifest default when
// variant is empty.
func (b *Bundle) Model(variant string) (ml.Classifier, string, error) {
	if variant == "" {
		variant = b.Manifest.DefaultVariant
	}
	m, ok := b.Models[variant]
	if !ok {
		return nil, variant, apperrors.NewModelVariantNotFoundError(variant, b.Variants())
	}
	return m, variant, nil
}

// SetDefaultVariant overrides the manifest default with a loaded variant.
// An empty variant keeps the manifest default.
func (b *Bundle) SetDefaultVariant(variant string) error {
	if variant == "" {
		return nil
	}
	if _, ok := b.Models[variant]; !ok {
		return apperrors.NewModelVariantNotFoundError(variant, b.Variants())
	}
	b.Manifest.DefaultVariant = variant
	return nil
}

// Save writes the manifest, scaler, models and metrics into dir.
func Save(dir string, b *Bundle) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	manifest := b.Manifest
	manifest.SchemaVersion = b.Schema.Version
	manifest.Features = b.Schema.Features
	manifest.Variants = b.Variants()
	if manifest.CreatedAt == "" {
		manifest.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if err := writeJSON(filepath.Join(dir, ManifestFile), manifest); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, ScalerFile), b.Scaler); err != nil {
		return err
	}

	for variant, model := range b.Models {
		raw, err := json.Marshal(model)
		if err != nil {
			return fmt.Errorf("encode %s model: %w", variant, err)
		}
		env := modelEnvelope{Kind: kindOf(model), Model: raw}
		if err := writeJSON(filepath.Join(dir, ModelFile(variant)), env); err != nil {
			return err
		}
		if fb, ok := model.(fileBacked); ok {
			if err := fb.SaveModel(filepath.Join(dir, ForestFile(variant))); err != nil {
				return fmt.Errorf("write %s model: %w", variant, err)
			}
		}
	}
	for variant, eval := range b.Metrics {
		if err := writeJSON(filepath.Join(dir, MetricsFile(variant)), eval); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a bundle from dir. When referencePath is set the processed
// reference CSV is loaded too and its header, minus the target, must match
// the manifest features. Every failure is ARTIFACT_LOAD_FAILED.
func Load(dir, referencePath string) (*Bundle, error) {
	var manifest Manifest
	manifestPath := filepath.Join(dir, ManifestFile)
	if err := readJSON(manifestPath, &manifest); err != nil {
		return nil, apperrors.NewArtifactLoadError(manifestPath, err)
	}
	schema := models.FeatureSchema{Version: manifest.SchemaVersion, Features: manifest.Features}
	if err := schema.Verify(); err != nil {
		return nil, apperrors.NewArtifactLoadError(manifestPath, err)
	}

	b := &Bundle{
		Manifest: manifest,
		Schema:   schema,
		Scaler:   ml.NewMinMaxScaler(),
		Models:   make(map[string]ml.Classifier, len(manifest.Variants)),
		Metrics:  make(map[string]*ml.Evaluation, len(manifest.Variants)),
	}

	scalerPath := filepath.Join(dir, ScalerFile)
	if err := readJSON(scalerPath, b.Scaler); err != nil {
		return nil, apperrors.NewArtifactLoadError(scalerPath, err)
	}

	if len(manifest.Variants) == 0 {
		return nil, apperrors.NewArtifactLoadError(manifestPath, fmt.Errorf("no model variants listed"))
	}
	for _, variant := range manifest.Variants {
		modelPath := filepath.Join(dir, ModelFile(variant))
		model, err := loadModel(modelPath, filepath.Join(dir, ForestFile(variant)))
		if err != nil {
			return nil, apperrors.NewArtifactLoadError(modelPath, err)
		}
		b.Models[variant] = model

		// metrics are informational; a bundle without them still serves
		var eval ml.Evaluation
		if err := readJSON(filepath.Join(dir, MetricsFile(variant)), &eval); err == nil {
			b.Metrics[variant] = &eval
		}
	}
	if _, ok := b.Models[manifest.DefaultVariant]; !ok {
		return nil, apperrors.NewArtifactLoadError(manifestPath,
			fmt.Errorf("default variant %q is not among %v", manifest.DefaultVariant, manifest.Variants))
	}

	if referencePath != "" {
		ref, err := LoadReference(referencePath, manifest.Target, schema)
		if err != nil {
			return nil, apperrors.NewArtifactLoadError(referencePath, err)
		}
		b.Reference = ref
	}
	return b, nil
}

// LoadReference reads the processed training table and checks its header.
func LoadReference(path, target string, schema models.FeatureSchema) (*dataset.Matrix, error) {
	ref, err := dataset.LoadMatrix(path)
	if err != nil {
		return nil, err
	}
	features := make([]string, 0, len(ref.Columns))
	for _, c := range ref.Columns {
		if c != target {
			features = append(features, c)
		}
	}
	if models.SchemaVersion(features) != schema.Version {
		return nil, fmt.Errorf("reference columns %v do not match the feature schema %s", features, schema.Version)
	}
	return ref, nil
}

func loadModel(path, treesPath string) (ml.Classifier, error) {
	var env modelEnvelope
	if err := readJSON(path, &env); err != nil {
		return nil, err
	}

	var model ml.Classifier
	switch env.Kind {
	case ml.KindLogisticRegression:
		model = &ml.LogisticRegression{}
	case ml.KindRandomForest:
		model = &ml.RandomForest{}
	default:
		return nil, fmt.Errorf("unknown model kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Model, model); err != nil {
		return nil, fmt.Errorf("decode %s model: %w", env.Kind, err)
	}
	if model.NumFeatures() == 0 {
		return nil, ml.ErrNotFitted
	}
	if fb, ok := model.(fileBacked); ok {
		if err := fb.LoadModel(treesPath); err != nil {
			return nil, err
		}
	}
	return model, nil
}

func kindOf(model ml.Classifier) string {
	switch model.(type) {
	case *ml.LogisticRegression:
		return ml.KindLogisticRegression
	case *ml.RandomForest:
		return ml.KindRandomForest
	}
	return ""
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}
