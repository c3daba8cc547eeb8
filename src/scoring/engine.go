package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"credit-observer/src/analysis/core"
	"credit-observer/src/features"
	"credit-observer/src/helpers"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/metrics"
	"credit-observer/src/models"

	"github.com/google/uuid"
)

const (
	// tree disagreement at which agreement reaches zero
	spreadScale = 0.5
	// holdout tolerance for the accuracy metric
	accuracyTolerance = 0.1
	modelFilePrefix   = "rf-"

	// NeutralVersion labels scores produced without any working model.
	NeutralVersion = "neutral"
)

// Model is a scoring model version. Implementations are immutable.
type Model interface {
	Version() string
	FeatureNames() []string
}

// ScoreResult carries the model it was computed with so the explanation
// uses the same version even if a retrain swaps in between.
type ScoreResult struct {
	Symbol       string
	Timestamp    int64
	Score        float64
	Confidence   float64
	Raw          float64
	ModelVersion string
	Model        Model
	Fallback     bool
	Features     models.MFeatureVector
}

// RawToScore is the fixed mapping from the model scale to the score scale.
func RawToScore(raw float64) float64 {
	return models.MinScore + models.ScoreSpan*core.Clamp(raw, 0, 1)
}

// -----------------------------------------------------------------------------

// Engine scores feature vectors with the current forest, or the heuristic
// until a forest exists.
type Engine struct {
	Config    *models.MConfig
	Store     interfaces.IModelStore
	Logger    *logger.Logger
	Heuristic *Heuristic
	Now       func() time.Time

	current atomic.Pointer[Forest]
	params  ForestParams
}

func NewEngine(cfg *models.MConfig, store interfaces.IModelStore, neutral func(string) float64, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewLogger(cfg, "ScoringEngine")
	}
	if cfg == nil {
		cfg = &models.MConfig{}
	}
	if neutral == nil {
		neutral = func(name string) float64 { return features.NeutralDefaults[name] }
	}
	return &Engine{
		Config:    cfg,
		Store:     store,
		Logger:    log,
		Heuristic: NewHeuristic(neutral),
		Now:       time.Now,
		params:    paramsFromConfig(cfg.Scoring),
	}
}

// Current returns the forest in service, or nil during cold start.
func (e *Engine) Current() *Forest {
	return e.current.Load()
}

// Swap installs f for all subsequent Score calls.
func (e *Engine) Swap(f *Forest) {
	e.current.Store(f)
	e.Logger.Info("Model %s in service (%d trees)", f.ModelVersion, len(f.Trees))
}

func (e *Engine) imputationPenalty() float64 {
	if p := e.Config.Scoring.ImputationPenalty; p > 0 {
		return p
	}
	return 0.5
}

func (e *Engine) heuristicConfidence() float64 {
	if c := e.Config.Scoring.HeuristicConfidence; c > 0 {
		return c
	}
	return 0.35
}

// -----------------------------------------------------------------------------

// Score computes the bounded score and confidence for fv. It never fails on
// model problems: a forest whose layout does not match falls back to the
// heuristic, and a failing heuristic yields the neutral score with zero
// confidence.
func (e *Engine) Score(ctx context.Context, symbol string, fv models.MFeatureVector) (ScoreResult, error) {
	if err := ctx.Err(); err != nil {
		return ScoreResult{}, err
	}
	res := ScoreResult{Symbol: symbol, Timestamp: fv.AsOf, Features: fv}
	penalty := 1 - e.imputationPenalty()*fv.ImputedFraction()

	forest := e.current.Load()
	if forest != nil && sameLayout(forest.Features, fv.Names) {
		preds := forest.TreePredictions(fv.Values)
		mean, std := core.CalculateMeanStd(preds)
		agreement := 1 - math.Min(1, std/spreadScale)

		res.Raw = core.Clamp(mean, 0, 1)
		res.Score = RawToScore(res.Raw)
		res.Confidence = core.Clamp(agreement*penalty, 0, 1)
		res.ModelVersion = forest.ModelVersion
		res.Model = forest
		metrics.ScoresComputed.WithLabelValues("model").Inc()
		return res, nil
	}
	if forest != nil {
		e.Logger.Warning("Model %s layout does not match features for %s, using heuristic", forest.ModelVersion, symbol)
	}

	raw, _, err := e.Heuristic.Decompose(fv)
	if err != nil {
		e.Logger.Error("Heuristic failed for %s: %v", symbol, err)
		res.Raw = 0.5
		res.Score = models.NeutralScore
		res.Confidence = 0
		res.ModelVersion = NeutralVersion
		res.Fallback = true
		metrics.ScoresComputed.WithLabelValues("neutral").Inc()
		return res, nil
	}

	res.Raw = raw
	res.Score = RawToScore(raw)
	res.Confidence = core.Clamp(e.heuristicConfidence()*penalty, 0, 1)
	res.ModelVersion = e.Heuristic.Version()
	res.Model = e.Heuristic
	res.Fallback = true
	metrics.ScoresComputed.WithLabelValues("heuristic").Inc()
	return res, nil
}

func sameLayout(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------

// Retrain fits a new forest, evaluates it on a holdout split, persists it and
// swaps it in. The previous model keeps serving if any step fails.
func (e *Engine) Retrain(ctx context.Context, set models.MTrainingSet) (string, error) {
	start := time.Now()
	minSamples := e.Config.Scoring.MinTrainingSamples
	if minSamples <= 0 {
		minSamples = 20
	}
	if len(set.Samples) < minSamples {
		metrics.Retrains.WithLabelValues("skipped").Inc()
		return "", helpers.NewValidationError("training_set",
			fmt.Sprintf("%d samples, need at least %d", len(set.Samples), minSamples))
	}

	train, holdout := e.split(set)

	forest, err := TrainForest(train, e.params)
	if err != nil {
		metrics.Retrains.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("train forest: %w", err)
	}
	now := e.Now().UTC()
	forest.TrainedAt = now.Unix()
	forest.ModelVersion = fmt.Sprintf("%s%s-%s", modelFilePrefix, now.Format("20060102T150405"), uuid.NewString()[:8])

	if err := ctx.Err(); err != nil {
		metrics.Retrains.WithLabelValues("failed").Inc()
		return "", err
	}

	perf := evaluate(forest, holdout)
	perf.ModelVersion = forest.ModelVersion
	perf.Timestamp = forest.TrainedAt
	perf.TrainingSamples = len(train.Samples)

	if err := e.save(forest); err != nil {
		metrics.Retrains.WithLabelValues("failed").Inc()
		return "", err
	}
	if e.Store != nil {
		if err := e.Store.SaveModelPerformance(ctx, perf); err != nil {
			e.Logger.Error("Failed to record performance of %s: %v", forest.ModelVersion, err)
		}
	}

	e.Swap(forest)
	metrics.Retrains.WithLabelValues("ok").Inc()
	e.Logger.Info("Retrained %s on %d samples in %v: mse=%.5f r2=%.3f acc=%.3f",
		forest.ModelVersion, len(train.Samples), time.Since(start), perf.MSE, perf.R2, perf.Accuracy)
	return forest.ModelVersion, nil
}

// split shuffles deterministically and holds out a fraction for evaluation.
func (e *Engine) split(set models.MTrainingSet) (models.MTrainingSet, models.MTrainingSet) {
	frac := e.Config.Scoring.HoldoutFraction
	if frac <= 0 || frac >= 1 {
		frac = 0.2
	}
	n := len(set.Samples)
	perm := rand.New(rand.NewSource(e.params.Seed)).Perm(n)
	nHold := int(float64(n) * frac)
	if nHold < 1 && n >= 5 {
		nHold = 1
	}

	train := models.MTrainingSet{FeatureNames: set.FeatureNames}
	hold := models.MTrainingSet{FeatureNames: set.FeatureNames}
	for i, p := range perm {
		if i < nHold {
			hold.Samples = append(hold.Samples, set.Samples[p])
		} else {
			train.Samples = append(train.Samples, set.Samples[p])
		}
	}
	return train, hold
}

func evaluate(f *Forest, holdout models.MTrainingSet) models.MModelPerformance {
	pred := make([]float64, len(holdout.Samples))
	target := make([]float64, len(holdout.Samples))
	for i, s := range holdout.Samples {
		pred[i] = f.Predict(s.Features)
		target[i] = s.Label
	}
	return models.MModelPerformance{
		MSE:               core.MeanSquaredError(pred, target),
		R2:                core.RSquared(pred, target),
		Accuracy:          core.AccuracyWithin(pred, target, accuracyTolerance),
		ValidationSamples: len(holdout.Samples),
	}
}

// -----------------------------------------------------------------------------
// Persistence
// -----------------------------------------------------------------------------

func (e *Engine) modelDir() string {
	if d := e.Config.Scoring.ModelDir; d != "" {
		return d
	}
	return "models"
}

func (e *Engine) save(f *Forest) error {
	dir := e.modelDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	path := filepath.Join(dir, f.ModelVersion+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadLatest restores the newest persisted forest. A missing or empty model
// directory is not an error: the engine stays on the heuristic.
func (e *Engine) LoadLatest() error {
	entries, err := os.ReadDir(e.modelDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read model dir: %w", err)
	}

	var names []string
	for _, ent := range entries {
		n := ent.Name()
		if !ent.IsDir() && strings.HasPrefix(n, modelFilePrefix) && strings.HasSuffix(n, ".json") {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	// newest first; skip files that fail to decode
	for i := len(names) - 1; i >= 0; i-- {
		data, err := os.ReadFile(filepath.Join(e.modelDir(), names[i]))
		if err != nil {
			e.Logger.Warning("Cannot read model %s: %v", names[i], err)
			continue
		}
		var f Forest
		if err := json.Unmarshal(data, &f); err != nil {
			e.Logger.Warning("Cannot decode model %s: %v", names[i], err)
			continue
		}
		if err := f.Validate(); err != nil {
			e.Logger.Warning("Discarding model %s: %v", names[i], err)
			continue
		}
		e.Swap(&f)
		return nil
	}
	return helpers.NewModelUnavailableError("no loadable model in "+e.modelDir(), nil)
}
