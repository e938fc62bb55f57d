package engine

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Thresholds are the per-parameter limits used by the anomaly rules.
type Thresholds struct {
	Min          float64 `yaml:"min"`
	Max          float64 `yaml:"max"`
	SuddenChange float64 `yaml:"suddenChange"`
	HighWarning  float64 `yaml:"highWarning"`
	LowWarning   float64 `yaml:"lowWarning"`
}

// Profile is what a classifier resolves for one parameter name.
type Profile struct {
	Category   string
	Unit       string
	Thresholds Thresholds
}

// Classifier maps parameter display names onto detection profiles.
type Classifier interface {
	Classify(param string) Profile
}

// Category groups the keywords of one sensor kind with its unit and optional thresholds.
type Category struct {
	Name       string      `yaml:"name"`
	Keywords   []string    `yaml:"keywords"`
	Unit       string      `yaml:"unit"`
	Thresholds *Thresholds `yaml:"thresholds"`
}

// Vocabulary is the YAML root structure: ordered categories plus the fallback profile.
type Vocabulary struct {
	Default    DefaultProfile `yaml:"default"`
	Categories []Category     `yaml:"categories"`
}

// DefaultProfile applies to parameters no category matches.
type DefaultProfile struct {
	Unit       string      `yaml:"unit"`
	Thresholds *Thresholds `yaml:"thresholds"`
}

var defaultThresholds = Thresholds{Min: 1, Max: 80, SuddenChange: 15, HighWarning: 70, LowWarning: 5}

// DefaultVocabulary returns the built-in bilingual sensor vocabulary.
func DefaultVocabulary() Vocabulary {
	fallback := defaultThresholds
	return Vocabulary{
		Default: DefaultProfile{Thresholds: &fallback},
		Categories: []Category{
			{Name: "current", Keywords: []string{"電流", "current"}, Unit: "A", Thresholds: &Thresholds{Min: 2, Max: 40, SuddenChange: 15, HighWarning: 35, LowWarning: 5}},
			{Name: "temperature", Keywords: []string{"溫度", "temperature"}, Unit: "°C", Thresholds: &Thresholds{Min: 15, Max: 60, SuddenChange: 10, HighWarning: 55, LowWarning: 20}},
			{Name: "voltage", Keywords: []string{"電壓", "voltage"}, Unit: "V", Thresholds: &Thresholds{Min: 180, Max: 240, SuddenChange: 20, HighWarning: 230, LowWarning: 190}},
			{Name: "power", Keywords: []string{"功率", "power"}, Unit: "W"},
			{Name: "speed", Keywords: []string{"速度", "speed"}, Unit: "RPM"},
			{Name: "pressure", Keywords: []string{"壓力", "pressure"}, Unit: "Bar"},
			{Name: "flow", Keywords: []string{"流量", "flow"}, Unit: "L/min"},
		},
	}
}

// LoadVocabulary reads a vocabulary file. An empty path or a missing file yields the built-in vocabulary.
func LoadVocabulary(path string, logger *slog.Logger) (Vocabulary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return DefaultVocabulary(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("vocabulary file not found, using built-in vocabulary", slog.String("path", path))
			return DefaultVocabulary(), nil
		}
		return Vocabulary{}, fmt.Errorf("read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes and validates a YAML vocabulary document. A document without
// categories is rejected; editors that truncate before writing produce one transiently.
func ParseVocabulary(data []byte) (Vocabulary, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Vocabulary{}, errors.New("parse vocabulary: document is empty")
	}
	var vocab Vocabulary
	if err := yaml.Unmarshal(data, &vocab); err != nil {
		return Vocabulary{}, fmt.Errorf("parse vocabulary: %w", err)
	}
	if len(vocab.Categories) == 0 {
		return Vocabulary{}, errors.New("parse vocabulary: no categories defined")
	}
	if vocab.Default.Thresholds == nil {
		t := defaultThresholds
		vocab.Default.Thresholds = &t
	}
	if err := vocab.Validate(); err != nil {
		return Vocabulary{}, err
	}
	return vocab, nil
}

// Validate rejects categories without keywords and inverted limits.
func (v Vocabulary) Validate() error {
	if err := validateThresholds("default", v.Default.Thresholds); err != nil {
		return err
	}
	for i, c := range v.Categories {
		if len(c.Keywords) == 0 {
			return fmt.Errorf("vocabulary category %d (%s) has no keywords", i, c.Name)
		}
		if err := validateThresholds(c.Name, c.Thresholds); err != nil {
			return err
		}
	}
	return nil
}

func validateThresholds(name string, t *Thresholds) error {
	if t == nil {
		return nil
	}
	if t.Max < t.Min {
		return fmt.Errorf("vocabulary %s: max %.2f below min %.2f", name, t.Max, t.Min)
	}
	if t.SuddenChange < 0 {
		return fmt.Errorf("vocabulary %s: negative suddenChange", name)
	}
	return nil
}

// KeywordClassifier resolves profiles by case-insensitive substring match against category keywords.
// Thresholds come from the first matching category that declares them and the unit from the first
// matching category that declares one.
type KeywordClassifier struct {
	vocab    Vocabulary
	keywords [][]string
}

// NewKeywordClassifier prepares a classifier for vocab.
func NewKeywordClassifier(vocab Vocabulary) *KeywordClassifier {
	if vocab.Default.Thresholds == nil {
		t := defaultThresholds
		vocab.Default.Thresholds = &t
	}
	keywords := make([][]string, len(vocab.Categories))
	for i, c := range vocab.Categories {
		for _, kw := range c.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords[i] = append(keywords[i], kw)
			}
		}
	}
	return &KeywordClassifier{vocab: vocab, keywords: keywords}
}

// Classify implements Classifier.
func (k *KeywordClassifier) Classify(param string) Profile {
	name := strings.ToLower(param)
	profile := Profile{Category: "default", Unit: k.vocab.Default.Unit, Thresholds: *k.vocab.Default.Thresholds}

	thresholdsFound, unitFound := false, false
	for i, c := range k.vocab.Categories {
		if !containsAny(name, k.keywords[i]) {
			continue
		}
		if !thresholdsFound && c.Thresholds != nil {
			profile.Category = c.Name
			profile.Thresholds = *c.Thresholds
			thresholdsFound = true
		}
		if !unitFound && c.Unit != "" {
			profile.Unit = c.Unit
			unitFound = true
		}
		if thresholdsFound && unitFound {
			break
		}
	}
	return profile
}

func containsAny(name string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// SwappableClassifier delegates to a classifier that can be replaced while detection runs.
type SwappableClassifier struct {
	current atomic.Pointer[classifierRef]
}

type classifierRef struct{ c Classifier }

// NewSwappableClassifier wraps initial.
func NewSwappableClassifier(initial Classifier) *SwappableClassifier {
	s := &SwappableClassifier{}
	s.Swap(initial)
	return s
}

// Swap installs next; nil restores the built-in vocabulary.
func (s *SwappableClassifier) Swap(next Classifier) {
	if next == nil {
		next = NewKeywordClassifier(DefaultVocabulary())
	}
	s.current.Store(&classifierRef{c: next})
}

// Classify implements Classifier.
func (s *SwappableClassifier) Classify(param string) Profile {
	return s.current.Load().c.Classify(param)
}
