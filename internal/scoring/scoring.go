// Package scoring implements the Importance Scorer (C3): a pure,
// deterministic function from an Activity to an importance score in
// [0.1, 1.0], plus the derived decay, retention, and consolidation-decision
// helpers. The Tier Consolidator uses ShouldConsolidate and
// CombineImportanceScores; Decay and RetentionDays have no caller in this
// module.
//
// Weights and thresholds are ported from the original Indaleko
// ImportanceScorer (extension/activity-type/path/recency/metadata
// sub-scores); see DESIGN.md for the grounding.
package scoring

import (
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/corvid-io/actmem/internal/types"
)

// Weights holds the five sub-score weights; they must sum to 1.0.
type Weights struct {
	Extension    float64
	ActivityType float64
	Path         float64
	Recency      float64
	Metadata     float64
}

// DefaultWeights matches spec.md §4.3.
var DefaultWeights = Weights{
	Extension:    0.25,
	ActivityType: 0.30,
	Path:         0.20,
	Recency:      0.15,
	Metadata:     0.10,
}

// DefaultDecayRate is the exponential recency-decay rate (per day).
const DefaultDecayRate = 0.05

var activityTypeWeights = map[types.ActivityType]float64{
	types.ActivityCreate:         0.8,
	types.ActivityDelete:         0.7,
	types.ActivityRename:         0.7,
	types.ActivityModify:         0.6,
	types.ActivitySecurityChange: 0.6,
	types.ActivityRead:           0.4,
	types.ActivityClose:          0.3,
	types.ActivityInfoChange:     0.3,
	types.ActivityUnknown:        0.2,
}

var extensionWeights = map[string]float64{
	// Documents
	"doc": 0.8, "docx": 0.8, "pdf": 0.8, "ppt": 0.8, "pptx": 0.8, "xls": 0.8, "xlsx": 0.8,
	"odt": 0.7, "ods": 0.7, "odp": 0.7, "rtf": 0.7, "tex": 0.7, "md": 0.7,
	// Source code
	"py": 0.8, "js": 0.8, "java": 0.8, "c": 0.8, "cpp": 0.8, "h": 0.8, "hpp": 0.8,
	"cs": 0.8, "php": 0.8, "rb": 0.8, "go": 0.8, "rs": 0.8, "ts": 0.8, "sql": 0.8,
	// Data files
	"json": 0.7, "xml": 0.7, "csv": 0.7, "yml": 0.7, "yaml": 0.7, "ini": 0.7, "conf": 0.7,
	// Media files
	"jpg": 0.6, "jpeg": 0.6, "png": 0.6, "gif": 0.6, "mp3": 0.6, "mp4": 0.6,
	"avi": 0.6, "mov": 0.6, "wav": 0.6, "svg": 0.6,
	"bmp": 0.5, "tiff": 0.5, "flac": 0.5,
	// Executables
	"exe": 0.6, "dll": 0.6, "so": 0.6, "dylib": 0.6, "bat": 0.6, "sh": 0.6, "cmd": 0.6,
	// Archives
	"zip": 0.5, "tar": 0.5, "gz": 0.5, "rar": 0.5, "7z": 0.5, "bz2": 0.5,
	// System/temp
	"sys": 0.4, "msi": 0.4, "inf": 0.4, "log": 0.4, "tmp": 0.3, "bak": 0.3, "cache": 0.2,
}

const defaultExtensionWeight = 0.4
const directoryExtensionWeight = 0.7

type pathPattern struct {
	re     *regexp.Regexp
	weight float64
}

// pathSignificancePatterns is evaluated in order; the first match wins.
var pathSignificancePatterns = compilePatterns([][2]any{
	{`(?i)[\\/]Documents[\\/]`, 0.9},
	{`(?i)[\\/]Desktop[\\/]`, 0.9},
	{`(?i)[\\/]Projects[\\/]`, 0.9},
	{`(?i)[\\/]Work[\\/]`, 0.9},
	{`(?i)[\\/]Source[\\/]`, 0.8},
	{`(?i)[\\/]src[\\/]`, 0.8},
	{`(?i)[\\/]dev[\\/]`, 0.8},
	{`(?i)[\\/]AppData[\\/]Local[\\/]`, 0.5},
	{`(?i)[\\/]AppData[\\/]Roaming[\\/]`, 0.5},
	{`(?i)[\\/]Application Data[\\/]`, 0.5},
	{`(?i)[\\/]Library[\\/]Application Support[\\/]`, 0.5},
	{`(?i)[\\/]Temp[\\/]`, 0.2},
	{`(?i)[\\/]Temporary[\\/]`, 0.2},
	{`(?i)[\\/]Cache[\\/]`, 0.2},
	{`(?i)[\\/]Windows[\\/]`, 0.3},
	{`(?i)[\\/]Program Files[\\/]`, 0.3},
	{`(?i)[\\/]ProgramData[\\/]`, 0.3},
	{`(?i)[\\/]System32[\\/]`, 0.3},
	{`(?i)[\\/]Downloads[\\/]`, 0.4},
})

const defaultPathWeight = 0.5
const shallowDirectoryMinWeight = 0.8
const shallowDirectoryDepth = 2

func compilePatterns(pairs [][2]any) []pathPattern {
	out := make([]pathPattern, len(pairs))
	for i, p := range pairs {
		out[i] = pathPattern{re: regexp.MustCompile(p[0].(string)), weight: p[1].(float64)}
	}
	return out
}

// Scorer computes importance scores for activities. It carries no mutable
// state and is safe for concurrent use.
type Scorer struct {
	weights   Weights
	decayRate float64
	now       func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWeights overrides the default sub-score weights.
func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w }
}

// WithDecayRate overrides the recency decay rate.
func WithDecayRate(rate float64) Option {
	return func(s *Scorer) { s.decayRate = rate }
}

// WithClock overrides the scorer's clock; used by tests to make recency
// scoring deterministic.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// New creates a Scorer with the default weights and decay rate, unless
// overridden via options.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		weights:   DefaultWeights,
		decayRate: DefaultDecayRate,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the combined importance score for an activity, folding in
// an optional external boost. The result is always in [0.1, 1.0].
func (s *Scorer) Score(a *types.Activity, importanceBoost float64) float64 {
	if a == nil {
		return 0.0
	}

	ext := s.extensionScore(a)
	act := s.activityTypeScore(a)
	path := s.pathScore(a)
	recency := s.recencyScore(a)
	meta := s.metadataScore(a)

	combined := ext*s.weights.Extension +
		act*s.weights.ActivityType +
		path*s.weights.Path +
		recency*s.weights.Recency +
		meta*s.weights.Metadata

	importance := clamp(combined, 0.1, 1.0)

	if importanceBoost > 0 {
		importance = math.Min(1.0, importance+importanceBoost*(1.0-importance))
	}
	return importance
}

func (s *Scorer) extensionScore(a *types.Activity) float64 {
	if a.IsDirectory {
		return directoryExtensionWeight
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(a.FilePath), "."))
	if w, ok := extensionWeights[ext]; ok {
		return w
	}
	return defaultExtensionWeight
}

func (s *Scorer) activityTypeScore(a *types.Activity) float64 {
	if reason, ok := a.Attributes["usn_reason"]; ok {
		if strings.Contains(reason, "DATA_EXTEND") && strings.Contains(reason, "DATA_OVERWRITE") {
			return 0.9
		}
		if strings.Contains(reason, "FILE_CREATE") {
			return 0.85
		}
	}
	if w, ok := activityTypeWeights[a.ActivityType]; ok {
		return w
	}
	return activityTypeWeights[types.ActivityUnknown]
}

func (s *Scorer) pathScore(a *types.Activity) float64 {
	weight := defaultPathWeight
	for _, p := range pathSignificancePatterns {
		if p.re.MatchString(a.FilePath) {
			weight = p.weight
			break
		}
	}
	if a.IsDirectory {
		depth := strings.Count(a.FilePath, `\`) + strings.Count(a.FilePath, "/")
		if depth <= shallowDirectoryDepth && weight < shallowDirectoryMinWeight {
			return shallowDirectoryMinWeight
		}
	}
	return weight
}

func (s *Scorer) recencyScore(a *types.Activity) float64 {
	if a.Timestamp.IsZero() {
		return 0.5
	}
	ageDays := s.now().UTC().Sub(a.Timestamp.UTC()).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return clamp(math.Exp(-s.decayRate*ageDays), 0.1, 1.0)
}

func (s *Scorer) metadataScore(a *types.Activity) float64 {
	score := 0.5

	if a.SearchHits > 0 {
		score += math.Min(0.3, float64(a.SearchHits)*0.03)
	}

	if a.FileSize != nil && *a.FileSize > 0 {
		sizeFactor := math.Log10(math.Max(1, float64(*a.FileSize)/1024)) * 0.05
		score += math.Min(0.2, math.Max(0, sizeFactor))
	}

	if a.Attributes != nil {
		if a.Attributes["rename_type"] == "new_name" {
			score += 0.1
		}
		switch a.Attributes["usn_reason_simplified"] {
		case "security_change", "named_data_extend":
			score += 0.05
		}
	}

	return math.Min(1.0, score)
}

// Decay computes an updated importance score given age and access history.
// Important items decay more slowly; repeated access partially counteracts
// decay.
func (s *Scorer) Decay(original float64, ageDays float64, accessCount int64) float64 {
	decayRate := s.decayRate * (1.0 - original*0.5)
	timeFactor := math.Exp(-decayRate * ageDays)

	if accessCount > 10 {
		accessCount = 10
	}
	accessFactor := 1.0 + float64(accessCount)*0.05

	adjusted := original * timeFactor * accessFactor
	return clamp(adjusted, 0.1, 1.0)
}

// RetentionDays estimates how many days a record with the given score
// should be retained in the given tier.
func RetentionDays(score float64, tier string) int {
	base := map[string]int{
		"sensory":    7,
		"short_term": 90,
		"long_term":  365,
		"archival":   3650,
	}
	baseDays, ok := base[tier]
	if !ok {
		baseDays = 30
	}
	factor := 0.5 + score*1.5
	days := int(float64(baseDays) * factor)
	if days < 1 {
		days = 1
	}
	return days
}

// Transition holds the (min importance, min age) thresholds for one
// consolidation step between memory tiers; defaultTransitions keys them by
// "from->to" tier names, e.g. "sensory->short_term".
type Transition struct {
	MinImportance float64
	MinAgeHours   float64
}

var defaultTransitions = map[string]Transition{
	"sensory->short_term":    {MinImportance: 0.3, MinAgeHours: 12},
	"short_term->long_term":  {MinImportance: 0.6, MinAgeHours: 168},
	"long_term->archival":    {MinImportance: 0.8, MinAgeHours: 8760},
}

// ShouldConsolidate decides whether a record should be promoted from one
// tier to the next. Higher-importance records can trigger consolidation
// earlier: the effective age threshold is scaled down by up to 50%.
func ShouldConsolidate(score float64, ageHours float64, fromTier, toTier string) bool {
	key := fromTier + "->" + toTier
	t, ok := defaultTransitions[key]
	if !ok {
		t = Transition{MinImportance: 0.5, MinAgeHours: 24}
	}
	adjustedAgeThreshold := t.MinAgeHours * (1.0 - 0.5*score)
	return score >= t.MinImportance && ageHours >= adjustedAgeThreshold
}

// CombineImportanceScores aggregates several source scores into one summary
// score, weighted 70% mean / 30% max so a single standout event is not
// diluted away by many low-importance ones.
func CombineImportanceScores(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	var sum, max float64
	for i, v := range scores {
		sum += v
		if i == 0 || v > max {
			max = v
		}
	}
	avg := sum / float64(len(scores))
	combined := avg*0.7 + max*0.3
	return math.Min(1.0, combined)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
