// Package threshold supplies the length-adaptive similarity thresholds used
// when deciding whether two records are duplicates.
//
// Short keys collide spuriously at low similarity, so the key threshold is a
// decreasing function of key length. Small word bags must overlap completely,
// larger ones by more than half.
package threshold

import (
	"errors"
	"fmt"
	"math"
)

// ErrThresholdDomain is returned for lengths outside the policy's domain
// (anything below 1). It indicates an upstream bug, not bad data.
var ErrThresholdDomain = errors.New("length outside threshold domain")

// Step maps every key length up to and including MaxLen (and above the
// previous step) to Threshold.
type Step struct {
	MaxLen    int     `yaml:"max_len" json:"max_len"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// KeyTable is a step function from key length to minimum key similarity.
// Lengths beyond the last step use Floor.
type KeyTable struct {
	Steps []Step  `yaml:"steps" json:"steps"`
	Floor float64 `yaml:"floor" json:"floor"`
}

// StepTable is the default key table: near-exact matches for one to three
// characters, relaxing to 0.70 for keys longer than twenty.
func StepTable() KeyTable {
	return KeyTable{
		Steps: []Step{
			{MaxLen: 1, Threshold: 1.0},
			{MaxLen: 2, Threshold: 0.9},
			{MaxLen: 3, Threshold: 0.85},
			{MaxLen: 6, Threshold: 0.8},
			{MaxLen: 10, Threshold: 0.75},
			{MaxLen: 20, Threshold: 0.73},
		},
		Floor: 0.70,
	}
}

// DecayTable builds a per-length table where t(1) = 1 and
// t(i) = max(floor, t(i-1) - i^pow/denom), up to maxLen.
func DecayTable(maxLen int, pow, denom, floor float64) KeyTable {
	table := KeyTable{Floor: floor}
	prev := 1.0
	for i := 1; i <= maxLen; i++ {
		if i > 1 {
			prev = math.Max(floor, prev-math.Pow(float64(i), pow)/denom)
		}
		table.Steps = append(table.Steps, Step{MaxLen: i, Threshold: prev})
	}
	return table
}

// DefaultDecayTable is DecayTable(50, -2, 2, 0.7).
func DefaultDecayTable() KeyTable {
	return DecayTable(50, -2, 2, 0.7)
}

// TableByName resolves a key table preset: "step" or "decay".
func TableByName(name string) (KeyTable, error) {
	switch name {
	case "", "step":
		return StepTable(), nil
	case "decay":
		return DefaultDecayTable(), nil
	default:
		return KeyTable{}, fmt.Errorf("unknown key threshold preset %q (want step or decay)", name)
	}
}

// Validate checks if the table is a well-formed step function into (0,1]
func (t KeyTable) Validate() error {
	prev := 0
	for i, s := range t.Steps {
		if s.MaxLen <= prev {
			return fmt.Errorf("key threshold step %d: max_len must be greater than %d (got %d)", i, prev, s.MaxLen)
		}
		if s.Threshold <= 0 || s.Threshold > 1 {
			return fmt.Errorf("key threshold step %d: threshold must be in (0,1] (got %.3f)", i, s.Threshold)
		}
		prev = s.MaxLen
	}
	if t.Floor <= 0 || t.Floor > 1 {
		return fmt.Errorf("key threshold floor must be in (0,1] (got %.3f)", t.Floor)
	}
	return nil
}

func (t KeyTable) lookup(n int) float64 {
	for _, s := range t.Steps {
		if n <= s.MaxLen {
			return s.Threshold
		}
	}
	return t.Floor
}

// Body rule kinds.
const (
	BodyMajority = "majority"
	BodyFixed    = "fixed"
)

// BodyRule maps a word-bag size to the minimum overlap fraction.
type BodyRule struct {
	Kind  string  `yaml:"kind" json:"kind"`
	Fixed float64 `yaml:"fixed,omitempty" json:"fixed,omitempty"`
}

// MajorityRule requires full overlap for bags of up to three words and
// strictly more than half of the bag otherwise.
func MajorityRule() BodyRule {
	return BodyRule{Kind: BodyMajority}
}

// FixedRule applies one overlap threshold to every bag size.
func FixedRule(v float64) BodyRule {
	return BodyRule{Kind: BodyFixed, Fixed: v}
}

// Validate checks if the rule has valid values
func (r BodyRule) Validate() error {
	switch r.Kind {
	case BodyMajority:
		return nil
	case BodyFixed:
		if r.Fixed <= 0 || r.Fixed > 1 {
			return fmt.Errorf("fixed body threshold must be in (0,1] (got %.3f)", r.Fixed)
		}
		return nil
	default:
		return fmt.Errorf("unknown body threshold kind %q (want majority or fixed)", r.Kind)
	}
}

func (r BodyRule) eval(n int) float64 {
	if r.Kind == BodyFixed {
		return r.Fixed
	}
	if n <= 3 {
		return 1.0
	}
	return float64(n/2+1) / float64(n)
}

// Sizes up to these bounds are served from precomputed tables.
const (
	keyMemoSize  = 256
	bodyMemoSize = 1024
)

// Policy answers threshold queries from memoized tables. It is immutable and
// safe for concurrent use.
type Policy struct {
	table  KeyTable
	rule   BodyRule
	keys   []float64
	bodies []float64
}

// NewPolicy validates the table and rule and precomputes their values.
func NewPolicy(table KeyTable, rule BodyRule) (*Policy, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	p := &Policy{
		table:  table,
		rule:   rule,
		keys:   make([]float64, keyMemoSize),
		bodies: make([]float64, bodyMemoSize),
	}
	for n := 1; n < keyMemoSize; n++ {
		p.keys[n] = table.lookup(n)
	}
	for n := 1; n < bodyMemoSize; n++ {
		p.bodies[n] = rule.eval(n)
	}
	return p, nil
}

// DefaultPolicy is the step table with the majority body rule.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(StepTable(), MajorityRule())
	if err != nil {
		panic(err) // the built-in tables are valid
	}
	return p
}

// KeyThreshold returns the minimum key similarity for a key of n runes.
func (p *Policy) KeyThreshold(n int) (float64, error) {
	if n < 1 {
		return 0, fmt.Errorf("%w: key length %d", ErrThresholdDomain, n)
	}
	if n < len(p.keys) {
		return p.keys[n], nil
	}
	return p.table.lookup(n), nil
}

// BodyThreshold returns the minimum overlap for a pivot bag of n words.
func (p *Policy) BodyThreshold(n int) (float64, error) {
	if n < 1 {
		return 0, fmt.Errorf("%w: bag size %d", ErrThresholdDomain, n)
	}
	if n < len(p.bodies) {
		return p.bodies[n], nil
	}
	return p.rule.eval(n), nil
}

// Table returns the key table backing the policy.
func (p *Policy) Table() KeyTable { return p.table }

// Rule returns the body rule backing the policy.
func (p *Policy) Rule() BodyRule { return p.rule }
