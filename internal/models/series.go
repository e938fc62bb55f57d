package models

import (
	"encoding/json"
	"sort"
)

// DataPoint holds the parameter values observed for one (possibly sampled) timestamp.
type DataPoint struct {
	Time     string
	Datetime string
	Values   map[string]float64
}

// NewDataPoint returns a point with an initialised value map.
func NewDataPoint(displayTime, datetime string) DataPoint {
	return DataPoint{Time: displayTime, Datetime: datetime, Values: make(map[string]float64)}
}

// Value returns the parameter value and whether it is defined.
func (p DataPoint) Value(param string) (float64, bool) {
	v, ok := p.Values[param]
	return v, ok
}

// Clone returns a deep copy of the point.
func (p DataPoint) Clone() DataPoint {
	out := DataPoint{Time: p.Time, Datetime: p.Datetime, Values: make(map[string]float64, len(p.Values))}
	for k, v := range p.Values {
		out.Values[k] = v
	}
	return out
}

// MarshalJSON flattens parameter values next to time and datetime, the shape chart clients consume.
func (p DataPoint) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(p.Values)+2)
	for k, v := range p.Values {
		flat[k] = v
	}
	flat["time"] = p.Time
	flat["datetime"] = p.Datetime
	return json.Marshal(flat)
}

// ParameterSet is an insertion-ordered set of parameter names.
type ParameterSet struct {
	names []string
	index map[string]struct{}
}

// NewParameterSet builds a set from names, keeping first-seen order.
func NewParameterSet(names ...string) *ParameterSet {
	s := &ParameterSet{index: make(map[string]struct{})}
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts name and reports whether it was new.
func (s *ParameterSet) Add(name string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[name]; ok {
		return false
	}
	s.index[name] = struct{}{}
	s.names = append(s.names, name)
	return true
}

// Contains reports membership.
func (s *ParameterSet) Contains(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[name]
	return ok
}

// Len returns the number of names.
func (s *ParameterSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Names returns a copy of the names in first-seen order.
func (s *ParameterSet) Names() []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s.names...)
}

// SortedKeys returns the keys of a value map in lexical order.
func SortedKeys(values map[string]float64) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
