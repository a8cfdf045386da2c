package gige

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
)

var (
	// ErrUnknownFeature is returned when a feature name does not exist.
	ErrUnknownFeature = errors.New("gige: unknown feature")
	// ErrFeatureType is returned when a feature is read or written with
	// the wrong type.
	ErrFeatureType = errors.New("gige: feature type mismatch")
)

// EnumEntry is one entry of an enumeration feature.
type EnumEntry struct {
	Value   int64  `json:"value"`
	Display string `json:"display"`
}

// Features reads and writes camera features by GenICam name. The current
// value of an enumeration is read with Int; its entries with EnumEntries.
type Features interface {
	String(name string) (string, error)
	SetString(name, value string) error
	Bool(name string) (bool, error)
	SetBool(name string, value bool) error
	Int(name string) (int64, error)
	SetInt(name string, value int64) error
	Float(name string) (float64, error)
	SetFloat(name string, value float64) error
	EnumEntries(name string) ([]EnumEntry, error)
}

// FeatureMap is an in-memory feature set. It backs the simulated and
// replayed cameras, and stands in for a device in tests. Writing a feature
// that does not exist creates it.
type FeatureMap struct {
	mu     sync.RWMutex
	values map[string]any
	enums  map[string][]EnumEntry
	writes []string
}

// NewFeatureMap returns an empty feature set.
func NewFeatureMap() *FeatureMap {
	return &FeatureMap{values: make(map[string]any), enums: make(map[string][]EnumEntry)}
}

type featureFile struct {
	Values map[string]any         `json:"values"`
	Enums  map[string][]EnumEntry `json:"enums"`
}

// LoadFeatureMap reads a feature set from a JSON file of the form
//
//	{"values": {"DeviceVendorName": "...", "Width": 1280},
//	 "enums": {"ContainerResolution": [{"value": 0, "display": "640"}]}}
func LoadFeatureMap(path string) (*FeatureMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature file: %w", err)
	}
	var ff featureFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("failed to parse feature file: %w", err)
	}
	m := NewFeatureMap()
	for k, v := range ff.Values {
		m.values[k] = v
	}
	for k, v := range ff.Enums {
		m.enums[k] = append([]EnumEntry(nil), v...)
	}
	return m, nil
}

// MarshalJSON encodes the feature set in the LoadFeatureMap format.
func (m *FeatureMap) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(featureFile{Values: m.values, Enums: m.enums})
}

// Define sets a feature value without recording it as a write.
func (m *FeatureMap) Define(name string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}

// DefineEnum sets the entries of an enumeration feature and its current
// value.
func (m *FeatureMap) DefineEnum(name string, current int64, entries ...EnumEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enums[name] = append([]EnumEntry(nil), entries...)
	m.values[name] = current
}

// Names returns every defined feature name, sorted.
func (m *FeatureMap) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.values))
	for k := range m.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Writes returns the names of features written so far, in order.
func (m *FeatureMap) Writes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.writes...)
}

func (m *FeatureMap) get(name string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
	return v, nil
}

func (m *FeatureMap) set(name string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = v
	m.writes = append(m.writes, name)
}

func (m *FeatureMap) String(name string) (string, error) {
	v, err := m.get(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, not string", ErrFeatureType, name, v)
	}
	return s, nil
}

func (m *FeatureMap) SetString(name, value string) error {
	m.set(name, value)
	return nil
}

func (m *FeatureMap) Bool(name string) (bool, error) {
	v, err := m.get(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %T, not bool", ErrFeatureType, name, v)
	}
	return b, nil
}

func (m *FeatureMap) SetBool(name string, value bool) error {
	m.set(name, value)
	return nil
}

func (m *FeatureMap) Int(name string) (int64, error) {
	v, err := m.get(name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		// JSON numbers
		if n == math.Trunc(n) {
			return int64(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %s is %T, not integer", ErrFeatureType, name, v)
}

func (m *FeatureMap) SetInt(name string, value int64) error {
	m.set(name, value)
	return nil
}

func (m *FeatureMap) Float(name string) (float64, error) {
	v, err := m.get(name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: %s is %T, not float", ErrFeatureType, name, v)
}

func (m *FeatureMap) SetFloat(name string, value float64) error {
	m.set(name, value)
	return nil
}

func (m *FeatureMap) EnumEntries(name string) ([]EnumEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.enums[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an enumeration", ErrUnknownFeature, name)
	}
	return append([]EnumEntry(nil), e...), nil
}
