package fields

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// Schema is the ordered set of configured fields plus named presets.
// It is safe for concurrent use; pipeline runs take a Snapshot.
type Schema struct {
	mu      sync.RWMutex
	fields  []FieldDefinition
	index   map[string]int
	presets map[string][]string
}

// NewSchema validates defs and presets and returns a schema. Preset entries
// naming unknown fields are dropped.
func NewSchema(defs []FieldDefinition, presets map[string][]string) (*Schema, error) {
	s := &Schema{index: map[string]int{}, presets: map[string][]string{}}
	for _, d := range defs {
		if err := s.add(d); err != nil {
			return nil, err
		}
	}
	for name, names := range presets {
		if err := s.addPreset(name, names); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Snapshot returns an independent copy of the schema.
func (s *Schema) Snapshot() *Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := &Schema{
		fields:  make([]FieldDefinition, len(s.fields)),
		index:   make(map[string]int, len(s.index)),
		presets: make(map[string][]string, len(s.presets)),
	}
	for i, f := range s.fields {
		out.fields[i] = f.Clone()
	}
	for k, v := range s.index {
		out.index[k] = v
	}
	for k, v := range s.presets {
		out.presets[k] = append([]string(nil), v...)
	}
	return out
}

// Fields returns every definition in configured order.
func (s *Schema) Fields() []FieldDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FieldDefinition, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Clone()
	}
	return out
}

// Field looks a definition up by name.
func (s *Schema) Field(name string) (FieldDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[name]
	if !ok {
		return FieldDefinition{}, false
	}
	return s.fields[i].Clone(), true
}

// Len returns the number of configured fields.
func (s *Schema) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fields)
}

// Add appends a new field. Names must be unique.
func (s *Schema) Add(def FieldDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(def)
}

func (s *Schema) add(def FieldDefinition) error {
	def = def.normalize()
	if err := def.Validate(); err != nil {
		return err
	}
	if _, exists := s.index[def.Name]; exists {
		return common.NewAppError("FIELD_EXISTS", fmt.Sprintf("field %q already exists", def.Name), common.ErrInvalidInput)
	}
	s.index[def.Name] = len(s.fields)
	s.fields = append(s.fields, def)
	return nil
}

// Update replaces an existing field in place.
func (s *Schema) Update(def FieldDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(def)
}

func (s *Schema) update(def FieldDefinition) error {
	def = def.normalize()
	if err := def.Validate(); err != nil {
		return err
	}
	i, ok := s.index[def.Name]
	if !ok {
		return common.NewAppError("FIELD_NOT_FOUND", fmt.Sprintf("field %q", def.Name), common.ErrNotFound)
	}
	s.fields[i] = def
	return nil
}

// Remove deletes a field and strips it from every preset.
func (s *Schema) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[name]
	if !ok {
		return common.NewAppError("FIELD_NOT_FOUND", fmt.Sprintf("field %q", name), common.ErrNotFound)
	}
	s.fields = append(s.fields[:i], s.fields[i+1:]...)
	s.reindex()
	for p, names := range s.presets {
		s.presets[p] = without(names, name)
	}
	return nil
}

func (s *Schema) reindex() {
	s.index = make(map[string]int, len(s.fields))
	for i, f := range s.fields {
		s.index[f.Name] = i
	}
}

// AddPreset stores a named selection, keeping only names that exist.
func (s *Schema) AddPreset(name string, fieldNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPreset(name, fieldNames)
}

func (s *Schema) addPreset(name string, fieldNames []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return common.NewAppError("PRESET_INVALID", "preset name is required", common.ErrInvalidInput)
	}
	kept := make([]string, 0, len(fieldNames))
	seen := map[string]struct{}{}
	for _, n := range fieldNames {
		if _, ok := s.index[n]; !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		kept = append(kept, n)
	}
	s.presets[name] = kept
	return nil
}

// RemovePreset deletes a preset; unknown names are ignored.
func (s *Schema) RemovePreset(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presets, name)
}

// Preset returns the field names of a preset.
func (s *Schema) Preset(name string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names, ok := s.presets[name]
	return append([]string(nil), names...), ok
}

// PresetNames returns preset names sorted alphabetically.
func (s *Schema) PresetNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.presets))
	for k := range s.presets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ActiveFields resolves a selection into definitions. With no selection
// every field is active, in configured order. Otherwise the selection order
// is kept, duplicates collapse and unknown names are ignored; a selection
// that matches nothing falls back to every field.
func (s *Schema) ActiveFields(selection []string) []FieldDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []FieldDefinition
	seen := map[string]struct{}{}
	for _, name := range selection {
		i, ok := s.index[strings.TrimSpace(name)]
		if !ok {
			continue
		}
		if _, dup := seen[s.fields[i].Name]; dup {
			continue
		}
		seen[s.fields[i].Name] = struct{}{}
		out = append(out, s.fields[i].Clone())
	}
	if len(out) > 0 {
		return out
	}
	out = make([]FieldDefinition, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Clone()
	}
	return out
}

// Names returns the names of defs in order.
func Names(defs []FieldDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

func without(names []string, drop string) []string {
	out := names[:0]
	for _, n := range names {
		if n != drop {
			out = append(out, n)
		}
	}
	return out
}
