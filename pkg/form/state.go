// Package form tracks the report form state on the client side of the
// voice session. The assistant suggests field values via function_call
// messages; State applies them and produces the form_update payloads the
// server uses as conversation context.
package form

import (
	"reflect"
	"sort"
	"sync"

	"github.com/voiceform/go-voiceform/pkg/protocol"
)

// Assistant roles accepted by the server's role_change message.
const (
	RoleCoWorker = "co-worker"
	RoleButler   = "butler"
	RoleCoach    = "coach"
)

// Field describes one form field.
type Field struct {
	ID      string
	Section string
	Label   string
}

// ReportFields is the Maritime Pilot Report field catalog, in form order.
// Kept in sync with the server's field mapping.
var ReportFields = []Field{
	{"report-number", "Report Information", "Report Number"},
	{"report-date", "Report Information", "Date"},
	{"observation-time", "Report Information", "Time of Observation"},
	{"location", "Report Information", "Location"},
	{"vessel-name", "Vessel and Pilot Details", "Vessel Name"},
	{"imo-number", "Vessel and Pilot Details", "IMO Number"},
	{"vessel-type", "Vessel and Pilot Details", "Type of Vessel"},
	{"pilot-id", "Vessel and Pilot Details", "Pilot Name/ID"},
	{"hazards-description", "Safety Observations", "Hazards"},
	{"pilotage-comments", "Pilotage Practices & Recommendations", "Pilotage Comments"},
	{"improvements", "Pilotage Practices & Recommendations", "Improvements"},
	{"workload", "Work-Related Stress & Fatigue", "Workload"},
	{"additional-comment", "Work-Related Stress & Fatigue", "Additional Comments"},
	{"submitted-by", "Submission Details", "Submitted by"},
	{"submission-date", "Submission Details", "Date of Submission"},
}

// FieldByID returns the catalog entry for a field id, if known.
func FieldByID(id string) (Field, bool) {
	for _, f := range ReportFields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// State holds the current form values.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewState creates an empty form state.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// Apply writes the suggested values into the form and returns the field
// ids that changed. Suggestions for unknown fields are applied as-is;
// the server owns the catalog and the client does not second-guess it.
func (s *State) Apply(updates []protocol.FieldUpdate) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for _, u := range updates {
		if u.Field == "" || u.Suggestion == nil {
			continue
		}
		// Suggestions decoded from JSON may be slices or maps, which
		// are not comparable with ==.
		if prev, ok := s.values[u.Field]; ok && reflect.DeepEqual(prev, u.Suggestion) {
			continue
		}
		s.values[u.Field] = u.Suggestion
		changed = append(changed, u.Field)
	}
	return changed
}

// Set stores a single field value directly (user edits).
func (s *State) Set(field string, value any) {
	s.mu.Lock()
	s.values[field] = value
	s.mu.Unlock()
}

// Get returns the current value of a field.
func (s *State) Get(field string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[field]
	return v, ok
}

// Snapshot returns a copy of the current values, the shape sent in a
// form_update message.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// FilledFields returns the ids of fields with values, in catalog order;
// unknown fields follow, sorted.
func (s *State) FilledFields() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool, len(s.values))
	var out []string
	for _, f := range ReportFields {
		if _, ok := s.values[f.ID]; ok {
			out = append(out, f.ID)
			seen[f.ID] = true
		}
	}

	var extra []string
	for k := range s.values {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// UpdateMessage builds the form_update message for the current state.
func (s *State) UpdateMessage() protocol.FormUpdate {
	return protocol.FormUpdate{FormData: s.Snapshot()}
}
