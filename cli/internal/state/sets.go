package state

import (
	"encoding/json"
	"fmt"
)

// OrderedSet is a list of distinct strings kept in insertion order.
type OrderedSet []string

// Add appends v if absent and reports whether it was added.
func (s *OrderedSet) Add(v string) bool {
	if s.Contains(v) {
		return false
	}
	*s = append(*s, v)
	return true
}

// Contains reports whether v is present.
func (s OrderedSet) Contains(v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// MarshalJSON encodes a nil set as [].
func (s OrderedSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

// UnmarshalJSON decodes a JSON array. null decodes to an empty set; a
// repeated entry is an error.
func (s *OrderedSet) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(OrderedSet, 0, len(raw))
	for _, v := range raw {
		if !out.Add(v) {
			return fmt.Errorf("duplicate set entry %q", v)
		}
	}
	*s = out
	return nil
}

// Flags are sticky risk markers. They can only be set; replacing the whole
// pending value (MarkReviewed, DiscardPending) is the only way back to false.
type Flags struct {
	planDocs  bool
	riskFiles bool
}

type flagsJSON struct {
	PlanDocs  bool `json:"plan_docs"`
	RiskFiles bool `json:"risk_files"`
}

// PlanDocs reports whether a plan or design document was touched.
func (f Flags) PlanDocs() bool { return f.planDocs }

// RiskFiles reports whether a dependency, lock, container, or CI file was touched.
func (f Flags) RiskFiles() bool { return f.riskFiles }

// MarkPlanDocs sets the plan_docs flag.
func (f *Flags) MarkPlanDocs() { f.planDocs = true }

// MarkRiskFiles sets the risk_files flag.
func (f *Flags) MarkRiskFiles() { f.riskFiles = true }

// Equal lets go-cmp compare Flags without reaching into unexported fields.
func (f Flags) Equal(o Flags) bool { return f == o }

func (f Flags) MarshalJSON() ([]byte, error) {
	return json.Marshal(flagsJSON{PlanDocs: f.planDocs, RiskFiles: f.riskFiles})
}

func (f *Flags) UnmarshalJSON(data []byte) error {
	var v flagsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.planDocs, f.riskFiles = v.PlanDocs, v.RiskFiles
	return nil
}
