package vectordb

import (
	"time"
)

// Filterable metadata fields.
const (
	FieldLegalArea    = "legal_area"
	FieldDocumentType = "document_type"
	FieldCaseNumber   = "case_number"
	FieldCourt        = "court"
	FieldDecisionDate = "decision_date"
	FieldParties      = "parties"
)

// FilterCondition is implemented by every condition type. Each store adapter
// converts conditions to its native filter format.
type FilterCondition interface {
	// Matches evaluates the condition against a payload built by Payload.
	Matches(payload map[string]any) bool
}

// FilterSet combines Must (AND), Should (at least one) and MustNot (none).
type FilterSet struct {
	Must    *ConditionSet `json:"must,omitempty"`
	Should  *ConditionSet `json:"should,omitempty"`
	MustNot *ConditionSet `json:"mustNot,omitempty"`
}

// ConditionSet holds the conditions of one clause.
type ConditionSet struct {
	Conditions []FilterCondition `json:"conditions,omitempty"`
}

// IsEmpty reports whether fs has no conditions at all.
func (fs *FilterSet) IsEmpty() bool {
	if fs == nil {
		return true
	}
	return clauseLen(fs.Must) == 0 && clauseLen(fs.Should) == 0 && clauseLen(fs.MustNot) == 0
}

// Matches evaluates the whole set against payload. A nil set matches everything.
func (fs *FilterSet) Matches(payload map[string]any) bool {
	if fs == nil {
		return true
	}
	if fs.Must != nil {
		for _, c := range fs.Must.Conditions {
			if !c.Matches(payload) {
				return false
			}
		}
	}
	if clauseLen(fs.Should) > 0 {
		any := false
		for _, c := range fs.Should.Conditions {
			if c.Matches(payload) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if fs.MustNot != nil {
		for _, c := range fs.MustNot.Conditions {
			if c.Matches(payload) {
				return false
			}
		}
	}
	return true
}

func clauseLen(cs *ConditionSet) int {
	if cs == nil {
		return 0
	}
	return len(cs.Conditions)
}

// ── Match Conditions ─────────────────────────────────────────────────────────

// MatchCondition is field = value. For the parties field it means "value is
// one of the parties".
type MatchCondition struct {
	Field string `json:"field"`
	Value string `json:"equalTo"`
}

func (c *MatchCondition) Matches(payload map[string]any) bool {
	return valueMatches(payload[c.Field], c.Value)
}

// MatchAnyCondition is field IN (values).
type MatchAnyCondition struct {
	Field  string   `json:"field"`
	Values []string `json:"anyOf"`
}

func (c *MatchAnyCondition) Matches(payload map[string]any) bool {
	for _, v := range c.Values {
		if valueMatches(payload[c.Field], v) {
			return true
		}
	}
	return false
}

// MatchExceptCondition is field NOT IN (values). A missing field matches.
type MatchExceptCondition struct {
	Field  string   `json:"field"`
	Values []string `json:"noneOf"`
}

func (c *MatchExceptCondition) Matches(payload map[string]any) bool {
	for _, v := range c.Values {
		if valueMatches(payload[c.Field], v) {
			return false
		}
	}
	return true
}

// ── Range Conditions ─────────────────────────────────────────────────────────

// TimeRange bounds a datetime field. Nil bounds are open.
type TimeRange struct {
	Gt  *time.Time `json:"after,omitempty"`
	Gte *time.Time `json:"atOrAfter,omitempty"`
	Lt  *time.Time `json:"before,omitempty"`
	Lte *time.Time `json:"atOrBefore,omitempty"`
}

// TimeRangeCondition filters by a datetime range. Documents without the field
// never match.
type TimeRangeCondition struct {
	Field string    `json:"field"`
	Range TimeRange `json:"range"`
}

func (c *TimeRangeCondition) Matches(payload map[string]any) bool {
	t, ok := payload[c.Field].(time.Time)
	if !ok {
		return false
	}
	r := c.Range
	if r.Gt != nil && !t.After(*r.Gt) {
		return false
	}
	if r.Gte != nil && t.Before(*r.Gte) {
		return false
	}
	if r.Lt != nil && !t.Before(*r.Lt) {
		return false
	}
	if r.Lte != nil && t.After(*r.Lte) {
		return false
	}
	return true
}

func valueMatches(field any, want string) bool {
	switch v := field.(type) {
	case string:
		return v == want
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == want {
				return true
			}
		}
	}
	return false
}

// ── Constructors ─────────────────────────────────────────────────────────────

// NewFilterSet builds a FilterSet from Must, Should and MustNot clauses.
func NewFilterSet(clauses ...func(*FilterSet)) *FilterSet {
	fs := &FilterSet{}
	for _, clause := range clauses {
		clause(fs)
	}
	return fs
}

// Must sets the AND clause.
func Must(conditions ...FilterCondition) func(*FilterSet) {
	return func(fs *FilterSet) { fs.Must = &ConditionSet{Conditions: conditions} }
}

// Should sets the at-least-one clause.
func Should(conditions ...FilterCondition) func(*FilterSet) {
	return func(fs *FilterSet) { fs.Should = &ConditionSet{Conditions: conditions} }
}

// MustNot sets the exclusion clause.
func MustNot(conditions ...FilterCondition) func(*FilterSet) {
	return func(fs *FilterSet) { fs.MustNot = &ConditionSet{Conditions: conditions} }
}

// NewMatch creates field = value.
func NewMatch(field, value string) *MatchCondition {
	return &MatchCondition{Field: field, Value: value}
}

// NewMatchAny creates field IN (values).
func NewMatchAny(field string, values ...string) *MatchAnyCondition {
	return &MatchAnyCondition{Field: field, Values: values}
}

// NewMatchExcept creates field NOT IN (values).
func NewMatchExcept(field string, values ...string) *MatchExceptCondition {
	return &MatchExceptCondition{Field: field, Values: values}
}

// NewTimeRange creates a datetime range condition.
func NewTimeRange(field string, r TimeRange) *TimeRangeCondition {
	return &TimeRangeCondition{Field: field, Range: r}
}
