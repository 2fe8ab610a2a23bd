package domain

import (
	"time"
)

// ConditionOperator compares an input field against a pattern condition value.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "EQUALS"
	OpGreaterThan ConditionOperator = "GREATER_THAN"
	OpLessThan    ConditionOperator = "LESS_THAN"
	OpBetween     ConditionOperator = "BETWEEN"
	OpContains    ConditionOperator = "CONTAINS"
)

// PatternCondition is one weighted clause of a failure pattern. Field names
// address the prediction input (see patterns.FieldValue for the accessor
// table). BETWEEN uses Value as lower and UpperValue as upper bound.
type PatternCondition struct {
	Field      string            `json:"field"`
	Operator   ConditionOperator `json:"operator"`
	Value      any               `json:"value"`
	UpperValue any               `json:"upperValue,omitempty"`
	Weight     float64           `json:"weight"`
}

// FailurePattern is a named, weighted rule set describing a recurring cause
// of settlement failure. Patterns are registered at runtime and never
// deleted; IdentifiedCount is incremented on match.
//
// A pattern carries either condition tuples, a CEL expression over the
// prediction input, or both. Expression patterns are compiled when
// registered and contribute their full weight when the expression holds.
type FailurePattern struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	Conditions      []PatternCondition `json:"conditions"`
	Expression      string             `json:"expression,omitempty"`
	Frequency       float64            `json:"frequency"` // observed rate in [0,1]
	AvgImpact       float64            `json:"avgImpact"` // average probability impact in [0,1]
	IdentifiedCount int64              `json:"identifiedCount"`
	CreatedAt       time.Time          `json:"createdAt"`
}
