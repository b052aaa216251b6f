package qdrant

import (
	"fmt"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// Payload keys maintained by the store in addition to vectordb.Payload.
const (
	payloadDocumentID = "document_id"
	payloadOrdinal    = "ordinal"
)

// buildPayload converts metadata to a Qdrant-compatible payload. Datetimes
// are stored as RFC 3339 strings, which Qdrant indexes as datetime.
func buildPayload(documentID string, meta corpus.Metadata) map[string]any {
	payload := vectordb.Payload(meta)
	for k, v := range payload {
		if t, ok := v.(time.Time); ok {
			payload[k] = t.UTC().Format(time.RFC3339)
		}
	}
	payload[payloadDocumentID] = documentID
	return payload
}

// ── Filter Conversion ────────────────────────────────────────────────────────

// convertFilterSet converts a vectordb.FilterSet to a Qdrant filter, adding
// excludeIDs as a must-not clause. Returns nil when nothing constrains the query.
func convertFilterSet(filters *vectordb.FilterSet, excludeIDs []string) (*qdrant.Filter, error) {
	filter := &qdrant.Filter{}

	if filters != nil {
		var err error
		if filter.Must, err = convertConditionSet(filters.Must); err != nil {
			return nil, err
		}
		if filter.Should, err = convertConditionSet(filters.Should); err != nil {
			return nil, err
		}
		if filter.MustNot, err = convertConditionSet(filters.MustNot); err != nil {
			return nil, err
		}
	}
	if len(excludeIDs) > 0 {
		filter.MustNot = append(filter.MustNot, qdrant.NewMatchKeywords(payloadDocumentID, excludeIDs...))
	}

	if len(filter.Must) == 0 && len(filter.Should) == 0 && len(filter.MustNot) == 0 {
		return nil, nil
	}
	return filter, nil
}

func convertConditionSet(cs *vectordb.ConditionSet) ([]*qdrant.Condition, error) {
	if cs == nil {
		return nil, nil
	}

	conditions := make([]*qdrant.Condition, 0, len(cs.Conditions))
	for _, c := range cs.Conditions {
		cond, err := convertCondition(c)
		if err != nil {
			return nil, err
		}
		if cond != nil {
			conditions = append(conditions, cond)
		}
	}
	return conditions, nil
}

func convertCondition(c vectordb.FilterCondition) (*qdrant.Condition, error) {
	switch cond := c.(type) {
	case *vectordb.MatchCondition:
		return qdrant.NewMatch(cond.Field, cond.Value), nil
	case *vectordb.MatchAnyCondition:
		return qdrant.NewMatchKeywords(cond.Field, cond.Values...), nil
	case *vectordb.MatchExceptCondition:
		if len(cond.Values) == 0 {
			return nil, nil
		}
		return qdrant.NewMatchExceptKeywords(cond.Field, cond.Values...), nil
	case *vectordb.TimeRangeCondition:
		r := &qdrant.DatetimeRange{
			Gt:  toTimestamp(cond.Range.Gt),
			Gte: toTimestamp(cond.Range.Gte),
			Lt:  toTimestamp(cond.Range.Lt),
			Lte: toTimestamp(cond.Range.Lte),
		}
		if r.Gt == nil && r.Gte == nil && r.Lt == nil && r.Lte == nil {
			return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Filter{Filter: &qdrant.Filter{
				MustNot: []*qdrant.Condition{qdrant.NewIsEmpty(cond.Field)},
			}}}, nil
		}
		return qdrant.NewDatetimeRange(cond.Field, r), nil
	default:
		return nil, fmt.Errorf("[Qdrant] unsupported filter condition %T", c)
	}
}

func toTimestamp(t *time.Time) *timestamppb.Timestamp {
	if t == nil {
		return nil
	}
	return timestamppb.New(*t)
}

// ── Result Conversion ────────────────────────────────────────────────────────

// payloadString reads a string payload field.
func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok && v != nil {
		return v.GetStringValue()
	}
	return ""
}

// payloadInt reads an integer payload field.
func payloadInt(payload map[string]*qdrant.Value, key string) (int, bool) {
	v, ok := payload[key]
	if !ok || v == nil {
		return 0, false
	}
	switch k := v.Kind.(type) {
	case *qdrant.Value_IntegerValue:
		return int(k.IntegerValue), true
	case *qdrant.Value_DoubleValue:
		return int(k.DoubleValue), true
	default:
		return 0, false
	}
}

// denseVector extracts the single unnamed vector of a retrieved point.
func denseVector(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if out == nil {
		return nil
	}
	return out.GetData()
}
