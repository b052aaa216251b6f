package vectordb

import (
	"fmt"
	"strings"
)

// documentColumns maps filterable fields to columns of the documents table,
// aliased d in Nearest.
var documentColumns = map[string]string{
	FieldLegalArea:    "d.legal_area",
	FieldDocumentType: "d.document_type",
	FieldCaseNumber:   "d.case_number",
	FieldCourt:        "d.court",
	FieldDecisionDate: "COALESCE(d.decision_date, d.filed_date)",
	FieldParties:      "d.parties",
}

// filterSQL renders fs as a WHERE fragment with ? placeholders.
func filterSQL(fs *FilterSet) (string, []interface{}, error) {
	var (
		parts []string
		args  []interface{}
	)

	if fs.Must != nil {
		for _, c := range fs.Must.Conditions {
			sql, a, err := conditionSQL(c)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, a...)
		}
	}
	if clauseLen(fs.Should) > 0 {
		var ors []string
		for _, c := range fs.Should.Conditions {
			sql, a, err := conditionSQL(c)
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, sql)
			args = append(args, a...)
		}
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}
	if fs.MustNot != nil {
		for _, c := range fs.MustNot.Conditions {
			sql, a, err := conditionSQL(c)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "NOT "+sql)
			args = append(args, a...)
		}
	}

	if len(parts) == 0 {
		return "TRUE", nil, nil
	}
	return strings.Join(parts, " AND "), args, nil
}

func conditionSQL(c FilterCondition) (string, []interface{}, error) {
	switch cond := c.(type) {
	case *MatchCondition:
		col, err := column(cond.Field)
		if err != nil {
			return "", nil, err
		}
		if cond.Field == FieldParties {
			return "(" + col + " @> to_jsonb(?::text))", []interface{}{cond.Value}, nil
		}
		return "(" + col + " = ?)", []interface{}{cond.Value}, nil

	case *MatchAnyCondition:
		col, err := column(cond.Field)
		if err != nil {
			return "", nil, err
		}
		if len(cond.Values) == 0 {
			return "FALSE", nil, nil
		}
		if cond.Field == FieldParties {
			ors := make([]string, len(cond.Values))
			args := make([]interface{}, len(cond.Values))
			for i, v := range cond.Values {
				ors[i] = col + " @> to_jsonb(?::text)"
				args[i] = v
			}
			return "(" + strings.Join(ors, " OR ") + ")", args, nil
		}
		return "(" + col + " IN ?)", []interface{}{cond.Values}, nil

	case *MatchExceptCondition:
		col, err := column(cond.Field)
		if err != nil {
			return "", nil, err
		}
		if len(cond.Values) == 0 {
			return "TRUE", nil, nil
		}
		if cond.Field == FieldParties {
			return "", nil, fmt.Errorf("vectordb: match-except is not supported on %s", FieldParties)
		}
		return "(" + col + " IS NULL OR " + col + " NOT IN ?)", []interface{}{cond.Values}, nil

	case *TimeRangeCondition:
		col, err := column(cond.Field)
		if err != nil {
			return "", nil, err
		}
		var (
			parts []string
			args  []interface{}
		)
		r := cond.Range
		if r.Gt != nil {
			parts = append(parts, col+" > ?")
			args = append(args, *r.Gt)
		}
		if r.Gte != nil {
			parts = append(parts, col+" >= ?")
			args = append(args, *r.Gte)
		}
		if r.Lt != nil {
			parts = append(parts, col+" < ?")
			args = append(args, *r.Lt)
		}
		if r.Lte != nil {
			parts = append(parts, col+" <= ?")
			args = append(args, *r.Lte)
		}
		if len(parts) == 0 {
			return "(" + col + " IS NOT NULL)", nil, nil
		}
		return "(" + strings.Join(parts, " AND ") + ")", args, nil

	default:
		return "", nil, fmt.Errorf("vectordb: unsupported filter condition %T", c)
	}
}

func column(field string) (string, error) {
	col, ok := documentColumns[field]
	if !ok {
		return "", fmt.Errorf("vectordb: unknown filter field %q", field)
	}
	return col, nil
}
