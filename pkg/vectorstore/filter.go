/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package vectorstore

import (
	"fmt"
	"regexp"
	"strings"

	sqrl "github.com/Masterminds/squirrel"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	jsonutils "github.com/AMD-AIG-AIMA/AVS/pkg/utils/json"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// columnRef renders the SQL reference of a filter field. Payload fields live
// inside the jsonb payload column; force_not_payload addresses a top-level
// object column instead.
func columnRef(field string, forceNotPayload bool) (string, error) {
	if !identifierPattern.MatchString(field) {
		return "", avserrors.NewValidationError(fmt.Sprintf("invalid filter field %q", field))
	}
	if forceNotPayload {
		return field, nil
	}
	return fmt.Sprintf("payload->>'%s'", field), nil
}

// jsonColumnRef is columnRef without the text cast, for jsonb operators.
func jsonColumnRef(field string, forceNotPayload bool) (string, error) {
	if !identifierPattern.MatchString(field) {
		return "", avserrors.NewValidationError(fmt.Sprintf("invalid filter field %q", field))
	}
	if forceNotPayload {
		return field, nil
	}
	return fmt.Sprintf("payload->'%s'", field), nil
}

// BuildFilter converts the recursive payload filter grammar into a squirrel
// predicate over one objects table.
func BuildFilter(filter *v1.PayloadFilter) (sqrl.Sqlizer, error) {
	if filter == nil {
		return nil, nil
	}
	if err := filter.Validate(); err != nil {
		return nil, avserrors.NewValidationError(err.Error())
	}
	return buildNode(filter)
}

func buildNode(f *v1.PayloadFilter) (sqrl.Sqlizer, error) {
	switch {
	case f.Match != nil:
		return buildMatch(f.Match)
	case f.Term != nil:
		col, err := columnRef(f.Term.Field, f.Term.ForceNotPayload)
		if err != nil {
			return nil, err
		}
		return sqrl.Expr(col+" = ?", cvtText(f.Term.Value)), nil
	case f.Terms != nil:
		col, err := columnRef(f.Terms.Field, f.Terms.ForceNotPayload)
		if err != nil {
			return nil, err
		}
		values := make([]string, 0, len(f.Terms.Values))
		for _, v := range f.Terms.Values {
			values = append(values, cvtText(v))
		}
		return sqrl.Eq{col: values}, nil
	case f.All != nil:
		col, err := jsonColumnRef(f.All.Field, f.All.ForceNotPayload)
		if err != nil {
			return nil, err
		}
		return sqrl.Expr(col+" @> ?::jsonb", string(jsonutils.MarshalSilently(f.All.Values))), nil
	case f.Any != nil:
		return buildAny(f.Any)
	case f.MatchPhrase != nil:
		col, err := columnRef(f.MatchPhrase.Field, f.MatchPhrase.ForceNotPayload)
		if err != nil {
			return nil, err
		}
		return sqrl.Expr(col+" ILIKE ?", "%"+escapeLike(f.MatchPhrase.Value)+"%"), nil
	case f.Exists != nil:
		return buildExists(f.Exists)
	case f.Wildcard != nil:
		col, err := columnRef(f.Wildcard.Field, f.Wildcard.ForceNotPayload)
		if err != nil {
			return nil, err
		}
		return sqrl.Expr(col+" ILIKE ?", wildcardToLike(f.Wildcard.Pattern)), nil
	case f.Range != nil:
		return buildRange(f.Range)
	case f.Bool != nil:
		return buildBool(f.Bool)
	}
	return nil, avserrors.NewValidationError("empty filter node")
}

// buildMatch requires every whitespace-separated token to appear in the field.
func buildMatch(m *v1.MatchQuery) (sqrl.Sqlizer, error) {
	col, err := columnRef(m.Field, m.ForceNotPayload)
	if err != nil {
		return nil, err
	}
	tokens := strings.Fields(m.Value)
	if len(tokens) == 0 {
		return nil, avserrors.NewValidationError(fmt.Sprintf("empty match value on %q", m.Field))
	}
	and := sqrl.And{}
	for _, token := range tokens {
		and = append(and, sqrl.Expr(col+" ILIKE ?", "%"+escapeLike(token)+"%"))
	}
	return and, nil
}

func buildAny(q *v1.ListHasAnyQuery) (sqrl.Sqlizer, error) {
	col, err := jsonColumnRef(q.Field, q.ForceNotPayload)
	if err != nil {
		return nil, err
	}
	or := sqrl.Or{}
	for _, v := range q.Values {
		or = append(or, sqrl.Expr(col+" @> ?::jsonb", string(jsonutils.MarshalSilently([]interface{}{v}))))
	}
	if len(or) == 0 {
		return nil, avserrors.NewValidationError(fmt.Sprintf("empty any values on %q", q.Field))
	}
	return or, nil
}

func buildExists(q *v1.ExistsQuery) (sqrl.Sqlizer, error) {
	if !identifierPattern.MatchString(q.Field) {
		return nil, avserrors.NewValidationError(fmt.Sprintf("invalid filter field %q", q.Field))
	}
	if q.ForceNotPayload {
		return sqrl.Expr(q.Field + " IS NOT NULL"), nil
	}
	// function form instead of the jsonb ? operator, which the dollar
	// placeholder rewrite would mangle
	return sqrl.Expr("jsonb_exists(payload, ?)", q.Field), nil
}

func buildRange(r *v1.RangeQuery) (sqrl.Sqlizer, error) {
	col, err := columnRef(r.Field, r.ForceNotPayload)
	if err != nil {
		return nil, err
	}
	numeric := fmt.Sprintf("(%s)::numeric", col)
	and := sqrl.And{}
	if r.Gt != nil {
		and = append(and, sqrl.Expr(numeric+" > ?", *r.Gt))
	}
	if r.Gte != nil {
		and = append(and, sqrl.Expr(numeric+" >= ?", *r.Gte))
	}
	if r.Lt != nil {
		and = append(and, sqrl.Expr(numeric+" < ?", *r.Lt))
	}
	if r.Lte != nil {
		and = append(and, sqrl.Expr(numeric+" <= ?", *r.Lte))
	}
	return and, nil
}

func buildBool(b *v1.BoolQuery) (sqrl.Sqlizer, error) {
	and := sqrl.And{}
	for i := range b.Must {
		node, err := buildNode(&b.Must[i])
		if err != nil {
			return nil, err
		}
		and = append(and, node)
	}
	for i := range b.Filter {
		node, err := buildNode(&b.Filter[i])
		if err != nil {
			return nil, err
		}
		and = append(and, node)
	}
	if len(b.Should) > 0 {
		or := sqrl.Or{}
		for i := range b.Should {
			node, err := buildNode(&b.Should[i])
			if err != nil {
				return nil, err
			}
			or = append(or, node)
		}
		and = append(and, or)
	}
	for i := range b.MustNot {
		node, err := buildNode(&b.MustNot[i])
		if err != nil {
			return nil, err
		}
		sql, args, err := node.ToSql()
		if err != nil {
			return nil, err
		}
		and = append(and, sqrl.Expr("NOT ("+sql+")", args...))
	}
	if len(and) == 0 {
		return nil, avserrors.NewValidationError("bool filter has no clauses")
	}
	return and, nil
}

// cvtText renders a filter value the way payload->>'field' renders it.
func cvtText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		// json numbers decode as float64; integral values print without
		// a fraction to match jsonb text output
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func wildcardToLike(pattern string) string {
	escaped := escapeLike(pattern)
	escaped = strings.ReplaceAll(escaped, "*", "%")
	escaped = strings.ReplaceAll(escaped, "?", "_")
	return escaped
}
