/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package v1

import "fmt"

// PayloadFilter is the recursive query grammar accepted by payload search.
// Exactly one member must be set per node.
type PayloadFilter struct {
	Match       *MatchQuery       `json:"match,omitempty"`
	Term        *TermQuery        `json:"term,omitempty"`
	Terms       *TermsQuery       `json:"terms,omitempty"`
	All         *ListHasAllQuery  `json:"all,omitempty"`
	Any         *ListHasAnyQuery  `json:"any,omitempty"`
	MatchPhrase *MatchPhraseQuery `json:"match_phrase,omitempty"`
	Exists      *ExistsQuery      `json:"exists,omitempty"`
	Wildcard    *WildcardQuery    `json:"wildcard,omitempty"`
	Range       *RangeQuery       `json:"range,omitempty"`
	Bool        *BoolQuery        `json:"bool,omitempty"`
}

// MatchQuery is a case-insensitive substring match on a text field.
type MatchQuery struct {
	Field           string `json:"field"`
	Value           string `json:"value"`
	ForceNotPayload bool   `json:"force_not_payload,omitempty"`
}

// TermQuery is an exact-value comparison.
type TermQuery struct {
	Field           string      `json:"field"`
	Value           interface{} `json:"value"`
	ForceNotPayload bool        `json:"force_not_payload,omitempty"`
}

// TermsQuery matches when the field equals any of the given values.
type TermsQuery struct {
	Field           string        `json:"field"`
	Values          []interface{} `json:"values"`
	ForceNotPayload bool          `json:"force_not_payload,omitempty"`
}

// ListHasAllQuery matches when a JSON array field contains every value.
type ListHasAllQuery struct {
	Field           string        `json:"field"`
	Values          []interface{} `json:"values"`
	ForceNotPayload bool          `json:"force_not_payload,omitempty"`
}

// ListHasAnyQuery matches when a JSON array field contains at least one value.
type ListHasAnyQuery struct {
	Field           string        `json:"field"`
	Values          []interface{} `json:"values"`
	ForceNotPayload bool          `json:"force_not_payload,omitempty"`
}

// MatchPhraseQuery is a case-insensitive whole-phrase match.
type MatchPhraseQuery struct {
	Field           string `json:"field"`
	Value           string `json:"value"`
	ForceNotPayload bool   `json:"force_not_payload,omitempty"`
}

type ExistsQuery struct {
	Field           string `json:"field"`
	ForceNotPayload bool   `json:"force_not_payload,omitempty"`
}

// WildcardQuery matches a glob pattern where '*' and '?' are wildcards.
type WildcardQuery struct {
	Field           string `json:"field"`
	Pattern         string `json:"pattern"`
	ForceNotPayload bool   `json:"force_not_payload,omitempty"`
}

// RangeQuery compares a numeric field against any subset of bounds.
type RangeQuery struct {
	Field           string   `json:"field"`
	Gt              *float64 `json:"gt,omitempty"`
	Gte             *float64 `json:"gte,omitempty"`
	Lt              *float64 `json:"lt,omitempty"`
	Lte             *float64 `json:"lte,omitempty"`
	ForceNotPayload bool     `json:"force_not_payload,omitempty"`
}

// BoolQuery combines sub-filters. must and filter clauses all have to match,
// must_not clauses must not match, and at least one should clause has to
// match when no must/filter clause is present.
type BoolQuery struct {
	Must    []PayloadFilter `json:"must,omitempty"`
	Should  []PayloadFilter `json:"should,omitempty"`
	Filter  []PayloadFilter `json:"filter,omitempty"`
	MustNot []PayloadFilter `json:"must_not,omitempty"`
}

// Validate rejects nodes with zero or more than one member set and
// recursively validates bool clauses.
func (f *PayloadFilter) Validate() error {
	if f == nil {
		return nil
	}
	count := 0
	if f.Match != nil {
		count++
	}
	if f.Term != nil {
		count++
	}
	if f.Terms != nil {
		count++
	}
	if f.All != nil {
		count++
	}
	if f.Any != nil {
		count++
	}
	if f.MatchPhrase != nil {
		count++
	}
	if f.Exists != nil {
		count++
	}
	if f.Wildcard != nil {
		count++
	}
	if f.Range != nil {
		count++
	}
	if f.Bool != nil {
		count++
	}
	if count != 1 {
		return fmt.Errorf("filter node must set exactly one query, got %d", count)
	}
	if f.Range != nil && f.Range.Gt == nil && f.Range.Gte == nil && f.Range.Lt == nil && f.Range.Lte == nil {
		return fmt.Errorf("range query on %q has no bounds", f.Range.Field)
	}
	if f.Bool != nil {
		for _, clauses := range [][]PayloadFilter{f.Bool.Must, f.Bool.Should, f.Bool.Filter, f.Bool.MustNot} {
			for i := range clauses {
				if err := clauses[i].Validate(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
