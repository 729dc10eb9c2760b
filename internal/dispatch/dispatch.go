// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch implements predicate-to-indexer routing: a tagged-union
// predicate AST, a conjunction-aware meta/data split, and selection of the
// indexer targets a curried predicate must be forwarded to.
package dispatch

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/vast-io/vast/internal/index"
	"github.com/vast-io/vast/internal/value"
	"github.com/vast-io/vast/pkg/log"
)

// ExtractorKind is the tag of a Predicate's left-hand side.
type ExtractorKind uint8

const (
	// Timestamp selects the distinguished "time" indexer.
	Timestamp ExtractorKind = iota
	// Name selects the distinguished "name" indexer.
	Name
	// TypeTag selects every indexer whose leaf carries the given value tag,
	// across every type name in the partition; it deliberately does not
	// disambiguate by offset, so it can over-read but never under-read.
	TypeTag
	// SchemaSuffix selects every leaf whose dotted key path ends with
	// Suffix and whose tag equals the predicate's Tag.
	SchemaSuffix
)

// Predicate is one leaf of the query AST: an extractor plus the curried
// (operator, operand) pair that gets forwarded to whichever indexer(s) the
// extractor resolves to.
type Predicate struct {
	Extractor ExtractorKind
	Tag       value.Tag // meaningful for TypeTag and SchemaSuffix (rhs tag)
	Suffix    []string  // meaningful for SchemaSuffix
	Op        index.Operator
	Operand   value.Value
}

// Conjunction is an AND of Predicates; a Query is evaluated as an OR of
// Conjunctions (disjunctive normal form), which is all the AST shape the
// conjunction-aware split actually needs.
type Conjunction []Predicate

// Query is the full predicate AST handed to Partition.Evaluate.
type Query []Conjunction

// Target names one indexer a Predicate resolves to: Path is the registry
// key Partition uses (either "time", "name", or "<type>/<dotted.key>").
type Target struct {
	Path string
	Tag  value.Tag
}

// Leaf describes one field an indexer lives at, as seen from dispatch's
// point of view (a flattened view across every type name a Partition
// tracks, since TypeTag selection is partition-wide, not per-type).
type Leaf struct {
	TypeName string
	Key      []string
	Tag      value.Tag
}

func (l Leaf) path() string { return l.TypeName + "/" + keyString(l.Key) }

func keyString(key []string) string {
	s := ""
	for i, k := range key {
		if i > 0 {
			s += "."
		}
		s += k
	}
	return s
}

// SelectTargets resolves p to the set of indexer Targets a Partition must
// forward the curried predicate to. nameScope, if non-empty, restricts
// TypeTag/SchemaSuffix selection to the named type: when a name-equality
// predicate fixes the type name within a conjunction, every sibling data
// predicate inherits that scope.
func SelectTargets(leaves []Leaf, p Predicate, nameScope string) []Target {
	switch p.Extractor {
	case Timestamp:
		return []Target{{Path: "time", Tag: value.Time}}
	case Name:
		return []Target{{Path: "name", Tag: value.String}}
	case TypeTag:
		seen := map[string]bool{}
		var out []Target
		for _, l := range leaves {
			if l.Tag != p.Tag {
				continue
			}
			if nameScope != "" && l.TypeName != nameScope {
				continue
			}
			path := l.path()
			if seen[path] {
				continue
			}
			seen[path] = true
			out = append(out, Target{Path: path, Tag: l.Tag})
		}
		return out
	case SchemaSuffix:
		seen := map[string]bool{}
		var out []Target
		matched := false
		for _, l := range leaves {
			if nameScope != "" && l.TypeName != nameScope {
				continue
			}
			if !hasSuffix(l.Key, p.Suffix) {
				continue
			}
			matched = true
			if l.Tag != p.Tag {
				continue // tag mismatch: logged below, contributes nothing
			}
			path := l.path()
			if seen[path] {
				continue
			}
			seen[path] = true
			out = append(out, Target{Path: path, Tag: l.Tag})
		}
		if len(out) == 0 {
			if !matched {
				log.Warnf("dispatch: schema suffix %v matched no field", p.Suffix)
			} else {
				log.Warnf("dispatch: schema suffix %v matched a field of a different tag than %s", p.Suffix, p.Tag)
			}
		}
		return out
	default:
		log.Warnf("dispatch: unknown extractor kind %d", p.Extractor)
		return nil
	}
}

func hasSuffix(key, suffix []string) bool {
	if len(suffix) == 0 || len(suffix) > len(key) {
		return false
	}
	off := len(key) - len(suffix)
	for i, s := range suffix {
		if key[off+i] != s {
			return false
		}
	}
	return true
}

// NameScope scans a Conjunction for an equality Name predicate and returns
// the type name it fixes, or "" if none is present.
func NameScope(c Conjunction) string {
	for _, p := range c {
		if p.Extractor == Name && p.Op == index.Equal {
			if s, ok := p.Operand.String(); ok {
				return s
			}
		}
	}
	return ""
}

// MetaRange is the partition-level metadata a Conjunction's meta
// predicates are checked against without consulting any indexer.
type MetaRange struct {
	FirstEventTimeUnixNano int64
	LastEventTimeUnixNano  int64
	TypeNames              map[string]bool
}

// MetaSatisfiable reports whether c's meta-evaluable predicates (timestamp
// range overlap, and a Name predicate whose type the partition has never
// seen) can hold given the metadata alone, without consulting any
// indexer. A false result means the conjunction is proven empty on this
// partition; a true result means dispatch must still forward c's data
// predicates to their indexers for an exact answer. The meta pass is a
// pre-filter, not a replacement for the indexer pass.
func MetaSatisfiable(c Conjunction, m MetaRange) (bool, error) {
	for _, p := range c {
		switch p.Extractor {
		case Timestamp:
			ok, err := evalTimestampRange(p, m)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		case Name:
			if p.Op == index.Equal {
				if s, ok := p.Operand.String(); ok && m.TypeNames != nil && !m.TypeNames[s] {
					return false, nil
				}
			}
		}
	}
	return true, nil
}

func evalTimestampRange(p Predicate, m MetaRange) (bool, error) {
	t, ok := p.Operand.Time()
	if !ok {
		return false, fmt.Errorf("dispatch: timestamp predicate operand is not a time value")
	}
	operand := t.UnixNano()

	var exprStr string
	switch p.Op {
	case index.Equal:
		exprStr = "rangeFirst <= operand && operand <= rangeLast"
	case index.NotEqual:
		exprStr = "rangeFirst != rangeLast || rangeFirst != operand"
	case index.Less:
		exprStr = "rangeFirst < operand"
	case index.LessEqual:
		exprStr = "rangeFirst <= operand"
	case index.Greater:
		exprStr = "rangeLast > operand"
	case index.GreaterEqual:
		exprStr = "rangeLast >= operand"
	default:
		return false, fmt.Errorf("%s: unsupported operator for timestamp range", p.Op)
	}

	program, err := expr.Compile(exprStr, expr.AsBool())
	if err != nil {
		return false, err
	}
	env := map[string]any{
		"rangeFirst": m.FirstEventTimeUnixNano,
		"rangeLast":  m.LastEventTimeUnixNano,
		"operand":    operand,
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	result, _ := out.(bool)
	return result, nil
}
