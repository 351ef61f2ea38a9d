package entity

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Selector operators understood by Criterion.Matches.
const (
	OperatorEqual    = "="
	OperatorNotEqual = "!="
	OperatorIn       = "in"
	OperatorLike     = "like"
)

// Matches evaluates the criterion against an asset. Malformed criteria
// (unknown operator, missing operands, operand shapes the operator cannot
// use) never match.
func (c Criterion) Matches(a Asset) bool {
	left, ok := resolveOperand(a, c.OperandLeft)
	if !ok || !isScalar(left) {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(c.Operator)) {
	case OperatorEqual:
		return scalarEqual(left, c.OperandRight)
	case OperatorNotEqual:
		if !isScalar(c.OperandRight) {
			return false
		}
		return !scalarEqual(left, c.OperandRight)
	case OperatorIn:
		return inOperand(left, c.OperandRight)
	case OperatorLike:
		pattern, ok := c.OperandRight.(string)
		if !ok {
			return false
		}
		return likeMatch(fmt.Sprint(left), pattern)
	default:
		return false
	}
}

func resolveOperand(a Asset, operand string) (any, bool) {
	operand = strings.TrimSpace(operand)
	if operand == "" {
		return nil, false
	}
	switch operand {
	case "id", "@id", EDCNamespace + "id":
		return a.ID, a.ID != ""
	}
	return a.Property(localName(operand))
}

func inOperand(left, right any) bool {
	if right == nil {
		return false
	}
	rv := reflect.ValueOf(right)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return scalarEqual(left, right)
	}
	for i := 0; i < rv.Len(); i++ {
		if scalarEqual(left, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

func scalarEqual(left, right any) bool {
	if !isScalar(left) || !isScalar(right) {
		return false
	}
	return fmt.Sprint(left) == fmt.Sprint(right)
}

func isScalar(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// likeMatch implements SQL LIKE with % and _ wildcards.
func likeMatch(value, pattern string) bool {
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(value)
}
