package conversion

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/biobroker/biobroker/internal/schema"
)

// listSeparator splits multi-valued cells
const listSeparator = "||"

// converter turns one raw cell fragment into a typed value
type converter func(raw string) (any, error)

// converterFor selects the converter for a property's value type
func converterFor(valueType schema.ValueType) converter {
	switch valueType {
	case schema.ValueInteger:
		return convertInteger
	case schema.ValueBoolean:
		return convertBoolean
	case schema.ValueNumber:
		return convertNumber
	default:
		return convertString
	}
}

func convertString(raw string) (any, error) {
	return raw, nil
}

func convertInteger(raw string) (any, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer value %q", raw)
	}
	return n, nil
}

func convertNumber(raw string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number value %q", raw)
	}
	return f, nil
}

// convertBoolean maps the closed set {true, yes} / {false, no},
// case-insensitively.
func convertBoolean(raw string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes":
		return true, nil
	case "false", "no":
		return false, nil
	default:
		return nil, &InvalidBooleanValueError{Value: strings.TrimSpace(raw)}
	}
}

// convertCell applies a converter to a raw cell, element-wise for
// multi-valued fields.
func convertCell(raw string, multivalue bool, convert converter) (any, error) {
	if !multivalue {
		return convert(strings.TrimSpace(raw))
	}
	parts := strings.Split(raw, listSeparator)
	values := make([]any, 0, len(parts))
	for _, part := range parts {
		v, err := convert(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
