package constants

import (
	"fmt"
	"strings"
)

// DataType is the value domain of a configured invoice field.
type DataType string

const (
	DataTypeText     DataType = "text"
	DataTypeNumber   DataType = "number"
	DataTypeDate     DataType = "date"
	DataTypeCurrency DataType = "currency"
	DataTypeArray    DataType = "array"
)

// DataTypes lists every supported data type in display order.
var DataTypes = []DataType{
	DataTypeText,
	DataTypeNumber,
	DataTypeDate,
	DataTypeCurrency,
	DataTypeArray,
}

// Validation rule keys and the data types that interpret them.
const (
	RuleFormat   = "format"    // date
	RuleMinValue = "min_value" // number, currency
	RuleItemType = "item_type" // array
)

// ParseDataType maps free-form input onto a DataType; empty input means text.
func ParseDataType(s string) (DataType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return DataTypeText, nil
	}
	for _, dt := range DataTypes {
		if string(dt) == v {
			return dt, nil
		}
	}
	return "", fmt.Errorf("unknown data type %q", s)
}

// IsNumeric reports whether min_value applies to the type.
func (d DataType) IsNumeric() bool {
	return d == DataTypeNumber || d == DataTypeCurrency
}
