package fields

import "github.com/joseph-ayodele/invoice-extractor/constants"

// Built-in preset names.
const (
	PresetCommercial = "Commercial Invoice"
	PresetSalesTax   = "Sales Tax Invoice"
	PresetFull       = "Full Pakistani Invoice"
)

// DefaultFields returns the built-in invoice field set.
func DefaultFields() []FieldDefinition {
	return []FieldDefinition{
		{
			Name:            "invoice_type",
			Label:           "Invoice Type",
			Description:     "Type of invoice (e.g. Commercial, Sales Tax, Proforma)",
			DataType:        constants.DataTypeText,
			Required:        true,
			ExtractionHints: "Look for document headers or titles",
		},
		{
			Name:            "invoice_number",
			Label:           "Invoice Number",
			Description:     "Unique identifier for the invoice",
			DataType:        constants.DataTypeText,
			Required:        true,
			ExtractionHints: "Usually labeled as 'Invoice No', 'Bill No' or 'Doc No'",
		},
		{
			Name:            "buyer_name",
			Label:           "Buyer Name",
			Description:     "Name of the purchasing company or individual",
			DataType:        constants.DataTypeText,
			Required:        true,
			ExtractionHints: "May be labeled as 'Buyer', 'Customer', 'Bill To' or 'Sold To'",
		},
		{
			Name:            "supplier_name",
			Label:           "Supplier Name",
			Description:     "Name of the selling company or individual",
			DataType:        constants.DataTypeText,
			Required:        true,
			ExtractionHints: "Usually at the top of the invoice, in the header or labeled as 'Seller'",
		},
		{
			Name:            "invoice_date",
			Label:           "Invoice Date",
			Description:     "Date when the invoice was issued",
			DataType:        constants.DataTypeDate,
			Required:        true,
			ValidationRules: map[string]any{constants.RuleFormat: "DD-MM-YYYY"},
			ExtractionHints: "Convert any date format to DD-MM-YYYY",
		},
		{
			Name:            "total_invoice_amount",
			Label:           "Total Invoice Amount",
			Description:     "Total amount to be paid",
			DataType:        constants.DataTypeCurrency,
			Required:        true,
			ValidationRules: map[string]any{constants.RuleMinValue: 0.0},
			ExtractionHints: "Final total amount, cannot be zero or empty",
		},
		{
			Name:            "sales_tax_amount",
			Label:           "Sales Tax Amount",
			Description:     "Amount of sales tax charged",
			DataType:        constants.DataTypeCurrency,
			ExtractionHints: "May be labeled as GST, VAT, Sales Tax or Tax Amount",
		},
		{
			Name:            "currency",
			Label:           "Currency",
			Description:     "Currency of the invoice amounts",
			DataType:        constants.DataTypeText,
			DefaultValue:    "PKR",
			ExtractionHints: "If not found, default to PKR",
		},
		{
			Name:            "po_numbers",
			Label:           "PO Numbers",
			Description:     "Purchase Order numbers referenced in the invoice",
			DataType:        constants.DataTypeArray,
			ValidationRules: map[string]any{constants.RuleItemType: string(constants.DataTypeNumber)},
			ExtractionHints: "Must be numeric values with proper PO labels",
		},
		{
			Name:            "delivery_challan_number",
			Label:           "Delivery Challan Number",
			Description:     "Delivery challan or delivery order number",
			DataType:        constants.DataTypeText,
			ExtractionHints: "Look for DCN, Delivery Order or Challan Number, not Gate Pass",
		},
		{
			Name:            "hs_code",
			Label:           "HS Code",
			Description:     "Harmonized System commodity classification code",
			DataType:        constants.DataTypeText,
			ExtractionHints: "Usually a numeric code for product classification",
		},
		{
			Name:            "ntn_number",
			Label:           "NTN Number",
			Description:     "National Tax Number",
			DataType:        constants.DataTypeText,
			ExtractionHints: "Tax identification number",
		},
	}
}

// DefaultPresets returns the built-in presets over DefaultFields.
func DefaultPresets() map[string][]string {
	return map[string][]string{
		PresetCommercial: {
			"invoice_type", "invoice_number", "buyer_name", "supplier_name",
			"invoice_date", "total_invoice_amount", "currency", "po_numbers",
		},
		PresetSalesTax: {
			"invoice_type", "invoice_number", "buyer_name", "supplier_name",
			"invoice_date", "total_invoice_amount", "sales_tax_amount",
			"currency", "ntn_number",
		},
		PresetFull: Names(DefaultFields()),
	}
}

// DefaultSchema returns a fresh schema holding the built-in fields and presets.
func DefaultSchema() *Schema {
	s, err := NewSchema(DefaultFields(), DefaultPresets())
	if err != nil {
		panic("fields: invalid built-in schema: " + err.Error())
	}
	return s
}
