package fields

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

const jsonArrayDirective = `Return ONLY a JSON array, with no prose and no markdown: [{"field_name": "value", ...}]`

// BuildExtractionInstruction renders the instruction for the extraction call.
// The output depends only on the schema and the selection.
func (s *Schema) BuildExtractionInstruction(selection []string) string {
	return ExtractionInstruction(s.ActiveFields(selection))
}

// BuildVerificationInstruction renders the instruction for the verification call.
func (s *Schema) BuildVerificationInstruction(selection []string) string {
	return VerificationInstruction(s.ActiveFields(selection))
}

// BuildEnrichmentInstruction renders the instruction for the ambiguity call.
func (s *Schema) BuildEnrichmentInstruction(selection []string) string {
	return EnrichmentInstruction(s.ActiveFields(selection))
}

func ExtractionInstruction(active []FieldDefinition) string {
	var b strings.Builder
	b.WriteString("You are an expert in finance and document data extraction. ")
	b.WriteString("Analyze the attached image and decide whether it is an invoice. ")
	b.WriteString("An invoice shows a clear amount to be paid. ")
	b.WriteString("If it is an invoice, extract the fields below for every invoice on the page; if it is not, return [].\n\n")

	b.WriteString("Fields to extract (nothing else):\n")
	writeFieldList(&b, active)

	b.WriteString("\nGuard rails:\n")
	for _, f := range active {
		if f.ExtractionHints != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f.Label, f.ExtractionHints)
		}
		if _, ok := f.MinValue(); ok {
			fmt.Fprintf(&b, "- %s cannot be empty or zero\n", f.Label)
		}
		if format, ok := f.Format(); ok {
			fmt.Fprintf(&b, "- %s must be in %s format\n", f.Label, format)
		}
	}
	b.WriteString("- Translate any non-English text to English\n")
	b.WriteString("- Use the printed labels to identify fields\n")
	b.WriteString("- Use null for a field that is not on the page and has no default\n")
	b.WriteString("\n")
	b.WriteString(jsonArrayDirective)
	b.WriteString("\n")
	return b.String()
}

func VerificationInstruction(active []FieldDefinition) string {
	var b strings.Builder
	b.WriteString("You are a financial OCR validator. Below is the JSON extracted from the document, and the page image is attached. ")
	b.WriteString("Check every field against the image, fix any mistakes and fill in missing values.\n\n")

	b.WriteString("Fields:\n")
	writeFieldList(&b, active)

	b.WriteString("\nValidation rules:\n")
	for _, f := range active {
		if f.Required {
			fmt.Fprintf(&b, "- %s cannot be empty\n", f.Label)
		}
		if f.DefaultValue != "" {
			fmt.Fprintf(&b, "- %s defaults to %s if not found\n", f.Label, f.DefaultValue)
		}
		if f.ExtractionHints != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f.Label, f.ExtractionHints)
		}
		if format, ok := f.Format(); ok {
			fmt.Fprintf(&b, "- %s format: %s\n", f.Label, format)
		}
		if min, ok := f.MinValue(); ok {
			fmt.Fprintf(&b, "- %s cannot be below %s\n", f.Label, formatNumber(min))
		}
		if it, ok := f.ItemType(); ok {
			fmt.Fprintf(&b, "- %s must be an array of %s values\n", f.Label, it)
		}
	}
	b.WriteString("- Translate any non-English text to English\n")
	b.WriteString("- Keep values that are already correct and do not invent values that are not on the page\n")
	b.WriteString("\nReturn the corrected record with the same keys. ")
	b.WriteString(jsonArrayDirective)
	b.WriteString("\n")
	return b.String()
}

func EnrichmentInstruction(active []FieldDefinition) string {
	var b strings.Builder
	b.WriteString("You are reviewing an invoice image for fields that could be read in more than one way. ")
	b.WriteString("For each field below, list every plausible reading you can see on the page and give each a confidence score from 0 to 100.\n\n")

	b.WriteString("Fields:\n")
	for i, f := range active {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, f.Name, f.Label)
	}

	b.WriteString("\nUse the field names above as keys. Include a short reason when a field has several readings. ")
	b.WriteString("Return ONLY JSON, with no prose and no markdown, in this shape:\n")
	b.WriteString(`{"field_name": {"options": [{"option": "value", "score": 90}, {"option": "other value", "score": 10}], "reason": "why the field is ambiguous"}}`)
	b.WriteString("\n")
	return b.String()
}

func writeFieldList(b *strings.Builder, active []FieldDefinition) {
	for i, f := range active {
		fmt.Fprintf(b, "%d. %s", i+1, f.Name)
		if f.Label != "" && f.Label != f.Name {
			fmt.Fprintf(b, " [%s]", f.Label)
		}
		b.WriteString(" (")
		b.WriteString(f.Description)
		if f.Required {
			b.WriteString(" - REQUIRED")
		} else {
			b.WriteString(" - optional")
		}
		if f.DefaultValue != "" {
			fmt.Fprintf(b, " - defaults to %s", f.DefaultValue)
		}
		switch {
		case f.DataType == constants.DataTypeDate:
			if format, ok := f.Format(); ok {
				fmt.Fprintf(b, " - format: %s", format)
			}
		case f.DataType.IsNumeric():
			b.WriteString(" - number without currency symbols or thousands separators")
			if min, ok := f.MinValue(); ok {
				fmt.Fprintf(b, " - minimum %s", formatNumber(min))
			}
		case f.DataType == constants.DataTypeArray:
			if it, ok := f.ItemType(); ok {
				fmt.Fprintf(b, " - array of %s values only", it)
			} else {
				b.WriteString(" - array")
			}
		}
		b.WriteString(")\n")
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
