package pipeline

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// CollapsePolicy reduces the per-page records of a document to one record.
type CollapsePolicy string

const (
	// CollapseFirst keeps the first record seen for each document.
	CollapseFirst CollapsePolicy = "first"
	// CollapseMostComplete keeps the record with the most filled fields;
	// ties go to the earlier record.
	CollapseMostComplete CollapsePolicy = "most_complete"
)

func ParseCollapsePolicy(s string) (CollapsePolicy, error) {
	switch CollapsePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CollapseFirst:
		return CollapseFirst, nil
	case CollapseMostComplete:
		return CollapseMostComplete, nil
	}
	return "", common.NewAppError("INVALID_COLLAPSE", fmt.Sprintf("unknown collapse policy %q", s), common.ErrInvalidInput)
}

// Collapse returns one record per document ID, ordered by each document's
// first appearance in records.
func (p CollapsePolicy) Collapse(records []entity.FinalRecord) []entity.FinalRecord {
	out := make([]entity.FinalRecord, 0, len(records))
	pos := make(map[string]int, len(records))
	for _, r := range records {
		i, seen := pos[r.DocumentID]
		if !seen {
			pos[r.DocumentID] = len(out)
			out = append(out, r)
			continue
		}
		if p == CollapseMostComplete && r.Fields.Filled() > out[i].Fields.Filled() {
			out[i] = r
		}
	}
	return out
}
