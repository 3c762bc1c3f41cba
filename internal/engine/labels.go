package engine

import (
	"github.com/androidleak/leak-triage/internal/extractors"
	"github.com/androidleak/leak-triage/internal/models"
)

// LabelOrigin records how a case's suspicion labels were obtained.
type LabelOrigin string

const (
	LabelsFromColumn     LabelOrigin = "column"
	LabelsFromMasterList LabelOrigin = "master_list"
	LabelsDefaulted      LabelOrigin = "default"
)

// MasterLister supplies a case's known-bad IP set.
type MasterLister interface {
	MasterIPs(caseID string) (map[string]struct{}, error)
}

// ResolveLabels returns one label per row. An is_suspicious column wins; without
// one, rows are labelled by membership of their IP in the case master list when
// the table carries any IP; otherwise every label is false.
func ResolveLabels(table *models.LogTable, caseID string, lister MasterLister) ([]bool, LabelOrigin, error) {
	labels := make([]bool, table.Len())

	if table.Caps.Label {
		for i := range table.Rows {
			raw, _ := table.Raw(i, models.ColumnLabel)
			v, _ := extractors.Coerce(raw)
			labels[i] = v.OrZero() != 0
		}
		return labels, LabelsFromColumn, nil
	}

	if !table.Caps.IP || !anyIP(table) {
		return labels, LabelsDefaulted, nil
	}

	master, err := lister.MasterIPs(caseID)
	if err != nil {
		return nil, "", err
	}
	for i, row := range table.Rows {
		if row.IP == "" {
			continue
		}
		_, labels[i] = master[row.IP]
	}
	return labels, LabelsFromMasterList, nil
}

func anyIP(table *models.LogTable) bool {
	for _, row := range table.Rows {
		if row.IP != "" {
			return true
		}
	}
	return false
}
