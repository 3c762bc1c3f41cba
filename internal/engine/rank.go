package engine

import (
	"sort"
	"strconv"
	"strings"

	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

// Output columns shared with the dashboard and the enrichment layer.
const (
	ColumnPredicted   = "predicted_suspicious"
	ColumnProbability = "suspicion_probability"
	ColumnEventCount  = "event_count"
	ColumnRiskLevel   = "risk_level"
)

// RankedHeader is the fixed column set of the ranked-IP output.
var RankedHeader = []string{
	models.ColumnIP,
	ColumnProbability,
	models.ColumnTimestamp,
	models.ColumnDomain,
	ColumnEventCount,
	ColumnRiskLevel,
}

// Rank groups flagged rows by IP and returns them by descending probability.
// Rows without an IP are not ranked.
func Rank(table *models.LogTable, preds []int, probs []float64) []models.RankedIP {
	byIP := make(map[string]*models.RankedIP)
	domains := make(map[string]map[string]struct{})

	for i, row := range table.Rows {
		if preds[i] != 1 || row.IP == "" {
			continue
		}
		r, ok := byIP[row.IP]
		if !ok {
			r = &models.RankedIP{IP: row.IP, Probability: probs[i]}
			byIP[row.IP] = r
			domains[row.IP] = make(map[string]struct{})
		}
		r.EventCount++
		if probs[i] > r.Probability {
			r.Probability = probs[i]
		}
		if row.HasTimestamp() && (r.FirstSeen.IsZero() || row.Timestamp.Before(r.FirstSeen)) {
			r.FirstSeen = row.Timestamp
		}
		if row.Domain != "" {
			domains[row.IP][row.Domain] = struct{}{}
		}
	}

	ranked := make([]models.RankedIP, 0, len(byIP))
	for ip, r := range byIP {
		for d := range domains[ip] {
			r.Domains = append(r.Domains, d)
		}
		sort.Strings(r.Domains)
		r.Tier = models.TierFor(r.Probability)
		ranked = append(ranked, *r)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Probability != ranked[j].Probability {
			return ranked[i].Probability > ranked[j].Probability
		}
		return ranked[i].IP < ranked[j].IP
	})
	return ranked
}

// Distribution counts ranked IPs per tier; every tier is present.
func Distribution(ranked []models.RankedIP) models.TierDistribution {
	dist := make(models.TierDistribution, len(models.Tiers))
	for _, tier := range models.Tiers {
		dist[tier] = 0
	}
	for _, r := range ranked {
		dist[r.Tier]++
	}
	return dist
}

// rankedRecords renders ranked IPs in RankedHeader order.
func rankedRecords(ranked []models.RankedIP) [][]string {
	records := make([][]string, len(ranked))
	for i, r := range ranked {
		records[i] = []string{
			r.IP,
			formatFloat(r.Probability),
			utils.FormatTimestamp(r.FirstSeen),
			strings.Join(r.Domains, ";"),
			strconv.Itoa(r.EventCount),
			string(r.Tier),
		}
	}
	return records
}

// flaggedRecords renders every predicted-suspicious row with its original
// columns, derived features absent from the input, and the prediction columns.
// labels, when set, adds an is_suspicious column if the input lacked one.
func flaggedRecords(table *models.LogTable, labels []bool, preds []int, probs []float64) ([]string, [][]string) {
	header := append([]string(nil), table.Columns...)
	var derived []string
	for _, name := range table.Features.Names() {
		if !table.HasColumn(name) {
			derived = append(derived, name)
		}
	}
	header = append(header, derived...)
	addLabel := labels != nil && !table.HasColumn(models.ColumnLabel)
	if addLabel {
		header = append(header, models.ColumnLabel)
	}
	header = append(header, ColumnPredicted, ColumnProbability)

	var records [][]string
	for i, row := range table.Rows {
		if preds[i] != 1 {
			continue
		}
		rec := make([]string, 0, len(header))
		for _, name := range table.Columns {
			rec = append(rec, row.Fields[name])
		}
		for _, name := range derived {
			v := table.Features.Column(name)[i]
			if v.Valid {
				rec = append(rec, formatFloat(v.Value))
			} else {
				rec = append(rec, "")
			}
		}
		if addLabel {
			rec = append(rec, boolDigit(labels[i]))
		}
		rec = append(rec, strconv.Itoa(preds[i]), formatFloat(probs[i]))
		records = append(records, rec)
	}
	return header, records
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
