package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/androidleak/leak-triage/internal/extractors"
	"github.com/androidleak/leak-triage/internal/models"
)

func TestRankTiers(t *testing.T) {
	tbl := table(t, "ip\n1.1.1.1\n2.2.2.2\n3.3.3.3\n")
	ranked := Rank(tbl, []int{1, 1, 1}, []float64{0.95, 0.75, 0.5})

	require.Len(t, ranked, 3)
	var tiers []models.RiskTier
	for _, r := range ranked {
		tiers = append(tiers, r.Tier)
	}
	assert.Equal(t, []models.RiskTier{models.RiskHigh, models.RiskMedium, models.RiskLow}, tiers)
	assert.Equal(t, models.TierDistribution{models.RiskHigh: 1, models.RiskMedium: 1, models.RiskLow: 1}, Distribution(ranked))
}

func TestRankAggregatesPerIP(t *testing.T) {
	tbl := table(t, "timestamp,domain,ip\n"+
		"2024-01-01T05:00:00,b.xyz,6.6.6.6\n"+
		"2024-01-01T03:00:00,a.xyz,6.6.6.6\n"+
		",a.xyz,6.6.6.6\n"+
		"2024-01-01T01:00:00,c.com,6.6.6.6\n"+
		"2024-01-01T02:00:00,d.com,\n"+
		"2024-01-01T02:00:00,e.com,7.7.7.7\n")
	preds := []int{1, 1, 1, 0, 1, 1}
	probs := []float64{0.8, 0.93, 0.6, 0.99, 0.97, 0.71}

	ranked := Rank(tbl, preds, probs)
	require.Len(t, ranked, 2)

	top := ranked[0]
	assert.Equal(t, "6.6.6.6", top.IP)
	assert.Equal(t, 0.93, top.Probability)
	assert.Equal(t, time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), top.FirstSeen)
	assert.Equal(t, []string{"a.xyz", "b.xyz"}, top.Domains)
	assert.Equal(t, 3, top.EventCount)
	assert.Equal(t, models.RiskHigh, top.Tier)

	assert.Equal(t, "7.7.7.7", ranked[1].IP)
	assert.Equal(t, models.RiskMedium, ranked[1].Tier)

	records := rankedRecords(ranked)
	assert.Equal(t, []string{"6.6.6.6", "0.93", "2024-01-01 03:00:00", "a.xyz;b.xyz", "3", "High"}, records[0])
}

func TestDistributionAlwaysListsEveryTier(t *testing.T) {
	dist := Distribution(nil)
	assert.Equal(t, models.TierDistribution{models.RiskHigh: 0, models.RiskMedium: 0, models.RiskLow: 0}, dist)
}

func TestFlaggedRecordsColumns(t *testing.T) {
	tbl := table(t, "timestamp,ip,app\n2024-01-01T03:00:00,1.2.3.4,chat\n2024-01-01T14:00:00,5.6.7.8,mail\n")
	derived := extractors.NewEngineer(nil, extractors.DefaultOptions()).Derive(tbl)
	aligned, _ := extractors.Align(derived, models.DefaultFeatureSchema())

	header, records := flaggedRecords(aligned, []bool{true, false}, []int{1, 0}, []float64{0.91, 0.2})
	assert.Equal(t, []string{"timestamp", "ip", "app"}, header[:3])
	assert.Contains(t, header, models.FeatureHour)
	assert.Contains(t, header, models.ColumnLabel)
	assert.Equal(t, []string{ColumnPredicted, ColumnProbability}, header[len(header)-2:])

	require.Len(t, records, 1)
	row := records[0]
	require.Len(t, row, len(header))
	assert.Equal(t, "2024-01-01T03:00:00", row[0])
	assert.Equal(t, "chat", row[2])
	assert.Equal(t, []string{"1", "1", "0.91"}, row[len(row)-3:])
	for i, name := range header {
		if name == models.FeatureHour {
			assert.Equal(t, "3", row[i])
		}
	}

	header, _ = flaggedRecords(aligned, nil, []int{0, 0}, []float64{0, 0})
	assert.NotContains(t, header, models.ColumnLabel)
}
