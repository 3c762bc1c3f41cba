package extractors

import (
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/androidleak/leak-triage/internal/models"
)

// DefaultCommonTLDs are suffixes not considered unusual for consumer devices.
var DefaultCommonTLDs = []string{
	"com", "net", "org", "edu", "gov", "mil", "int",
	"io", "co", "app", "dev", "me", "info", "biz",
	"uk", "de", "fr", "nl", "it", "es", "eu", "ch", "se", "no", "fi", "dk", "pl",
	"us", "ca", "au", "nz", "jp", "kr", "in", "br", "mx", "sg",
	"google", "amazon", "apple", "microsoft",
}

// DomainExtractor derives per-table frequency and TLD signals.
type DomainExtractor struct {
	common map[string]struct{}
}

// NewDomainExtractor builds an extractor using the given common TLD list.
func NewDomainExtractor(commonTLDs []string) *DomainExtractor {
	if len(commonTLDs) == 0 {
		commonTLDs = DefaultCommonTLDs
	}
	common := make(map[string]struct{}, len(commonTLDs))
	for _, tld := range commonTLDs {
		common[strings.ToLower(strings.TrimPrefix(tld, "."))] = struct{}{}
	}
	return &DomainExtractor{common: common}
}

// Apply derives domain_count, flag_uncommon_tld and ip_count. A signal already
// supplied by the input (as a raw or feature column) is never overwritten.
func (e *DomainExtractor) Apply(table *models.LogTable) {
	if table.Caps.Domain {
		if !supplied(table, models.FeatureDomainCount) {
			table.Features.Set(models.FeatureDomainCount, frequency(table, func(r models.LogRow) string { return strings.ToLower(r.Domain) }))
		}
		if !supplied(table, models.FeatureUncommonTLD) {
			flags := make([]models.NullFloat, table.Len())
			for i, row := range table.Rows {
				if row.Domain == "" {
					flags[i] = models.Null
					continue
				}
				flags[i] = models.Bool(e.Uncommon(row.Domain))
			}
			table.Features.Set(models.FeatureUncommonTLD, flags)
		}
	}
	if table.Caps.IP && !supplied(table, models.FeatureIPCount) {
		table.Features.Set(models.FeatureIPCount, frequency(table, func(r models.LogRow) string { return r.IP }))
	}
}

// Uncommon reports whether the domain's public suffix falls outside the common set.
func (e *DomainExtractor) Uncommon(domain string) bool {
	domain = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
	if domain == "" || net.ParseIP(domain) != nil {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	if _, ok := e.common[suffix]; ok {
		return false
	}
	tld := suffix
	if idx := strings.LastIndex(suffix, "."); idx >= 0 {
		tld = suffix[idx+1:]
	}
	_, ok := e.common[tld]
	return !ok
}

func supplied(table *models.LogTable, name string) bool {
	return table.Features.Has(name) || table.HasColumn(name)
}

func frequency(table *models.LogTable, key func(models.LogRow) string) []models.NullFloat {
	counts := make(map[string]int)
	for _, row := range table.Rows {
		if k := key(row); k != "" {
			counts[k]++
		}
	}
	out := make([]models.NullFloat, table.Len())
	for i, row := range table.Rows {
		k := key(row)
		if k == "" {
			out[i] = models.Null
			continue
		}
		out[i] = models.Float(float64(counts[k]))
	}
	return out
}
