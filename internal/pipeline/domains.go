package pipeline

import (
	"github.com/mkessler-dev/ledgermatch/internal/domain/matcher"
	"github.com/mkessler-dev/ledgermatch/internal/sources"
)

// domainSpec is the static part of a deep path: patterns and tolerances.
// Windows and tolerances track each source's payment-rail latency and
// rounding behavior: card-settled retail posts within a couple of days and
// matches to the cent, while billed domains drift further and may round.
type domainSpec struct {
	name     string
	patterns []string
	config   matcher.Config
}

var domainSpecs = []domainSpec{
	{
		name:     "retail",
		patterns: []string{"amazon", "amzn", "walmart", "wal-mart", "target.com", "ebay", "etsy"},
		config:   matcher.Config{DateWindowDays: 3, AmountTolerance: 0.01},
	},
	{
		name:     "warehouse",
		patterns: []string{"costco", "sam's club", "sams club", "bj's wholesale"},
		config:   matcher.Config{DateWindowDays: 2, AmountTolerance: 0.01},
	},
	{
		name:     "utility",
		patterns: []string{"electric", "power & light", "water dept", "gas co", "utility", "comcast", "xfinity"},
		config:   matcher.Config{DateWindowDays: 5, AmountTolerance: 1.00},
	},
	{
		name:     "insurance",
		patterns: []string{"insurance", "geico", "allstate", "state farm", "progressive ins"},
		config:   matcher.Config{DateWindowDays: 5, AmountTolerance: 0.50},
	},
	{
		name:     "peerpay",
		patterns: []string{"venmo", "zelle", "cash app", "paypal *"},
		config:   matcher.Config{DateWindowDays: 2, AmountTolerance: 0.01},
	},
}

// BuildDomains assembles the deep-path domains for which a record source is
// available; a domain with no source is skipped and its transactions fall
// through to the regular bucket.
func BuildDomains(recordSources map[string]sources.RecordSource) []Domain {
	var domains []Domain
	for _, spec := range domainSpecs {
		src, ok := recordSources[spec.name]
		if !ok {
			continue
		}
		domains = append(domains, Domain{
			Name:     spec.name,
			Patterns: spec.patterns,
			Matcher:  spec.config,
			Source:   src,
		})
	}
	return domains
}

// DomainNames lists the deep-path domain names in reconciliation order.
func DomainNames() []string {
	names := make([]string, len(domainSpecs))
	for i, spec := range domainSpecs {
		names[i] = spec.name
	}
	return names
}
