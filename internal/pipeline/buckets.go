package pipeline

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/mkessler-dev/ledgermatch/internal/classify"
	"github.com/mkessler-dev/ledgermatch/internal/sources"
)

// Buckets is one partition of the incoming feed: a slice per deep-path
// domain, in domain order, plus the regular leftovers.
type Buckets struct {
	ByDomain map[string][]sources.Transaction
	Regular  []sources.Transaction
}

// partition assigns each transaction to the first domain whose pattern list
// matches its merchant or bank description, case-insensitively. Everything
// unmatched falls into the regular bucket.
func partition(transactions []sources.Transaction, domains []Domain) Buckets {
	buckets := Buckets{ByDomain: make(map[string][]sources.Transaction, len(domains))}

	for _, tx := range transactions {
		assigned := false
		for _, d := range domains {
			if matchesDomain(tx, d) {
				buckets.ByDomain[d.Name] = append(buckets.ByDomain[d.Name], tx)
				assigned = true
				break
			}
		}
		if !assigned {
			buckets.Regular = append(buckets.Regular, tx)
		}
	}

	return buckets
}

func matchesDomain(tx sources.Transaction, d Domain) bool {
	merchant := strings.ToLower(tx.Merchant)
	description := strings.ToLower(tx.BankDescription)

	for _, pattern := range d.Patterns {
		p := strings.ToLower(pattern)
		if strings.Contains(merchant, p) || strings.Contains(description, p) {
			return true
		}
	}
	return false
}

// merchantGroup is a regular-bucket merchant with its member transactions.
type merchantGroup struct {
	classify.MerchantGroup
	Transactions []sources.Transaction
}

// groupMerchants groups regular-bucket transactions by normalized merchant
// name, then folds near-duplicate names (levenshtein distance under 30% of
// the longer name) into the earlier group. Group order follows first
// appearance in the feed so output stays deterministic.
func groupMerchants(transactions []sources.Transaction) []*merchantGroup {
	var groups []*merchantGroup
	index := make(map[string]*merchantGroup)

	for _, tx := range transactions {
		name := normalizeMerchant(tx)

		group, ok := index[name]
		if !ok {
			group = findSimilarGroup(groups, name)
		}
		if group == nil {
			group = &merchantGroup{MerchantGroup: classify.MerchantGroup{Name: name}}
			groups = append(groups, group)
		}
		index[name] = group

		group.Count++
		group.Transactions = append(group.Transactions, tx)
		if len(group.Samples) < 3 && tx.BankDescription != "" {
			group.Samples = append(group.Samples, tx.BankDescription)
		}
	}

	return groups
}

// findSimilarGroup returns an existing group whose name is a near-duplicate
// of name, or nil.
func findSimilarGroup(groups []*merchantGroup, name string) *merchantGroup {
	for _, g := range groups {
		if nearDuplicate(g.Name, name) {
			return g
		}
	}
	return nil
}

// nearDuplicate treats two merchant names as the same merchant when their
// edit distance is under 30% of the longer name. Catches store-number
// suffixes and similar feed noise without merging distinct merchants.
func nearDuplicate(a, b string) bool {
	if a == b {
		return true
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return false
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(dist)/float64(longer) < 0.3
}

// normalizeMerchant produces the grouping key for one transaction: the
// merchant name if present, otherwise the bank description, uppercased with
// whitespace collapsed.
func normalizeMerchant(tx sources.Transaction) string {
	name := tx.Merchant
	if name == "" {
		name = tx.BankDescription
	}
	return strings.Join(strings.Fields(strings.ToUpper(name)), " ")
}

// batchGroups slices groups into classification batches of at most size.
func batchGroups(groups []*merchantGroup, size int) [][]*merchantGroup {
	if size <= 0 {
		size = DefaultOptions().BatchSize
	}

	var batches [][]*merchantGroup
	for start := 0; start < len(groups); start += size {
		end := start + size
		if end > len(groups) {
			end = len(groups)
		}
		batches = append(batches, groups[start:end])
	}
	return batches
}
