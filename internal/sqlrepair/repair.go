// Package sqlrepair rewrites model-generated SQL to fix references that are
// known not to exist in the transactions table.
package sqlrepair

// Rule is a pure text-to-text rewrite. Applying a rule to its own output
// must not change it.
type Rule struct {
	Name  string
	Apply func(string) string
}

// Rules run in this order:
//  1. success_rate filters become a scalar lookup on transaction_summary
//  2. final_status references become the inline status CASE
//  3. transaction_summary becomes an inline aggregate subquery
//  4. bare timestamp comparisons, orderings and groupings get ::timestamptz
//
// success_rate_filter must precede transaction_summary because it introduces
// a reference to that table.
var Rules = []Rule{
	{Name: "success_rate_filter", Apply: SuccessRateFilter},
	{Name: "final_status", Apply: FinalStatus},
	{Name: "transaction_summary", Apply: TransactionSummary},
	{Name: "timestamp_cast", Apply: TimestampCast},
}

// Repair applies every rule in order. Input it does not recognise passes
// through unchanged.
func Repair(sql string) string {
	fixed, _ := RepairTrace(sql)
	return fixed
}

// RepairTrace is Repair that also reports which rules changed the text.
func RepairTrace(sql string) (string, []string) {
	var applied []string
	for _, r := range Rules {
		next := r.Apply(sql)
		if next != sql {
			applied = append(applied, r.Name)
		}
		sql = next
	}
	return sql, applied
}
