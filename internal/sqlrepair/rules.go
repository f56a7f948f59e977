package sqlrepair

import (
	"regexp"
	"strings"
)

// StatusCase derives a transaction's outcome from its latest event.
const StatusCase = "CASE WHEN event_type = 'SettlementConfirmed' THEN 'SUCCESSFUL' ELSE 'FAILED' END"

// SummarySubquery computes the transaction_summary aggregate from the base table.
const SummarySubquery = "(WITH latest_events AS (" +
	"SELECT transaction_id, event_type, ROW_NUMBER() OVER (PARTITION BY transaction_id ORDER BY timestamp::timestamptz DESC) AS rn " +
	"FROM transactions) " +
	"SELECT COUNT(*) AS total_transactions, " +
	"COUNT(*) FILTER (WHERE event_type = 'SettlementConfirmed') AS successful_transactions, " +
	"COUNT(*) FILTER (WHERE event_type <> 'SettlementConfirmed') AS failed_transactions, " +
	"ROUND(100.0 * COUNT(*) FILTER (WHERE event_type = 'SettlementConfirmed') / NULLIF(COUNT(*), 0), 2) AS success_rate " +
	"FROM latest_events WHERE rn = 1)"

var (
	successRateFilterRe = regexp.MustCompile(`(?i)\bWHERE\s+success_rate\s*(>=|<=|<>|!=|=|<|>)`)
	finalStatusRe       = regexp.MustCompile(`(?i)\bfinal_status\b`)
	summaryTableRe      = regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+transaction_summary\b(\s+(?:AS\s+)?([a-z_][a-z0-9_]*))?`)
	timestampRe         = regexp.MustCompile(`(?i)\b(?:[a-z_][a-z0-9_]*\.)?timestamp\b`)
	clauseRe            = regexp.MustCompile(`(?i)\b(SELECT|FROM|WHERE|GROUP\s+BY|ORDER\s+BY|HAVING|ON|LIMIT)\b`)
	trailingAsRe        = regexp.MustCompile(`(?i)\bAS$`)
	trailingSelectRe    = regexp.MustCompile(`(?i)\bSELECT(\s+DISTINCT)?$`)
	leadingFromRe       = regexp.MustCompile(`(?i)^FROM\b`)
	leadingBetweenRe    = regexp.MustCompile(`(?i)^BETWEEN\b`)
	leadingTypeWordRe   = regexp.MustCompile(`(?i)^(WITH|WITHOUT)\b`)
)

// words that can follow a table reference without being an alias
var clauseWords = map[string]bool{
	"where": true, "join": true, "inner": true, "left": true, "right": true,
	"full": true, "cross": true, "on": true, "group": true, "order": true,
	"limit": true, "having": true, "union": true, "offset": true, "natural": true,
}

// SuccessRateFilter turns `WHERE success_rate <op>` into a scalar lookup,
// since success_rate only exists on the aggregate.
func SuccessRateFilter(sql string) string {
	return successRateFilterRe.ReplaceAllString(sql, "WHERE (SELECT success_rate FROM transaction_summary) $1")
}

// FinalStatus replaces final_status references with the status CASE. Alias
// definitions (AS final_status) and qualified or quoted names are kept.
func FinalStatus(sql string) string {
	return rewriteTokens(sql, finalStatusRe, func(start, end int) (string, int, int, bool) {
		before := strings.TrimRight(sql[:start], " \t\r\n")
		if trailingAsRe.MatchString(before) {
			return "", 0, 0, false
		}
		if start > 0 && strings.ContainsRune(`.'"`, rune(sql[start-1])) {
			return "", 0, 0, false
		}

		if clauseAt(sql, start) == "SELECT" && standaloneSelectItem(before, sql[end:]) {
			return StatusCase + " AS final_status", start, end, true
		}
		return "(" + StatusCase + ")", start, end, true
	})
}

// TransactionSummary inlines the transaction_summary aggregate, which is not a
// real table. An existing alias is preserved.
func TransactionSummary(sql string) string {
	return summaryTableRe.ReplaceAllStringFunc(sql, func(m string) string {
		sub := summaryTableRe.FindStringSubmatch(m)
		keyword, aliasPart, alias := sub[1], sub[2], sub[3]

		if alias == "" || clauseWords[strings.ToLower(alias)] {
			return keyword + " " + SummarySubquery + " AS transaction_summary" + aliasPart
		}
		return keyword + " " + SummarySubquery + " AS " + alias
	})
}

// TimestampCast adds ::timestamptz to the text timestamp column where it is
// compared, or used in ORDER BY / GROUP BY. Already-cast references and uses
// of timestamp as a type name are left alone.
func TimestampCast(sql string) string {
	return rewriteTokens(sql, timestampRe, func(start, end int) (string, int, int, bool) {
		if start > 0 && end < len(sql) && sql[start-1] == '"' && sql[end] == '"' {
			start--
			end++
		}

		before := strings.TrimRight(sql[:start], " \t\r\n")
		after := strings.TrimLeft(sql[end:], " \t\r\n")

		switch {
		case start > 0 && sql[start-1] == '\'':
			return "", 0, 0, false
		case strings.HasSuffix(before, "::"), strings.HasPrefix(after, "::"):
			return "", 0, 0, false
		case trailingAsRe.MatchString(before):
			return "", 0, 0, false
		case strings.HasPrefix(after, "'"), leadingTypeWordRe.MatchString(after):
			return "", 0, 0, false
		}

		clause := clauseAt(sql, start)
		compared := startsWithComparison(after) || endsWithComparison(before)
		if !compared && clause != "ORDER BY" && clause != "GROUP BY" {
			return "", 0, 0, false
		}
		return sql[start:end] + "::timestamptz", start, end, true
	})
}

// rewriteTokens walks every match of re and lets fn replace the span
// [start, end), which fn may widen.
func rewriteTokens(sql string, re *regexp.Regexp, fn func(start, end int) (string, int, int, bool)) string {
	locs := re.FindAllStringIndex(sql, -1)
	if len(locs) == 0 {
		return sql
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		repl, start, end, ok := fn(loc[0], loc[1])
		if !ok || start < last {
			continue
		}
		b.WriteString(sql[last:start])
		b.WriteString(repl)
		last = end
	}
	b.WriteString(sql[last:])
	return b.String()
}

// clauseAt returns the last clause keyword before pos, normalised.
func clauseAt(sql string, pos int) string {
	locs := clauseRe.FindAllStringIndex(sql[:pos], -1)
	if len(locs) == 0 {
		return ""
	}
	loc := locs[len(locs)-1]
	return strings.Join(strings.Fields(strings.ToUpper(sql[loc[0]:loc[1]])), " ")
}

func standaloneSelectItem(before, after string) bool {
	after = strings.TrimLeft(after, " \t\r\n")
	leftOK := strings.HasSuffix(before, ",") || trailingSelectRe.MatchString(before)
	rightOK := after == "" || strings.HasPrefix(after, ",") || strings.HasPrefix(after, ";") || leadingFromRe.MatchString(after)
	return leftOK && rightOK
}

func startsWithComparison(s string) bool {
	for _, op := range []string{">=", "<=", "<>", "!=", "=", "<", ">"} {
		if strings.HasPrefix(s, op) {
			return true
		}
	}
	return leadingBetweenRe.MatchString(s)
}

func endsWithComparison(s string) bool {
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '=', '<', '>':
		return true
	}
	return false
}
