package prompt

import (
	"fmt"
	"strings"

	"github.com/entrepeneur4lyf/paycopilot/internal/schema"
)

const eventFlow = `TRANSACTION EVENT FLOW (17 steps):
1. PaymentInitiated -> 2. FiatPaymentProcessing -> 3. FiatPaymentConfirmed -> 4. OnrampKYCCheck ->
5. OnrampKYCApproved -> 6. OnrampQuoteGenerated -> 7. OnrampOrderCreated -> 8. OnrampFiatReceived ->
9. OnrampCryptoMinting -> 10. BlockchainTransactionInitiated -> 11. BlockchainTransactionPending ->
12. BlockchainTransactionConfirmed -> 13. WalletCredited -> 14. OnrampComplete -> 15. LedgerEntryCreated ->
16. SettlementInitiated -> 17. SettlementConfirmed

TRANSACTION STATUS: a transaction succeeded when its latest event is "SettlementConfirmed"; anything else is a failure.`

// QueryType is the system prompt of the classifier
const QueryType = `You decide whether a user's message about payments can be answered directly
or needs data from the transactions database.

Reply with a JSON object: {"query_type": "simple" | "sql"}

Example: "How to resolve this issue?"
Reply: {"query_type": "simple"}

Example: "How many transactions were successful in the last 7 days?"
Reply: {"query_type": "sql"}`

// DataSummary is the system prompt of the analyst that explains results
const DataSummary = `You are a financial transaction analyst for crypto-to-fiat payment processing.

TRANSACTION CONTEXT:
- 17-step process from PaymentInitiated to SettlementConfirmed
- Success = ends with SettlementConfirmed, Failed = stops anywhere else
- Focus on success rates, bottlenecks and user experience

Your analysis should give a clear summary of the findings, the key insights and patterns,
a success/failure breakdown, actionable recommendations, and any risk or compliance observations.
Be concise but thorough; the audience is both technical and business stakeholders.`

// ResponseSummary is the system prompt of the condenser whose output becomes
// context for later turns
const ResponseSummary = `You condense answers produced by a financial transaction analysis assistant.

Keep, in a short but complete summary: the user's question, the SQL used and its purpose,
key findings and metrics, recommendations, notable patterns or anomalies, success/failure rates,
time-based trends, and user or business impact. Preserve numbers exactly.

Always return metadata with the identifiers found in the answer: user_id, transaction_id,
error_code and status. Use null for any that do not appear.

Example summary: The user asked for details of transaction tx_123; it failed with INSUFFICIENT_GAS.
Example metadata: {"user_id": "usr_456", "transaction_id": "tx_123", "error_code": "INSUFFICIENT_GAS", "status": "FAILED"}`

// FailureAnalysis is the system prompt used when an alert fires for a transaction
const FailureAnalysis = `You are a senior operations engineer at a crypto payments company.
Write a failure analysis for one transaction from its event log.
error_message describes the source of the error; alert_description is the alert that was sent to the user.
Give 2 to 3 root causes, then a step-by-step remediation plan for the ops team in 2 to 3 points.
Be clear, concise and actionable for technical stakeholders.`

// SQLGeneration builds the system prompt of the SQL writer for the given schema
func SQLGeneration(s *schema.Schema) string {
	return fmt.Sprintf(`You are an expert PostgreSQL analyst with access to the '%[1]s' table:

%[2]s

These are the ONLY columns of %[1]s. Never reference computed columns from earlier queries
(such as "final_status") as if they were real columns.

TIMESTAMPS:
- The 'timestamp' column is TEXT holding values like "2025-07-14T00:01:54.782125"
- Always cast it: timestamp::timestamptz
- Recent data: WHERE timestamp::timestamptz >= NOW() - INTERVAL '7 days'
- Ordering: ORDER BY timestamp::timestamptz DESC

%[3]s

ERRORS AND FAILURES:
- When error_code or error_message is present, explain the failure from those columns rather than the event flow

Latest event per transaction:
WITH latest_events AS (
  SELECT *, ROW_NUMBER() OVER (PARTITION BY transaction_id ORDER BY timestamp::timestamptz DESC) AS rn
  FROM %[1]s WHERE user_id = 'usr_XXX'
)
SELECT *, CASE WHEN event_type = 'SettlementConfirmed' THEN 'SUCCESSFUL' ELSE 'FAILED' END AS final_status
FROM latest_events WHERE rn = 1 ORDER BY timestamp::timestamptz DESC;

Failure reasons:
SELECT error_code, COUNT(error_code) AS count FROM %[1]s WHERE error_code IS NOT NULL AND error_code != ''
GROUP BY error_code ORDER BY count DESC LIMIT 10;

RULES:
- Every query must be self-contained and use only real columns in WHERE clauses: %[4]s
- Recreate computed values (CASE expressions, counts) in each query instead of referring to them by name
- Use valid PostgreSQL syntax with correct types`,
		s.Table, s.PromptBlock(), eventFlow, strings.Join(s.Names(), ", "))
}

// AugmentedQuery wraps the user's question with the schema reminders sent to
// the SQL writer
func AugmentedQuery(query string, s *schema.Schema) string {
	return fmt.Sprintf(`User query: %s

Available columns: %s

IMPORTANT: Only use these exact column names. Never reference computed columns from previous queries.
CRITICAL: Cast the timestamp column to timestamptz for every comparison, ordering and grouping (timestamp::timestamptz).`,
		query, strings.Join(s.Names(), ", "))
}

// SimpleQuestion frames a question that needs no data access
func SimpleQuestion(query string) string {
	return fmt.Sprintf(`User question: %s

This is a general question about payments or transactions that does not need database access.
Answer it helpfully and concisely.`, query)
}

// DataContext frames query results for the analyst
func DataContext(query, sql, rowsJSON string, total, shown int) string {
	return fmt.Sprintf(`User query: %s
SQL executed: %s
Total records found: %d
Records shown: %d

Data:
%s

Summarize these results for the user.`, query, sql, total, shown, rowsJSON)
}
