package llm

import "slices"

func nullableString() map[string]any {
	return map[string]any{"type": []string{"string", "null"}}
}

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	slices.Sort(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

var queryTypeSchema = &ResponseSchema{
	Name:        "query_type",
	Description: "Whether the question needs database access",
	Schema: object(map[string]any{
		"query_type": map[string]any{"type": "string", "enum": []string{string(QueryTypeSimple), string(QueryTypeSQL)}},
	}),
}

var sqlSchema = &ResponseSchema{
	Name:        "sql_generation",
	Description: "A PostgreSQL query and the reasoning behind it",
	Schema: object(map[string]any{
		"sql_query": map[string]any{"type": "string", "description": "The generated PostgreSQL query"},
		"reasoning": map[string]any{"type": "string", "description": "Reasoning behind the query construction"},
	}),
}

var summarySchema = &ResponseSchema{
	Name:        "data_summary",
	Description: "Analysis of query results",
	Schema: object(map[string]any{
		"summary":            map[string]any{"type": "string"},
		"key_insights":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"transaction_status": nullableString(),
		"recommendation":     nullableString(),
	}),
}

var condensationSchema = &ResponseSchema{
	Name:        "response_summary",
	Description: "Condensed answer with identifier metadata",
	Schema: object(map[string]any{
		"summary": map[string]any{"type": "string"},
		"metadata": object(map[string]any{
			"user_id":        nullableString(),
			"transaction_id": nullableString(),
			"error_code":     nullableString(),
			"status":         nullableString(),
		}),
	}),
}

var failureSchema = &ResponseSchema{
	Name:        "failure_analysis",
	Description: "Root causes and remediation steps for a failed transaction",
	Schema: object(map[string]any{
		"summary": map[string]any{"type": "string"},
	}),
}
