// Package prompts holds the model prompt templates used by the pipeline.
// Templates are parsed once and shared read-only across requests.
package prompts

import (
	"fmt"
	"strings"

	lcprompts "github.com/tmc/langchaingo/prompts"
)

// DefaultTopK is the result-count hint given to the SQL prompt.
const DefaultTopK = 10

const sqlTemplate = `
Convert the user's flight search request into a single SQL query.

User Input: {{.input}}
Top Results to Retrieve: {{.top_k}}

Database Schema:
{{.table_info}}

Query Generation Rules:
1. Default to a one-way search unless a round trip is explicitly requested
   ("round trip", "return flight", "both ways", or both departure and return dates).
2. For one-way flights select flight id, airline, departure time, date, duration and price.
3. For round trips include both legs and compute the total price as the sum of both flights.
4. Apply any user-specified filters, ordering by price when "cheapest" is mentioned.
5. Limit results to {{.top_k}}.
6. For direct flight requests match any of 'Nonstop', 'Direct', 'Non-stop', 'Non stop',
   'Direct flight' in flightType.

Output only the SQL query, without explanation or comments.
`

const verifyTemplate = `
Given a user question and a generated SQL query, decide whether the query correctly
answers the flight-related part of the question.
Luggage information ({{.luggage_terms}}) lives in a separate system; ignore it when
validating.

Check that the query selects the flight data needed (route, schedule, price, airline),
that joins and conditions are correct, and that the rows returned answer the question.

User Question: {{.question}}
Generated SQL Query: {{.sql_query}}

Respond with exactly one of:
VALID
INVALID: <reason>
`

const luggageExtractTemplate = `
Extract the specific luggage-related question from the following query.
If there is no luggage-related question, return "NONE".
Focus on weight limits, size restrictions, prohibited items or general baggage policies.

Input: "What's the price of flights from Delhi to Mumbai and what's the baggage allowance?"
Output: "what's the baggage allowance"

Input: "How much does a ticket cost from Bangkok to Hanoi?"
Output: "NONE"

Input: "Can I bring a 25kg suitcase on VietJet Air?"
Output: "Can I bring a 25kg suitcase"

Now process this query: {{.query}}
Return only the extracted question or "NONE".
`

const luggageRenderTemplate = `
Answer the traveller's question from the airline's official policy.

Airline: {{.airline}}
Question: {{.query}}
Policy Information: {{.relevant_text}}

Give only the relevant policy details, directly and concisely, with no introduction
or commentary.
`

const responseTemplate = `
You are a flight search assistant. Answer the user's question using the query results.

Question: {{.question}}
SQL Query: {{.sql_query}}
Query Result: {{.query_result}}
{{- if .luggage_policies}}
Luggage Policies (appended separately, do not repeat them):
{{.luggage_policies}}
{{- end}}

Summarise the matching flights with airline, date, departure time, duration and price in INR.
Be concise and do not invent flights that are not in the result.
`

// Set is the collection of parsed templates.
type Set struct {
	sql            lcprompts.PromptTemplate
	verify         lcprompts.PromptTemplate
	luggageExtract lcprompts.PromptTemplate
	luggageRender  lcprompts.PromptTemplate
	response       lcprompts.PromptTemplate
	luggageTerms   string
}

// Default returns the built-in templates. luggageTerms is listed in the
// verification prompt as out of scope for SQL validation.
func Default(luggageTerms []string) *Set {
	return &Set{
		sql:            lcprompts.NewPromptTemplate(sqlTemplate, []string{"input", "top_k", "table_info"}),
		verify:         lcprompts.NewPromptTemplate(verifyTemplate, []string{"question", "sql_query", "luggage_terms"}),
		luggageExtract: lcprompts.NewPromptTemplate(luggageExtractTemplate, []string{"query"}),
		luggageRender:  lcprompts.NewPromptTemplate(luggageRenderTemplate, []string{"airline", "query", "relevant_text"}),
		response:       lcprompts.NewPromptTemplate(responseTemplate, []string{"question", "sql_query", "query_result", "luggage_policies"}),
		luggageTerms:   strings.Join(luggageTerms, ", "),
	}
}

func (s *Set) SQL(question string, topK int, schema string) (string, error) {
	return format(s.sql, "sql", map[string]any{
		"input":      question,
		"top_k":      topK,
		"table_info": schema,
	})
}

func (s *Set) Verify(question, sql string) (string, error) {
	return format(s.verify, "verify", map[string]any{
		"question":      question,
		"sql_query":     sql,
		"luggage_terms": s.luggageTerms,
	})
}

func (s *Set) LuggageExtract(question string) (string, error) {
	return format(s.luggageExtract, "luggage extract", map[string]any{"query": question})
}

func (s *Set) LuggageRender(airline, question, relevantText string) (string, error) {
	return format(s.luggageRender, "luggage render", map[string]any{
		"airline":       airline,
		"query":         question,
		"relevant_text": relevantText,
	})
}

// Response renders the answer prompt. rows is the textual row literal and
// policies are the per-airline policy answers, one per line.
func (s *Set) Response(question, sql, rows string, policies []string) (string, error) {
	return format(s.response, "response", map[string]any{
		"question":         question,
		"sql_query":        sql,
		"query_result":     rows,
		"luggage_policies": strings.Join(policies, "\n"),
	})
}

func format(tmpl lcprompts.PromptTemplate, name string, values map[string]any) (string, error) {
	out, err := tmpl.Format(values)
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return out, nil
}
