package usecase

import "fmt"

func buildReformulationPrompt(query string, n int) string {
	return fmt.Sprintf(`You are a medical librarian helping to reformulate queries for searching Cochrane systematic reviews.

Generate alternative phrasings that:
1. Use medical terminology and standard acronyms (e.g., NSCLC for non-small cell lung cancer)
2. Focus on PICO elements (Population, Intervention, Comparison, Outcome)
3. Include relevant clinical terminology
4. Keep queries concise and focused

Return ONLY the reformulated queries, one per line, without numbering or bullets.

Original query: %s

Generate %d alternative phrasings for better medical literature search:`, query, n)
}

func buildHypotheticalAnswerPrompt(query string) string {
	return fmt.Sprintf(`Generate a short paragraph (3-4 sentences) that would appear in a Cochrane systematic review answering this question:

"%s"

Write as if you are writing the conclusion section of a Cochrane review. Use medical terminology, mention typical elements like interventions, outcomes, and evidence quality. Be specific and factual.`, query)
}

func buildDecompositionPrompt(query string, maxSubQueries int) string {
	return fmt.Sprintf(`You are a medical query analyzer. Break down complex medical queries into 2-%d focused sub-queries.
Each sub-query should target a specific aspect: effectiveness, safety, comparison, methodology, or statistical evidence.
Keep each sub-query concise and focused on one aspect.

Output ONLY valid JSON in this exact format (no markdown, no extra text):
{"subqueries": [
  {"text": "First sub-query text", "intent": "effectiveness"},
  {"text": "Second sub-query text", "intent": "safety"}
]}

Valid intents: effectiveness, safety, comparison, methodology, statistical, general

Query: %s`, maxSubQueries, query)
}
