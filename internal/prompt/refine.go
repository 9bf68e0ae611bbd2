package prompt

// MaxRefinedLength is the character limit the refiner is asked to respect
const MaxRefinedLength = 130

// RefinementInstruction asks for a concise restatement or "None"
const RefinementInstruction = `You are part of a scientific retrieval system. Given an input, do the following:

1. If the input is a scientific claim, rephrase it clearly and concisely (max 130 characters).
2. If the input is a question, unclear, too vague return "None".

Return this JSON format:
{
  "original_query": "...",
  "revised_query": "..."
}
`

// BuildRefinementPrompt builds the claim refinement prompt
func BuildRefinementPrompt(claim string) string {
	return RefinementInstruction + "original_query: " + claim
}
