// Package prompt holds the prompt templates used by the chat models and the
// render helpers that fill them. Templates are plain strings with named
// placeholders; rendering is a string substitution, so the package stays
// testable without any model client.
package prompt

import "strings"

// qaTemplate drives single-shot question answering over retrieved context.
// The formatting guide steers the model toward a structure matching the
// question type instead of a uniform wall of text.
const qaTemplate = `You are an intelligent assistant with access to relevant documentation. Use the provided context to generate a structured and concise response.

Context:
{{context}}

Question:
{{question}}

Instructions:
- Analyze the user query and identify the most appropriate response format.
- Use only the provided context to answer; do not make assumptions.
- Adapt the response format based on the query type:

Response formatting guide:
1. Definition-based questions ("What is...?" or "Explain..."): a 1-2 sentence definition, then bullet points for additional details.
2. How-to or procedural questions ("How do I...?" or "Steps to..."): numbered step-by-step instructions.
3. Comparison questions ("What is the difference between...?"): a table or bullet points listing differences.
4. Yes/no validation questions ("Can I...?" or "Is it possible to...?"): a direct yes/no answer with explanation.
5. List-based questions ("What are the types of...?"): a bullet list of relevant items.
6. Deep-dive conceptual questions ("Explain in detail..."): a summary followed by key points.`

// contextualTemplate is used in conversational mode when retrieval produced
// relevant context. It instructs the model to weave the context in naturally
// rather than citing "the provided text".
const contextualTemplate = `You are an intelligent AI assistant that helps answer questions accurately using the given information. Use the provided context naturally in your response without explicitly referring to it as "provided text".

Context:
{{context}}

Question:
{{question}}

Provide a clear and direct response in a conversational and informative manner, as if you already knew this information. Do not mention "the provided text" or "the documents say". Just answer naturally.`

// generalTemplate is the conversational fallback when retrieval produced no
// usable context. The model answers from its own knowledge and the chat
// history.
const generalTemplate = `You are an AI assistant. Answer the following question based on your knowledge and use the chat history if required.

Question:
{{question}}`

// refinementTemplate rewrites a follow-up query into a standalone one using
// recent conversation turns. The intent must stay unchanged.
const refinementTemplate = `You are an AI assistant that refines the user query based on chat history while ensuring the intent remains unchanged. Use the conversation history to infer the closest matching topic and rewrite the query accordingly. Respond with the rewritten query only.

Chat History:
{{history}}

User Query:
{{query}}`

// render substitutes placeholder values into a template.
func render(tmpl string, pairs ...string) string {
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// QA renders the structured question-answering prompt.
func QA(contextText, question string) string {
	return render(qaTemplate, "{{context}}", contextText, "{{question}}", question)
}

// Contextual renders the conversational prompt for queries with retrieved
// context.
func Contextual(contextText, question string) string {
	return render(contextualTemplate, "{{context}}", contextText, "{{question}}", question)
}

// General renders the conversational prompt for queries without context.
func General(question string) string {
	return render(generalTemplate, "{{question}}", question)
}

// Select picks between the contextual and general conversational prompts.
// Non-empty context means retrieval found relevant documents.
func Select(contextText, question string) string {
	if contextText != "" {
		return Contextual(contextText, question)
	}
	return General(question)
}

// Refinement renders the query-rewriting prompt over formatted history lines.
func Refinement(history, query string) string {
	return render(refinementTemplate, "{{history}}", history, "{{query}}", query)
}
