package ai

import (
	"fmt"
	"strings"

	"github.com/hollyoak/tally/internal/service"
)

const suggestSystemPrompt = "You are an expense categorization assistant. You MUST respond with ONLY a valid JSON object. Do not include any explanatory text, markdown formatting, or commentary before or after the JSON. Start your response directly with { and end with }."

// buildSuggestPrompt builds the user prompt for a cheap suggestion call.
// With candidates it is a pick-one task; without, a free-form normalization.
func buildSuggestPrompt(text string, candidateLabels []string) string {
	var b strings.Builder

	if len(candidateLabels) > 0 {
		b.WriteString("Pick the single best label for this expense text.\n\n")
		fmt.Fprintf(&b, "Text: %s\n\n", text)
		b.WriteString("Labels:\n")
		for _, label := range candidateLabels {
			fmt.Fprintf(&b, "- %s\n", label)
		}
		b.WriteString("\nRespond with JSON: {\"label\": \"<one of the labels above>\", \"confidence\": <0.0-1.0>}")
	} else {
		b.WriteString("Normalize this raw credit-card statement description into a clean, human-readable form. Strip processor codes, store numbers, and location noise; keep the recognizable merchant or purpose.\n\n")
		fmt.Fprintf(&b, "Description: %s\n\n", text)
		b.WriteString("Respond with JSON: {\"label\": \"<normalized description>\", \"confidence\": <0.0-1.0>}")
	}

	return b.String()
}

const escalateSystemPrompt = "You are an expense analysis assistant handling ambiguous cases that simpler checks could not resolve. You MUST respond with ONLY a valid JSON object. Start your response directly with { and end with }."

// buildEscalationPrompt builds the user prompt for an expensive-model call.
func buildEscalationPrompt(req service.EscalationRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n", req.Task)
	fmt.Fprintf(&b, "Input: %s\n", req.Input)

	if len(req.Context) > 0 {
		b.WriteString("\nContext:\n")
		for k, v := range req.Context {
			fmt.Fprintf(&b, "- %s: %s\n", k, v)
		}
	}

	b.WriteString("\nRespond with JSON: {\"value\": \"<your answer>\", \"detail\": \"<brief reasoning>\", \"confidence\": <0.0-1.0>}")

	return b.String()
}
