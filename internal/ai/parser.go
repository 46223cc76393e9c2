package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hollyoak/tally/internal/service"
)

// cleanMarkdownWrapper strips a ```json ... ``` fence if the model wrapped
// its response in one despite instructions.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		} else {
			content = strings.TrimPrefix(content, "```")
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	return strings.TrimSpace(content)
}

// parseSuggestion extracts a label and confidence from a model response.
// Confidence is clamped to [0,1]; a missing confidence gets the default.
func parseSuggestion(content string, candidateLabels []string) (service.Suggestion, error) {
	var jsonResp struct {
		Label      string   `json:"label"`
		Confidence *float64 `json:"confidence"`
	}

	content = cleanMarkdownWrapper(content)

	if err := json.Unmarshal([]byte(content), &jsonResp); err != nil {
		return service.Suggestion{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if jsonResp.Label == "" {
		return service.Suggestion{}, fmt.Errorf("no label found in response")
	}

	confidence := DefaultSuggestionConfidence
	if jsonResp.Confidence != nil {
		confidence = *jsonResp.Confidence
		if confidence < 0 {
			confidence = 0
		} else if confidence > 1 {
			confidence = 1
		}
	}

	// If the caller supplied candidates, the label must be one of them.
	if len(candidateLabels) > 0 && !containsLabel(candidateLabels, jsonResp.Label) {
		return service.Suggestion{}, fmt.Errorf("label %q not among candidates", jsonResp.Label)
	}

	return service.Suggestion{
		Label:      jsonResp.Label,
		Confidence: confidence,
	}, nil
}

// parseEscalation extracts the structured escalation result.
func parseEscalation(content string) (service.EscalationResult, error) {
	var jsonResp struct {
		Value      string   `json:"value"`
		Detail     string   `json:"detail"`
		Confidence *float64 `json:"confidence"`
	}

	content = cleanMarkdownWrapper(content)

	if err := json.Unmarshal([]byte(content), &jsonResp); err != nil {
		return service.EscalationResult{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if jsonResp.Value == "" {
		return service.EscalationResult{}, fmt.Errorf("no value found in response")
	}

	confidence := DefaultSuggestionConfidence
	if jsonResp.Confidence != nil {
		confidence = *jsonResp.Confidence
		if confidence < 0 {
			confidence = 0
		} else if confidence > 1 {
			confidence = 1
		}
	}

	return service.EscalationResult{
		Value:      jsonResp.Value,
		Detail:     jsonResp.Detail,
		Confidence: confidence,
	}, nil
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}
