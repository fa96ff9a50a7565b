package tracing

import (
	"strconv"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Attribute keys recognised by ExtractCostData. Semantic-convention keys
// take precedence over the shorthand forms.
const (
	attrInputTokens  = "llm.token_count.input"
	attrOutputTokens = "llm.token_count.output"
	attrCost         = "llm.cost"
	attrProvider     = "llm.provider"
	attrModel        = "llm.model"

	attrShortInputTokens  = "input_tokens"
	attrShortOutputTokens = "output_tokens"
	attrShortCost         = "total_cost"
)

// ExtractCostData pulls token counts, cost, provider, and model out of raw
// trace attributes. Missing keys leave zero values.
func ExtractCostData(attrs map[string]any) eval.CostData {
	data := eval.CostData{
		InputTokens:  intAttr(attrs, attrInputTokens, attrShortInputTokens),
		OutputTokens: intAttr(attrs, attrOutputTokens, attrShortOutputTokens),
		Cost:         floatAttr(attrs, attrCost, attrShortCost),
	}
	data.TotalTokens = data.InputTokens + data.OutputTokens
	if provider, ok := attrs[attrProvider].(string); ok {
		data.Provider = provider
	}
	if model, ok := attrs[attrModel].(string); ok {
		data.Model = model
	}
	return data
}

// intAttr returns the first present key coerced to int.
func intAttr(attrs map[string]any, keys ...string) int {
	for _, key := range keys {
		v, ok := attrs[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		case string:
			if parsed, err := strconv.Atoi(n); err == nil {
				return parsed
			}
		}
	}
	return 0
}

// floatAttr returns the first present key coerced to float64.
func floatAttr(attrs map[string]any, keys ...string) float64 {
	for _, key := range keys {
		v, ok := attrs[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case string:
			if parsed, err := strconv.ParseFloat(n, 64); err == nil {
				return parsed
			}
		}
	}
	return 0
}
