package llm

import (
	"fmt"

	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/registry"
)

func init() {
	registry.Adapters.MustRegister("http", func(config map[string]any) (eval.Adapter, error) {
		endpoint, opts, err := adapterConfig(config)
		if err != nil {
			return nil, err
		}
		return NewHTTPAdapter(endpoint, opts...), nil
	})
	registry.Adapters.MustRegister("sse", func(config map[string]any) (eval.Adapter, error) {
		endpoint, opts, err := adapterConfig(config)
		if err != nil {
			return nil, err
		}
		return NewSSEAdapter(endpoint, opts...), nil
	})
}

// adapterConfig extracts the shared endpoint/auth/model settings.
func adapterConfig(config map[string]any) (string, []HTTPOption, error) {
	endpoint, _ := config["endpoint"].(string)
	if endpoint == "" {
		return "", nil, fmt.Errorf("adapter config missing %q", "endpoint")
	}

	var opts []HTTPOption
	if key, _ := config["api_key"].(string); key != "" {
		opts = append(opts, WithAPIKey(key))
	}
	if model, _ := config["model"].(string); model != "" {
		opts = append(opts, WithModel(model))
	}
	if t, ok := config["temperature"].(float64); ok {
		opts = append(opts, WithTemperature(t))
	}
	switch n := config["max_tokens"].(type) {
	case int:
		opts = append(opts, WithMaxTokens(n))
	case float64:
		opts = append(opts, WithMaxTokens(int(n)))
	}
	return endpoint, opts, nil
}
