package chatcmder

import "github.com/pentestai/pentestai/pkg/llm"

// pickModel returns the first of flag, preferred and relayDefault that the
// relay offers, or the first offered model.
func pickModel(flag, preferred, relayDefault string, models []llm.ModelEntry) string {
	for _, key := range []string{flag, preferred, relayDefault} {
		if key == "" {
			continue
		}
		for _, m := range models {
			if m.ID == key {
				return key
			}
		}
	}
	if len(models) > 0 {
		return models[0].ID
	}
	return relayDefault
}

// nextModel returns the model after current, wrapping around.
func nextModel(current string, models []llm.ModelEntry) string {
	if len(models) == 0 {
		return current
	}
	for i, m := range models {
		if m.ID == current {
			return models[(i+1)%len(models)].ID
		}
	}
	return models[0].ID
}

func displayName(key string, models []llm.ModelEntry) string {
	for _, m := range models {
		if m.ID == key {
			return m.Name
		}
	}
	return key
}
