package playground

import (
	"errors"
	"fmt"
)

// Model is a backend model the playground can query.
type Model struct {
	Name  string
	Label string
}

// Models lists the selectable models. The first one is the default.
var Models = []Model{
	{Name: "mixtral-8x7b", Label: "Mixtral 8x7B"},
	{Name: "llama2-70b", Label: "Llama 2 70B"},
}

const (
	MinTemperature = 0.0
	MaxTemperature = 1.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 5000
	MinTopK        = 1
	MaxTopK        = 100
)

// ErrUnknownModel is returned when selecting a model not in Models.
var ErrUnknownModel = errors.New("unknown model")

// Settings are read when a message is sent. TopP and TopK are shown in the
// settings panel but the backend does not take them.
type Settings struct {
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
	TopK        int
}

// DefaultSettings returns the settings a new session starts with.
func DefaultSettings() Settings {
	return Settings{
		Model:       Models[0].Name,
		Temperature: 0.7,
		MaxTokens:   MaxMaxTokens,
		TopP:        1,
		TopK:        50,
	}
}

// LookupModel returns the model called name.
func LookupModel(name string) (Model, error) {
	for _, m := range Models {
		if m.Name == name {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Normalize clamps every field into range and replaces an unknown model with
// the default.
func (s Settings) Normalize() Settings {
	if _, err := LookupModel(s.Model); err != nil {
		s.Model = Models[0].Name
	}
	s.Temperature = clampFloat(s.Temperature, MinTemperature, MaxTemperature)
	s.MaxTokens = clampInt(s.MaxTokens, MinMaxTokens, MaxMaxTokens)
	s.TopP = clampFloat(s.TopP, 0, 1)
	s.TopK = clampInt(s.TopK, MinTopK, MaxTopK)
	return s
}

func clampFloat(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	return min(max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
