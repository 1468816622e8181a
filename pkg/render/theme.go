package render

import "github.com/matzehuels/marginalia/pkg/errors"

// Theme holds the colours of the SVG sink.
type Theme struct {
	Name       string
	Background string
	Text       string
	Muted      string
	NoteFill   string
	NoteBorder string
	Marker     string
	Leader     string
}

// Built-in themes.
var (
	Light = Theme{
		Name:       "light",
		Background: "#ffffff",
		Text:       "#1f2328",
		Muted:      "#8c959f",
		NoteFill:   "#f6f8fa",
		NoteBorder: "#d0d7de",
		Marker:     "#0969da",
		Leader:     "#afb8c1",
	}
	Dark = Theme{
		Name:       "dark",
		Background: "#0d1117",
		Text:       "#e6edf3",
		Muted:      "#7d8590",
		NoteFill:   "#161b22",
		NoteBorder: "#30363d",
		Marker:     "#4493f8",
		Leader:     "#484f58",
	}
)

// Themes lists the built-in themes by name.
var Themes = map[string]Theme{
	Light.Name: Light,
	Dark.Name:  Dark,
}

// ThemeByName looks up a built-in theme. An empty name selects [Light].
func ThemeByName(name string) (Theme, error) {
	if name == "" {
		return Light, nil
	}
	t, ok := Themes[name]
	if !ok {
		return Theme{}, errors.New(errors.ErrCodeInvalidInput, "unknown theme %q (valid: light, dark)", name)
	}
	return t, nil
}
