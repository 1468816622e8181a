package annotate

import "strings"

func splitStyle(s string) []string {
	var out []string
	for _, decl := range strings.Split(s, ";") {
		decl = strings.ReplaceAll(strings.TrimSpace(decl), " ", "")
		if decl != "" {
			out = append(out, decl)
		}
	}
	return out
}

func joinStyle(existing, decl string) string {
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return decl
	}
	return strings.TrimSuffix(existing, ";") + ";" + decl
}
