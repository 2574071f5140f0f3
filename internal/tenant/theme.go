package tenant

import (
	"regexp"
	"sort"
	"strings"
)

var (
	themeKeyRegex   = regexp.MustCompile(`[^a-z0-9-]`)
	themeValueStrip = strings.NewReplacer(";", "", "{", "", "}", "", "<", "", ">", "", "\"", "", "'", "", "\\", "", "\n", "", "\r", "")
)

// ThemeCSS renders a tenant theme as document-level custom properties:
// :root{--key:value;...}. Keys are sorted; keys and values are sanitized.
func ThemeCSS(theme map[string]string) string {
	if len(theme) == 0 {
		return ""
	}

	keys := make([]string, 0, len(theme))
	for k := range theme {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(":root{")
	for _, k := range keys {
		name := themeKeyRegex.ReplaceAllString(strings.ToLower(strings.TrimLeft(k, "-")), "")
		value := strings.TrimSpace(themeValueStrip.Replace(theme[k]))
		if name == "" || value == "" {
			continue
		}
		b.WriteString("--")
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(value)
		b.WriteByte(';')
	}
	b.WriteByte('}')
	return b.String()
}
