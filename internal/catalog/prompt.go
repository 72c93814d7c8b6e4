package catalog

import "strings"

// ContextBlock renders hydrated services into the text block injected
// into the system prompt: one paragraph per service, detail lines only
// for fields that are actually present.
func ContextBlock(services []Service) string {
	if len(services) == 0 {
		return ""
	}
	var b strings.Builder
	for i, s := range services {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s.Name)
		if s.Category != "" {
			b.WriteString(" (" + s.Category + ")")
		}
		if s.Price != "" {
			b.WriteString(" — " + s.Price)
		}
		if s.Description != "" {
			b.WriteString("\n" + s.Description)
		}
		if len(s.Details.Options) > 0 {
			b.WriteString("\nOptions: " + joinOptions(s.Details.Options))
		}
		if len(s.Details.AddOns) > 0 {
			b.WriteString("\nAdd-ons: " + joinOptions(s.Details.AddOns))
		}
		if len(s.Details.Exclusions) > 0 {
			b.WriteString("\nNot included: " + strings.Join(s.Details.Exclusions, ", "))
		}
		if s.Details.UnitPrice != "" {
			b.WriteString("\nPer unit: " + s.Details.UnitPrice)
		}
	}
	return b.String()
}

// EmbeddingText is what gets embedded for a service at index time.
// It mirrors ContextBlock so query and document live in the same space.
func EmbeddingText(s Service) string {
	return ContextBlock([]Service{s})
}

func joinOptions(opts []Option) string {
	parts := make([]string, 0, len(opts))
	for _, o := range opts {
		if o.Price != "" {
			parts = append(parts, o.Name+" ("+o.Price+")")
		} else {
			parts = append(parts, o.Name)
		}
	}
	return strings.Join(parts, ", ")
}
