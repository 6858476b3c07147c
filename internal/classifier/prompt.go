package classifier

import (
	"strings"

	"github.com/pbaille/lessonlog/internal/extract"
)

// BuildPrompt embeds the entry text in the classification instruction
func BuildPrompt(text string, vocabulary []Category) string {
	var sb strings.Builder

	sb.WriteString("You maintain a team's log of lessons learned. Tag the entry below. Return JSON only.\n\n")

	if len(vocabulary) > 0 {
		sb.WriteString("Suggested categories and their standard keywords:\n")
		for _, cat := range vocabulary {
			sb.WriteString("- ")
			sb.WriteString(cat.Name)
			if len(cat.Keywords) > 0 {
				sb.WriteString(": ")
				sb.WriteString(strings.Join(cat.Keywords, ", "))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`Return a JSON object with this structure:
{
  "keywords": ["standard-keyword", "detail-keyword", "detail-keyword"],
  "categories": ["category"]
}

Rules:
- Give 2-3 keywords. The first one should be a standard keyword from the table above.
- The other keywords describe the specifics of the entry in a word or two each.
- Give 1-2 categories, preferably from the table above.
- Answer in the language of the table.

Return ONLY the JSON, no other text.

Entry:
`)
	sb.WriteString(extract.PlainText(text))
	sb.WriteString("\n")

	return sb.String()
}
