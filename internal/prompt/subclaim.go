package prompt

import (
	"fmt"
	"strings"

	"github.com/ppiankov/scitrue/internal/model"
)

// BuildSubclaimPrompt asks the generator to decompose summary into
// individually attributed subclaims, judged against the original claim
func BuildSubclaimPrompt(summary, claim string) string {
	contribution := strings.Join(model.ContributionLabels, "/")

	var b strings.Builder
	b.WriteString("Can you extract claims made in the following text without making any reference in the claim and find the matching paper id that claims are made in? ")
	b.WriteString("Please also assign an accuracy score out of 100, along with the reason for the assigned score, by considering sources outside of the given text.\n")
	b.WriteString("Can you also provide whether each claim corroborates or contrasts the given query?\n\n")
	b.WriteString("Your output should be this list:\n[\n")
	for i := 0; i < 2; i++ {
		b.WriteString("    {\n")
		b.WriteString(`        "claim": "...",` + "\n")
		b.WriteString(`        "CorpusId": "...",` + "\n")
		b.WriteString(`        "accuracy": "...",` + "\n")
		b.WriteString(`        "reason for accuracy": "...",` + "\n")
		fmt.Fprintf(&b, "        \"contribution\": %q\n", contribution)
		if i == 0 {
			b.WriteString("    },\n")
		} else {
			b.WriteString("    }\n")
		}
	}
	b.WriteString("]\n")
	fmt.Fprintf(&b, "\ntext: %s\nquery: %s", summary, claim)
	return b.String()
}
