package transform

import (
	"regexp"
	"strings"
)

var (
	reasoningDone = regexp.MustCompile(
		`(?s)<details type="reasoning" done="true" duration="[^"]*">\s*<summary>.*?</summary>(.*?)\n</details>`)
	reasoningOpen = regexp.MustCompile(
		`(?s)<details type="reasoning" done="false">\s*<summary>.*?</summary>`)
)

const detailsClose = "\n</details>"

// NormalizeReasoning converts reasoning blocks into <think> tags. A finished
// block becomes "<think>body\n</think>". An unfinished block only has its
// opening portion replaced by "<think>"; a closing "\n</details>" that
// follows it is dropped when present. Content without reasoning blocks is
// returned unchanged.
func NormalizeReasoning(content string) string {
	if content == "" {
		return content
	}
	content = reasoningDone.ReplaceAllString(content, "<think>${1}\n</think>")

	locs := reasoningOpen.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return content
	}

	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for i, loc := range locs {
		b.WriteString(content[prev:loc[0]])
		b.WriteString("<think>")

		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := content[loc[1]:end]
		if j := strings.Index(body, detailsClose); j >= 0 {
			b.WriteString(body[:j])
			body = body[j+len(detailsClose):]
		}
		b.WriteString(body)
		prev = end
	}
	return b.String()
}
