package fakeserver

import "unicode"

const (
	chunkSize    = 500
	chunkOverlap = 50
)

// splitChunks cuts text into windows of about size runes that overlap by overlap runes.
// A window ends at the last space inside it when there is one, so words stay whole.
func splitChunks(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		for cut := end; cut > start+size/2; cut-- {
			if unicode.IsSpace(runes[cut]) {
				end = cut
				break
			}
		}
		chunks = append(chunks, string(runes[start:end]))

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
