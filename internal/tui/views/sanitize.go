package views

import "strings"

// sanitizeForTerminal strips Unicode codepoints that break cell-width
// accounting in tcell: emoji skin tone modifiers, zero width joiners, and
// variation selectors. A joined emoji sequence degrades to its base emoji,
// which renders at a stable width.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 0x1F3FB && r <= 0x1F3FF: // skin tone modifiers
		case r == 0x200D: // zero width joiner
		case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		case r >= 0xE0100 && r <= 0xE01EF: // variation selectors supplement
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
