package pdf

import "note-auditor/internal/mupdf"

// charLines groups MuPDF structured-text characters into text lines with one
// box per byte, so expression matches map back to their own glyphs.
func charLines(chars []mupdf.Char) []textLine {
	var lines []textLine
	var lb lineBuilder
	cur := -1
	for _, c := range chars {
		if c.Line != cur && cur >= 0 {
			lines = append(lines, lb.line())
			lb = lineBuilder{}
		}
		cur = c.Line
		lb.add(string(c.Rune), Rect{X0: c.Box.X0, Y0: c.Box.Y0, X1: c.Box.X1, Y1: c.Box.Y1})
	}
	if cur >= 0 {
		lines = append(lines, lb.line())
	}
	return lines
}
