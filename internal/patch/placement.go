package patch

import "note-auditor/internal/pdf"

// Redaction padding and text placement, in points.
const (
	datePad = 2.0

	cptPadLeft  = 5.0
	cptPadRight = 10.0
	cptPadY     = 2.0

	supervisionPadLeft = 5.0
	supervisionPadTop  = 2.0
	supervisionExtendX = 250.0
	supervisionExtendY = 25.0

	goalsPadTop  = 5.0
	goalLineX    = 35.0
	goalLeading  = 13.0
	goalImageGap = 10.0

	baselineRatio = 0.8
)

// Font sizes.
const (
	dateFontSize        = 9.0
	cptFontSize         = 8.82
	supervisionFontSize = 8.82
	goalFontSize        = 8.82
)

var (
	dateFont        = pdf.Font{Name: pdf.FontHelv, Size: dateFontSize, Color: pdf.Black}
	cptFont         = pdf.Font{Name: pdf.FontHelv, Size: cptFontSize, Color: pdf.Black}
	supervisionFont = pdf.Font{Name: pdf.FontHeBo, Size: supervisionFontSize, Color: pdf.Black}
	goalFont        = pdf.Font{Name: pdf.FontHelv, Size: goalFontSize, Color: pdf.Black}
)

func dateBox(hit pdf.Rect) pdf.Rect {
	return hit.Pad(datePad, datePad, datePad, datePad)
}

func cptBox(hit pdf.Rect) pdf.Rect {
	return hit.Pad(cptPadLeft, cptPadY, cptPadRight, cptPadY)
}

// supervisionBox covers the "Rendered by:" line and the first supervisor
// line under it.
func supervisionBox(hit pdf.Rect) pdf.Rect {
	return pdf.Rect{
		X0: hit.X0 - supervisionPadLeft,
		Y0: hit.Y0 - supervisionPadTop,
		X1: hit.X1 + supervisionExtendX,
		Y1: hit.Y0 + supervisionExtendY,
	}
}

// goalsBand spans the page width from just above the goal header to just
// above the prognosis anchor.
func goalsBand(goal, prognosis pdf.Rect, pageWidth float64) pdf.Rect {
	return pdf.Rect{X0: 0, Y0: goal.Y0 - goalsPadTop, X1: pageWidth, Y1: prognosis.Y0 - goalsPadTop}
}

// baseline is where replacement text starts for a located box.
func baseline(hit pdf.Rect) pdf.Point {
	return pdf.Point{X: hit.X0, Y: hit.Y0 + hit.Height()*baselineRatio}
}
