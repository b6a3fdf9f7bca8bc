package pdf

import (
	"math"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/font"
)

// matrix is a PDF transformation [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m followed by n.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

func translate(tx, ty float64) matrix { return matrix{1, 0, 0, 1, tx, ty} }

// fontMetrics decodes and measures the codes of one font resource. Widths
// come from the font dictionary; fonts that omit them, such as the base-14
// faces, fall back to pdfcpu's core font metrics.
type fontMetrics struct {
	enc     lpdf.TextEncoding
	first   int
	widths  []float64
	twoByte bool
	dw      float64
	cidW    map[int]float64
	core    string
}

func newFontMetrics(f lpdf.Font) *fontMetrics {
	m := &fontMetrics{enc: f.Encoder(), core: coreFontName(f.BaseFont())}
	if f.V.Key("Subtype").Name() == "Type0" {
		m.twoByte = true
		m.dw = 1000
		desc := f.V.Key("DescendantFonts").Index(0)
		if dw := desc.Key("DW"); dw.Kind() == lpdf.Integer || dw.Kind() == lpdf.Real {
			m.dw = dw.Float64()
		}
		m.cidW = cidWidths(desc.Key("W"))
		return m
	}
	m.first = f.FirstChar()
	m.widths = f.Widths()
	return m
}

// cidWidths reads a CIDFont W array: "c [w1 w2 ...]" and "cfirst clast w".
func cidWidths(w lpdf.Value) map[int]float64 {
	out := make(map[int]float64)
	for i := 0; i < w.Len(); {
		c := int(w.Index(i).Int64())
		if i+1 < w.Len() && w.Index(i+1).Kind() == lpdf.Array {
			arr := w.Index(i + 1)
			for k := 0; k < arr.Len(); k++ {
				out[c+k] = arr.Index(k).Float64()
			}
			i += 2
			continue
		}
		if i+2 >= w.Len() {
			break
		}
		last := int(w.Index(i + 1).Int64())
		v := w.Index(i + 2).Float64()
		for k := c; k <= last && k-c < 65536; k++ {
			out[k] = v
		}
		i += 3
	}
	return out
}

// coreFontName maps a BaseFont to the base-14 face whose metrics stand in
// for it.
func coreFontName(base string) string {
	if i := strings.IndexByte(base, '+'); i >= 0 {
		base = base[i+1:]
	}
	if font.IsCoreFont(base) {
		return base
	}
	name := strings.ToLower(strings.ReplaceAll(base, " ", ""))
	bold := strings.Contains(name, "bold")
	italic := strings.Contains(name, "italic") || strings.Contains(name, "oblique")
	switch {
	case strings.HasPrefix(name, "times"):
		switch {
		case bold && italic:
			return "Times-BoldItalic"
		case bold:
			return "Times-Bold"
		case italic:
			return "Times-Italic"
		}
		return "Times-Roman"
	case strings.HasPrefix(name, "courier"):
		switch {
		case bold && italic:
			return "Courier-BoldOblique"
		case bold:
			return "Courier-Bold"
		case italic:
			return "Courier-Oblique"
		}
		return "Courier"
	}
	switch {
	case bold && italic:
		return "Helvetica-BoldOblique"
	case bold:
		return "Helvetica-Bold"
	case italic:
		return "Helvetica-Oblique"
	}
	return "Helvetica"
}

// codes splits a shown string into character codes.
func (m *fontMetrics) codes(s string) []string {
	n := 1
	if m.twoByte {
		n = 2
	}
	out := make([]string, 0, len(s)/n+1)
	for i := 0; i < len(s); i += n {
		j := i + n
		if j > len(s) {
			j = len(s)
		}
		out = append(out, s[i:j])
	}
	return out
}

// width returns the advance of code in glyph units.
func (m *fontMetrics) width(code string) float64 {
	if m.twoByte {
		cid := 0
		for i := 0; i < len(code); i++ {
			cid = cid<<8 | int(code[i])
		}
		if w, ok := m.cidW[cid]; ok {
			return w
		}
		return m.dw
	}
	c := int(code[0])
	if i := c - m.first; i >= 0 && i < len(m.widths) && m.widths[i] > 0 {
		return m.widths[i]
	}
	return float64(font.CharWidth(m.core, rune(c)))
}

func (m *fontMetrics) decode(code string) string {
	if m.enc == nil {
		return code
	}
	return m.enc.Decode(code)
}

// glyph is one shown character code, positioned in page space with the
// origin top-left. op and arg locate the string it came from: arg is the
// index into a TJ array, or -1 for the string operand of Tj, ' and ".
type glyph struct {
	text string
	x, y float64
	w    float64
	size float64
	op   int
	arg  int
	code string
	// kern is the TJ adjustment that advances the pen as far as the glyph.
	kern float64
}

func (g glyph) box() Rect {
	return Rect{X0: g.x, Y0: g.y - g.size*ascentRatio, X1: g.x + g.w, Y1: g.y + g.size*descentRatio}
}

type textParams struct {
	font      *fontMetrics
	size      float64
	charSpace float64
	wordSpace float64
	scale     float64
	leading   float64
	rise      float64
}

type graphicsState struct {
	ctm matrix
	tp  textParams
}

// textWalker replays the text operators of a content stream.
type textWalker struct {
	pageHeight float64
	fonts      func(name string) *fontMetrics

	gs     graphicsState
	stack  []graphicsState
	tm     matrix
	tlm    matrix
	glyphs []glyph
}

// walkText positions every glyph shown by ops. fonts resolves a font
// resource name.
func walkText(ops []operation, pageHeight float64, fonts func(name string) *fontMetrics) []glyph {
	w := &textWalker{
		pageHeight: pageHeight,
		fonts:      fonts,
		gs:         graphicsState{ctm: identity, tp: textParams{scale: 1}},
		tm:         identity,
		tlm:        identity,
	}
	for i, op := range ops {
		w.do(i, op)
	}
	return w.glyphs
}

func (w *textWalker) nextLine(tx, ty float64) {
	w.tlm = translate(tx, ty).mul(w.tlm)
	w.tm = w.tlm
}

func (w *textWalker) do(i int, op operation) {
	tp := &w.gs.tp
	switch op.op {
	case "q":
		w.stack = append(w.stack, w.gs)
	case "Q":
		if n := len(w.stack); n > 0 {
			w.gs = w.stack[n-1]
			w.stack = w.stack[:n-1]
		}
	case "cm":
		if v, ok := op.numbers(6); ok {
			w.gs.ctm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.mul(w.gs.ctm)
		}
	case "BT":
		w.tm, w.tlm = identity, identity
	case "Tm":
		if v, ok := op.numbers(6); ok {
			w.tm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			w.tlm = w.tm
		}
	case "Td":
		if v, ok := op.numbers(2); ok {
			w.nextLine(v[0], v[1])
		}
	case "TD":
		if v, ok := op.numbers(2); ok {
			tp.leading = -v[1]
			w.nextLine(v[0], v[1])
		}
	case "T*":
		w.nextLine(0, -tp.leading)
	case "TL":
		if v, ok := op.numbers(1); ok {
			tp.leading = v[0]
		}
	case "Tc":
		if v, ok := op.numbers(1); ok {
			tp.charSpace = v[0]
		}
	case "Tw":
		if v, ok := op.numbers(1); ok {
			tp.wordSpace = v[0]
		}
	case "Tz":
		if v, ok := op.numbers(1); ok {
			tp.scale = v[0] / 100
		}
	case "Ts":
		if v, ok := op.numbers(1); ok {
			tp.rise = v[0]
		}
	case "Tf":
		if len(op.args) >= 2 && op.args[0].kind == objName && op.args[1].kind == objNumber {
			tp.font = w.fonts(op.args[0].str)
			tp.size = op.args[1].num
		}
	case "Tj":
		if s, ok := lastString(op); ok {
			w.show(i, -1, s)
		}
	case "'":
		w.nextLine(0, -tp.leading)
		if s, ok := lastString(op); ok {
			w.show(i, -1, s)
		}
	case "\"":
		if len(op.args) == 3 {
			tp.wordSpace = op.args[0].num
			tp.charSpace = op.args[1].num
		}
		w.nextLine(0, -tp.leading)
		if s, ok := lastString(op); ok {
			w.show(i, -1, s)
		}
	case "TJ":
		if len(op.args) == 0 || op.args[len(op.args)-1].kind != objArray {
			return
		}
		for k, item := range op.args[len(op.args)-1].array {
			switch item.kind {
			case objString:
				w.show(i, k, item.str)
			case objNumber:
				w.tm = translate(-item.num/1000*tp.size*tp.scale, 0).mul(w.tm)
			}
		}
	}
}

func lastString(op operation) (string, bool) {
	if len(op.args) == 0 || op.args[len(op.args)-1].kind != objString {
		return "", false
	}
	return op.args[len(op.args)-1].str, true
}

func (w *textWalker) show(op, arg int, s string) {
	tp := w.gs.tp
	f := tp.font
	if f == nil {
		f = w.fonts("")
	}
	for _, code := range f.codes(s) {
		w0 := f.width(code)
		adv := w0 / 1000 * tp.size
		spacing := tp.charSpace
		if len(code) == 1 && code[0] == ' ' {
			spacing += tp.wordSpace
		}

		m := w.tm.mul(w.gs.ctm)
		x0, y0 := m.apply(0, tp.rise)
		x1, _ := m.apply(adv*tp.scale, tp.rise)
		kern := 0.0
		if tp.size != 0 {
			kern = -(w0 + spacing*1000/tp.size)
		}
		w.glyphs = append(w.glyphs, glyph{
			text: f.decode(code),
			x:    math.Min(x0, x1),
			y:    w.pageHeight - y0,
			w:    math.Abs(x1 - x0),
			size: math.Abs(tp.size) * math.Hypot(m[2], m[3]),
			op:   op,
			arg:  arg,
			code: code,
			kern: kern,
		})
		w.tm = translate((adv+spacing)*tp.scale, 0).mul(w.tm)
	}
}
