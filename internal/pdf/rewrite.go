package pdf

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// defaultTextSize is used when a Font carries no size.
const defaultTextSize = 9.0

func (f Font) pointSize() float64 {
	if f.Size <= 0 {
		return defaultTextSize
	}
	return f.Size
}

// winAnsi encodes text for a base-14 font. Runes outside the encoding are
// replaced.
func winAnsi(text string) ([]byte, error) {
	return encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()).Bytes([]byte(text))
}

// textBox is the area WriteText will cover for text set in f at at.
func textBox(at Point, raw []byte, f Font) Rect {
	size := f.pointSize()
	w := 0
	for _, c := range raw {
		w += font.CharWidth(f.Base14(), rune(c))
	}
	return Rect{
		X0: at.X, Y0: at.Y - size*ascentRatio,
		X1: at.X + float64(w)/1000*size, Y1: at.Y + size*descentRatio,
	}
}

// centreIn reports whether the centre of r lies inside any of boxes.
func centreIn(r Rect, boxes []Rect) bool {
	cx, cy := (r.X0+r.X1)/2, (r.Y0+r.Y1)/2
	for _, b := range boxes {
		if cx >= b.X0 && cx <= b.X1 && cy >= b.Y0 && cy <= b.Y1 {
			return true
		}
	}
	return false
}

// stripGlyphs returns the page content with every glyph whose centre lies
// in one of covers removed from its text showing operator. Operators without
// such glyphs are copied byte for byte.
func stripGlyphs(l pageLayout, covers []Rect) []byte {
	if len(covers) == 0 {
		return l.content
	}
	byOp := make(map[int][]glyph)
	drop := make(map[int]bool)
	for _, g := range l.glyphs {
		byOp[g.op] = append(byOp[g.op], g)
		if centreIn(g.box(), covers) {
			drop[g.op] = true
		}
	}
	if len(drop) == 0 {
		return l.content
	}

	var out bytes.Buffer
	prev := 0
	for i, op := range l.ops {
		if !drop[i] {
			continue
		}
		out.Write(l.content[prev:op.start])
		out.WriteString(rewriteShow(op, byOp[i], covers))
		prev = op.end
	}
	out.Write(l.content[prev:])
	return out.Bytes()
}

// rewriteShow re-emits a Tj, ', " or TJ operator as a TJ whose dropped
// glyphs are replaced by the kerning that keeps the rest in place.
func rewriteShow(op operation, glyphs []glyph, covers []Rect) string {
	var b strings.Builder
	switch op.op {
	case "'":
		b.WriteString("T* ")
	case "\"":
		if len(op.args) == 3 {
			fmt.Fprintf(&b, "%s Tw %s Tc ", formatNumber(op.args[0].num), formatNumber(op.args[1].num))
		}
		b.WriteString("T* ")
	}

	items := []object{{kind: objString}}
	single := true
	if op.op == "TJ" {
		items = op.args[len(op.args)-1].array
		single = false
	}

	var parts []string
	var run []byte
	kern := 0.0
	flush := func() {
		if len(run) > 0 {
			parts = append(parts, "<"+hex.EncodeToString(run)+">")
			run = nil
		}
	}
	j := 0
	for k, item := range items {
		switch item.kind {
		case objNumber:
			flush()
			kern += item.num
		case objString:
			arg := k
			if single {
				arg = -1
			}
			for ; j < len(glyphs) && glyphs[j].arg == arg; j++ {
				g := glyphs[j]
				if centreIn(g.box(), covers) {
					flush()
					kern += g.kern
					continue
				}
				if kern != 0 {
					parts = append(parts, formatNumber(kern))
					kern = 0
				}
				run = append(run, g.code...)
			}
		}
	}
	flush()
	if kern != 0 {
		parts = append(parts, formatNumber(kern))
	}
	b.WriteString("[" + strings.Join(parts, " ") + "] TJ")
	return b.String()
}

// coverOps paints r white. pageHeight flips r into PDF user space.
func coverOps(r Rect, pageHeight float64) string {
	return fmt.Sprintf("q 1 1 1 rg %s %s %s %s re f Q\n",
		formatNumber(r.X0), formatNumber(pageHeight-r.Y1),
		formatNumber(r.Width()), formatNumber(r.Height()))
}

// textOps shows raw WinAnsi bytes with the baseline at at.
func textOps(at Point, raw []byte, f Font, res string, pageHeight float64) string {
	c := f.Color
	return fmt.Sprintf("q BT /%s %s Tf %s %s %s rg 1 0 0 1 %s %s Tm <%s> Tj ET Q\n",
		res, formatNumber(f.pointSize()),
		formatNumber(c.R), formatNumber(c.G), formatNumber(c.B),
		formatNumber(at.X), formatNumber(pageHeight-at.Y),
		hex.EncodeToString(raw))
}

// editPage replaces the contents of a 0-based page with the stripped
// original followed by the cover and text stamps in list, in order.
func editPage(ctx *model.Context, l pageLayout, page int, list []stamp) error {
	var covers []Rect
	var faces []string
	seen := make(map[string]bool)
	for _, s := range list {
		switch s.kind {
		case stampCover:
			covers = append(covers, s.rect)
		case stampText:
			if face := s.font.Base14(); !seen[face] {
				seen[face] = true
				faces = append(faces, face)
			}
		}
	}
	if len(covers) == 0 && len(faces) == 0 {
		return nil
	}

	d, _, inh, err := ctx.PageDict(page+1, false)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("page %d not found", page+1)
	}
	names, err := addFonts(ctx, d, inh, faces)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("q\n")
	buf.Write(stripGlyphs(l, covers))
	buf.WriteString("\nQ\n")
	for _, s := range list {
		switch s.kind {
		case stampCover:
			buf.WriteString(coverOps(s.rect, l.height))
		case stampText:
			buf.WriteString(textOps(s.at, s.raw, s.font, names[s.font.Base14()], l.height))
		}
	}

	sd, err := ctx.NewStreamDictForBuf(buf.Bytes())
	if err != nil {
		return err
	}
	if err := sd.Encode(); err != nil {
		return err
	}
	ir, err := ctx.IndRefForNewObject(*sd)
	if err != nil {
		return err
	}
	d.Update("Contents", *ir)
	return nil
}

// addFonts registers a WinAnsi base-14 font resource per face under names
// the page does not use yet and returns face to resource name.
func addFonts(ctx *model.Context, d types.Dict, inh *model.InheritedPageAttrs, faces []string) (map[string]string, error) {
	names := make(map[string]string, len(faces))
	if len(faces) == 0 {
		return names, nil
	}

	var res types.Dict
	if inh != nil {
		res = inh.Resources
	}
	if res == nil {
		res = types.NewDict()
	}
	var fonts types.Dict
	if o, ok := res.Find("Font"); ok {
		fd, err := ctx.DereferenceDict(o)
		if err != nil {
			return nil, err
		}
		fonts = fd
	}
	if fonts == nil {
		fonts = types.NewDict()
		res.Update("Font", fonts)
	}

	i := 0
	for _, face := range faces {
		name := ""
		for ; ; i++ {
			name = "NF" + strconv.Itoa(i)
			if _, found := fonts.Find(name); !found {
				break
			}
		}
		fonts.Insert(name, types.Dict(map[string]types.Object{
			"Type":     types.Name("Font"),
			"Subtype":  types.Name("Type1"),
			"BaseFont": types.Name(face),
			"Encoding": types.Name("WinAnsiEncoding"),
		}))
		names[face] = name
	}
	d.Update("Resources", res)
	return names, nil
}
