package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"strings"
	"sync"

	fitz "github.com/gen2brain/go-fitz"
	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// overlay backend: text geometry comes from the content stream interpreter,
// edits are written into the page content with pdfcpu on Save and
// rasterisation goes through go-fitz. Redaction removes the covered glyphs
// from their text operators and paints the box white.

type stampKind int

const (
	stampCover stampKind = iota
	stampText
	stampImage
)

type stamp struct {
	kind stampKind
	rect Rect
	at   Point
	raw  []byte
	font Font
	png  []byte
}

type overlayDocument struct {
	path   string
	file   *os.File
	reader *lpdf.Reader

	mu       sync.Mutex
	layouts  map[int]pageLayout
	stamps   map[int][]stamp
	redacted map[int][]Rect
	raster   *fitz.Document
}

func openOverlay(path string) (Document, error) {
	f, r, err := lpdf.Open(path)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "encrypt") {
			return nil, NewPDFError(ErrPDFEncrypted, "PDF is encrypted", err)
		}
		return nil, NewPDFError(ErrPDFInvalid, "cannot open PDF file", err)
	}
	return &overlayDocument{
		path:     path,
		file:     f,
		reader:   r,
		layouts:  make(map[int]pageLayout),
		stamps:   make(map[int][]stamp),
		redacted: make(map[int][]Rect),
	}, nil
}

func (d *overlayDocument) PageCount() int { return d.reader.NumPage() }

func (d *overlayDocument) layout(i int) (pageLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.layouts[i]; ok {
		return l, nil
	}
	l, err := readLayout(d.reader, i+1)
	if err != nil {
		return pageLayout{}, err
	}
	d.layouts[i] = l
	return l, nil
}

func (d *overlayDocument) Page(i int) (Page, error) {
	if err := checkPage(i, d.PageCount()); err != nil {
		return nil, err
	}
	l, err := d.layout(i)
	if err != nil {
		return nil, err
	}
	return &overlayPage{doc: d, index: i, width: l.width, height: l.height}, nil
}

func (d *overlayDocument) Text(i int) (string, error) {
	if err := checkPage(i, d.PageCount()); err != nil {
		return "", err
	}
	l, err := d.layout(i)
	if err != nil {
		return "", err
	}
	return l.text(), nil
}

// addStamp queues an edit. A cover also cancels text queued earlier inside
// it.
func (d *overlayDocument) addStamp(page int, s stamp) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.kind == stampCover {
		kept := d.stamps[page][:0]
		for _, prev := range d.stamps[page] {
			if prev.kind == stampText && centreIn(textBox(prev.at, prev.raw, prev.font), []Rect{s.rect}) {
				continue
			}
			kept = append(kept, prev)
		}
		d.stamps[page] = kept
		d.redacted[page] = append(d.redacted[page], s.rect)
	}
	d.stamps[page] = append(d.stamps[page], s)
}

// covered reports whether r lies inside a box already redacted on page.
func (d *overlayDocument) covered(page int, r Rect) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.redacted[page] {
		if r.X0 >= c.X0 && r.X1 <= c.X1 && r.Y0 >= c.Y0 && r.Y1 <= c.Y1 {
			return true
		}
	}
	return false
}

func (d *overlayDocument) rasterDoc() (*fitz.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.raster != nil {
		return d.raster, nil
	}
	doc, err := fitz.New(d.path)
	if err != nil {
		return nil, err
	}
	d.raster = doc
	return doc, nil
}

// Save writes the source with every queued edit applied, in the order the
// edits were made.
func (d *overlayDocument) Save(path string) error {
	d.mu.Lock()
	edits := make(map[int][]stamp, len(d.stamps))
	layouts := make(map[int]pageLayout, len(d.stamps))
	for page, list := range d.stamps {
		if len(list) > 0 {
			edits[page] = append([]stamp(nil), list...)
			layouts[page] = d.layouts[page]
		}
	}
	d.mu.Unlock()

	src, err := os.ReadFile(d.path)
	if err != nil {
		return NewPDFError(ErrSaveFailed, "cannot read source PDF", err)
	}
	if len(edits) == 0 {
		return writeFile(path, src)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(src), conf)
	if err != nil {
		return NewPDFError(ErrSaveFailed, "cannot read source PDF", err)
	}

	images := make(map[int][]*model.Watermark)
	for page, list := range edits {
		l := layouts[page]
		if l.height == 0 {
			l.height = defaultPageHeight
		}
		if err := editPage(ctx, l, page, list); err != nil {
			return NewPDFErrorWithPage(ErrSaveFailed, "failed to rewrite page content", page, err)
		}
		for _, s := range list {
			if s.kind != stampImage {
				continue
			}
			wm, err := s.watermark(l.height)
			if err != nil {
				return NewPDFErrorWithPage(ErrSaveFailed, "failed to build image stamp", page, err)
			}
			images[page+1] = append(images[page+1], wm)
		}
	}
	if len(images) > 0 {
		if err := pdfcpu.AddWatermarksSliceMap(ctx, images); err != nil {
			return NewPDFError(ErrSaveFailed, "failed to apply image stamps", err)
		}
	} else {
		ctx.EnsureVersionForWriting()
	}

	var out bytes.Buffer
	if err := api.Write(ctx, &out, conf); err != nil {
		return NewPDFError(ErrSaveFailed, "failed to serialise PDF", err)
	}
	return writeFile(path, out.Bytes())
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return NewPDFError(ErrSaveFailed, "cannot write PDF", err)
	}
	return nil
}

func (d *overlayDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.raster != nil {
		d.raster.Close()
		d.raster = nil
	}
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}

// watermark converts an image stamp to a pdfcpu watermark. pdfcpu positions
// from the bottom-left corner with y up.
func (s stamp) watermark(pageHeight float64) (*model.Watermark, error) {
	if s.kind != stampImage {
		return nil, fmt.Errorf("stamp kind %d is not an image", s.kind)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(s.png))
	if err != nil {
		return nil, err
	}
	if cfg.Width == 0 {
		return nil, fmt.Errorf("empty image")
	}
	scale := s.rect.Width() / float64(cfg.Width)
	desc := fmt.Sprintf("position:bl, offset:%.2f %.2f, scalefactor:%.6f abs, rotation:0, opacity:1",
		s.rect.X0, pageHeight-s.rect.Y0-float64(cfg.Height)*scale, scale)
	return api.ImageWatermarkForReader(bytes.NewReader(s.png), desc, true, false, types.POINTS)
}

type overlayPage struct {
	doc           *overlayDocument
	index         int
	width, height float64
}

func (p *overlayPage) Index() int { return p.index }

func (p *overlayPage) Size() (float64, float64) { return p.width, p.height }

func (p *overlayPage) bounds() Rect { return Rect{X1: p.width, Y1: p.height} }

// Locate skips matches that an earlier Redact on this page already covers.
func (p *overlayPage) Locate(pat Pattern) ([]Rect, error) {
	l, err := p.doc.layout(p.index)
	if err != nil {
		return nil, err
	}
	var out []Rect
	for _, r := range l.locate(pat) {
		if !p.doc.covered(p.index, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *overlayPage) Redact(r Rect) error {
	r = r.Clip(p.bounds())
	if r.Empty() {
		return NewPDFErrorWithPage(ErrRedactFailed, "redaction box outside page", p.index, nil)
	}
	p.doc.addStamp(p.index, stamp{kind: stampCover, rect: r})
	return nil
}

func (p *overlayPage) WriteText(at Point, text string, f Font) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if strings.Contains(text, "\n") {
		return NewPDFErrorWithDetails(ErrWriteFailed, "text must be a single line", text, nil)
	}
	raw, err := winAnsi(text)
	if err != nil {
		return NewPDFErrorWithPage(ErrWriteFailed, "cannot encode text", p.index, err)
	}
	p.doc.addStamp(p.index, stamp{kind: stampText, at: at, raw: raw, font: f})
	return nil
}

// Rasterize renders from the source file, so it sees the page as it was
// before any pending edits.
func (p *overlayPage) Rasterize(r Rect, dpi int) ([]byte, error) {
	if dpi <= 0 {
		dpi = 150
	}
	r = r.Clip(p.bounds())
	if r.Empty() {
		return nil, NewPDFErrorWithPage(ErrRenderFailed, "raster box outside page", p.index, nil)
	}
	doc, err := p.doc.rasterDoc()
	if err != nil {
		return nil, NewPDFErrorWithPage(ErrUnsupported, "rasterizer unavailable", p.index, err)
	}
	img, err := doc.ImageDPI(p.index, float64(dpi))
	if err != nil {
		return nil, NewPDFErrorWithPage(ErrRenderFailed, "failed to render page", p.index, err)
	}
	scale := float64(dpi) / 72
	crop := image.Rect(
		int(math.Floor(r.X0*scale)), int(math.Floor(r.Y0*scale)),
		int(math.Ceil(r.X1*scale)), int(math.Ceil(r.Y1*scale)),
	).Intersect(img.Bounds())
	if crop.Empty() {
		return nil, NewPDFErrorWithPage(ErrRenderFailed, "empty raster crop", p.index, nil)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.SubImage(crop)); err != nil {
		return nil, NewPDFErrorWithPage(ErrRenderFailed, "failed to encode PNG", p.index, err)
	}
	return buf.Bytes(), nil
}

func (p *overlayPage) InsertImage(r Rect, data []byte) error {
	if r.Empty() {
		return NewPDFErrorWithPage(ErrWriteFailed, "image box is empty", p.index, nil)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return NewPDFErrorWithPage(ErrWriteFailed, "image is not a PNG", p.index, err)
	}
	p.doc.addStamp(p.index, stamp{kind: stampImage, rect: r, png: data})
	return nil
}
