//go:build mupdf && cgo

// Package mupdf provides Go bindings for the MuPDF library.
// This package enables PDF text extraction, text search with position info,
// true content redaction, base-14 text and image insertion and page region
// rendering.
//
// Build with: go build -tags mupdf
//
// Requires MuPDF development libraries to be installed.
package mupdf

/*
#cgo linux LDFLAGS: -lmupdf -lmupdf-third -lm
#cgo darwin CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo darwin LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lmupdf -lmupdf-third
#cgo windows CFLAGS: -IC:/msys64/mingw64/include
#cgo windows LDFLAGS: -LC:/msys64/mingw64/lib -lmupdf -lfreetype -lharfbuzz -lgumbo -lopenjp2 -ljbig2dec -ljpeg -lz -lgdi32 -luser32

#include <stdlib.h>
#include <string.h>
#include <mupdf/fitz.h>
#include <mupdf/pdf.h>

// Helper function to create context with document handlers registered
static fz_context* new_context() {
    fz_context *ctx = fz_new_context(NULL, NULL, FZ_STORE_DEFAULT);
    if (ctx) {
        fz_try(ctx) {
            fz_register_document_handlers(ctx);
        }
        fz_catch(ctx) {
            // Ignore registration errors
        }
    }
    return ctx;
}

// Helper function to open PDF document
static pdf_document* open_pdf_document(fz_context *ctx, const char *filename) {
    pdf_document *doc = NULL;
    fz_try(ctx) {
        doc = pdf_open_document(ctx, filename);
    }
    fz_catch(ctx) {
        doc = NULL;
    }
    return doc;
}

static int count_pages(fz_context *ctx, pdf_document *doc) {
    int count = -1;
    fz_try(ctx) {
        count = pdf_count_pages(ctx, doc);
    }
    fz_catch(ctx) {
        count = -1;
    }
    return count;
}

static int page_bounds(fz_context *ctx, pdf_document *doc, int page_num, fz_rect *out) {
    int rc = 0;
    fz_page *page = NULL;
    fz_var(page);
    fz_try(ctx) {
        page = fz_load_page(ctx, (fz_document*)doc, page_num);
        *out = fz_bound_page(ctx, page);
    }
    fz_always(ctx) {
        fz_drop_page(ctx, page);
    }
    fz_catch(ctx) {
        rc = -1;
    }
    return rc;
}

// Copies a buffer into malloc'd memory owned by the caller.
static unsigned char* take_buffer(fz_context *ctx, fz_buffer *buf, size_t *len_out) {
    unsigned char *data = NULL;
    size_t len = fz_buffer_storage(ctx, buf, &data);
    unsigned char *copy = (unsigned char*)malloc(len + 1);
    if (copy) {
        memcpy(copy, data, len);
        copy[len] = '\0';
    }
    *len_out = len;
    return copy;
}

static char* extract_page_text(fz_context *ctx, pdf_document *doc, int page_num) {
    char *text = NULL;
    fz_page *page = NULL;
    fz_stext_page *stext = NULL;
    fz_buffer *buf = NULL;
    fz_output *out = NULL;
    fz_var(page);
    fz_var(stext);
    fz_var(buf);
    fz_var(out);
    fz_try(ctx) {
        page = fz_load_page(ctx, (fz_document*)doc, page_num);
        stext = fz_new_stext_page_from_page(ctx, page, NULL);
        buf = fz_new_buffer(ctx, 1024);
        out = fz_new_output_with_buffer(ctx, buf);
        fz_print_stext_page_as_text(ctx, out, stext);
        fz_close_output(ctx, out);
        size_t len = 0;
        text = (char*)take_buffer(ctx, buf, &len);
    }
    fz_always(ctx) {
        fz_drop_output(ctx, out);
        fz_drop_buffer(ctx, buf);
        fz_drop_stext_page(ctx, stext);
        fz_drop_page(ctx, page);
    }
    fz_catch(ctx) {
        text = NULL;
    }
    return text;
}

// Lists every character of a page with the index of its line and its box.
// The caller frees the three arrays. Returns the character count or -1.
static int page_chars(fz_context *ctx, pdf_document *doc, int page_num,
                      int **codes, int **lines, float **boxes) {
    int n = -1;
    fz_page *page = NULL;
    fz_stext_page *stext = NULL;
    fz_var(page);
    fz_var(stext);
    *codes = NULL;
    *lines = NULL;
    *boxes = NULL;
    fz_try(ctx) {
        page = fz_load_page(ctx, (fz_document*)doc, page_num);
        stext = fz_new_stext_page_from_page(ctx, page, NULL);
        int count = 0;
        for (fz_stext_block *b = stext->first_block; b; b = b->next) {
            if (b->type != FZ_STEXT_BLOCK_TEXT)
                continue;
            for (fz_stext_line *l = b->u.t.first_line; l; l = l->next)
                for (fz_stext_char *c = l->first_char; c; c = c->next)
                    count++;
        }
        *codes = (int*)malloc(sizeof(int) * (count + 1));
        *lines = (int*)malloc(sizeof(int) * (count + 1));
        *boxes = (float*)malloc(sizeof(float) * 4 * (count + 1));
        if (!*codes || !*lines || !*boxes)
            fz_throw(ctx, FZ_ERROR_GENERIC, "out of memory");
        int i = 0, line = 0;
        for (fz_stext_block *b = stext->first_block; b; b = b->next) {
            if (b->type != FZ_STEXT_BLOCK_TEXT)
                continue;
            for (fz_stext_line *l = b->u.t.first_line; l; l = l->next, line++) {
                for (fz_stext_char *c = l->first_char; c; c = c->next, i++) {
                    fz_rect r = fz_rect_from_quad(c->quad);
                    (*codes)[i] = c->c;
                    (*lines)[i] = line;
                    (*boxes)[i*4+0] = r.x0;
                    (*boxes)[i*4+1] = r.y0;
                    (*boxes)[i*4+2] = r.x1;
                    (*boxes)[i*4+3] = r.y1;
                }
            }
        }
        n = count;
    }
    fz_always(ctx) {
        fz_drop_stext_page(ctx, stext);
        fz_drop_page(ctx, page);
    }
    fz_catch(ctx) {
        free(*codes);
        free(*lines);
        free(*boxes);
        *codes = NULL;
        *lines = NULL;
        *boxes = NULL;
        n = -1;
    }
    return n;
}

// Finds needle on a page. Hit boxes are written to hits as x0,y0,x1,y1
// quadruples. Returns the hit count or -1.
static int search_page(fz_context *ctx, pdf_document *doc, int page_num,
                       const char *needle, float *hits, int max_hits) {
    int n = -1;
    fz_quad *quads = NULL;
    fz_var(quads);
    fz_try(ctx) {
        quads = (fz_quad*)fz_malloc(ctx, sizeof(fz_quad) * max_hits);
        n = fz_search_page_number(ctx, (fz_document*)doc, page_num, needle, NULL, quads, max_hits);
        for (int i = 0; i < n; i++) {
            fz_rect r = fz_rect_from_quad(quads[i]);
            hits[i*4+0] = r.x0;
            hits[i*4+1] = r.y0;
            hits[i*4+2] = r.x1;
            hits[i*4+3] = r.y1;
        }
    }
    fz_always(ctx) {
        fz_free(ctx, quads);
    }
    fz_catch(ctx) {
        n = -1;
    }
    return n;
}

// Removes all content intersecting the rectangle. Images outside the box
// are kept.
static int redact_rect(fz_context *ctx, pdf_document *doc, int page_num,
                       float x0, float y0, float x1, float y1) {
    int rc = 0;
    pdf_page *page = NULL;
    pdf_annot *annot = NULL;
    fz_var(page);
    fz_var(annot);
    fz_try(ctx) {
        page = pdf_load_page(ctx, doc, page_num);
        annot = pdf_create_annot(ctx, page, PDF_ANNOT_REDACT);
        pdf_set_annot_rect(ctx, annot, fz_make_rect(x0, y0, x1, y1));
        pdf_update_annot(ctx, annot);

        pdf_redact_options opts;
        memset(&opts, 0, sizeof(opts));
        opts.black_boxes = 0;
        opts.image_method = PDF_REDACT_IMAGE_PIXELS;
        pdf_redact_page(ctx, doc, page, &opts);
    }
    fz_always(ctx) {
        pdf_drop_annot(ctx, annot);
        fz_drop_page(ctx, (fz_page*)page);
    }
    fz_catch(ctx) {
        rc = -1;
    }
    return rc;
}

// Wraps the existing page content in q/Q and appends a new stream, so the
// added operators start from a clean graphics state.
static void append_content(fz_context *ctx, pdf_document *doc, pdf_page *page, fz_buffer *buf) {
    fz_buffer *open = fz_new_buffer_from_copied_data(ctx, (const unsigned char*)"q\n", 2);
    fz_buffer *close = fz_new_buffer_from_copied_data(ctx, (const unsigned char*)"Q\n", 2);
    pdf_obj *open_obj = pdf_add_stream(ctx, doc, open, NULL, 0);
    pdf_obj *close_obj = pdf_add_stream(ctx, doc, close, NULL, 0);
    pdf_obj *contents = pdf_add_stream(ctx, doc, buf, NULL, 0);

    pdf_obj *arr = pdf_new_array(ctx, doc, 4);
    pdf_array_push(ctx, arr, open_obj);
    pdf_obj *old_contents = pdf_dict_get(ctx, page->obj, PDF_NAME(Contents));
    if (old_contents) {
        if (pdf_is_array(ctx, old_contents)) {
            int n = pdf_array_len(ctx, old_contents);
            for (int i = 0; i < n; i++) {
                pdf_array_push(ctx, arr, pdf_array_get(ctx, old_contents, i));
            }
        } else {
            pdf_array_push(ctx, arr, old_contents);
        }
    }
    pdf_array_push(ctx, arr, close_obj);
    pdf_array_push(ctx, arr, contents);
    pdf_dict_put_drop(ctx, page->obj, PDF_NAME(Contents), arr);

    pdf_drop_obj(ctx, open_obj);
    pdf_drop_obj(ctx, close_obj);
    pdf_drop_obj(ctx, contents);
    fz_drop_buffer(ctx, open);
    fz_drop_buffer(ctx, close);
}

static pdf_obj* resource_dict(fz_context *ctx, pdf_document *doc, pdf_page *page, pdf_obj *kind) {
    pdf_obj *resources = pdf_dict_get(ctx, page->obj, PDF_NAME(Resources));
    if (!resources) {
        resources = pdf_dict_put_dict(ctx, page->obj, PDF_NAME(Resources), 2);
    }
    pdf_obj *dict = pdf_dict_get(ctx, resources, kind);
    if (!dict) {
        dict = pdf_dict_put_dict(ctx, resources, kind, 2);
    }
    return dict;
}

// Writes WinAnsi-encoded, already escaped text with its baseline origin at
// (x, y) in page space.
static int insert_text(fz_context *ctx, pdf_document *doc, int page_num,
                       const char *text, float x, float y, float font_size,
                       const char *base14, const char *res_name,
                       float r, float g, float b) {
    int rc = 0;
    pdf_page *page = NULL;
    fz_font *font = NULL;
    pdf_obj *font_obj = NULL;
    fz_buffer *buf = NULL;
    fz_var(page);
    fz_var(font);
    fz_var(font_obj);
    fz_var(buf);
    fz_try(ctx) {
        page = pdf_load_page(ctx, doc, page_num);

        fz_matrix ctm;
        pdf_page_transform(ctx, page, NULL, &ctm);
        fz_point p = fz_transform_point(fz_make_point(x, y), fz_invert_matrix(ctm));

        font = fz_new_base14_font(ctx, base14);
        font_obj = pdf_add_simple_font(ctx, doc, font, PDF_SIMPLE_ENCODING_LATIN);
        pdf_dict_puts(ctx, resource_dict(ctx, doc, page, PDF_NAME(Font)), res_name, font_obj);

        buf = fz_new_buffer(ctx, 256);
        fz_append_printf(ctx, buf, "q\n%g %g %g rg\nBT\n/%s %g Tf\n%g %g Td\n(%s) Tj\nET\nQ\n",
                         r, g, b, res_name, font_size, p.x, p.y, text);
        append_content(ctx, doc, page, buf);
    }
    fz_always(ctx) {
        fz_drop_buffer(ctx, buf);
        pdf_drop_obj(ctx, font_obj);
        fz_drop_font(ctx, font);
        fz_drop_page(ctx, (fz_page*)page);
    }
    fz_catch(ctx) {
        rc = -1;
    }
    return rc;
}

// Places an encoded image (PNG, JPEG) so it fills the rectangle.
static int insert_image(fz_context *ctx, pdf_document *doc, int page_num,
                        const unsigned char *data, size_t len, const char *res_name,
                        float x0, float y0, float x1, float y1) {
    int rc = 0;
    pdf_page *page = NULL;
    fz_buffer *img_buf = NULL;
    fz_image *img = NULL;
    pdf_obj *ref = NULL;
    fz_buffer *buf = NULL;
    fz_var(page);
    fz_var(img_buf);
    fz_var(img);
    fz_var(ref);
    fz_var(buf);
    fz_try(ctx) {
        page = pdf_load_page(ctx, doc, page_num);

        img_buf = fz_new_buffer_from_copied_data(ctx, data, len);
        img = fz_new_image_from_buffer(ctx, img_buf);
        ref = pdf_add_image(ctx, doc, img);
        pdf_dict_puts(ctx, resource_dict(ctx, doc, page, PDF_NAME(XObject)), res_name, ref);

        fz_matrix ctm;
        pdf_page_transform(ctx, page, NULL, &ctm);
        fz_rect r = fz_transform_rect(fz_make_rect(x0, y0, x1, y1), fz_invert_matrix(ctm));

        buf = fz_new_buffer(ctx, 128);
        fz_append_printf(ctx, buf, "q\n%g 0 0 %g %g %g cm\n/%s Do\nQ\n",
                         r.x1 - r.x0, r.y1 - r.y0, r.x0, r.y0, res_name);
        append_content(ctx, doc, page, buf);
    }
    fz_always(ctx) {
        fz_drop_buffer(ctx, buf);
        pdf_drop_obj(ctx, ref);
        fz_drop_image(ctx, img);
        fz_drop_buffer(ctx, img_buf);
        fz_drop_page(ctx, (fz_page*)page);
    }
    fz_catch(ctx) {
        rc = -1;
    }
    return rc;
}

// Renders a page region at dpi and returns it PNG-encoded.
static unsigned char* render_png(fz_context *ctx, pdf_document *doc, int page_num,
                                 float x0, float y0, float x1, float y1, int dpi,
                                 size_t *len_out) {
    unsigned char *png = NULL;
    fz_page *page = NULL;
    fz_pixmap *pix = NULL;
    fz_device *dev = NULL;
    fz_buffer *buf = NULL;
    fz_var(page);
    fz_var(pix);
    fz_var(dev);
    fz_var(buf);
    *len_out = 0;
    fz_try(ctx) {
        page = fz_load_page(ctx, (fz_document*)doc, page_num);
        float zoom = dpi / 72.0f;
        fz_matrix ctm = fz_scale(zoom, zoom);
        fz_irect bbox = fz_round_rect(fz_transform_rect(fz_make_rect(x0, y0, x1, y1), ctm));
        pix = fz_new_pixmap_with_bbox(ctx, fz_device_rgb(ctx), bbox, NULL, 0);
        fz_clear_pixmap_with_value(ctx, pix, 255);
        dev = fz_new_draw_device(ctx, fz_identity, pix);
        fz_run_page(ctx, page, dev, ctm, NULL);
        fz_close_device(ctx, dev);
        buf = fz_new_buffer_from_pixmap_as_png(ctx, pix, fz_default_color_params);
        png = take_buffer(ctx, buf, len_out);
    }
    fz_always(ctx) {
        fz_drop_buffer(ctx, buf);
        fz_drop_device(ctx, dev);
        fz_drop_pixmap(ctx, pix);
        fz_drop_page(ctx, page);
    }
    fz_catch(ctx) {
        png = NULL;
    }
    return png;
}

// Helper to save PDF document with unused objects collected
static int save_pdf_document(fz_context *ctx, pdf_document *doc, const char *filename) {
    int rc = 0;
    fz_try(ctx) {
        pdf_write_options opts = pdf_default_write_options;
        opts.do_garbage = 1;
        opts.do_compress = 1;
        pdf_save_document(ctx, doc, filename, &opts);
    }
    fz_catch(ctx) {
        rc = -1;
    }
    return rc;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// maxSearchHits bounds how many matches Search reports per call.
const maxSearchHits = 64

// Context wraps MuPDF fz_context
type Context struct {
	ctx *C.fz_context
}

// NewContext creates a new MuPDF context
func NewContext() (*Context, error) {
	ctx := C.new_context()
	if ctx == nil {
		return nil, ErrContextCreate
	}
	return &Context{ctx: ctx}, nil
}

// Close releases the context
func (c *Context) Close() {
	if c.ctx != nil {
		C.fz_drop_context(c.ctx)
		c.ctx = nil
	}
}

// PDFDocument wraps MuPDF pdf_document for reading and writing
type PDFDocument struct {
	ctx      *Context
	doc      *C.pdf_document
	resource int
}

// OpenPDFDocument opens a PDF document for reading and writing
func (c *Context) OpenPDFDocument(filename string) (*PDFDocument, error) {
	cFilename := C.CString(filename)
	defer C.free(unsafe.Pointer(cFilename))

	doc := C.open_pdf_document(c.ctx, cFilename)
	if doc == nil {
		return nil, ErrOpenDocument
	}
	return &PDFDocument{ctx: c, doc: doc}, nil
}

// Close releases the PDF document
func (d *PDFDocument) Close() {
	if d.doc != nil {
		C.pdf_drop_document(d.ctx.ctx, d.doc)
		d.doc = nil
	}
}

// PageCount returns the number of pages
func (d *PDFDocument) PageCount() int {
	return int(C.count_pages(d.ctx.ctx, d.doc))
}

func (d *PDFDocument) checkPage(pageNum int) error {
	if pageNum < 0 || pageNum >= d.PageCount() {
		return ErrInvalidPage
	}
	return nil
}

// PageBounds returns the bounds of a page
func (d *PDFDocument) PageBounds(pageNum int) (Rect, error) {
	if err := d.checkPage(pageNum); err != nil {
		return Rect{}, err
	}
	var r C.fz_rect
	if C.page_bounds(d.ctx.ctx, d.doc, C.int(pageNum), &r) != 0 {
		return Rect{}, ErrInvalidPage
	}
	return Rect{float64(r.x0), float64(r.y0), float64(r.x1), float64(r.y1)}, nil
}

// ExtractText extracts text from a page
func (d *PDFDocument) ExtractText(pageNum int) (string, error) {
	if err := d.checkPage(pageNum); err != nil {
		return "", err
	}
	cText := C.extract_page_text(d.ctx.ctx, d.doc, C.int(pageNum))
	if cText == nil {
		return "", ErrExtractText
	}
	defer C.free(unsafe.Pointer(cText))
	return C.GoString(cText), nil
}

// Chars returns every character of a page in MuPDF's reading order.
func (d *PDFDocument) Chars(pageNum int) ([]Char, error) {
	if err := d.checkPage(pageNum); err != nil {
		return nil, err
	}
	var codes, lines *C.int
	var boxes *C.float
	n := int(C.page_chars(d.ctx.ctx, d.doc, C.int(pageNum), &codes, &lines, &boxes))
	if n < 0 {
		return nil, ErrExtractText
	}
	defer C.free(unsafe.Pointer(codes))
	defer C.free(unsafe.Pointer(lines))
	defer C.free(unsafe.Pointer(boxes))

	cs := unsafe.Slice(codes, n)
	ls := unsafe.Slice(lines, n)
	bs := unsafe.Slice(boxes, n*4)
	out := make([]Char, n)
	for i := range out {
		out[i] = Char{
			Rune: rune(cs[i]),
			Line: int(ls[i]),
			Box:  Rect{float64(bs[i*4]), float64(bs[i*4+1]), float64(bs[i*4+2]), float64(bs[i*4+3])},
		}
	}
	return out, nil
}

// Search returns the boxes of every occurrence of needle on a page, in
// MuPDF's reading order.
func (d *PDFDocument) Search(pageNum int, needle string) ([]Rect, error) {
	if err := d.checkPage(pageNum); err != nil {
		return nil, err
	}
	cNeedle := C.CString(needle)
	defer C.free(unsafe.Pointer(cNeedle))

	hits := make([]C.float, maxSearchHits*4)
	n := int(C.search_page(d.ctx.ctx, d.doc, C.int(pageNum), cNeedle, &hits[0], C.int(maxSearchHits)))
	if n < 0 {
		return nil, ErrSearch
	}
	out := make([]Rect, n)
	for i := 0; i < n; i++ {
		out[i] = Rect{float64(hits[i*4]), float64(hits[i*4+1]), float64(hits[i*4+2]), float64(hits[i*4+3])}
	}
	return out, nil
}

// Redact permanently removes content intersecting r.
func (d *PDFDocument) Redact(pageNum int, r Rect) error {
	if err := d.checkPage(pageNum); err != nil {
		return err
	}
	if C.redact_rect(d.ctx.ctx, d.doc, C.int(pageNum),
		C.float(r.X0), C.float(r.Y0), C.float(r.X1), C.float(r.Y1)) != 0 {
		return ErrRedact
	}
	return nil
}

func (d *PDFDocument) nextResource(prefix string) string {
	d.resource++
	return fmt.Sprintf("%s%d", prefix, d.resource)
}

// InsertText writes text in a base-14 font with its baseline origin at
// (x, y). text must already be WinAnsi-encoded and string-escaped.
func (d *PDFDocument) InsertText(pageNum int, text string, x, y, fontSize float64, base14 string, rgb [3]float64) error {
	if err := d.checkPage(pageNum); err != nil {
		return err
	}
	cText := C.CString(text)
	defer C.free(unsafe.Pointer(cText))
	cFont := C.CString(base14)
	defer C.free(unsafe.Pointer(cFont))
	cName := C.CString(d.nextResource("NAF"))
	defer C.free(unsafe.Pointer(cName))

	if C.insert_text(d.ctx.ctx, d.doc, C.int(pageNum), cText,
		C.float(x), C.float(y), C.float(fontSize), cFont, cName,
		C.float(rgb[0]), C.float(rgb[1]), C.float(rgb[2])) != 0 {
		return ErrAddText
	}
	return nil
}

// InsertImage places an encoded image so it fills r.
func (d *PDFDocument) InsertImage(pageNum int, data []byte, r Rect) error {
	if err := d.checkPage(pageNum); err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrAddImage
	}
	cData := C.CBytes(data)
	defer C.free(cData)
	cName := C.CString(d.nextResource("NAI"))
	defer C.free(unsafe.Pointer(cName))

	if C.insert_image(d.ctx.ctx, d.doc, C.int(pageNum),
		(*C.uchar)(cData), C.size_t(len(data)), cName,
		C.float(r.X0), C.float(r.Y0), C.float(r.X1), C.float(r.Y1)) != 0 {
		return ErrAddImage
	}
	return nil
}

// RenderPNG renders the region r of a page at dpi.
func (d *PDFDocument) RenderPNG(pageNum int, r Rect, dpi int) ([]byte, error) {
	if err := d.checkPage(pageNum); err != nil {
		return nil, err
	}
	var n C.size_t
	png := C.render_png(d.ctx.ctx, d.doc, C.int(pageNum),
		C.float(r.X0), C.float(r.Y0), C.float(r.X1), C.float(r.Y1), C.int(dpi), &n)
	if png == nil {
		return nil, ErrRender
	}
	defer C.free(unsafe.Pointer(png))
	return C.GoBytes(unsafe.Pointer(png), C.int(n)), nil
}

// Save saves the PDF document to a file
func (d *PDFDocument) Save(filename string) error {
	cFilename := C.CString(filename)
	defer C.free(unsafe.Pointer(cFilename))

	if C.save_pdf_document(d.ctx.ctx, d.doc, cFilename) != 0 {
		return ErrSaveDocument
	}
	return nil
}

// IsAvailable returns whether MuPDF is available
func IsAvailable() bool {
	return true
}
