package pdf

import (
	"errors"
	"io"
	"strconv"
	"strings"
)

// Content stream lexing. Every operation keeps the byte span it was parsed
// from so the overlay writer can replace single operators and copy the rest
// of the stream unchanged.

type objKind int

const (
	objNumber objKind = iota
	objName
	objString
	objArray
	objOther
)

type object struct {
	kind  objKind
	num   float64
	str   string
	array []object
}

type operation struct {
	op         string
	args       []object
	start, end int
}

var errUnterminated = errors.New("unterminated content stream token")

type lexer struct {
	data []byte
	pos  int
}

func isSpace(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

func isDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case isSpace(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) regular() string {
	start := l.pos
	for l.pos < len(l.data) && !isSpace(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

// next reads one token. Operands come back as objects; anything else comes
// back as a keyword, including the "]" and ">>" closers.
func (l *lexer) next() (object, string, error) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return object{}, "", io.EOF
	}
	c := l.data[l.pos]
	switch {
	case c == '(':
		s, err := l.literalString()
		return object{kind: objString, str: s}, "", err
	case c == '<' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '<':
		l.pos += 2
		err := l.skipUntil(">>")
		return object{kind: objOther}, "", err
	case c == '<':
		s, err := l.hexString()
		return object{kind: objString, str: s}, "", err
	case c == '>' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '>':
		l.pos += 2
		return object{}, ">>", nil
	case c == '[':
		l.pos++
		var items []object
		for {
			obj, kw, err := l.next()
			if err != nil {
				if err == io.EOF {
					err = errUnterminated
				}
				return object{}, "", err
			}
			if kw == "]" {
				return object{kind: objArray, array: items}, "", nil
			}
			if kw != "" {
				return object{}, "", errors.New("unexpected operator " + kw + " in array")
			}
			items = append(items, obj)
		}
	case c == ']' || c == '{' || c == '}' || c == ')' || c == '>':
		l.pos++
		return object{}, string(c), nil
	case c == '/':
		l.pos++
		return object{kind: objName, str: decodeName(l.regular())}, "", nil
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		tok := l.regular()
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			v = 0
		}
		return object{kind: objNumber, num: v}, "", nil
	}
	kw := l.regular()
	switch kw {
	case "true", "false", "null":
		return object{kind: objOther}, "", nil
	}
	if kw == "" {
		l.pos++
		return object{}, string(c), nil
	}
	return object{}, kw, nil
}

// skipUntil consumes a nested dictionary up to its matching closer.
func (l *lexer) skipUntil(closer string) error {
	for {
		_, kw, err := l.next()
		if err != nil {
			if err == io.EOF {
				return errUnterminated
			}
			return err
		}
		if kw == closer {
			return nil
		}
	}
}

func (l *lexer) literalString() (string, error) {
	l.pos++
	depth := 1
	var b []byte
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			b = append(b, c)
		case ')':
			depth--
			if depth == 0 {
				return string(b), nil
			}
			b = append(b, c)
		case '\\':
			if l.pos >= len(l.data) {
				return "", errUnterminated
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				b = append(b, '\n')
			case 'r':
				b = append(b, '\r')
			case 't':
				b = append(b, '\t')
			case 'b':
				b = append(b, '\b')
			case 'f':
				b = append(b, '\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; k++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					b = append(b, byte(v))
				} else {
					b = append(b, e)
				}
			}
		default:
			b = append(b, c)
		}
	}
	return "", errUnterminated
}

func (l *lexer) hexString() (string, error) {
	l.pos++
	var digits []byte
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			out := make([]byte, len(digits)/2)
			for i := range out {
				out[i] = unhex(digits[2*i])<<4 | unhex(digits[2*i+1])
			}
			return string(out), nil
		}
		if isSpace(c) {
			continue
		}
		digits = append(digits, c)
	}
	return "", errUnterminated
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func decodeName(s string) string {
	if !strings.Contains(s, "#") {
		return s
	}
	var b []byte
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && i+2 < len(s) {
			b = append(b, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
			continue
		}
		b = append(b, s[i])
	}
	return string(b)
}

// skipInlineImage moves past the data of a BI ... ID ... EI image.
func (l *lexer) skipInlineImage() error {
	for {
		_, kw, err := l.next()
		if err != nil {
			if err == io.EOF {
				return errUnterminated
			}
			return err
		}
		if kw == "ID" {
			break
		}
	}
	if l.pos < len(l.data) && isSpace(l.data[l.pos]) {
		l.pos++
	}
	for i := l.pos; i+1 < len(l.data); i++ {
		if l.data[i] != 'E' || l.data[i+1] != 'I' {
			continue
		}
		if i > 0 && !isSpace(l.data[i-1]) {
			continue
		}
		if i+2 < len(l.data) && !isSpace(l.data[i+2]) {
			continue
		}
		l.pos = i + 2
		return nil
	}
	return errUnterminated
}

// parseContent splits a content stream into operations.
func parseContent(data []byte) ([]operation, error) {
	l := &lexer{data: data}
	var ops []operation
	var args []object
	start := -1
	for {
		l.skipSpace()
		if l.pos >= len(data) {
			return ops, nil
		}
		if start < 0 {
			start = l.pos
		}
		obj, kw, err := l.next()
		if err != nil {
			return ops, err
		}
		if kw == "" {
			args = append(args, obj)
			continue
		}
		if kw == "BI" {
			if err := l.skipInlineImage(); err != nil {
				return ops, err
			}
		}
		ops = append(ops, operation{op: kw, args: args, start: start, end: l.pos})
		args = nil
		start = -1
	}
}

func (o operation) numbers(n int) ([]float64, bool) {
	if len(o.args) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i := range out {
		a := o.args[len(o.args)-n+i]
		if a.kind != objNumber {
			return nil, false
		}
		out[i] = a.num
	}
	return out, true
}

// formatNumber writes v with at most four decimals.
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}
