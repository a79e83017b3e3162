package main

import (
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"
)

// SourceMap is a version 3 source map for a single source file.
type SourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

type SourceMapOptions struct {
	File           string // name of the generated file
	Source         string // name of the original file
	IncludeContent bool
}

func (m *SourceMap) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// DataURL encodes the map as a base64 data URL.
func (m *SourceMap) DataURL() (string, error) {
	data, err := m.JSON()
	if err != nil {
		return "", err
	}
	return "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// InlineComment returns a sourceMappingURL comment embedding the map.
func (m *SourceMap) InlineComment() (string, error) {
	url, err := m.DataURL()
	if err != nil {
		return "", err
	}
	return "//# sourceMappingURL=" + url, nil
}

var base64Digits = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/")

// encodeVLQ appends value as a base 64 variable length quantity. The lowest
// bit of the first digit is the sign, bit 6 of every digit is the
// continuation bit.
func encodeVLQ(encoded []byte, value int) []byte {
	var vlq int
	if value < 0 {
		vlq = ((-value) << 1) | 1
	} else {
		vlq = value << 1
	}
	for {
		digit := vlq & 31
		vlq >>= 5
		if vlq != 0 {
			digit |= 32
		}
		encoded = append(encoded, base64Digits[digit])
		if vlq == 0 {
			return encoded
		}
	}
}

// lineIndex converts byte offsets into 0-based lines and UTF-16 columns.
type lineIndex struct {
	text       string
	lineStarts []int
}

func newLineIndex(text string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{text: text, lineStarts: starts}
}

func (li *lineIndex) position(offset int) (line int, column int) {
	line = sort.Search(len(li.lineStarts), func(i int) bool {
		return li.lineStarts[i] > offset
	}) - 1
	return line, utf16Len(li.text[li.lineStarts[line]:offset])
}

func utf16Len(s string) int {
	n := 0
	for len(s) > 0 {
		r, width := utf8.DecodeRuneInString(s)
		s = s[width:]
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

type mappingsWriter struct {
	buf         []byte
	genLine     int
	lastGenCol  int
	lastOrigLn  int
	lastOrigCol int
	lineHasSeg  bool
}

func (w *mappingsWriter) add(genLine, genColumn, origLine, origColumn int) {
	for w.genLine < genLine {
		w.buf = append(w.buf, ';')
		w.genLine++
		w.lastGenCol = 0
		w.lineHasSeg = false
	}
	if w.lineHasSeg {
		w.buf = append(w.buf, ',')
	}
	w.buf = encodeVLQ(w.buf, genColumn-w.lastGenCol)
	w.buf = encodeVLQ(w.buf, 0) // single source
	w.buf = encodeVLQ(w.buf, origLine-w.lastOrigLn)
	w.buf = encodeVLQ(w.buf, origColumn-w.lastOrigCol)
	w.lastGenCol = genColumn
	w.lastOrigLn = origLine
	w.lastOrigCol = origColumn
	w.lineHasSeg = true
}

// GenerateMap builds a map with one segment at the start of every
// replacement, at the start of every unchanged section, and at the start of
// every line inside an unchanged section.
func (b *EditBuffer) GenerateMap(opts SourceMapOptions) *SourceMap {
	index := newLineIndex(b.original)
	w := &mappingsWriter{}
	genLine, genCol := 0, 0

	advance := func(text string) {
		for len(text) > 0 {
			nl := strings.IndexByte(text, '\n')
			if nl < 0 {
				genCol += utf16Len(text)
				return
			}
			genLine++
			genCol = 0
			text = text[nl+1:]
		}
	}

	emitOriginal := func(start, end int) {
		segment := b.original[start:end]
		offset := start
		for len(segment) > 0 {
			nl := strings.IndexByte(segment, '\n')
			if nl != 0 {
				line, col := index.position(offset)
				w.add(genLine, genCol, line, col)
			}
			if nl < 0 {
				genCol += utf16Len(segment)
				return
			}
			genLine++
			genCol = 0
			offset += nl + 1
			segment = segment[nl+1:]
		}
	}

	lastPos := 0
	for _, c := range b.changes {
		if c.Start > lastPos {
			emitOriginal(lastPos, c.Start)
		}
		if c.Text != "" {
			line, col := index.position(c.Start)
			w.add(genLine, genCol, line, col)
			advance(c.Text)
		}
		lastPos = c.End
	}
	if lastPos < len(b.original) {
		emitOriginal(lastPos, len(b.original))
	}

	sm := &SourceMap{
		Version:  3,
		File:     opts.File,
		Sources:  []string{opts.Source},
		Names:    []string{},
		Mappings: string(w.buf),
	}
	if opts.IncludeContent {
		sm.SourcesContent = []string{b.original}
	}
	return sm
}
