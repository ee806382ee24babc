// Package file implements the file way: read a text file line by line from a
// 1-based start line, decoding from any WHATWG-labelled encoding.
package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/DJune12138/Collection3/internal/domain"
)

// maxLine bounds a single line; longer lines fail the read.
const maxLine = 4 << 20

// Read returns the lines of path starting at start_line (default 1).
func Read(ctx context.Context, params map[string]any) ([]string, error) {
	const op = "file"
	p := domain.Params(params)

	path, ok, err := p.String("path")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Missing(op, "path")
	}
	start, ok, err := p.Int("start_line")
	if err != nil {
		return nil, err
	}
	if !ok {
		start = 1
	}
	if start < 1 {
		return nil, domain.Errorf(domain.KindValidationFailure, op, "start_line=%d, lines are numbered from 1", start)
	}
	label, _, err := p.String("encoding")
	if err != nil {
		return nil, err
	}
	enc, err := Encoding(label)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLines(ctx, enc.NewDecoder().Reader(f), start)
}

// Encoding resolves a WHATWG label such as "gbk" or "utf-8". An empty label is UTF-8.
func Encoding(label string) (encoding.Encoding, error) {
	if label == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, domain.Unsupported("file", "encoding", label, "utf-8", "gbk", "gb18030", "big5", "shift_jis", "...")
	}
	return enc, nil
}

func readLines(ctx context.Context, r io.Reader, start int) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var lines []string
	n := 0
	for sc.Scan() {
		n++
		if n%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if n < start {
			continue
		}
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", n+1, err)
	}
	return lines, nil
}
