// Package document turns uploaded pdf, docx and plain-text files into retrieval documents.
package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	pdf "github.com/ledongthuc/pdf"
)

// ErrUnsupported is returned for files that are neither pdf, docx nor plain text.
var ErrUnsupported = errors.New("unsupported document type")

type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
	KindText Kind = "text"
)

const docxBody = "word/document.xml"

// Detect decides the kind from the leading bytes first and falls back to the extension.
func Detect(path string, head []byte) (Kind, error) {
	switch {
	case bytes.HasPrefix(head, []byte("%PDF")):
		return KindPDF, nil
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return KindDOCX, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF, nil
	case ".docx":
		return KindDOCX, nil
	case ".txt", ".md", ".markdown", ".text":
		if bytes.IndexByte(head, 0) >= 0 {
			return "", fmt.Errorf("%s: %w (binary content)", path, ErrUnsupported)
		}
		return KindText, nil
	}
	return "", fmt.Errorf("%s: %w", path, ErrUnsupported)
}

// Extract returns the plain text of a pdf, docx, txt or md file.
func Extract(path string) (string, error) {
	head, err := readHead(path, 512)
	if err != nil {
		return "", err
	}
	kind, err := Detect(path, head)
	if err != nil {
		return "", err
	}
	var text string
	switch kind {
	case KindPDF:
		text, err = extractPDF(path)
	case KindDOCX:
		text, err = extractDOCX(path)
	default:
		text, err = extractText(path)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	return strings.TrimSpace(text), nil
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	got, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:got], nil
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.ToValidUTF8(buf.String(), ""), nil
}

func extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), ""), nil
	}
	return string(data), nil
}

func extractDOCX(path string) (string, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer rc.Close()

	body, err := readZipFile(rc.File, docxBody)
	if err != nil {
		return "", err
	}
	return DOCXText(body)
}

func readZipFile(files []*zip.File, target string) ([]byte, error) {
	for _, f := range files {
		if f == nil || !strings.EqualFold(f.Name, target) {
			continue
		}
		r, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return nil, fmt.Errorf("%s not found in archive", target)
}

// DOCXText walks word/document.xml: one line per paragraph, table rows as "a | b | c".
func DOCXText(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		out    strings.Builder
		para   strings.Builder
		cells  []string
		inText bool
		inCell int
	)
	flushPara := func() {
		line := strings.TrimSpace(para.String())
		para.Reset()
		if inCell > 0 {
			if n := len(cells); n > 0 && line != "" {
				cells[n-1] = strings.TrimSpace(cells[n-1] + " " + line)
			}
			return
		}
		if line != "" {
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte(' ')
			case "tr":
				cells = cells[:0]
			case "tc":
				inCell++
				cells = append(cells, "")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flushPara()
			case "tc":
				if inCell > 0 {
					inCell--
				}
			case "tr":
				row := strings.Join(trimCells(cells), " | ")
				if strings.Trim(row, " |") != "" {
					out.WriteString(row)
					out.WriteByte('\n')
				}
				cells = cells[:0]
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	flushPara()
	return strings.TrimSpace(out.String()), nil
}

func trimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
