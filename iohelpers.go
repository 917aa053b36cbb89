// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
)

// FileOpenFailedError reports a required input file that could not be
// opened.
type FileOpenFailedError struct {
	Path string
	Err  error
}

func (e *FileOpenFailedError) Error() string {
	return "could not open " + e.Path + ": " + e.Err.Error()
}

func (e *FileOpenFailedError) Unwrap() error { return e.Err }

// openInput opens path for reading, transparently decompressing it with
// pgzip when the name ends in ".gz".
func openInput(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileOpenFailedError{Path: path, Err: err}
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zr, err := pgzip.NewReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		f.Close()
		return nil, &FileOpenFailedError{Path: path, Err: err}
	}
	return &gzipReadCloser{zr: zr, f: f}, nil
}

type gzipReadCloser struct {
	zr *pgzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.zr.Read(p) }
func (g *gzipReadCloser) Close() error {
	g.zr.Close()
	return g.f.Close()
}

// createOutput creates path for writing, transparently gzip-compressing it
// with pgzip when gz is true. The returned writer must be closed by the
// caller to flush the gzip trailer.
func createOutput(path string, gz bool) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return nil, &FileOpenFailedError{Path: path, Err: err}
	}
	if !gz {
		return f, nil
	}
	zw := pgzip.NewWriter(f)
	return &gzipWriteCloser{zw: zw, f: f}, nil
}

type gzipWriteCloser struct {
	zw *pgzip.Writer
	f  *os.File
}

func (g *gzipWriteCloser) Write(p []byte) (int, error) { return g.zw.Write(p) }
func (g *gzipWriteCloser) Close() error {
	if err := g.zw.Close(); err != nil {
		g.f.Close()
		return err
	}
	return g.f.Close()
}

// isGzipPath reports whether path should be treated as gzip-compressed
// based on its name, the same convention openInput/createOutput use.
func isGzipPath(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

// bufferedLines returns a line scanner over r whose buffer accepts lines of
// up to 16 MiB. Lines are neither trimmed nor filtered: callers skip blank
// lines themselves, as the haplotype and SNP-list readers do.
func bufferedLines(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<24)
	return sc
}
