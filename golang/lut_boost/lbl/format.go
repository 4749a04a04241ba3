package lbl

import (
	"bufio"
	"compress/gzip"
	"io"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

//Format is the persisted model format: a record encoding plus an optional gzip framing.
type Format int

const (
	FormatText Format = iota
	FormatBinary
	FormatGzipText
	FormatGzipBinary
)

//FormatFromPath selects the format from the file extension:
//.vbin is binary, .gz is gzipped text, .vbgz is gzipped binary, anything else is text.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vbin":
		return FormatBinary
	case ".gz":
		return FormatGzipText
	case ".vbgz":
		return FormatGzipBinary
	}
	return FormatText
}

func (f Format) Binary() bool {
	return f == FormatBinary || f == FormatGzipBinary
}

func (f Format) Compressed() bool {
	return f == FormatGzipText || f == FormatGzipBinary
}

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatBinary:
		return "binary"
	case FormatGzipText:
		return "gzip+text"
	case FormatGzipBinary:
		return "gzip+binary"
	}
	return "unknown"
}

//recordEncoder is a RecordWriter bound to a stream; Close flushes the records and the framing.
type recordEncoder struct {
	RecordWriter
	flush func() error
	frame io.Closer
}

func (e *recordEncoder) Close() error {
	if err := e.flush(); err != nil {
		return err
	}
	if e.frame != nil {
		return e.frame.Close()
	}
	return nil
}

//recordDecoder is a RecordReader bound to a stream.
type recordDecoder struct {
	RecordReader
	frame io.Closer
}

func (d *recordDecoder) Close() error {
	if d.frame != nil {
		return d.frame.Close()
	}
	return nil
}

//openWriter composes the framing and the record encoding of format on top of w.
func openWriter(w io.Writer, format Format) *recordEncoder {
	enc := &recordEncoder{}
	if format.Compressed() {
		gz := gzip.NewWriter(w)
		enc.frame = gz
		w = gz
	}
	buffered := bufio.NewWriter(w)
	if format.Binary() {
		bw := &binaryWriter{w: buffered}
		enc.RecordWriter, enc.flush = bw, bw.flush
	} else {
		tw := &textWriter{w: buffered}
		enc.RecordWriter, enc.flush = tw, tw.flush
	}
	return enc
}

//openReader is the mirror of openWriter.
func openReader(r io.Reader, format Format) (*recordDecoder, error) {
	dec := &recordDecoder{}
	if format.Compressed() {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		dec.frame = gz
		r = gz
	}
	buffered := bufio.NewReader(r)
	if format.Binary() {
		dec.RecordReader = &binaryReader{r: buffered}
	} else {
		dec.RecordReader = &textReader{r: buffered}
	}
	return dec, nil
}
