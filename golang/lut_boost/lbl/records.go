package lbl

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"strconv"

	"github.com/cockroachdb/errors"
)

//maxRecordString bounds the length of a persisted string (names and labels).
const maxRecordString = 1 << 16

//RecordWriter encodes the fields of persisted records.
type RecordWriter interface {
	WriteInt(v int) error
	WriteFloat(v float64) error
	WriteString(s string) error
	//EndRecord closes a record; text records end with a new line.
	EndRecord() error
}

//RecordReader decodes fields in the order a RecordWriter wrote them.
type RecordReader interface {
	ReadInt() (int, error)
	ReadFloat() (float64, error)
	ReadString() (string, error)
}

//textWriter writes whitespace separated tokens. Strings are stored as "<len> <bytes>".
type textWriter struct {
	w *bufio.Writer
}

func (tw *textWriter) token(s string) error {
	if _, err := tw.w.WriteString(s); err != nil {
		return err
	}
	return tw.w.WriteByte(' ')
}

func (tw *textWriter) WriteInt(v int) error {
	return tw.token(strconv.Itoa(v))
}

func (tw *textWriter) WriteFloat(v float64) error {
	return tw.token(strconv.FormatFloat(v, 'g', -1, 64))
}

func (tw *textWriter) WriteString(s string) error {
	if err := tw.WriteInt(len(s)); err != nil {
		return err
	}
	return tw.token(s)
}

func (tw *textWriter) EndRecord() error {
	return tw.w.WriteByte('\n')
}

func (tw *textWriter) flush() error {
	return tw.w.Flush()
}

type textReader struct {
	r *bufio.Reader
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

//token skips leading whitespace and reads up to and including the next whitespace byte.
func (tr *textReader) token() (string, error) {
	b, err := tr.r.ReadByte()
	for err == nil && isSpace(b) {
		b, err = tr.r.ReadByte()
	}
	if err != nil {
		return "", noEOF(err)
	}

	buf := []byte{b}
	for {
		b, err = tr.r.ReadByte()
		if err == io.EOF || (err == nil && isSpace(b)) {
			return string(buf), nil
		}
		if err != nil {
			return "", err
		}
		buf = append(buf, b)
	}
}

func (tr *textReader) ReadInt() (int, error) {
	tok, err := tr.token()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	return v, errors.Wrapf(err, "parse integer record %q", tok)
}

func (tr *textReader) ReadFloat() (float64, error) {
	tok, err := tr.token()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 64)
	return v, errors.Wrapf(err, "parse float record %q", tok)
}

func (tr *textReader) ReadString() (string, error) {
	n, err := tr.ReadInt()
	if err != nil {
		return "", err
	}
	if err := checkStringLen(n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(tr.r, buf); err != nil {
		return "", noEOF(err)
	}
	return string(buf), nil
}

//binaryWriter writes little-endian int64/float64 fields and length prefixed strings.
type binaryWriter struct {
	w       *bufio.Writer
	scratch [8]byte
}

func (bw *binaryWriter) WriteInt(v int) error {
	binary.LittleEndian.PutUint64(bw.scratch[:], uint64(int64(v)))
	_, err := bw.w.Write(bw.scratch[:])
	return err
}

func (bw *binaryWriter) WriteFloat(v float64) error {
	binary.LittleEndian.PutUint64(bw.scratch[:], math.Float64bits(v))
	_, err := bw.w.Write(bw.scratch[:])
	return err
}

func (bw *binaryWriter) WriteString(s string) error {
	if err := bw.WriteInt(len(s)); err != nil {
		return err
	}
	_, err := bw.w.WriteString(s)
	return err
}

func (bw *binaryWriter) EndRecord() error { return nil }

func (bw *binaryWriter) flush() error {
	return bw.w.Flush()
}

type binaryReader struct {
	r       *bufio.Reader
	scratch [8]byte
}

func (br *binaryReader) word() (uint64, error) {
	if _, err := io.ReadFull(br.r, br.scratch[:]); err != nil {
		return 0, noEOF(err)
	}
	return binary.LittleEndian.Uint64(br.scratch[:]), nil
}

func (br *binaryReader) ReadInt() (int, error) {
	v, err := br.word()
	return int(int64(v)), err
}

func (br *binaryReader) ReadFloat() (float64, error) {
	v, err := br.word()
	return math.Float64frombits(v), err
}

func (br *binaryReader) ReadString() (string, error) {
	n, err := br.ReadInt()
	if err != nil {
		return "", err
	}
	if err := checkStringLen(n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br.r, buf); err != nil {
		return "", noEOF(err)
	}
	return string(buf), nil
}

//checkStringLen rejects string lengths no writer produces before anything is allocated.
func checkStringLen(n int) error {
	if n < 0 || n > maxRecordString {
		return errors.Newf("string record length %d out of [0, %d]", n, maxRecordString)
	}
	return nil
}

//noEOF reports a truncated record stream as an unexpected EOF.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
