// Package ndtio reads and writes the packed little-endian record streams
// that carry registration test cases and reference results.
//
// Input stream layout:
//
//	int32 testcase_count
//	repeated: float32[16] init_guess (row-major 4x4)
//	          int32 n, n * (float32 x, y, z, intensity)   filtered scan
//	          int32 n, n * (float32 x, y, z, intensity)   target map
//
// Reference stream layout, one record per test case:
//
//	float32[16] final_transformation
//	float64     fitness_score
//	uint8       converged (0 or 1)
//
// There is no alignment padding anywhere.
package ndtio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/scanmatch.report/internal/ndt"
)

// Testcase is one parsed input record.
type Testcase struct {
	InitGuess    ndt.Matrix4
	FilteredScan ndt.PointCloud
	TargetMap    ndt.PointCloud
}

// Result is one parsed (or produced) reference record.
type Result struct {
	FinalTransformation ndt.Matrix4
	FitnessScore        float64
	Converged           bool
}

// maxCloudPoints bounds a single cloud so a corrupt length prefix cannot
// drive an allocation of arbitrary size.
const maxCloudPoints = 1 << 26

// Reader decodes a test-case input stream.
type Reader struct {
	br    *bufio.Reader
	count int
	read  int
}

// NewReader consumes the test-case count from r and returns a Reader
// positioned at the first record.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	count, err := readInt32(br)
	if err != nil {
		return nil, fmt.Errorf("read testcase count: %w", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("negative testcase count %d", count)
	}
	return &Reader{br: br, count: int(count)}, nil
}

// Count returns the number of test cases the stream header announced.
func (r *Reader) Count() int { return r.count }

// Next parses the next test case. It returns io.EOF (undecorated) once all
// announced records have been read.
func (r *Reader) Next() (*Testcase, error) {
	if r.read >= r.count {
		return nil, io.EOF
	}
	var tc Testcase
	var err error
	if tc.InitGuess, err = readMatrix(r.br); err != nil {
		return nil, fmt.Errorf("testcase %d: init guess: %w", r.read, err)
	}
	if tc.FilteredScan, err = readCloud(r.br); err != nil {
		return nil, fmt.Errorf("testcase %d: filtered scan: %w", r.read, err)
	}
	if tc.TargetMap, err = readCloud(r.br); err != nil {
		return nil, fmt.Errorf("testcase %d: target map: %w", r.read, err)
	}
	r.read++
	return &tc, nil
}

// RefReader decodes a reference result stream.
type RefReader struct {
	br   *bufio.Reader
	read int
}

// NewRefReader wraps r. Reference streams have no header.
func NewRefReader(r io.Reader) *RefReader {
	return &RefReader{br: bufio.NewReaderSize(r, 1<<16)}
}

// Next parses the next reference record.
func (r *RefReader) Next() (*Result, error) {
	var res Result
	var err error
	if res.FinalTransformation, err = readMatrix(r.br); err != nil {
		if err == io.EOF {
			// Clean end of stream between records.
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reference %d: transformation: %w", r.read, err)
	}
	var bits uint64
	if err := readFull(r.br, 8, func(b []byte) {
		bits = binary.LittleEndian.Uint64(b)
	}); err != nil {
		return nil, fmt.Errorf("reference %d: fitness score: %w", r.read, err)
	}
	res.FitnessScore = math.Float64frombits(bits)
	flag, err := r.br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reference %d: converged flag: %w", r.read, err)
	}
	res.Converged = flag != 0
	r.read++
	return &res, nil
}

// Writer encodes a test-case input stream.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter writes the stream header for count test cases and returns a
// Writer for the records. Flush must be called when done.
func NewWriter(w io.Writer, count int) (*Writer, error) {
	bw := bufio.NewWriterSize(w, 1<<20)
	if err := writeInt32(bw, int32(count)); err != nil {
		return nil, fmt.Errorf("write testcase count: %w", err)
	}
	return &Writer{bw: bw}, nil
}

// Write appends one test-case record.
func (w *Writer) Write(tc *Testcase) error {
	if err := writeMatrix(w.bw, tc.InitGuess); err != nil {
		return err
	}
	if err := writeCloud(w.bw, tc.FilteredScan); err != nil {
		return err
	}
	return writeCloud(w.bw, tc.TargetMap)
}

// Flush flushes buffered records to the underlying writer.
func (w *Writer) Flush() error { return w.bw.Flush() }

// RefWriter encodes a reference result stream.
type RefWriter struct {
	bw *bufio.Writer
}

// NewRefWriter wraps w.
func NewRefWriter(w io.Writer) *RefWriter {
	return &RefWriter{bw: bufio.NewWriterSize(w, 1<<16)}
}

// Write appends one reference record.
func (w *RefWriter) Write(res *Result) error {
	if err := writeMatrix(w.bw, res.FinalTransformation); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(res.FitnessScore))
	if _, err := w.bw.Write(buf[:]); err != nil {
		return err
	}
	flag := byte(0)
	if res.Converged {
		flag = 1
	}
	return w.bw.WriteByte(flag)
}

// Flush flushes buffered records to the underlying writer.
func (w *RefWriter) Flush() error { return w.bw.Flush() }

func readFull(br *bufio.Reader, n int, fn func([]byte)) error {
	var buf [64]byte
	b := buf[:n]
	if _, err := io.ReadFull(br, b); err != nil {
		return err
	}
	fn(b)
	return nil
}

func readInt32(br *bufio.Reader) (int32, error) {
	var v int32
	err := readFull(br, 4, func(b []byte) {
		v = int32(binary.LittleEndian.Uint32(b))
	})
	return v, err
}

func writeInt32(bw *bufio.Writer, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := bw.Write(buf[:])
	return err
}

func readMatrix(br *bufio.Reader) (ndt.Matrix4, error) {
	var m ndt.Matrix4
	var buf [64]byte
	if _, err := io.ReadFull(br, buf[:]); err != nil {
		return m, err
	}
	for i := 0; i < 16; i++ {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return m, nil
}

func writeMatrix(bw *bufio.Writer, m ndt.Matrix4) error {
	var buf [64]byte
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(m[i]))
	}
	_, err := bw.Write(buf[:])
	return err
}

func readCloud(br *bufio.Reader) (ndt.PointCloud, error) {
	n, err := readInt32(br)
	if err != nil {
		return nil, fmt.Errorf("point count: %w", err)
	}
	if n < 0 || n > maxCloudPoints {
		return nil, fmt.Errorf("implausible point count %d", n)
	}
	cloud := make(ndt.PointCloud, n)
	var buf [16]byte
	for i := range cloud {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		for k := 0; k < 4; k++ {
			cloud[i][k] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*k:]))
		}
	}
	return cloud, nil
}

func writeCloud(bw *bufio.Writer, cloud ndt.PointCloud) error {
	if err := writeInt32(bw, int32(len(cloud))); err != nil {
		return err
	}
	var buf [16]byte
	for i := range cloud {
		for k := 0; k < 4; k++ {
			binary.LittleEndian.PutUint32(buf[4*k:], math.Float32bits(cloud[i][k]))
		}
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}
