package ndtio

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/scanmatch.report/internal/ndt"
)

func sampleTestcases() []*Testcase {
	guess := ndt.Identity()
	guess[3] = 1.5
	guess[7] = -0.25

	return []*Testcase{
		{
			InitGuess: guess,
			FilteredScan: ndt.PointCloud{
				{1, 2, 3, 0.5},
				{-1, -2, -3, 0.25},
			},
			TargetMap: ndt.PointCloud{
				{0.1, 0.2, 0.3, 1},
			},
		},
		{
			InitGuess:    ndt.Identity(),
			FilteredScan: ndt.PointCloud{},
			TargetMap: ndt.PointCloud{
				{4, 5, 6, 0},
				{7, 8, 9, 1},
				{-4, -5, -6, 2},
			},
		},
	}
}

// TestTestcaseRoundTrip writes a stream and reads it back unchanged.
func TestTestcaseRoundTrip(t *testing.T) {
	cases := sampleTestcases()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, len(cases))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, tc := range cases {
		if err := w.Write(tc); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Count() != len(cases) {
		t.Fatalf("Count = %d, want %d", r.Count(), len(cases))
	}

	for i, want := range cases {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("testcase %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF after last record, got %v", err)
	}
}

// TestResultRoundTrip writes reference records and reads them back.
func TestResultRoundTrip(t *testing.T) {
	m := ndt.Identity()
	m[3] = 12.75
	results := []*Result{
		{FinalTransformation: m, FitnessScore: 0.0625, Converged: true},
		{FinalTransformation: ndt.Identity(), FitnessScore: -1.5, Converged: false},
	}

	var buf bytes.Buffer
	w := NewRefWriter(&buf)
	for _, res := range results {
		if err := w.Write(res); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r := NewRefReader(&buf)
	for i, want := range results {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("result %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF after last record, got %v", err)
	}
}

// TestWireLayout checks the exact byte layout of a reference record:
// 64 bytes of matrix, 8 bytes of score, 1 byte of flag, little-endian.
func TestWireLayout(t *testing.T) {
	res := &Result{FinalTransformation: ndt.Identity(), FitnessScore: 2.5, Converged: true}

	var buf bytes.Buffer
	w := NewRefWriter(&buf)
	if err := w.Write(res); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	raw := buf.Bytes()
	if len(raw) != 64+8+1 {
		t.Fatalf("record length = %d, want 73", len(raw))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(raw[0:])); got != 1 {
		t.Errorf("matrix[0] on wire = %v, want 1", got)
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(raw[64:])); got != 2.5 {
		t.Errorf("score on wire = %v, want 2.5", got)
	}
	if raw[72] != 1 {
		t.Errorf("converged byte = %d, want 1", raw[72])
	}
}

// TestTruncatedStream checks truncation surfaces as an error, not a short
// result.
func TestTruncatedStream(t *testing.T) {
	cases := sampleTestcases()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, len(cases))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, tc := range cases {
		if err := w.Write(tc); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	trunc := buf.Bytes()[:buf.Len()-7]
	r, err := NewReader(bytes.NewReader(trunc))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.Next(); err != nil {
		t.Fatalf("first record should be intact: %v", err)
	}
	if _, err := r.Next(); err == nil || err == io.EOF {
		t.Fatalf("expected truncation error, got %v", err)
	}
}

// TestNegativeCount rejects a corrupt header.
func TestNegativeCount(t *testing.T) {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], 0xFFFFFFFF) // -1
	if _, err := NewReader(bytes.NewReader(hdr[:])); err == nil {
		t.Fatal("expected error for negative testcase count")
	}
}
