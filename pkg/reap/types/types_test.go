package types

import (
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		// Basic byte values
		{name: "plain bytes", input: "1024", want: 1024, wantErr: false},
		{name: "zero bytes", input: "0", want: 0, wantErr: false},
		{name: "bytes with B suffix", input: "512B", want: 512, wantErr: false},
		{name: "bytes with lowercase b", input: "512b", want: 512, wantErr: false},

		// Binary multiples
		{name: "kilobytes", input: "100K", want: 100 * 1024, wantErr: false},
		{name: "kilobytes with iB", input: "100KiB", want: 100 * 1024, wantErr: false},
		{name: "megabytes", input: "50M", want: 50 * 1024 * 1024, wantErr: false},
		{name: "megabytes with B", input: "50MB", want: 50 * 1024 * 1024, wantErr: false},
		{name: "gigabytes", input: "2G", want: 2 * 1024 * 1024 * 1024, wantErr: false},
		{name: "gigabytes with iB", input: "1GiB", want: 1024 * 1024 * 1024, wantErr: false},
		{name: "terabytes", input: "1T", want: 1024 * 1024 * 1024 * 1024, wantErr: false},
		{name: "lowercase suffix", input: "2g", want: 2 * 1024 * 1024 * 1024, wantErr: false},

		// Whitespace handling
		{name: "surrounding whitespace", input: "  100M  ", want: 100 * 1024 * 1024, wantErr: false},

		// Edge cases
		{name: "decimal values truncated", input: "1.5G", want: 1610612736, wantErr: false},

		// Error cases
		{name: "empty string", input: "", wantErr: true},
		{name: "only whitespace", input: "   ", wantErr: true},
		{name: "invalid suffix", input: "100X", wantErr: true},
		{name: "negative value", input: "-100M", wantErr: true},
		{name: "letters only", input: "abc", wantErr: true},
		{name: "suffix only", input: "M", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestStatusExitCode(t *testing.T) {
	tests := []struct {
		status Status
		want   int
	}{
		{StatusVerified, 0},
		{StatusUnsupportedFormat, 2},
		{StatusIntegrityFailed, 3},
		{StatusListMismatch, 4},
		{StatusMetadataMismatch, 6},
		{StatusZeroVerified, 10},
		{StatusContentMismatch, 1},
		{StatusIoError, 1},
		{StatusQuarantined, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.ExitCode(); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStatusIsFailure(t *testing.T) {
	if StatusVerified.IsFailure() {
		t.Error("StatusVerified must not be a failure")
	}

	for _, s := range []Status{
		StatusUnsupportedFormat, StatusIntegrityFailed, StatusListMismatch,
		StatusMetadataMismatch, StatusContentMismatch, StatusZeroVerified,
		StatusIoError, StatusQuarantined,
	} {
		if !s.IsFailure() {
			t.Errorf("%s must be a failure", s)
		}
	}
}

func TestDedupCandidateReclaimable(t *testing.T) {
	c := DedupCandidate{
		Size:           GiB,
		CanonicalPath:  "/data/a/big.bin",
		DuplicatePaths: []string{"/data/b/big.bin", "/data/c/big.bin"},
	}
	if got := c.Reclaimable(); got != 2*GiB {
		t.Errorf("Reclaimable() = %d, want %d", got, 2*GiB)
	}

	empty := DedupCandidate{Size: GiB}
	if got := empty.Reclaimable(); got != 0 {
		t.Errorf("Reclaimable() with no duplicates = %d, want 0", got)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1.0 MiB"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
