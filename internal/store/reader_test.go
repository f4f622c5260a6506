package store

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestSanitizingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello,world")...),
			expected: "hello,world",
		},
		{
			name:     "file without BOM",
			input:    []byte("hello,world"),
			expected: "hello,world",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM is invalid UTF-8",
			input:    []byte{0xEF, 0xBB, 'a'},
			expected: "??a",
		},
		{
			name:     "multibyte kept",
			input:    []byte("café,naïve"),
			expected: "café,naïve",
		},
		{
			name:     "invalid byte replaced",
			input:    []byte{'h', 'e', 0x80, 'l', 'o'},
			expected: "he?lo",
		},
		{
			name:     "BOM and invalid byte",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, 'h', 'e', 0x80, 'l', 'o'),
			expected: "he?lo",
		},
		{
			name:     "empty input",
			input:    []byte{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(NewSanitizingReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestSanitizingReader_SmallBuffers(t *testing.T) {
	input := "€uro,ünïcode,日本"
	r := NewSanitizingReader(iotest.OneByteReader(strings.NewReader(input)))

	var out []byte
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if string(out) != input {
		t.Errorf("got %q, want %q", out, input)
	}
}

func TestCountingReader(t *testing.T) {
	input := strings.Repeat("x", 1000)
	reader := NewCountingReader(strings.NewReader(input), int64(len(input)))

	if _, err := io.Copy(io.Discard, reader); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader.BytesRead != int64(len(input)) {
		t.Errorf("BytesRead = %d, want %d", reader.BytesRead, len(input))
	}
	if reader.Progress() != 100 {
		t.Errorf("Progress = %d, want 100", reader.Progress())
	}
	if NewCountingReader(strings.NewReader(""), 0).Progress() != 0 {
		t.Error("Progress with unknown total should be 0")
	}
}
