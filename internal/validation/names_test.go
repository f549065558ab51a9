package validation

import (
	"strings"
	"testing"
)

func TestValidateEntryName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "report.pdf", false},
		{"with spaces", "Q3 budget review", false},
		{"unicode", "résumé-2025.docx", false},
		{"double dots inside", "data..v2.csv", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"forward slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"null byte", "a\x00b", true},
		{"newline", "a\nb", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"too long", strings.Repeat("x", 256), true},
		{"at length cap", strings.Repeat("x", 255), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntryName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEntryName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUploadSize(t *testing.T) {
	if err := ValidateUploadSize(0); err != nil {
		t.Errorf("zero-byte upload should be allowed: %v", err)
	}
	if err := ValidateUploadSize(1 << 20); err != nil {
		t.Errorf("1 MiB upload should be allowed: %v", err)
	}
	if err := ValidateUploadSize(-1); err == nil {
		t.Error("negative size should be rejected")
	}
	if err := ValidateUploadSize(3 << 30); err == nil {
		t.Error("3 GiB upload should be rejected")
	}
}
