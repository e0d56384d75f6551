package utils

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestReadStatementsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.sql")
	content := "SELECT * FROM credit_train;\r\n\nSELECT \"UF\", COUNT(*)\nFROM credit_train\nGROUP BY \"UF\";\n\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := ReadStatementsFromFile(path)
	if err != nil {
		t.Fatalf("ReadStatementsFromFile() unexpected error: %v", err)
	}
	want := []string{
		"SELECT * FROM credit_train",
		"SELECT \"UF\", COUNT(*)\nFROM credit_train\nGROUP BY \"UF\"",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadStatementsFromFile() = %q, want %q", got, want)
	}

	if _, err := ReadStatementsFromFile(filepath.Join(t.TempDir(), "missing.sql")); err == nil {
		t.Errorf("ReadStatementsFromFile() expected error for missing file")
	}
}

func TestReadContextFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.md")
	b := filepath.Join(dir, "b.md")
	os.WriteFile(a, []byte("TARGET=1 means default."), 0o600)
	os.WriteFile(b, []byte("UF is the Brazilian state."), 0o600)

	got, err := ReadContextFiles(a + ", " + b)
	if err != nil {
		t.Fatalf("ReadContextFiles() unexpected error: %v", err)
	}
	if !strings.Contains(got, "TARGET=1 means default.") || !strings.Contains(got, "UF is the Brazilian state.") {
		t.Errorf("ReadContextFiles() = %q", got)
	}

	if got, err := ReadContextFiles(""); err != nil || got != "" {
		t.Errorf("ReadContextFiles(\"\") = %q, %v", got, err)
	}
	if _, err := ReadContextFiles(filepath.Join(dir, "nope.md")); err == nil {
		t.Errorf("ReadContextFiles() expected error for missing file")
	}
}

func TestParseTablesFlag(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    map[string][]string
		wantErr bool
	}{
		{"empty", "", map[string][]string{}, false},
		{"single table", "credit_train", map[string][]string{"credit_train": nil}, false},
		{"columns", "credit_train[UF, SEXO]", map[string][]string{"credit_train": {"UF", "SEXO"}}, false},
		{"mixed", "credit_train[UF],regions", map[string][]string{"credit_train": {"UF"}, "regions": nil}, false},
		{"unclosed", "credit_train[UF", nil, true},
		{"no table", "[UF]", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTablesFlag(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTablesFlag() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseTablesFlag() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitOutsideBrackets(t *testing.T) {
	got := SplitOutsideBrackets("a[b,c],d")
	want := []string{"a[b,c]", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitOutsideBrackets() = %q, want %q", got, want)
	}
}
