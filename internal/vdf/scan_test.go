package vdf

import (
	"errors"
	"strings"
	"testing"
)

func TestFindBlock_FlatRecord(t *testing.T) {
	content := `"users"
{
	"76561198000000001"
	{
		"AccountName"		"alice"
		"MostRecent"		"1"
	}
}`
	b, err := FindBlock(content, "76561198000000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := content[b.Start:b.End]
	if !strings.HasPrefix(got, "{") || !strings.HasSuffix(got, "}") {
		t.Fatalf("span does not cover braces: %q", got)
	}
	if !strings.Contains(got, `"AccountName"`) {
		t.Errorf("span missing record body: %q", got)
	}
	if strings.Contains(got, `"users"`) {
		t.Errorf("span leaked outside the record: %q", got)
	}
}

func TestFindBlock_NestedDepth(t *testing.T) {
	content := `"730"
{
	"stats"
	{
		"kills"		"12"
	}
	"PlayTime"		"340"
}
"740"
{
}`
	b, err := FindBlock(content, "730")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := content[b.Start:b.End]
	if !strings.Contains(got, `"PlayTime"`) {
		t.Errorf("outer block cut short by nested close: %q", got)
	}
	if strings.Contains(got, `"740"`) {
		t.Errorf("outer block overran into sibling: %q", got)
	}
}

// Braces inside quoted values must not affect depth counting.
func TestFindBlock_BracesInsideQuotes(t *testing.T) {
	content := `"5" { "Name" "a{b}c" "X" "1" }`
	b, err := FindBlock(content, "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := content[b.Start:b.End]
	if !strings.Contains(got, `"X" "1"`) {
		t.Errorf("block ended at quoted brace: %q", got)
	}
	if got[len(got)-1] != '}' {
		t.Errorf("block does not end at closing brace: %q", got)
	}
}

func TestFindBlock_EscapedQuote(t *testing.T) {
	// The \" stays inside the string, so the following { must be ignored.
	content := `"7" { "Name" "say \"hi{\" now" "Flag" "1" }`
	b, err := FindBlock(content, "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := content[b.Start:b.End]; !strings.Contains(got, `"Flag" "1"`) {
		t.Errorf("escaped quote broke the scan: %q", got)
	}
}

func TestFindBlock_DoubleBackslashBeforeQuote(t *testing.T) {
	// \\" is an escaped backslash followed by a real closing quote.
	content := `"9" { "Path" "C:\\steam\\" "Flag" "1" }`
	b, err := FindBlock(content, "9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := content[b.Start:b.End]; !strings.HasSuffix(got, "}") {
		t.Errorf("double backslash mis-toggled quote state: %q", got)
	}
}

func TestFindBlock_WhitespaceBetweenKeyAndBrace(t *testing.T) {
	content := "\"42\"\n\t\t{\n\t\"k\"\t\"v\"\n}"
	b, err := FindBlock(content, "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content[b.Start] != '{' {
		t.Errorf("Start = %d, not at opening brace", b.Start)
	}
}

func TestFindBlock_KeyMissing(t *testing.T) {
	_, err := FindBlock(`"1" { }`, "2")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFindBlock_Unterminated(t *testing.T) {
	content := `"1"
{
	"AccountName"	"bob"
	"nested"
	{
`
	_, err := FindBlock(content, "1")
	if !errors.Is(err, ErrUnterminated) {
		t.Errorf("err = %v, want ErrUnterminated", err)
	}
}

func TestFindBlock_FirstOccurrenceWins(t *testing.T) {
	content := `"10" { "n" "first" }
"10" { "n" "second" }`
	b, err := FindBlock(content, "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := content[b.Start:b.End]; !strings.Contains(got, "first") {
		t.Errorf("want first block, got %q", got)
	}
}
