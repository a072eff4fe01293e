package completion

import (
	"reflect"
	"testing"
)

func testCatalog() *Catalog {
	return NewCatalog([]Entry{
		{Name: "status", Summary: "show runtime status"},
		{Name: "stage", Summary: "show or set life stage"},
		{Name: "stats", Summary: "show usage statistics"},
	})
}

func TestParseBufferSlashToken(t *testing.T) {
	buf := ParseBuffer("/sta")
	if !buf.IsSlash || buf.Token != "sta" || buf.Prefix != "" {
		t.Fatalf("unexpected buffer %+v", buf)
	}
}

func TestParseBufferPlainWordAfterPrefix(t *testing.T) {
	buf := ParseBuffer("/mission set hello wor")
	if !buf.IsSlash || buf.Token != "wor" || buf.Prefix != "mission set hello " {
		t.Fatalf("unexpected buffer %+v", buf)
	}
}

func TestParseBufferPlainLine(t *testing.T) {
	buf := ParseBuffer("stat")
	if buf.IsSlash || buf.Token != "stat" || buf.Prefix != "" {
		t.Fatalf("unexpected buffer %+v", buf)
	}
}

func TestCompleteSlashSortedPrefixMatches(t *testing.T) {
	buf := Buffer{Token: "sta", IsSlash: true}
	got := Complete(buf, testCatalog(), nil)
	want := []string{"stage", "stats", "status"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCompletePlainOnlyAtStartOfLine(t *testing.T) {
	buf := Buffer{Token: "he", Prefix: "tako "}
	got := Complete(buf, testCatalog(), []string{"help", "health"})
	if got != nil {
		t.Fatalf("expected no completions mid-line for plain commands, got %v", got)
	}
}

func TestCompletePlainAtStart(t *testing.T) {
	buf := Buffer{Token: "he"}
	got := Complete(buf, testCatalog(), []string{"help", "health", "hi"})
	want := []string{"health", "help"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRotatorWrapsAround(t *testing.T) {
	r := NewRotator([]string{"a", "b", "c"})
	seq := []string{}
	for i := 0; i < 4; i++ {
		v, ok := r.Next()
		if !ok {
			t.Fatalf("expected ok=true")
		}
		seq = append(seq, v)
	}
	want := []string{"a", "b", "c", "a"}
	if !reflect.DeepEqual(seq, want) {
		t.Fatalf("got %v, want %v", seq, want)
	}
}

func TestRotatorEmpty(t *testing.T) {
	r := NewRotator(nil)
	if _, ok := r.Next(); ok {
		t.Fatalf("expected ok=false for an empty rotator")
	}
}
