package operations

import "testing"

func TestOuterHTMLToTextJoinsListItemsInline(t *testing.T) {
	html := `<div><h2>Title</h2><ul><li>one</li><li>two</li></ul></div>`
	got := outerHTMLToText(html)
	want := "Title, one, two"
	if got != want {
		t.Fatalf("outerHTMLToText() = %q, want %q", got, want)
	}
}

func TestOuterHTMLToTextDropsEmptyNodes(t *testing.T) {
	html := `<p>  </p><p>hello</p>`
	got := outerHTMLToText(html)
	if got != "hello" {
		t.Fatalf("outerHTMLToText() = %q, want %q", got, "hello")
	}
}

func TestOuterHTMLToTextEmptyInputReturnsEmpty(t *testing.T) {
	got := outerHTMLToText("")
	if got != "" {
		t.Fatalf("outerHTMLToText(\"\") = %q, want empty string", got)
	}
}
