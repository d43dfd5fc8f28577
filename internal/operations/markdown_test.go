package operations

import (
	"testing"

	"github.com/weblinq/gateway/internal/gatewayerr"
)

func TestPostProcessMarkdownDemotesDeepHeadings(t *testing.T) {
	got := postProcessMarkdown("####### Too Deep\n\nbody")
	if want := "###### Too Deep\n\nbody"; got != want {
		t.Fatalf("postProcessMarkdown() = %q, want %q", got, want)
	}
}

func TestPostProcessMarkdownRewritesProtocolRelativeLinks(t *testing.T) {
	got := postProcessMarkdown("[a](//example.com/x)")
	if want := "[a](https://example.com/x)"; got != want {
		t.Fatalf("postProcessMarkdown() = %q, want %q", got, want)
	}
}

func TestPostProcessMarkdownDropsEmptyLinkText(t *testing.T) {
	got := postProcessMarkdown("before []( https://example.com ) after")
	if got != "before  after" {
		t.Fatalf("postProcessMarkdown() = %q", got)
	}
}

func TestPostProcessMarkdownCollapsesBlankLines(t *testing.T) {
	got := postProcessMarkdown("a\n\n\n\n\nb")
	if want := "a\n\nb"; got != want {
		t.Fatalf("postProcessMarkdown() = %q, want %q", got, want)
	}
}

func TestDropParagraphBeforeIdenticalHeading(t *testing.T) {
	in := "Introduction\n# Introduction\n\nbody text"
	got := dropParagraphBeforeIdenticalHeading(in)
	want := "# Introduction\n\nbody text"
	if got != want {
		t.Fatalf("dropParagraphBeforeIdenticalHeading() = %q, want %q", got, want)
	}
}

func TestCollapseDuplicateParagraphs(t *testing.T) {
	in := "same text\n\nsame text\n\ndifferent text"
	got := collapseDuplicateParagraphs(in)
	want := "same text\n\ndifferent text"
	if got != want {
		t.Fatalf("collapseDuplicateParagraphs() = %q, want %q", got, want)
	}
}

func TestDropTrailingURLEcho(t *testing.T) {
	in := "[Example](https://example.com)\nhttps://example.com\nmore text"
	got := dropTrailingURLEcho(in)
	want := "[Example](https://example.com)\n\nmore text"
	if got != want {
		t.Fatalf("dropTrailingURLEcho() = %q, want %q", got, want)
	}
}

func TestDropTrailingURLEchoLeavesUnrelatedTextAlone(t *testing.T) {
	in := "[Example](https://example.com)\nsome unrelated caption"
	got := dropTrailingURLEcho(in)
	if got != in {
		t.Fatalf("dropTrailingURLEcho() changed unrelated text: got %q, want %q", got, in)
	}
}

func TestEnvelopeFromErrUsesGatewayErrMessage(t *testing.T) {
	env := envelopeFromErr(gatewayerr.NotFound("page not found"))
	if env.Success {
		t.Fatal("expected a failure envelope")
	}
	if env.Error == nil || env.Error.Message != "page not found" {
		t.Fatalf("expected error message %q, got %+v", "page not found", env.Error)
	}
}
