package runstore

import (
	"strings"
	"testing"
)

func TestRunID_StableForSameInputs(t *testing.T) {
	a := RunID("/books/My Book.epub", "en-US-AriaNeural", "/out/audio")
	b := RunID("/books/My Book.epub", "en-US-AriaNeural", "/out/audio")
	if a != b {
		t.Fatalf("run id not stable: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "my-book-") {
		t.Fatalf("expected readable stem prefix, got %q", a)
	}
}

func TestRunID_ChangesWithVoiceAndOutputDir(t *testing.T) {
	base := RunID("/books/My Book.epub", "en-US-AriaNeural", "/out/audio")

	if got := RunID("/books/My Book.epub", "zh-CN-YunxiaNeural", "/out/audio"); got == base {
		t.Fatalf("different voice must yield a different run id")
	}
	if got := RunID("/books/My Book.epub", "en-US-AriaNeural", "/out/other"); got == base {
		t.Fatalf("different output dir must yield a different run id")
	}
}

func TestRunID_SanitizesAwkwardFileNames(t *testing.T) {
	id := RunID("/books/Σtrange &*Book!.epub", "voice", "/out")
	if strings.ContainsAny(id, " &*!") {
		t.Fatalf("run id contains unsafe characters: %q", id)
	}
}
