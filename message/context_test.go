package message

import "testing"

func TestContentIsDeepCloned(t *testing.T) {
	ctx := NewContext("id-1", "chain", map[string]any{"a": float64(1)})

	got := ctx.Content().(map[string]any)
	got["a"] = float64(999)

	again := ctx.Content().(map[string]any)
	if again["a"] != float64(1) {
		t.Fatalf("mutating a returned content snapshot leaked into the context: got %v", again["a"])
	}
}

func TestPropertyIsDeepCloned(t *testing.T) {
	ctx := NewContext("id-1", "chain", nil)
	ctx.SetProperty("tags", []any{"x"})

	v, ok := ctx.Property("tags")
	if !ok {
		t.Fatal("expected property to be present")
	}
	tags := v.([]any)
	tags[0] = "mutated"

	again, _ := ctx.Property("tags")
	if again.([]any)[0] != "x" {
		t.Fatalf("mutating a returned property leaked into the context: got %v", again)
	}
}

func TestCloneIsIsolatedFromOriginal(t *testing.T) {
	ctx := NewContext("id-1", "chain", map[string]any{"a": float64(1)})
	ctx.SetProperty("p", "v")

	clone := ctx.Clone()
	clone.SetContent(map[string]any{"a": float64(2)})
	clone.SetProperty("p", "changed")

	if ctx.Content().(map[string]any)["a"] != float64(1) {
		t.Fatal("clone mutation leaked back into original context content")
	}
	v, _ := ctx.Property("p")
	if v != "v" {
		t.Fatal("clone mutation leaked back into original context property")
	}
}

func TestContentAsConversionError(t *testing.T) {
	ctx := NewContext("id-1", "chain", make(chan int))

	var target struct{ X int }
	err := ctx.ContentAs(&target)
	if err == nil {
		t.Fatal("expected conversion error for unmarshalable content")
	}
	var convErr *ConversionError
	if ce, ok := err.(*ConversionError); ok {
		convErr = ce
	}
	if convErr == nil {
		t.Fatalf("expected *ConversionError, got %T", err)
	}
	if convErr.Error() != "Failed to convert value to the specified type" {
		t.Fatalf("unexpected error text: %q", convErr.Error())
	}
}

func TestPropertyAsMissingKeyIsConversionError(t *testing.T) {
	ctx := NewContext("id-1", "chain", nil)
	var target string
	err := ctx.PropertyAs("missing", &target)
	if err == nil {
		t.Fatal("expected error for missing property")
	}
}

func TestCleanForReplayPreservesSkipListClearsErrors(t *testing.T) {
	ctx := NewContext("id-1", "chain", "payload")
	ctx.MarkDestinationSucceeded("dest-a", "result-a")
	ctx.SetDestinationError("dest-b", ErrorInfo{Message: "boom"})
	ctx.SetErrorSnapshot("oops", "stack", "detail")

	ctx.CleanForReplay()

	msg := ctx.ToMessage()
	if msg.ErrorMsg != "" || msg.ErrorStackTrace != "" || msg.ErrorDetails != "" {
		t.Fatalf("expected error snapshot cleared, got %+v", msg)
	}
	if msg.DestinationErrors != nil {
		t.Fatalf("expected destination errors cleared, got %v", msg.DestinationErrors)
	}
	if msg.DestinationResults != nil {
		t.Fatalf("expected destination results cleared, got %v", msg.DestinationResults)
	}
	if !msg.Metadata.HasSkip("dest-a") {
		t.Fatal("expected skip list to be preserved across replay cleanup")
	}
}

func TestNewContextFromMessagePreservesSkipList(t *testing.T) {
	src := NewContext("id-1", "chain", "payload")
	src.MarkDestinationSucceeded("dest-a", "ok")
	msg := src.ToMessage()

	ctx := NewContextFromMessage(msg)
	if !ctx.ShouldSkip("dest-a") {
		t.Fatal("expected skip list preserved when rebuilding context from message")
	}
	if ctx.ID() != "id-1" {
		t.Fatalf("expected id preserved, got %q", ctx.ID())
	}
}
