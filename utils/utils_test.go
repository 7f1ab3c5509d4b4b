package utils

import (
	"strings"
	"testing"
)

func TestGenLoadTag(t *testing.T) {
	tag := GenLoadTag("ds1.samples")
	if !strings.HasPrefix(tag, "ds1.samples.") {
		t.Fatalf("got %s", tag)
	}
	if tag == GenLoadTag("ds1.samples") {
		t.Fatal("load tags must be unique")
	}
}

func TestGenRandomShortID(t *testing.T) {
	id := GenRandomShortID()
	if len(id) != 8 {
		t.Fatalf("got %q", id)
	}
}

func TestChunk(t *testing.T) {
	chunks := Chunk([]string{"a", "b", "c", "d", "e"}, 2)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 2 || len(chunks[2]) != 1 || chunks[2][0] != "e" {
		t.Fatalf("got %v", chunks)
	}
	if got := Chunk([]int{}, 10); got != nil {
		t.Fatalf("got %v, want nil for empty input", got)
	}
	// a non-positive size must not loop forever
	if got := Chunk([]int{1, 2}, 0); len(got) != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestContainsString(t *testing.T) {
	s := []string{"a", "b"}
	if !ContainsString(s, "a") || ContainsString(s, "c") {
		t.Fatal("ContainsString broken")
	}
}
