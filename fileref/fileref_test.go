package fileref

import (
	"encoding/json"
	"testing"
)

func TestIsCloudPath(t *testing.T) {
	cases := map[string]bool{
		"gs://bucket/file.cram": true,
		"s3://bucket/file.cram": true,
		"https://host/file":     false,
		"plain text":            false,
		"":                      false,
		"mentions gs:// inline": false,
	}
	for in, want := range cases {
		if got := IsCloudPath(in); got != want {
			t.Fatalf("IsCloudPath(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTargetPath(t *testing.T) {
	cases := map[string]string{
		"gs://bucket/dir/file.cram": "/dir/file.cram",
		"gs://bucket/file.cram":     "/file.cram",
		"s3://bucket":               "/",
	}
	for in, want := range cases {
		if got := TargetPath(in); got != want {
			t.Fatalf("TargetPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWireShape(t *testing.T) {
	b, err := json.Marshal(New("gs://bucket/a/b.cram"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"sourcePath":"gs://bucket/a/b.cram","targetPath":"/a/b.cram"}`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}

	b, err = json.Marshal(NewWithDetails("gs://b/x", "a cram", "application/octet-stream"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"sourcePath":"gs://b/x","targetPath":"/x","description":"a cram","mimeType":"application/octet-stream"}` {
		t.Fatalf("got %s", b)
	}
}
