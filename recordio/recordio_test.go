package recordio

import (
	"testing"
)

func TestParseNDJSON(t *testing.T) {
	rows := `{"a": "x", "n": 1}

{"a": "y", "nested": {"b": 2}}
`
	records, err := ParseNDJSON(rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0]["a"] != "x" || records[0]["n"] != float64(1) {
		t.Fatalf("got %v", records[0])
	}
	// nested maps are flattened into column names
	if _, ok := records[1]["nested"]; ok {
		t.Fatal("nested map must be flattened")
	}
	found := false
	for key, v := range records[1] {
		if v == float64(2) {
			found = true
			t.Logf("flattened key: %s", key)
		}
	}
	if !found {
		t.Fatalf("flattened value missing, got %v", records[1])
	}
}

func TestParseNDJSONRejectsNonObjects(t *testing.T) {
	if _, err := ParseNDJSON(`[1, 2, 3]`); err == nil {
		t.Fatal("array line must be rejected")
	}
	if _, err := ParseNDJSON(`not json`); err == nil {
		t.Fatal("garbage must be rejected")
	}
}

func TestParseRecordsArray(t *testing.T) {
	records, err := ParseRecords([]byte(`[{"a": 1}, {"a": 2}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1]["a"] != float64(2) {
		t.Fatalf("got %v", records)
	}
}

func TestParseRecordsEmpty(t *testing.T) {
	records, err := ParseRecords([]byte("  \n "))
	if err != nil {
		t.Fatal(err)
	}
	if records != nil {
		t.Fatalf("got %v, want nil", records)
	}
}

func TestConvertEntityRows(t *testing.T) {
	rows := []map[string]any{
		{
			"name":       "s1",
			"entityType": "sample",
			"attributes": map[string]any{"cram": "gs://b/s1.cram", "notes": "x", "skip_me": "y"},
		},
		{
			"name":       "s2",
			"entityType": "sample",
			"attributes": map[string]any{"cram": "gs://b/s2.cram"},
		},
	}
	out := ConvertEntityRows(rows, "", []string{"skip_me"})
	if len(out) != 2 {
		t.Fatalf("got %d records", len(out))
	}
	if out[0]["sample_id"] != "s1" {
		t.Fatalf("row id field must default to entityType_id, got %v", out[0])
	}
	if out[0]["cram"] != "gs://b/s1.cram" || out[0]["notes"] != "x" {
		t.Fatalf("got %v", out[0])
	}
	if _, ok := out[0]["skip_me"]; ok {
		t.Fatal("ignored column must be dropped")
	}

	out = ConvertEntityRows(rows, "specimen_id", nil)
	if out[1]["specimen_id"] != "s2" {
		t.Fatalf("got %v", out[1])
	}
}
