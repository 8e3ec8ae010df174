package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestOptimisticID(t *testing.T) {
	id := OptimisticID("m-1")
	if id != "optimistic-m-1" {
		t.Errorf("OptimisticID() = %q, want %q", id, "optimistic-m-1")
	}
	if !IsOptimistic(id) {
		t.Errorf("IsOptimistic(%q) = false, want true", id)
	}
	if IsOptimistic("42") {
		t.Error("IsOptimistic(\"42\") = true, want false")
	}
}

func TestBookmarkMatches(t *testing.T) {
	b := Bookmark{ID: "1", Title: "Next.js Docs", URL: "https://nextjs.org/docs"}

	tests := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"docs", true},
		{"NEXT", true},
		{"nextjs.org", true},
		{"supabase", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := b.Matches(tt.query); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestBookmarkJSONOmitsEmptyMutationID(t *testing.T) {
	data, err := json.Marshal(Bookmark{ID: "42", UserID: "u1", Title: "t", URL: "https://x"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), "client_mutation_id") {
		t.Errorf("expected client_mutation_id to be omitted, got %s", data)
	}
	if !strings.Contains(string(data), `"user_id":"u1"`) {
		t.Errorf("expected user_id in row shape, got %s", data)
	}
}

func TestBookmarkUnmarshalAcceptsNumericID(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{"string id", `{"id":"42","title":"Docs"}`, "42", false},
		{"numeric id", `{"id":42,"title":"Docs"}`, "42", false},
		{"large numeric id", `{"id":9007199254740993,"title":"Docs"}`, "9007199254740993", false},
		{"missing id", `{"title":"Docs"}`, "", false},
		{"null id", `{"id":null,"title":"Docs"}`, "", false},
		{"boolean id", `{"id":true,"title":"Docs"}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Bookmark
			err := json.Unmarshal([]byte(tt.data), &b)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Unmarshal(%s) expected error", tt.data)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.data, err)
			}
			if b.ID != tt.want {
				t.Errorf("ID = %q, want %q", b.ID, tt.want)
			}
			if b.Title != "Docs" {
				t.Errorf("Title = %q, want %q", b.Title, "Docs")
			}
		})
	}
}
