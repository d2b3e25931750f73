package export

import (
	"strings"
	"testing"
	"time"
)

func TestBucketQuadrants(t *testing.T) {
	ideas := []IdeaInfo{
		{ID: "a", Title: "Onboarding tour", X: 20, Y: 80},
		{ID: "b", Title: "Billing rewrite", X: 90, Y: 85},
		{ID: "c", Title: "Footer polish", X: 10, Y: 15},
		{ID: "d", Title: "Legacy migration", X: 95, Y: 10},
		{ID: "e", Title: "On the midline", X: 50, Y: 50},
	}

	quadrants := bucketQuadrants(ideas)
	if len(quadrants) != 4 {
		t.Fatalf("expected 4 quadrants, got %d", len(quadrants))
	}

	want := map[string][]string{
		"Quick Wins": {"Onboarding tour", "On the midline"},
		"Big Bets":   {"Billing rewrite"},
		"Fill-Ins":   {"Footer polish"},
		"Money Pits": {"Legacy migration"},
	}
	for _, q := range quadrants {
		titles := make([]string, 0, len(q.Ideas))
		for _, idea := range q.Ideas {
			titles = append(titles, idea.Title)
		}
		expected := want[q.Label]
		if len(titles) != len(expected) {
			t.Fatalf("%s: got %v, want %v", q.Label, titles, expected)
		}
		for i := range titles {
			if titles[i] != expected[i] {
				t.Fatalf("%s: got %v, want %v", q.Label, titles, expected)
			}
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Q3 Roadmap", "Q3-Roadmap"},
		{"Launch Plan v1.2", "Launch-Plan-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "board"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderMatrixHTML(t *testing.T) {
	data := TemplateData{
		ProjectName: "Q3 Roadmap",
		Description: "Ideas for the third quarter",
		GeneratedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Quadrants: bucketQuadrants([]IdeaInfo{
			{Title: "Onboarding tour", Category: "growth", X: 20, Y: 80},
			{Title: "Legacy migration", Category: "infra", X: 95, Y: 10},
		}),
	}

	html, err := RenderMatrixHTML(data)
	if err != nil {
		t.Fatalf("RenderMatrixHTML() error = %v", err)
	}

	if !strings.Contains(html, "Q3 Roadmap") {
		t.Error("HTML missing project name")
	}
	if !strings.Contains(html, "Ideas for the third quarter") {
		t.Error("HTML missing description")
	}
	if !strings.Contains(html, "Quick Wins") || !strings.Contains(html, "Money Pits") {
		t.Error("HTML missing quadrant labels")
	}
	if !strings.Contains(html, "Onboarding tour") {
		t.Error("HTML missing idea title")
	}
	if !strings.Contains(html, "No ideas here yet") {
		t.Error("HTML missing empty quadrant placeholder")
	}
}
