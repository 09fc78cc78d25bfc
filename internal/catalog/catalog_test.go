package catalog

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func entry(id string, source domain.SourceTag, districts ...string) *domain.CatalogEntry {
	return &domain.CatalogEntry{
		ID:           id,
		Name:         "Entry " + id,
		Source:       source,
		Districts:    districts,
		SeverityLow:  10,
		SeverityHigh: 90,
		Rules: []domain.DetectionRule{
			{ID: "r1", Threshold: 50, RequiredConfidence: 0.5, Enabled: true},
		},
		Enabled: true,
	}
}

func TestCatalog(t *testing.T) {
	t.Run("LoadAndGet", func(t *testing.T) {
		c := New()
		err := c.Load([]*domain.CatalogEntry{
			entry("cat-a", domain.SourceCyber, "auto"),
			entry("cat-b", domain.SourceAML, "property"),
		})
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if c.Count() != 2 {
			t.Errorf("expected 2 entries, got %d", c.Count())
		}

		e, ok := c.Get("cat-a")
		if !ok {
			t.Fatal("expected cat-a to be loaded")
		}
		if e.Source != domain.SourceCyber {
			t.Errorf("expected source cyber, got %s", e.Source)
		}

		if _, ok := c.Get("cat-z"); ok {
			t.Error("expected cat-z to be absent")
		}
	})

	t.Run("SkipsDisabledEntries", func(t *testing.T) {
		c := New()
		disabled := entry("cat-off", domain.SourceCyber, "auto")
		disabled.Enabled = false

		if err := c.Load([]*domain.CatalogEntry{disabled}); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if c.Count() != 0 {
			t.Errorf("expected disabled entry to be skipped, count %d", c.Count())
		}
	})

	t.Run("RejectsInvalidEntries", func(t *testing.T) {
		c := New()
		bad := entry("cat-bad", domain.SourceCyber, "auto")
		bad.Districts = nil

		if err := c.Load([]*domain.CatalogEntry{bad}); err == nil {
			t.Error("expected load to fail for entry without districts")
		}
	})

	t.Run("ListSorted", func(t *testing.T) {
		c := New()
		c.Load([]*domain.CatalogEntry{
			entry("cat-c", domain.SourceCyber, "auto"),
			entry("cat-a", domain.SourceCyber, "auto"),
			entry("cat-b", domain.SourceCyber, "auto"),
		})

		list := c.List()
		if len(list) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(list))
		}
		for i, want := range []string{"cat-a", "cat-b", "cat-c"} {
			if list[i].ID != want {
				t.Errorf("position %d: expected %s, got %s", i, want, list[i].ID)
			}
		}
	})

	t.Run("Candidates", func(t *testing.T) {
		c := New()
		c.Load([]*domain.CatalogEntry{
			entry("cat-b", domain.SourceCyber, "auto", "property"),
			entry("cat-a", domain.SourceCyber, "auto"),
			entry("cat-c", domain.SourceCyber, "health"),
			entry("cat-d", domain.SourceAML, "auto"),
		})

		candidates := c.Candidates(domain.SourceCyber, "auto")
		if len(candidates) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(candidates))
		}
		if candidates[0].ID != "cat-a" || candidates[1].ID != "cat-b" {
			t.Errorf("expected [cat-a cat-b], got [%s %s]", candidates[0].ID, candidates[1].ID)
		}

		if got := c.Candidates(domain.SourceBehavioral, "auto"); len(got) != 0 {
			t.Errorf("expected no candidates for unmatched source, got %d", len(got))
		}
	})

	t.Run("ReloadReplaces", func(t *testing.T) {
		c := New()
		c.Load([]*domain.CatalogEntry{entry("cat-a", domain.SourceCyber, "auto")})
		c.Reload([]*domain.CatalogEntry{entry("cat-b", domain.SourceCyber, "auto")})

		if _, ok := c.Get("cat-a"); ok {
			t.Error("expected cat-a to be gone after reload")
		}
		if _, ok := c.Get("cat-b"); !ok {
			t.Error("expected cat-b after reload")
		}
	})

	t.Run("Close", func(t *testing.T) {
		c := New()
		c.Load([]*domain.CatalogEntry{entry("cat-a", domain.SourceCyber, "auto")})
		c.Close()
		if c.Count() != 0 {
			t.Errorf("expected empty catalog after close, got %d", c.Count())
		}
	})
}
