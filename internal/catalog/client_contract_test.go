package catalog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// TestHTTPSourceSmoke checks a live catalog endpoint, e.g. cmd/catalog-mock, when
// CATALOG_URL is provided.
func TestHTTPSourceSmoke(t *testing.T) {
	rawURL := os.Getenv("CATALOG_URL")
	if rawURL == "" {
		t.Skip("CATALOG_URL not provided")
	}
	src, err := NewHTTPSource(rawURL, 3*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("create http source: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc, err := src.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch catalog: %v", err)
	}
	if len(doc.Cities) == 0 {
		t.Fatalf("catalog without cities: %+v", doc)
	}
}
