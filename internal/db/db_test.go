package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("database file was not created")
	}
}

func TestInsertListCount(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	for _, title := range []string{"first", "second", "third"} {
		id, err := d.Insert(ctx, Record{
			Title:     title,
			SourceURL: "https://youtube.com/watch?v=" + title,
			Format:    "mp4",
			Selector:  "best[ext=mp4]/best",
			FileSize:  42,
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if id <= 0 {
			t.Fatalf("expected positive id, got %d", id)
		}
	}

	n, err := d.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("Count = %d, want 3", n)
	}

	records, err := d.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Title != "third" || records[1].Title != "second" {
		t.Fatalf("unexpected order: %q, %q", records[0].Title, records[1].Title)
	}
	if records[0].MediaType != "video" {
		t.Fatalf("default media type = %q", records[0].MediaType)
	}
	if records[0].CreatedAt.IsZero() {
		t.Fatalf("created_at not populated")
	}

	rest, err := d.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List page 2 failed: %v", err)
	}
	if len(rest) != 1 || rest[0].Title != "first" {
		t.Fatalf("page 2 = %+v", rest)
	}
}

func TestNilDB(t *testing.T) {
	var d *DB
	if _, err := d.Insert(context.Background(), Record{}); err == nil {
		t.Fatal("expected error on nil DB")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close on nil DB: %v", err)
	}
}
