package alttagger

import (
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(t.Context(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	return db
}

func insertPaths(t *testing.T, db *DB, paths ...string) {
	t.Helper()

	imgs := make([]ImagePath, len(paths))
	for i, p := range paths {
		imgs[i] = ImagePath{Path: p, Modtime: time.Now(), MIMEType: "image/jpeg"}
	}
	if _, err := db.InsertImagePaths(t.Context(), imgs, 100); err != nil {
		t.Fatal(err)
	}
}

func TestInsertImagePaths(t *testing.T) {
	db := newTestDB(t)

	t.Run("empty slice", func(t *testing.T) {
		affected, err := db.InsertImagePaths(t.Context(), []ImagePath{}, 100)
		if err != nil {
			t.Errorf("Unexpected error %s", err)
		}
		if expected, actual := 0, affected; expected != actual {
			t.Errorf("Expected %d rows affected, got %d", expected, actual)
		}
	})

	t.Run("single batch", func(t *testing.T) {
		imgs := []ImagePath{
			{Path: "/path/to/1.jpg", Modtime: time.Now(), MIMEType: "image/jpeg"},
			{Path: "/path/to/2.png", Modtime: time.Now(), MIMEType: "image/png"},
			{Path: "/path/to/3.gif", Modtime: time.Now(), MIMEType: "image/gif"},
		}
		affected, err := db.InsertImagePaths(t.Context(), imgs, 100)
		if err != nil {
			t.Errorf("Unexpected error %s", err)
		}
		if expected, actual := 3, affected; expected != actual {
			t.Errorf("Expected %d rows affected, got %d", expected, actual)
		}

		// Re-inserting known paths is a no-op
		affected, err = db.InsertImagePaths(t.Context(), imgs, 100)
		if err != nil {
			t.Errorf("Unexpected error %s", err)
		}
		if expected, actual := 0, affected; expected != actual {
			t.Errorf("Expected %d rows affected, got %d", expected, actual)
		}
	})

	t.Run("multiple batches", func(t *testing.T) {
		_, err := db.db.ExecContext(t.Context(), "DELETE FROM images")
		if err != nil {
			t.Errorf("Unexpected error %s", err)
		}

		paths := make([]ImagePath, 25)
		for i := range paths {
			paths[i] = ImagePath{
				Path:     fmt.Sprintf("/path/to/%d.jpg", i+1),
				Modtime:  time.Now(),
				MIMEType: "image/jpeg",
			}
		}

		affected, err := db.InsertImagePaths(t.Context(), paths, 10)
		if err != nil {
			t.Errorf("Unexpected error %s", err)
		}
		if expected, actual := 25, affected; expected != actual {
			t.Errorf("Expected %d modified rows, got %d", expected, actual)
		}
	})

	t.Run("bad batch size", func(t *testing.T) {
		if _, err := db.InsertImagePaths(t.Context(), []ImagePath{{Path: "/x.jpg"}}, 0); err == nil {
			t.Error("Expected an error for a zero batch size")
		}
	})
}

func TestListPendingAndSetAltText(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()
	insertPaths(t, db, "/lib/a.jpg", "/lib/b.jpg", "/lib/c.jpg", "/lib/d.jpg")

	// An empty string counts as missing alt text
	if _, err := db.db.ExecContext(ctx, "UPDATE images SET alt_text='' WHERE id=3"); err != nil {
		t.Fatal(err)
	}

	ids, err := db.ListPending(ctx)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if expected := []int64{1, 2, 3, 4}; !slices.Equal(expected, ids) {
		t.Errorf("Expected pending %v, got %v", expected, ids)
	}

	if err := db.SetAltText(ctx, 2, "A lighthouse at dusk", "gemini/gemini-2.0-flash"); err != nil {
		t.Fatalf("Unexpected error %s", err)
	}

	for _, tt := range []struct {
		id   int64
		want bool
	}{{1, true}, {2, false}, {3, true}} {
		pending, err := db.IsPending(ctx, tt.id)
		if err != nil {
			t.Fatalf("Unexpected error %s", err)
		}
		if pending != tt.want {
			t.Errorf("Expected IsPending(%d)=%v, got %v", tt.id, tt.want, pending)
		}
	}
	if _, err := db.IsPending(ctx, 99); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("Expected ErrImageNotFound, got %v", err)
	}

	ids, err = db.ListPending(ctx)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if expected := []int64{1, 3, 4}; !slices.Equal(expected, ids) {
		t.Errorf("Expected pending %v, got %v", expected, ids)
	}

	img, err := db.GetImage(ctx, 2)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if expected, actual := "A lighthouse at dusk", img.AltText; expected != actual {
		t.Errorf("Expected alt text %q, got %q", expected, actual)
	}
	if expected, actual := "gemini/gemini-2.0-flash", img.DescribedBy; expected != actual {
		t.Errorf("Expected described_by %q, got %q", expected, actual)
	}
	if !img.DescribedAt.Valid {
		t.Error("Expected described_at to be set")
	}
	if expected, actual := "image/jpeg", img.MIMEType; expected != actual {
		t.Errorf("Expected mime type %q, got %q", expected, actual)
	}

	if err := db.SetAltText(ctx, 99, "nope", "x"); err == nil {
		t.Error("Expected an error for an unknown image")
	}
	if _, err := db.GetImage(ctx, 99); err == nil {
		t.Error("Expected an error for an unknown image")
	}
}

func TestPendingImages(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()
	insertPaths(t, db, "/lib/a.jpg", "/lib/b.jpg", "/lib/c.jpg")

	imgs, err := db.PendingImages(ctx, 2)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if expected, actual := 2, len(imgs); expected != actual {
		t.Fatalf("Expected %d images, got %d", expected, actual)
	}
	if expected, actual := "/lib/a.jpg", imgs[0].Path; expected != actual {
		t.Errorf("Expected %q first, got %q", expected, actual)
	}

	imgs, err = db.PendingImages(ctx, 0)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if expected, actual := 3, len(imgs); expected != actual {
		t.Errorf("Expected %d images, got %d", expected, actual)
	}
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()

	s, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if (s != Stats{}) {
		t.Errorf("Expected empty stats, got %+v", s)
	}

	insertPaths(t, db, "/lib/a.jpg", "/lib/b.jpg", "/lib/c.jpg")
	if err := db.SetAltText(ctx, 1, "A boat", "ollama/llava"); err != nil {
		t.Fatal(err)
	}

	s, err = db.Stats(ctx)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if expected := (Stats{Total: 3, WithAlt: 1, WithoutAlt: 2, Percentage: 33.3}); expected != s {
		t.Errorf("Expected %+v, got %+v", expected, s)
	}
}
