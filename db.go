package alttagger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tailscale/squibble"
	_ "modernc.org/sqlite"
)

//go:embed db/latest_schema.sql
var dbSchema string

var schema = &squibble.Schema{
	Current: dbSchema,
}

// ErrImageNotFound is returned when an image id does not exist.
var ErrImageNotFound = errors.New("image not found")

type DB struct {
	mu sync.Mutex
	db *sql.DB

	filepath string
}

type Image struct {
	Id          int64
	Path        string
	PathMTime   time.Time
	MIMEType    string
	AltText     string
	DescribedBy string
	DescribedAt sql.NullTime
}

// ImagePath is an image file found on disk, ready to be inserted.
type ImagePath struct {
	Path     string
	Modtime  time.Time
	MIMEType string
}

// Stats summarises alt text coverage of the library.
type Stats struct {
	Total      int     `json:"total" yaml:"total"`
	WithAlt    int     `json:"with_alt" yaml:"with_alt"`
	WithoutAlt int     `json:"without_alt" yaml:"without_alt"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

func (db *DB) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.db.Close()
}

func NewDB(ctx context.Context, fname string) (*DB, error) {
	// Open the DB but flip on the cleaner timestamps from Go
	sqldb, err := sql.Open("sqlite", fname+"?_time_format=sqlite&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases coherent and serialises
	// writers.
	sqldb.SetMaxOpenConns(1)

	if err := sqldb.PingContext(ctx); err != nil {
		return nil, err
	}
	if err := schema.Apply(ctx, sqldb); err != nil {
		return nil, err
	}

	return &DB{db: sqldb, filepath: fname}, nil
}

// InsertImagePaths adds images not already in the DB, batchSize rows per
// INSERT, and returns the number of new rows.
func (db *DB) InsertImagePaths(ctx context.Context, images []ImagePath, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	txn, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()

	start := 0
	affected := 0
	for start < len(images) {
		end := min(start+batchSize, len(images))

		qsb := strings.Builder{}
		qsb.WriteString("INSERT OR IGNORE INTO images (image_path, image_mtime, mime_type) VALUES")
		values := make([]any, 0, (end-start)*3)
		for idx, img := range images[start:end] {
			if idx > 0 {
				qsb.WriteString(",")
			}
			qsb.WriteString(" ($")
			qsb.WriteString(strconv.Itoa(idx*3 + 1))
			qsb.WriteString(",$")
			qsb.WriteString(strconv.Itoa(idx*3 + 2))
			qsb.WriteString(",$")
			qsb.WriteString(strconv.Itoa(idx*3 + 3))
			qsb.WriteString(")")

			values = append(values, img.Path, img.Modtime, img.MIMEType)
		}

		res, err := txn.ExecContext(ctx, qsb.String(), values...)
		if err != nil {
			return 0, err
		}

		ra, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		affected += int(ra)
		start = end
	}

	return affected, txn.Commit()
}

const pendingWhere = "alt_text IS NULL OR alt_text = ''"

// ListPending returns the ids of all images without alt text in ascending
// order.
func (db *DB) ListPending(ctx context.Context) ([]int64, error) {
	rows, err := db.db.QueryContext(ctx, "SELECT id FROM images WHERE "+pendingWhere+" ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// IsPending reports whether image id still lacks alt text.
func (db *DB) IsPending(ctx context.Context, id int64) (bool, error) {
	var pending bool
	err := db.db.QueryRowContext(ctx, "SELECT ("+pendingWhere+") FROM images WHERE id=$1", id).Scan(&pending)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %d", ErrImageNotFound, id)
	}
	return pending, err
}

// PendingImages returns up to limit images without alt text, lowest id first.
// A limit of zero or less returns them all.
func (db *DB) PendingImages(ctx context.Context, limit int) ([]*Image, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, image_path, image_mtime, mime_type, alt_text, described_by, described_at
		FROM images
		WHERE `+pendingWhere+`
		ORDER BY id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return images, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(s scanner) (*Image, error) {
	img := &Image{}

	var mtime sql.NullTime
	var mime, alt, by sql.NullString
	err := s.Scan(
		&img.Id,
		&img.Path,
		&mtime,
		&mime,
		&alt,
		&by,
		&img.DescribedAt,
	)
	if err != nil {
		return nil, err
	}
	img.PathMTime = mtime.Time
	img.MIMEType = mime.String
	img.AltText = alt.String
	img.DescribedBy = by.String

	return img, nil
}

// GetImage returns the Image model for id.
func (db *DB) GetImage(ctx context.Context, id int64) (*Image, error) {
	row := db.db.QueryRowContext(ctx, `
		SELECT id, image_path, image_mtime, mime_type, alt_text, described_by, described_at
		FROM images
		WHERE id=$1`, id)

	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrImageNotFound, id)
	}
	return img, err
}

// SetAltText stores the alt text for an image, removing it from the pending
// set. describedBy records the provider and model that produced it.
func (db *DB) SetAltText(ctx context.Context, id int64, text, describedBy string) error {
	res, err := db.db.ExecContext(ctx,
		"UPDATE images SET alt_text=$1,described_by=$2,described_at=$3 WHERE id=$4",
		text,
		describedBy,
		time.Now(),
		id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrImageNotFound, id)
	}
	return nil
}

// Stats counts images with and without alt text.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	row := db.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE `+pendingWhere+`)
		FROM images`)
	if err := row.Scan(&s.Total, &s.WithoutAlt); err != nil {
		return s, err
	}

	s.WithAlt = s.Total - s.WithoutAlt
	if s.Total > 0 {
		s.Percentage = float64(int(1000*float64(s.WithAlt)/float64(s.Total)+0.5)) / 10
	}
	return s, nil
}
