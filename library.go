package alttagger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/chriskillpack/alttagger/describer"
)

var (
	ErrInvalidImagePath = errors.New("invalid image path")
	ErrImageFileMissing = errors.New("image file not found")
)

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// FindImages walks root and returns every file with a supported image
// extension.
func FindImages(root string) ([]ImagePath, error) {
	var images []ImagePath

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		mime, ok := imageTypes[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		images = append(images, ImagePath{Path: path, Modtime: info.ModTime(), MIMEType: mime})

		return nil
	})

	return images, err
}

// Library is the image repository used by processing steps. It confines image
// reads to the library root.
type Library struct {
	*DB
	root string
}

// Library returns a repository over this database whose images must live
// under root.
func (db *DB) Library(root string) (*Library, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Library{DB: db, root: abs}, nil
}

func (l *Library) Root() string { return l.root }

func (l *Library) contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// LoadImage reads the image file for id.
func (l *Library) LoadImage(ctx context.Context, id int64) (describer.Image, error) {
	img, err := l.GetImage(ctx, id)
	if err != nil {
		return describer.Image{}, err
	}
	if !l.contains(img.Path) {
		return describer.Image{Path: img.Path}, fmt.Errorf("%w: %s", ErrInvalidImagePath, img.Path)
	}

	data, err := os.ReadFile(img.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return describer.Image{Path: img.Path}, fmt.Errorf("%w: %s", ErrImageFileMissing, img.Path)
	}
	if err != nil {
		return describer.Image{Path: img.Path}, err
	}

	mime := img.MIMEType
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return describer.Image{Path: img.Path, Data: data, MIMEType: mime}, nil
}
