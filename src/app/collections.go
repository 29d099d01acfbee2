package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/alitto/pond/v2"
	log "github.com/sirupsen/logrus"
)

type (
	CollectionConfig struct {
		Backend Backend
		// Scratch directory for staged uploads, must exist.
		TempDir      string
		PurgeWorkers int
	}

	// BucketAlbums maps albums onto the buckets of a Backend.
	BucketAlbums struct {
		backend      Backend
		tempDir      string
		purgeWorkers int
	}

	// BucketImages maps the images of one album onto the objects of its bucket.
	BucketImages struct {
		album  string
		albums *BucketAlbums
	}
)

func NewAlbumsCollection(config CollectionConfig) *BucketAlbums {
	workers := config.PurgeWorkers
	if workers < 1 {
		workers = 1
	}
	return &BucketAlbums{
		backend:      config.Backend,
		tempDir:      config.TempDir,
		purgeWorkers: workers,
	}
}

// Create provisions the album bucket and returns a freshly fetched handle.
func (a *BucketAlbums) Create(ctx context.Context, name string) (*Album, error) {
	if err := a.backend.CreateBucket(ctx, name); err != nil {
		return nil, fmt.Errorf("create album %s: %w", name, err)
	}
	log.Infof("album %s created", name)
	return a.Get(ctx, name)
}

// Get checks the backend on every call, nothing is cached.
func (a *BucketAlbums) Get(ctx context.Context, name string) (*Album, error) {
	exists, err := a.backend.BucketExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check album %s: %w", name, err)
	}
	if !exists {
		return nil, ErrAlbumNotFound
	}
	return a.album(name), nil
}

func (a *BucketAlbums) List(ctx context.Context) ([]*Album, error) {
	buckets, err := a.backend.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	result := make([]*Album, 0, len(buckets))
	for _, bucket := range buckets {
		result = append(result, a.album(bucket))
	}
	return result, nil
}

func (a *BucketAlbums) album(name string) *Album {
	return &Album{
		Name:   name,
		Images: &BucketImages{album: name, albums: a},
	}
}

// Create stages data to a temp file and uploads it as a public object.
func (i *BucketImages) Create(ctx context.Context, name string, data io.Reader) (*Image, error) {
	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == string(filepath.Separator) || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("image name %q: %w", name, ErrInvalidName)
	}

	path, cleanup, err := StageTemp(i.albums.tempDir, data, ExtensionOf(name))
	if err != nil {
		return nil, err
	}
	defer cleanup()

	object, err := i.albums.backend.UploadFile(ctx, i.album, name, path, map[string]string{
		"description": imageDescription,
	})
	if err != nil {
		return nil, fmt.Errorf("upload image %s to %s: %w", name, i.album, err)
	}
	if object.MediaLink == "" {
		return nil, ErrNoMediaLink
	}
	log.Debugf("image %s uploaded to %s (%d bytes)", object.Name, i.album, object.Size)
	return newImage(object), nil
}

func (i *BucketImages) List(ctx context.Context) ([]*Image, error) {
	objects, err := i.albums.backend.ListObjects(ctx, i.album)
	if err != nil {
		return nil, fmt.Errorf("list images of %s: %w", i.album, err)
	}
	result := make([]*Image, 0, len(objects))
	for _, object := range objects {
		result = append(result, newImage(object))
	}
	return result, nil
}

// Move copies the image into album and then deletes the original.
// There is no rollback: a failed delete leaves the image in both albums.
func (i *BucketImages) Move(ctx context.Context, name, album string) error {
	if album == i.album {
		return i.exists(ctx, name)
	}
	if _, err := i.albums.Get(ctx, album); err != nil {
		return err
	}
	if err := i.albums.backend.CopyObject(ctx, i.album, album, name); err != nil {
		return fmt.Errorf("copy image %s from %s to %s: %w", name, i.album, album, err)
	}
	if err := i.albums.backend.DeleteObject(ctx, i.album, name); err != nil {
		log.Errorf("image %s copied to %s but not removed from %s: %v", name, album, i.album, err)
		return fmt.Errorf("delete moved image %s from %s: %w", name, i.album, err)
	}
	log.Infof("image %s moved from %s to %s", name, i.album, album)
	return nil
}

// exists reports ErrImageNotFound when the album has no image called name.
func (i *BucketImages) exists(ctx context.Context, name string) error {
	objects, err := i.albums.backend.ListObjects(ctx, i.album)
	if err != nil {
		return fmt.Errorf("list images of %s: %w", i.album, err)
	}
	for _, object := range objects {
		if object.Name == name {
			return nil
		}
	}
	return fmt.Errorf("image %s in %s: %w", name, i.album, ErrImageNotFound)
}

func (i *BucketImages) Delete(ctx context.Context, name string) error {
	if err := i.albums.backend.DeleteObject(ctx, i.album, name); err != nil {
		return fmt.Errorf("delete image %s from %s: %w", name, i.album, err)
	}
	return nil
}

// Purge deletes every image of the album using a bounded worker pool.
func (i *BucketImages) Purge(ctx context.Context) error {
	objects, err := i.albums.backend.ListObjects(ctx, i.album)
	if err != nil {
		return fmt.Errorf("list images of %s: %w", i.album, err)
	}

	pool := pond.NewPool(i.albums.purgeWorkers, pond.WithContext(ctx))
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for _, object := range objects {
		key := object.Name
		group.SubmitErr(func() error {
			err := i.albums.backend.DeleteObject(ctx, i.album, key)
			if errors.Is(err, ErrImageNotFound) {
				return nil
			}
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("purge %s: %w", i.album, err)
	}
	log.Infof("album %s purged, %d images removed", i.album, len(objects))
	return nil
}
