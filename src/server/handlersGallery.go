package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	app "gallery/src/app"
)

type (
	GalleryHandler struct {
		albums  app.AlbumsCollection
		metrics *Metrics
	}

	AlbumName struct {
		Name string `json:"name"`
	}

	ResponseListAlbums struct {
		Albums []AlbumName `json:"albums"`
	}

	ResponseAlbum struct {
		Name   string       `json:"name"`
		Images []*app.Image `json:"images"`
	}

	// countingReader counts bytes read from an upload part.
	countingReader struct {
		r io.Reader
		n int64
	}
)

const (
	albumParam  = "album"
	imageParam  = "image"
	targetParam = "target"
)

var errNoFilePart = errors.New("no file part in multipart body")

func NewGalleryHandler(albums app.AlbumsCollection, metrics *Metrics) *GalleryHandler {
	return &GalleryHandler{
		albums:  albums,
		metrics: metrics,
	}
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.n += int64(n)
	return n, err
}

// CreateAlbum answers 200 whether or not the album already existed.
func (h *GalleryHandler) CreateAlbum(c *gin.Context) {
	_, err := h.albums.Create(c.Request.Context(), c.Param(albumParam))
	if err != nil && !errors.Is(err, app.ErrAlbumExists) {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *GalleryHandler) GetAlbums(c *gin.Context) {
	albums, err := h.albums.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	result := ResponseListAlbums{Albums: make([]AlbumName, 0, len(albums))}
	for _, album := range albums {
		result.Albums = append(result.Albums, AlbumName{Name: album.Name})
	}
	c.JSON(http.StatusOK, result)
}

func (h *GalleryHandler) GetAlbum(c *gin.Context) {
	ctx := c.Request.Context()
	album, err := h.albums.Get(ctx, c.Param(albumParam))
	if err != nil {
		abortWithError(c, err)
		return
	}
	images, err := album.Images.List(ctx)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ResponseAlbum{Name: album.Name, Images: images})
}

// PostImage streams the first file part of a multipart body into the album.
func (h *GalleryHandler) PostImage(c *gin.Context) {
	ctx := c.Request.Context()
	album, err := h.albums.Get(ctx, c.Param(albumParam))
	if err != nil {
		abortWithError(c, err)
		return
	}

	reader, err := c.Request.MultipartReader()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": fmt.Errorf("can not read multipart body: %w", err).Error()})
		return
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": fmt.Errorf("can not read multipart body: %w", err).Error()})
			return
		}
		if part.FileName() == "" {
			part.Close()
			continue
		}

		body := &countingReader{r: part}
		image, err := album.Images.Create(ctx, part.FileName(), body)
		part.Close()
		if err != nil {
			h.metrics.observeUpload("error", body.n)
			abortWithError(c, err)
			return
		}
		h.metrics.observeUpload("success", body.n)
		log.Infof("image %s uploaded to %s", image.Name, album.Name)
		c.JSON(http.StatusOK, image)
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "error", "error": errNoFilePart.Error()})
}

func (h *GalleryHandler) DeleteImage(c *gin.Context) {
	ctx := c.Request.Context()
	album, err := h.albums.Get(ctx, c.Param(albumParam))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := album.Images.Delete(ctx, c.Param(imageParam)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *GalleryHandler) MoveImage(c *gin.Context) {
	ctx := c.Request.Context()
	album, err := h.albums.Get(ctx, c.Param(albumParam))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := album.Images.Move(ctx, c.Param(imageParam), c.Param(targetParam)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *GalleryHandler) PurgeAlbum(c *gin.Context) {
	ctx := c.Request.Context()
	album, err := h.albums.Get(ctx, c.Param(albumParam))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := album.Images.Purge(ctx); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *GalleryHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
