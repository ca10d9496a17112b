package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dkeye/consult/internal/app/orch"
	"github.com/dkeye/consult/internal/config"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type consultHandlers struct {
	cfg   *config.Config
	orch  *orch.Orchestrator
	store *storage.Store
}

type generateRoomResponse struct {
	RoomID  string `json:"roomId"`
	RoomURL string `json:"roomUrl"`
}

// UploadResult is one element of the upload response array.
type UploadResult struct {
	FileURL     string `json:"fileUrl"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

func (h *consultHandlers) generateRoom(c *gin.Context) {
	id, err := uuid.NewRandom()
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("generate room id")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate room"})
		return
	}
	base := strings.TrimRight(h.cfg.PublicBaseURL, "/")
	c.JSON(http.StatusOK, generateRoomResponse{
		RoomID:  id.String(),
		RoomURL: fmt.Sprintf("%s/room/%s?role=%s", base, id, domain.RolePatient),
	})
}

func (h *consultHandlers) upload(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads disabled"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil || fh.Size == 0 {
		c.String(http.StatusBadRequest, "File is empty.")
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	obj, err := h.store.Put(fh.Filename, f)
	switch {
	case errors.Is(err, storage.ErrEmpty):
		c.String(http.StatusBadRequest, "File is empty.")
		return
	case errors.Is(err, storage.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", c.PostForm("userName")).
		Str("file", obj.Name).Msg("attachment uploaded")

	c.JSON(http.StatusOK, []UploadResult{{
		FileURL:     h.fileURL(c.Request, obj.Name),
		FileName:    obj.OriginalName,
		ContentType: obj.ContentType,
		Size:        obj.Size,
	}})
}

// fileURL prefers the configured origin. The request is only a fallback for
// setups that left file_base_url empty.
func (h *consultHandlers) fileURL(r *http.Request, name string) string {
	if base := strings.TrimRight(h.cfg.FileBaseURL, "/"); base != "" {
		return fmt.Sprintf("%s/files/%s", base, name)
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/files/%s", scheme, r.Host, name)
}

func (h *consultHandlers) serveFile(c *gin.Context) {
	if h.store == nil {
		c.Status(http.StatusNotFound)
		return
	}
	f, obj, err := h.store.Open(c.Param("name"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, f, nil)
}

func (h *consultHandlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Registry.List())
}

func (h *consultHandlers) roomMembers(c *gin.Context) {
	room := domain.RoomID(c.Param("id"))
	roster := h.orch.Registry.Roster(room)
	c.JSON(http.StatusOK, gin.H{
		"roomId":  room,
		"count":   len(roster),
		"members": roster,
	})
}
