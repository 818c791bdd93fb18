package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/server/models"
	"github.com/futuravault/futuravault/internal/server/services"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrFileTooLarge),
		errors.Is(err, common.ErrChunkCountExceeded):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrGrantExpired):
		return http.StatusGone
	case errors.Is(err, common.ErrIdentityRequired),
		errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrBackendNotConfigured):
		return http.StatusConflict
	case errors.Is(err, common.ErrNoBackendConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

type grantDTO struct {
	Backend        string    `json:"backend"`
	IdempotencyKey string    `json:"idempotencyKey"`
	ExpiresAt      time.Time `json:"expiresAt"`
	InlineMax      int64     `json:"inlineMax,omitempty"`
	ChunkSize      int64     `json:"chunkSize,omitempty"`
	MaxChunks      int       `json:"maxChunks,omitempty"`
	CanisterID     string    `json:"canisterId,omitempty"`
}

func toGrantDTO(g models.UploadGrant) grantDTO {
	return grantDTO{
		Backend:        string(g.Backend),
		IdempotencyKey: g.IdempotencyKey,
		ExpiresAt:      g.ExpiresAt,
		InlineMax:      g.Limits.InlineMax,
		ChunkSize:      g.Limits.ChunkSize,
		MaxChunks:      g.Limits.MaxChunks,
		CanisterID:     g.CanisterID,
	}
}

type uploadIntentRequest struct {
	Preference string `json:"preference"`
}

func (s *Server) handleUploadIntent(c *gin.Context) {
	var req uploadIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	selection, err := s.uploads.Intent(c.Request.Context(), models.StoragePreference(req.Preference))
	if err != nil {
		s.fail(c, err)
		return
	}

	grants := make([]grantDTO, 0, len(selection.Grants))
	for _, g := range selection.Grants {
		grants = append(grants, toGrantDTO(g))
	}
	c.JSON(http.StatusOK, gin.H{
		"preference": string(selection.Preference),
		"grants":     grants,
	})
}

type uploadVerifyRequest struct {
	MemoryID       string `json:"memoryId" binding:"required"`
	Backend        string `json:"backend" binding:"required"`
	AssetType      string `json:"assetType"`
	IdempotencyKey string `json:"idempotencyKey"`
	RemoteID       string `json:"remoteId"`
	Checksum       string `json:"checksum"`
	Size           int64  `json:"size"`
}

func (s *Server) handleUploadVerify(c *gin.Context) {
	var req uploadVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	edge, err := s.uploads.Verify(c.Request.Context(), ownerID(c), services.VerifyInput{
		MemoryID:       req.MemoryID,
		Backend:        models.Backend(req.Backend),
		AssetType:      models.AssetType(req.AssetType),
		IdempotencyKey: req.IdempotencyKey,
		RemoteID:       req.RemoteID,
		Checksum:       req.Checksum,
		Size:           req.Size,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"memoryId":     edge.MemoryID,
		"backend":      string(edge.Backend),
		"assetType":    string(edge.AssetType),
		"remoteId":     edge.RemoteID,
		"checksum":     edge.Checksum,
		"size":         edge.SizeBytes,
		"verification": string(edge.Verification),
		"verifiedAt":   edge.VerifiedAt,
	})
}

type fileOutcomeDTO struct {
	FileName string   `json:"fileName"`
	MemoryID string   `json:"memoryId,omitempty"`
	StoredIn []string `json:"storedIn,omitempty"`
	Failed   []string `json:"failed,omitempty"`
	Status   string   `json:"status,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// handleUploads executes server-proxied uploads: one or more files in a
// multipart form, fanned out with bounded concurrency.
func (s *Server) handleUploads(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	memType := models.MemoryType(firstValue(form.Value["type"]))
	pref := models.StoragePreference(firstValue(form.Value["preference"]))
	title := firstValue(form.Value["title"])
	description := firstValue(form.Value["description"])

	if pref == "" {
		stored, err := s.memories.GetPreference(c.Request.Context(), ownerID(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		pref = stored
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files"})
		return
	}

	var inputs []services.UploadInput
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		inputs = append(inputs, services.UploadInput{
			Type:        memType,
			Title:       title,
			Description: description,
			FileName:    fh.Filename,
			MimeType:    fh.Header.Get("Content-Type"),
			Bytes:       data,
			Preference:  pref,
		})
	}

	outcomes, uploadErrs := s.uploads.UploadBatch(c.Request.Context(), ownerID(c), inputs)

	results := make([]fileOutcomeDTO, len(inputs))
	anySuccess := false
	for i := range inputs {
		dto := fileOutcomeDTO{FileName: inputs[i].FileName}
		if uploadErrs[i] != nil {
			dto.Error = uploadErrs[i].Error()
		} else {
			o := outcomes[i]
			anySuccess = true
			dto.MemoryID = o.Memory.ID
			dto.Status = string(o.Status)
			for _, b := range o.StoredIn {
				dto.StoredIn = append(dto.StoredIn, string(b))
			}
			for _, f := range o.Failed {
				dto.Failed = append(dto.Failed, string(f.Backend))
			}
		}
		results[i] = dto
	}

	status := http.StatusCreated
	if !anySuccess {
		status = statusFor(uploadErrs[0])
	}
	c.JSON(status, gin.H{"files": results})
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

type assetDescriptorDTO struct {
	Type      string `json:"type" binding:"required"`
	Backend   string `json:"backend" binding:"required"`
	Key       string `json:"key"`
	URL       string `json:"url"`
	RemoteID  string `json:"remoteId"`
	Checksum  string `json:"checksum"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type createMemoryRequest struct {
	Type        string               `json:"type" binding:"required"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Assets      []assetDescriptorDTO `json:"assets"`
}

func (s *Server) handleCreateMemory(c *gin.Context) {
	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := services.CreateMemoryInput{
		Type:        models.MemoryType(req.Type),
		Title:       req.Title,
		Description: req.Description,
	}
	for _, d := range req.Assets {
		in.Assets = append(in.Assets, services.AssetDescriptor{
			Type:      models.AssetType(d.Type),
			Backend:   models.Backend(d.Backend),
			Key:       d.Key,
			URL:       d.URL,
			RemoteID:  d.RemoteID,
			Checksum:  d.Checksum,
			SizeBytes: d.SizeBytes,
			MimeType:  d.MimeType,
			Width:     d.Width,
			Height:    d.Height,
		})
	}

	memory, err := s.memories.Create(c.Request.Context(), ownerID(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMemoryDTO(memory, nil))
}

func (s *Server) handleGetMemory(c *gin.Context) {
	view, err := s.memories.Get(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toMemoryDTO(view.Memory, view.Assets))
}

func (s *Server) handleDeleteMemory(c *gin.Context) {
	result, err := s.memories.Delete(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetPreference(c *gin.Context) {
	pref, err := s.memories.GetPreference(c.Request.Context(), ownerID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preference": string(pref)})
}

type setPreferenceRequest struct {
	Preference string `json:"preference" binding:"required"`
}

func (s *Server) handleSetPreference(c *gin.Context) {
	var req setPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.memories.SetPreference(c.Request.Context(), ownerID(c), models.StoragePreference(req.Preference)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preference": req.Preference})
}

type assetDTO struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Backend    string `json:"backend"`
	StorageKey string `json:"storageKey"`
	URL        string `json:"url,omitempty"`
	SizeBytes  int64  `json:"sizeBytes"`
	MimeType   string `json:"mimeType"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Status     string `json:"status"`
}

type memoryDTO struct {
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	StorageLocations []string   `json:"storageLocations"`
	StorageCount     int        `json:"storageCount"`
	StorageStatus    string     `json:"storageStatus"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	Assets           []assetDTO `json:"assets,omitempty"`
}

func toMemoryDTO(m *models.Memory, assets []*models.Asset) memoryDTO {
	dto := memoryDTO{
		ID:               m.ID,
		Type:             string(m.Type),
		Title:            m.Title,
		Description:      m.Description,
		StorageLocations: []string{},
		StorageCount:     m.StorageCount,
		StorageStatus:    string(m.StorageStatus),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	for _, b := range m.StorageLocations {
		dto.StorageLocations = append(dto.StorageLocations, string(b))
	}
	for _, a := range assets {
		dto.Assets = append(dto.Assets, assetDTO{
			ID:         a.ID,
			Type:       string(a.Type),
			Backend:    string(a.Backend),
			StorageKey: a.StorageKey,
			URL:        a.URL,
			SizeBytes:  a.SizeBytes,
			MimeType:   a.MimeType,
			Width:      a.Width,
			Height:     a.Height,
			Status:     string(a.Status),
		})
	}
	return dto
}
