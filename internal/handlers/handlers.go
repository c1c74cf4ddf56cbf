package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/HacksterAman/Clean-Bounty/internal/auth"
	"github.com/HacksterAman/Clean-Bounty/internal/imageprocessor"
	"github.com/HacksterAman/Clean-Bounty/internal/report"
	"github.com/HacksterAman/Clean-Bounty/internal/repository"
	"github.com/HacksterAman/Clean-Bounty/internal/session"
	"github.com/HacksterAman/Clean-Bounty/internal/usecase"
	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

// MaxUploadSize caps the image part of a submission.
const MaxUploadSize = imageprocessor.MaxImageSize

// multipartOverhead leaves room for boundaries and the location fields.
const multipartOverhead = 1 << 20

// SubmissionService is the use case surface the HTTP layer needs.
type SubmissionService interface {
	Submit(ctx context.Context, userID string, data []byte, mimeType string, loc *waste.Location) (*session.Session, error)
	Retry(ctx context.Context, userID, sessionID string) (*session.Session, error)
	Session(userID, sessionID string) (*session.Session, error)
	Select(userID, sessionID string, label *string) error
	Confirm(userID, sessionID string) (*report.WasteReport, error)
	Report(userID, reportID string) (*report.WasteReport, error)
	Claim(userID, reportID string) (int, int, error)
	Balance(userID string) int
	GetDuplicates(ctx context.Context, userID, sessionID string) (*usecase.DuplicateReport, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// submitRequest is the JSON form of a submission. Image is raw base64 or a
// data: URI.
type submitRequest struct {
	Image string   `json:"image" binding:"required"`
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
}

type selectRequest struct {
	Type *string `json:"type"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc SubmissionService, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/", authMiddleware)

	api.POST("/submissions", func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)
		if c.ContentType() == "application/json" {
			submitJSON(c, uc, userID)
			return
		}
		file, err := c.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		if !acceptedContentType(file.Header.Get("Content-Type")) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "image must be an image/* upload"})
			return
		}

		loc, err := parseLocation(c.PostForm("lat"), c.PostForm("lng"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		sess, err := uc.Submit(c.Request.Context(), userID, data, file.Header.Get("Content-Type"), loc)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sess.Snapshot())
	})

	api.GET("/submissions/:id", func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		sess, err := uc.Session(userID, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess.Snapshot())
	})

	api.POST("/submissions/:id/retry", func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		sess, err := uc.Retry(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sess.Snapshot())
	})

	api.GET("/submissions/:id/duplicates", func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		dup, err := uc.GetDuplicates(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}

		duplicates := make([]gin.H, 0, len(dup.Duplicates))
		for _, log := range dup.Duplicates {
			duplicates = append(duplicates, logJSON(log))
		}
		c.JSON(http.StatusOK, gin.H{
			"request":    logJSON(dup.Request),
			"duplicates": duplicates,
		})
	})

	api.POST("/submissions/:id/select", func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		var req selectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"type\": string|null}"})
			return
		}
		if err := uc.Select(userID, c.Param("id"), req.Type); err != nil {
			writeError(c, err)
			return
		}
		sess, err := uc.Session(userID, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess.Snapshot())
	})

	api.POST("/submissions/:id/confirm", func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		rep, err := uc.Confirm(userID, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rep.View())
	})

	api.GET("/reports/:id", func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		rep, err := uc.Report(userID, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rep.View())
	})

	api.POST("/reports/:id/claim", func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		delta, balance, err := uc.Claim(userID, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"points": delta, "balance": balance})
	})

	api.GET("/points", func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": uc.Balance(userID)})
	})

	api.GET("/metrics", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func submitJSON(c *gin.Context, uc SubmissionService, userID string) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"image\": base64, \"lat\": number, \"lng\": number}"})
		return
	}

	data, mime, err := imageprocessor.DecodeBase64(req.Image)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(data) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return
	}
	if !acceptedContentType(mime) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "image must be an image/* upload"})
		return
	}

	var loc *waste.Location
	switch {
	case req.Lat == nil && req.Lng == nil:
	case req.Lat == nil || req.Lng == nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng must be given together"})
		return
	default:
		loc, err = parseLocation(strconv.FormatFloat(*req.Lat, 'f', -1, 64), strconv.FormatFloat(*req.Lng, 'f', -1, 64))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	sess, err := uc.Submit(c.Request.Context(), userID, data, mime, loc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess.Snapshot())
}

func currentUser(c *gin.Context) (string, bool) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return "", false
	}
	return userID, true
}

// acceptedContentType admits image/* parts and untyped uploads, which are
// sniffed later.
func acceptedContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if semi := strings.IndexByte(ct, ';'); semi >= 0 {
		ct = strings.TrimSpace(ct[:semi])
	}
	return ct == "" || ct == "application/octet-stream" || strings.HasPrefix(ct, "image/")
}

func parseLocation(lat, lng string) (*waste.Location, error) {
	lat, lng = strings.TrimSpace(lat), strings.TrimSpace(lng)
	if lat == "" && lng == "" {
		return nil, nil
	}
	if lat == "" || lng == "" {
		return nil, errors.New("lat and lng must be given together")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil || la < -90 || la > 90 {
		return nil, errors.New("lat must be a number in [-90, 90]")
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil || ln < -180 || ln > 180 {
		return nil, errors.New("lng must be a number in [-180, 180]")
	}
	return &waste.Location{Lat: la, Lng: ln}, nil
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": waste.Kind(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, waste.ErrEncoding):
		return http.StatusUnprocessableEntity
	case errors.Is(err, waste.ErrInvalidSelection):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotReady),
		errors.Is(err, waste.ErrNoSelection),
		errors.Is(err, waste.ErrAlreadyClaimed),
		errors.Is(err, usecase.ErrNotRetryable),
		errors.Is(err, usecase.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, usecase.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func logJSON(log *repository.SubmissionLog) gin.H {
	return gin.H{
		"session_id":     log.SessionID,
		"user_id":        log.UserID,
		"sha1_hash":      log.SHA1Hash,
		"status":         log.Status,
		"error_kind":     log.ErrorKind,
		"top_type":       log.TopType,
		"top_confidence": log.TopConfidence,
		"details":        log.Details,
		"created_at":     log.CreatedAt,
	}
}
