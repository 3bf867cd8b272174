package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/leafcheck/internal/classifier"
	"github.com/example/leafcheck/internal/hub"
	"github.com/example/leafcheck/internal/preview"
	"github.com/example/leafcheck/internal/session"
	"github.com/example/leafcheck/internal/workflow"
)

// DefaultMaxUploadSize caps the multipart body of a file selection.
const DefaultMaxUploadSize = 32 << 20

// Deps are the collaborators the routes need.
type Deps struct {
	Sessions      *session.Manager
	Tokens        *session.Tokens
	Hub           *hub.Hub
	Previews      *preview.Registry
	MaxUploadSize int64
	Logger        *zap.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, deps Deps) {
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = DefaultMaxUploadSize
	}
	logger := deps.Logger.Named("handlers")

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ui := router.Group("/", session.Middleware(deps.Tokens, deps.Logger))

	ui.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", currentWorkflow(c, deps).View())
	})

	ui.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, currentWorkflow(c, deps).View())
	})

	ui.POST("/file", func(c *gin.Context) {
		if c.Request.ContentLength > deps.MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, deps.MaxUploadSize)

		file, err := c.FormFile(classifier.FieldName)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open file"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			logger.Error("failed to read upload", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
			return
		}

		wf := currentWorkflow(c, deps)
		wf.SelectFile(c.Request.Context(), displayName(file.Filename), data)
		respond(c, wf)
	})

	ui.POST("/file/remove", func(c *gin.Context) {
		wf := currentWorkflow(c, deps)
		wf.RemoveFile(c.Request.Context())
		respond(c, wf)
	})

	ui.POST("/predict", func(c *gin.Context) {
		wf := currentWorkflow(c, deps)
		// A client that navigates away does not cancel the prediction.
		wf.Submit(context.WithoutCancel(c.Request.Context()))
		respond(c, wf)
	})

	ui.GET("/preview/:id", func(c *gin.Context) {
		id := c.Param("id")
		file := currentWorkflow(c, deps).File()
		if file == nil || file.PreviewURI != preview.URIPrefix+id {
			c.Status(http.StatusNotFound)
			return
		}

		blob, err := deps.Previews.Open(c.Request.Context(), id)
		if err != nil {
			if !errors.Is(err, preview.ErrNotFound) {
				logger.Error("failed to load preview", zap.Error(err), zap.String("preview_id", id))
			}
			c.Status(http.StatusNotFound)
			return
		}
		c.Header("Cache-Control", "private, no-store")
		c.Data(http.StatusOK, blob.ContentType, blob.Data)
	})

	ui.GET("/ws", func(c *gin.Context) {
		sessionID := sessionID(c)
		wf := currentWorkflow(c, deps)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		deps.Hub.Serve(sessionID, conn, wf.View)
	})
}

func sessionID(c *gin.Context) string {
	id, _ := session.GetID(c.Request.Context())
	return id
}

func currentWorkflow(c *gin.Context, deps Deps) *workflow.Workflow {
	return deps.Sessions.Workflow(sessionID(c))
}

func respond(c *gin.Context, wf *workflow.Workflow) {
	if wantsJSON(c) {
		c.JSON(http.StatusOK, wf.View())
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

// displayName keeps only the base name a browser sent for a file.
func displayName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}
