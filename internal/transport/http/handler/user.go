package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/logging"
	"docchat/internal/transport/http/middleware"
	"docchat/internal/transport/http/response"
)

type UserHandler struct {
	auth      *app.AuthService
	documents *app.DocumentService
	ingest    *app.IngestService
	chat      *app.ChatService
	events    *logging.EventLog
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=128"`
}

func NewUserHandler(
	auth *app.AuthService,
	documents *app.DocumentService,
	ingest *app.IngestService,
	chat *app.ChatService,
	events *logging.EventLog,
) *UserHandler {
	return &UserHandler{
		auth:      auth,
		documents: documents,
		ingest:    ingest,
		chat:      chat,
		events:    events,
	}
}

func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.auth.Login(c.Request.Context(), app.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeError(c, err, "login failed")
		return
	}
	h.events.Record(result.User.Username, "user_login", "")
	response.OK(c, gin.H{
		"user_id":  result.User.ID,
		"username": result.User.Username,
		"token":    result.Token,
	})
}

func (h *UserHandler) AuthCheck(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	response.OK(c, gin.H{"user_id": userID, "username": middleware.Username(c)})
}

func (h *UserHandler) UploadPDF(c *gin.Context) {
	files, isPublic, cleanup, err := readUpload(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}
	defer cleanup()

	username := middleware.Username(c)
	result, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		Uploader: username,
		IsPublic: isPublic,
		Files:    files,
	})
	if err != nil {
		writeError(c, err, "upload failed")
		return
	}
	for _, name := range result.Uploaded {
		h.events.Record(username, "upload_pdf", fmt.Sprintf("filename=%s, is_public=%t", name, isPublic))
	}
	response.OK(c, result)
}

func (h *UserHandler) ListPDFs(c *gin.Context) {
	docs, err := h.documents.ListByUploader(c.Request.Context(), middleware.Username(c))
	if err != nil {
		writeError(c, err, "list pdfs failed")
		return
	}
	response.OK(c, docs)
}

// DownloadPDF answers with a presigned URL when the store supports it and streams the bytes otherwise.
func (h *UserHandler) DownloadPDF(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	dl, err := h.documents.Download(c.Request.Context(), middleware.Username(c), uint(id))
	if err != nil {
		writeError(c, err, "download failed")
		return
	}
	h.events.Record(middleware.Username(c), "download_pdf", "filename="+dl.Document.Filename)
	if dl.URL != "" {
		response.OK(c, gin.H{"url": dl.URL, "filename": dl.Document.Filename})
		return
	}

	defer dl.Body.Close()
	c.DataFromReader(http.StatusOK, dl.Info.Size, "application/pdf", dl.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", dl.Document.Filename),
	})
}

func (h *UserHandler) DeletePDFs(c *gin.Context) {
	var req FilenamesRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Filenames) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "Missing or invalid 'filenames' (must be a list).")
		return
	}

	username := middleware.Username(c)
	result, err := h.documents.DeleteOwn(c.Request.Context(), username, req.Filenames)
	if err != nil {
		writeError(c, err, "delete pdfs failed")
		return
	}
	for _, name := range result.Deleted {
		h.events.Record(username, "delete_pdf", "filename="+name)
	}
	response.OK(c, result)
}

func (h *UserHandler) ListIngested(c *gin.Context) {
	records, err := h.ingest.ListOwnRecords(c.Request.Context(), middleware.Username(c))
	if err != nil {
		writeError(c, err, "list ingested failed")
		return
	}
	response.OK(c, records)
}

func (h *UserHandler) IngestAll(c *gin.Context) {
	username := middleware.Username(c)
	results, err := h.ingest.IngestAllOwn(c.Request.Context(), username)
	if err != nil {
		writeError(c, err, "ingest failed")
		return
	}
	h.events.Record(username, "ingest_all_pdfs", fmt.Sprintf("count=%d", len(results)))
	response.OK(c, gin.H{"results": results})
}

func (h *UserHandler) IngestOne(c *gin.Context) {
	username := middleware.Username(c)
	filename := c.Param("filename")
	record, err := h.ingest.IngestOwn(c.Request.Context(), username, filename)
	if err != nil {
		writeError(c, err, "ingest failed")
		return
	}
	h.events.Record(username, "ingest_pdf", "filename="+filename)
	response.OK(c, record)
}

func (h *UserHandler) DeleteOwnVectors(c *gin.Context) {
	username := middleware.Username(c)
	filename := c.Param("filename")
	if err := h.ingest.RemoveOwnSource(c.Request.Context(), username, filename); err != nil {
		writeError(c, err, "delete vectors failed")
		return
	}
	h.events.Record(username, "delete_vectors", "filename="+filename)
	response.OK(c, gin.H{"deleted": filename})
}

func (h *UserHandler) DeleteAllOwnVectors(c *gin.Context) {
	username := middleware.Username(c)
	if err := h.ingest.RemoveTenant(c.Request.Context(), username); err != nil {
		writeError(c, err, "delete vectors failed")
		return
	}
	h.events.Record(username, "delete_all_vectors", "")
	response.OK(c, gin.H{"deleted": "all"})
}

func (h *UserHandler) ListVectorSources(c *gin.Context) {
	sources, err := h.ingest.ListVisibleSources(c.Request.Context(), middleware.Username(c))
	if err != nil {
		writeError(c, err, "list vectors failed")
		return
	}
	response.OK(c, sources)
}

func (h *UserHandler) ClearMemory(c *gin.Context) {
	username := middleware.Username(c)
	if err := h.chat.ClearHistory(c.Request.Context(), username); err != nil {
		writeError(c, err, "clear history failed")
		return
	}
	h.events.Record(username, "clear_memory", "")
	response.OK(c, gin.H{"cleared": username})
}

func (h *UserHandler) History(c *gin.Context) {
	turns, err := h.chat.History(c.Request.Context(), middleware.Username(c))
	if err != nil {
		writeError(c, err, "get history failed")
		return
	}
	response.OK(c, turns)
}
