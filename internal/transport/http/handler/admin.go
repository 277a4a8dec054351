package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/logging"
	"docchat/internal/transport/http/middleware"
	"docchat/internal/transport/http/response"
)

type AdminHandler struct {
	auth      *app.AuthService
	documents *app.DocumentService
	ingest    *app.IngestService
	chat      *app.ChatService
	events    *logging.EventLog
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=128"`
}

// ResetPasswordRequest accepts the password under either key.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
	Password    string `json:"password"`
}

type FilenamesRequest struct {
	Filenames []string `json:"filenames"`
}

func NewAdminHandler(
	auth *app.AuthService,
	documents *app.DocumentService,
	ingest *app.IngestService,
	chat *app.ChatService,
	events *logging.EventLog,
) *AdminHandler {
	return &AdminHandler{
		auth:      auth,
		documents: documents,
		ingest:    ingest,
		chat:      chat,
		events:    events,
	}
}

func (h *AdminHandler) AuthCheck(c *gin.Context) {
	response.OK(c, gin.H{"username": middleware.Username(c), "role": "admin"})
}

func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	user, err := h.auth.CreateUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err, "create user failed")
		return
	}
	h.events.Record(middleware.Username(c), "admin_create_user", "username="+user.Username)
	response.OK(c, gin.H{"id": user.ID, "username": user.Username})
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.auth.ListUsers(c.Request.Context())
	if err != nil {
		writeError(c, err, "list users failed")
		return
	}
	response.OK(c, users)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	username := c.Param("username")
	if err := h.auth.DeleteUser(c.Request.Context(), username); err != nil {
		writeError(c, err, "delete user failed")
		return
	}
	h.events.Record(middleware.Username(c), "admin_delete_user", "username="+username)
	response.OK(c, gin.H{"deleted": username})
}

func (h *AdminHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	password := req.NewPassword
	if password == "" {
		password = req.Password
	}

	username := c.Param("username")
	if err := h.auth.ResetPassword(c.Request.Context(), username, password); err != nil {
		writeError(c, err, "reset password failed")
		return
	}
	h.events.Record(middleware.Username(c), "admin_reset_password", "username="+username)
	response.OK(c, gin.H{"username": username})
}

func (h *AdminHandler) UploadPDF(c *gin.Context) {
	files, isPublic, cleanup, err := readUpload(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}
	defer cleanup()

	admin := middleware.Username(c)
	result, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		Uploader: admin,
		AsAdmin:  true,
		IsPublic: isPublic,
		Files:    files,
	})
	if err != nil {
		writeError(c, err, "upload failed")
		return
	}
	for _, name := range result.Uploaded {
		h.events.Record(admin, "admin_upload_pdf", fmt.Sprintf("filename=%s, is_public=%t", name, isPublic))
	}
	response.OK(c, result)
}

func (h *AdminHandler) ListPDFs(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context())
	if err != nil {
		writeError(c, err, "list pdfs failed")
		return
	}
	response.OK(c, docs)
}

func (h *AdminHandler) DeletePDFs(c *gin.Context) {
	var req FilenamesRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Filenames) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "Missing or invalid 'filenames' (must be a list).")
		return
	}

	result, err := h.documents.DeleteAny(c.Request.Context(), req.Filenames)
	if err != nil {
		writeError(c, err, "delete pdfs failed")
		return
	}
	for _, name := range result.Deleted {
		h.events.Record(middleware.Username(c), "admin_delete_pdf", "filename="+name)
	}
	response.OK(c, result)
}

// DeletePublicPDFs removes the listed public documents, or all of them when the body names none.
func (h *AdminHandler) DeletePublicPDFs(c *gin.Context) {
	var req FilenamesRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	result, err := h.documents.DeletePublic(c.Request.Context(), req.Filenames)
	if err != nil {
		writeError(c, err, "delete public pdfs failed")
		return
	}
	for _, name := range result.Deleted {
		h.events.Record(middleware.Username(c), "admin_delete_public_pdf", "filename="+name)
	}
	response.OK(c, result)
}

func (h *AdminHandler) IngestAll(c *gin.Context) {
	results, err := h.ingest.IngestAllPublic(c.Request.Context())
	if err != nil {
		writeError(c, err, "ingest failed")
		return
	}
	h.events.Record(middleware.Username(c), "admin_ingest_all_public", fmt.Sprintf("count=%d", len(results)))
	response.OK(c, gin.H{"results": results})
}

// IngestOne ingests privately for ?user_id= when given, publicly otherwise.
func (h *AdminHandler) IngestOne(c *gin.Context) {
	filename := c.Param("filename")
	tenant := strings.TrimSpace(c.Query("user_id"))

	record, err := h.ingest.IngestOne(c.Request.Context(), filename, tenant)
	if err != nil {
		writeError(c, err, "ingest failed")
		return
	}
	h.events.Record(middleware.Username(c), "admin_ingest_pdf", fmt.Sprintf("filename=%s, ingested_by=%s", filename, record.IngestedBy))
	response.OK(c, record)
}

func (h *AdminHandler) IngestPublic(c *gin.Context) {
	filename := c.Param("filename")
	record, err := h.ingest.IngestPublic(c.Request.Context(), filename)
	if err != nil {
		writeError(c, err, "ingest failed")
		return
	}
	h.events.Record(middleware.Username(c), "admin_ingest_public_pdf", "filename="+filename)
	response.OK(c, record)
}

func (h *AdminHandler) IngestPrivate(c *gin.Context) {
	filename := c.Param("filename")
	tenant := strings.TrimSpace(c.Query("user_id"))
	if tenant == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "user_id is required")
		return
	}

	record, err := h.ingest.IngestPrivate(c.Request.Context(), filename, tenant)
	if err != nil {
		writeError(c, err, "ingest failed")
		return
	}
	h.events.Record(middleware.Username(c), "admin_ingest_private_pdf", fmt.Sprintf("filename=%s, user_id=%s", filename, tenant))
	response.OK(c, record)
}

func (h *AdminHandler) DeleteVectorsBySource(c *gin.Context) {
	filename := c.Param("filename")
	if err := h.ingest.RemoveSource(c.Request.Context(), filename); err != nil {
		writeError(c, err, "delete vectors failed")
		return
	}
	h.events.Record(middleware.Username(c), "admin_delete_vectors", "filename="+filename)
	response.OK(c, gin.H{"deleted": filename})
}

func (h *AdminHandler) DeleteVectorsByTenant(c *gin.Context) {
	owner := c.Param("owner")
	if err := h.ingest.RemoveTenant(c.Request.Context(), owner); err != nil {
		writeError(c, err, "delete vectors failed")
		return
	}
	h.events.Record(middleware.Username(c), "admin_delete_user_vectors", "owner="+owner)
	response.OK(c, gin.H{"deleted_for": owner})
}

func (h *AdminHandler) DeleteAllVectors(c *gin.Context) {
	if err := h.ingest.RemoveAll(c.Request.Context()); err != nil {
		writeError(c, err, "delete vectors failed")
		return
	}
	h.events.Record(middleware.Username(c), "admin_delete_all_vectors", "")
	response.OK(c, gin.H{"deleted": "all"})
}

func (h *AdminHandler) ListVectorSources(c *gin.Context) {
	sources, err := h.ingest.ListAllSources(c.Request.Context())
	if err != nil {
		writeError(c, err, "list vectors failed")
		return
	}
	response.OK(c, sources)
}

func (h *AdminHandler) ListIngested(c *gin.Context) {
	records, err := h.ingest.ListRecords(c.Request.Context())
	if err != nil {
		writeError(c, err, "list ingested failed")
		return
	}
	response.OK(c, records)
}

func (h *AdminHandler) ClearAllMemory(c *gin.Context) {
	if err := h.chat.ClearAllHistory(c.Request.Context()); err != nil {
		writeError(c, err, "clear history failed")
		return
	}
	h.events.Record(middleware.Username(c), "admin_clear_all_memory", "")
	response.OK(c, gin.H{"cleared": "all"})
}

func (h *AdminHandler) ClearMemory(c *gin.Context) {
	tenant := c.Param("user_id")
	if err := h.chat.ClearHistory(c.Request.Context(), tenant); err != nil {
		writeError(c, err, "clear history failed")
		return
	}
	h.events.Record(middleware.Username(c), "admin_clear_memory", "user_id="+tenant)
	response.OK(c, gin.H{"cleared": tenant})
}

func (h *AdminHandler) History(c *gin.Context) {
	tenant := c.Param("user_id")
	turns, err := h.chat.History(c.Request.Context(), tenant)
	if err != nil {
		writeError(c, err, "get history failed")
		return
	}
	response.OK(c, turns)
}
