package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/transport/http/response"
	"docchat/internal/vectorstore"
)

// writeError maps service errors to status and envelope code. Unknown errors become a 500 carrying the error text.
func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, vectorstore.ErrTenantRequired):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeMessageEmpty, err.Error())
	case errors.Is(err, app.ErrNoValidPDF):
		response.Error(c, http.StatusBadRequest, response.CodeNoValidPDF, "No valid PDFs uploaded.")
	case errors.Is(err, app.ErrUsernameExists):
		response.Error(c, http.StatusBadRequest, response.CodeUsernameExists, "User already exists.")
	case errors.Is(err, app.ErrInvalidCredential):
		response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
	case errors.Is(err, app.ErrUserNotFound):
		response.Error(c, http.StatusNotFound, response.CodeUserNotFound, "User not found.")
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, app.ErrMessageEnqueue):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback+": "+err.Error())
	}
}
