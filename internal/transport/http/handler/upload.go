package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
)

// MaxUploadMemory bounds how much of a multipart upload is buffered in memory; the rest spills to temp files.
const MaxUploadMemory = 16 << 20

var errNoFiles = errors.New("no files uploaded")

// readUpload opens every file sent under "files" or "files[]". The returned cleanup closes them.
func readUpload(c *gin.Context) ([]app.UploadFile, bool, func(), error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, false, func() {}, fmt.Errorf("invalid multipart form: %w", err)
	}

	isPublic := false
	if raw := strings.TrimSpace(c.PostForm("is_public")); raw != "" {
		isPublic, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, false, func() {}, fmt.Errorf("invalid is_public value %q", raw)
		}
	}

	headers := make([]*multipart.FileHeader, 0, len(form.File["files"])+len(form.File["files[]"]))
	headers = append(headers, form.File["files"]...)
	headers = append(headers, form.File["files[]"]...)
	if len(headers) == 0 {
		return nil, false, func() {}, errNoFiles
	}

	var closers []io.Closer
	cleanup := func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}

	files := make([]app.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			cleanup()
			return nil, false, func() {}, fmt.Errorf("open %s failed: %w", fh.Filename, err)
		}
		closers = append(closers, f)
		files = append(files, app.UploadFile{Filename: fh.Filename, Size: fh.Size, Body: f})
	}
	return files, isPublic, cleanup, nil
}
