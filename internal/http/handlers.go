package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(c echo.Context) error {
	report := s.services.Health(c.Request().Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}

// multipartOverhead is the slack allowed on top of the document limit for
// part headers and boundaries.
const multipartOverhead = 64 << 10

// handleUpload streams the "file" part straight into ingestion so the size
// limit applies while the body is read, not after it has been buffered.
func (s *Server) handleUpload(c echo.Context) error {
	ctx := c.Request().Context()
	req := ingest.Request{UserID: userID(c)}
	limit := s.services.Ingest().MaxDocumentSize()

	r := c.Request()
	r.Body = http.MaxBytesReader(c.Response(), r.Body, limit+multipartOverhead)

	part, err := filePart(r)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// ingest reports the missing file
	case err != nil:
		if tooLarge(err) {
			return sizeError(limit)
		}
		return apperr.File("http.upload", "Could not read uploaded file", err)
	default:
		// not closed: Part.Close drains whatever ingestion left unread
		req.Filename = part.FileName()
		req.Body = part
	}

	res, err := s.services.Ingest().Ingest(ctx, req)
	if tooLarge(err) {
		return sizeError(limit)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// filePart advances to the first "file" part carrying a filename.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, http.ErrMissingFile
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func sizeError(limit int64) error {
	return apperr.Validation("http.upload", fmt.Sprintf("File size exceeds maximum limit of %d bytes", limit))
}
