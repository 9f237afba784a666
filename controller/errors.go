package controller

import (
	"discord-rag-backend/dao"
	"errors"
	"net/http"
)

var (
	ErrParseRequest = errors.New("failed to parse request")

	ErrUserRegister  = errors.New("failed to register user")
	ErrGenerateToken = errors.New("failed to generate token")
	ErrUserLogin     = errors.New("failed to login")

	ErrUploadDocument     = errors.New("failed to upload document")
	ErrGetDocuments       = errors.New("failed to get documents")
	ErrGetDocumentStatus  = errors.New("failed to get document status")
	ErrDeactivateDocument = errors.New("failed to deactivate document")
	ErrGetProcessingLog   = errors.New("failed to get processing log")
	ErrGetStats           = errors.New("failed to get knowledge base stats")

	ErrChat       = errors.New("error while answering question")
	ErrSweepCache = errors.New("failed to sweep response cache")
	ErrRateLimit  = errors.New("failed to get rate limit status")
)

// statusForError 将dao层错误映射为HTTP状态码
func statusForError(err error) int {
	var validationErr *dao.ValidationError
	var stateErr *dao.InvalidStateError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &stateErr):
		return http.StatusConflict
	case errors.Is(err, dao.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dao.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
