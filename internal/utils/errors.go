package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Sentinel errors returned (wrapped) by services and mapped to HTTP codes here.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUpstream     = errors.New("upstream service error")
)

// HandleServiceError writes the error envelope matching err.
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	case errors.Is(err, ErrConflict):
		ConflictResponse(c, err.Error())
	case errors.Is(err, ErrInvalidInput):
		BadRequestResponse(c, err.Error(), nil)
	case errors.Is(err, ErrUpstream):
		ErrorResponse(c, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error(), nil)
	default:
		if validationErrors := GetValidationErrors(err); len(validationErrors) > 0 {
			ValidationErrorResponse(c, validationErrors)
			return
		}
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Unhandled service error")
		InternalErrorResponse(c, "")
	}
}
