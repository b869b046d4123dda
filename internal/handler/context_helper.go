package handler

import (
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"github.com/openlearn-labs/lms-api/internal/middleware"
	"github.com/openlearn-labs/lms-api/internal/models"
	"github.com/openlearn-labs/lms-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// roleFromContext resolves the caller's role, treating anonymous requests as
// students so they only see the public catalogue.
func roleFromContext(c *gin.Context) models.UserRole {
	if claims := claimsFromContext(c); claims != nil {
		return claims.Role
	}
	return models.RoleStudent
}

// formUpload pulls an optional multipart file from the request. The returned
// closer must be invoked once the service finished reading.
func formUpload(c *gin.Context, field string) (*service.MediaUpload, func(), error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return nil, func() {}, nil
	}
	src, err := fileHeader.Open()
	if err != nil {
		return nil, func() {}, err
	}
	return &service.MediaUpload{Reader: src, Filename: fileHeader.Filename}, closeQuiet(src), nil
}

func closeQuiet(f multipart.File) func() {
	return func() { _ = f.Close() }
}
