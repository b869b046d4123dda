package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openlearn-labs/lms-api/internal/service"
	appErrors "github.com/openlearn-labs/lms-api/pkg/errors"
	"github.com/openlearn-labs/lms-api/pkg/response"
)

// LessonHandler exposes lesson endpoints scoped under a module.
type LessonHandler struct {
	lessons *service.LessonService
}

// NewLessonHandler constructs LessonHandler.
func NewLessonHandler(lessons *service.LessonService) *LessonHandler {
	return &LessonHandler{lessons: lessons}
}

// Create godoc
// @Summary Create lesson
// @Description Creates a lesson inside a module; video and thumbnail are uploaded in the same request
// @Tags Lessons
// @Accept mpfd
// @Produce json
// @Param id path string true "Module ID"
// @Param title formData string true "Title"
// @Param duration formData int false "Duration in seconds"
// @Param order formData int false "Order inside the module"
// @Param video formData file false "Lesson video"
// @Param thumbnail formData file false "Thumbnail image"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /modules/{id}/lessons [post]
func (h *LessonHandler) Create(c *gin.Context) {
	req := service.CreateLessonRequest{Title: c.PostForm("title")}
	if v := c.PostForm("duration"); v != "" {
		duration, err := strconv.Atoi(v)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "duration must be an integer"))
			return
		}
		req.Duration = duration
	}
	if v := c.PostForm("order"); v != "" {
		order, err := strconv.Atoi(v)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "order must be an integer"))
			return
		}
		req.Order = order
	}

	video, closeVideo, err := formUpload(c, "video")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable video upload"))
		return
	}
	defer closeVideo()
	req.Video = video

	thumbnail, closeThumb, err := formUpload(c, "thumbnail")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable thumbnail upload"))
		return
	}
	defer closeThumb()
	req.Thumbnail = thumbnail

	lesson, err := h.lessons.Create(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// Update godoc
// @Summary Update lesson
// @Description Partially updates a lesson; a replacement video removes the old file after the row is saved
// @Tags Lessons
// @Accept mpfd
// @Produce json
// @Param id path string true "Lesson ID"
// @Param title formData string false "Title"
// @Param duration formData int false "Duration in seconds"
// @Param order formData int false "Order inside the module"
// @Param video formData file false "Lesson video"
// @Param thumbnail formData file false "Thumbnail image"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id} [patch]
func (h *LessonHandler) Update(c *gin.Context) {
	var req service.UpdateLessonRequest
	if v, ok := c.GetPostForm("title"); ok {
		req.Title = &v
	}
	if v, ok := c.GetPostForm("duration"); ok {
		duration, err := strconv.Atoi(v)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "duration must be an integer"))
			return
		}
		req.Duration = &duration
	}
	if v, ok := c.GetPostForm("order"); ok {
		order, err := strconv.Atoi(v)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "order must be an integer"))
			return
		}
		req.Order = &order
	}

	video, closeVideo, err := formUpload(c, "video")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable video upload"))
		return
	}
	defer closeVideo()
	req.Video = video

	thumbnail, closeThumb, err := formUpload(c, "thumbnail")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable thumbnail upload"))
		return
	}
	defer closeThumb()
	req.Thumbnail = thumbnail

	lesson, err := h.lessons.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Delete godoc
// @Summary Delete lesson
// @Description Removes the lesson row, then cleans up its media files in the background
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id} [delete]
func (h *LessonHandler) Delete(c *gin.Context) {
	if err := h.lessons.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Playback godoc
// @Summary Get a signed playback grant
// @Description Issues a short-lived token authorising playback of the lesson's video
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/playback [get]
func (h *LessonHandler) Playback(c *gin.Context) {
	grant, err := h.lessons.Playback(c.Request.Context(), roleFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grant, nil)
}
