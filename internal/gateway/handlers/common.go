package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gastra-system/internal/apperrors"
)

// Helper functions
func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func successList(c *gin.Context, data interface{}, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     data,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

func fail(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

// respondError maps the service error taxonomy onto HTTP statuses.
// Chain rejections are 422 with the full violation list so the client
// can show every entry the edit would break.
func respondError(c *gin.Context, err error) {
	var chainErr *apperrors.ChainViolationError
	if errors.As(err, &chainErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success":    false,
			"error":      "edit would break downstream entries",
			"violations": chainErr.Violations,
		})
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrValidation):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrDuplicateTransaction),
		errors.Is(err, apperrors.ErrConcurrencyConflict):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, apperrors.ErrLockTimeout):
		fail(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, apperrors.ErrInsufficientStock),
		errors.Is(err, apperrors.ErrInsufficientInventoryAtCustomer),
		errors.Is(err, apperrors.ErrPaymentExceedsDue),
		errors.Is(err, apperrors.ErrUnsupportedEdit),
		errors.Is(err, apperrors.ErrEntryTooOld):
		fail(c, http.StatusUnprocessableEntity, err.Error())
	default:
		fail(c, http.StatusInternalServerError, "internal error")
	}
}

func parseInt64Param(c *gin.Context, param string) (int64, error) {
	return strconv.ParseInt(c.Param(param), 10, 64)
}

func parseIntParam(c *gin.Context, param string) (int32, error) {
	val, err := strconv.ParseInt(c.Param(param), 10, 32)
	return int32(val), err
}

func parseIntQuery(c *gin.Context, param string) *int32 {
	str := c.Query(param)
	if str == "" {
		return nil
	}
	val, err := strconv.ParseInt(str, 10, 32)
	if err != nil {
		return nil
	}
	result := int32(val)
	return &result
}

func parseInt64Query(c *gin.Context, param string) *int64 {
	str := c.Query(param)
	if str == "" {
		return nil
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return nil
	}
	return &val
}

func parseTimeQuery(c *gin.Context, param string) (time.Time, bool) {
	str := c.Query(param)
	if str == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", str); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, str); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}
