package httpapi

import (
	"net/http"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
	"github.com/gin-gonic/gin"
)

const internalErrorMessage = "internal error"

var kindStatus = map[booking.Kind]int{
	booking.KindNotFound:     http.StatusNotFound,
	booking.KindForbidden:    http.StatusForbidden,
	booking.KindInvalidState: http.StatusBadRequest,
	booking.KindValidation:   http.StatusBadRequest,
	booking.KindConflict:     http.StatusConflict,
	booking.KindInternal:     http.StatusInternalServerError,
}

// StatusFor maps an engine error to its HTTP status code.
func StatusFor(err error) int {
	status, ok := kindStatus[booking.KindOf(err)]
	if !ok {
		return http.StatusInternalServerError
	}
	return status
}

// errorStatus renders err as a status and JSON body. Internal failures keep their cause out of
// the response.
func errorStatus(err error) (int, gin.H) {
	status := StatusFor(err)
	code := booking.CodeOf(err)
	if status == http.StatusInternalServerError {
		return status, errorResponse(code, internalErrorMessage)
	}
	return status, errorResponse(code, err.Error())
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
