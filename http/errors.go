package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escrowhq/escrow/models"
)

var kindStatus = map[models.ErrorKind]int{
	models.KindInvalidInput:         http.StatusBadRequest,
	models.KindUnauthorized:         http.StatusUnauthorized,
	models.KindInvalidState:         http.StatusConflict,
	models.KindNotFound:             http.StatusNotFound,
	models.KindUnsupportedNetwork:   http.StatusUnprocessableEntity,
	models.KindMisconfiguredNetwork: http.StatusUnprocessableEntity,
	models.KindLedger:               http.StatusBadGateway,
	models.KindPartialFailure:       http.StatusBadGateway,
}

// StatusForKind maps an error kind to its HTTP status. Unknown kinds are 500.
func StatusForKind(kind models.ErrorKind) int {
	if code, ok := kindStatus[kind]; ok {
		return code
	}

	return http.StatusInternalServerError
}

func ErrNotFound(c *gin.Context, err error) {
	Err(c, http.StatusNotFound, err)
}

func ErrBadRequest(c *gin.Context, err error) {
	Err(c, http.StatusBadRequest, err)
}

func ErrInternalServerError(c *gin.Context, err error) {
	Err(c, http.StatusInternalServerError, err)
}

// ErrClassified responds with the status of err's kind.
func ErrClassified(c *gin.Context, err error) {
	kind := models.KindOf(err)

	c.JSON(StatusForKind(kind), gin.H{
		"error": err.Error(),
		"kind":  kind,
	})
}

// Result writes a transaction result. Failed results use the status of their kind.
func Result(c *gin.Context, successCode int, res *models.TransactionResult) {
	if res.Success {
		c.JSON(successCode, res)
		return
	}

	c.JSON(StatusForKind(res.Kind), res)
}

func Err(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{"error": err.Error()})
}
