package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/middleware"
	"adearn-backend/internal/services"
)

var errInvalidRequest = &services.Error{
	Kind:    services.KindValidation,
	Code:    "INVALID_REQUEST",
	Message: "Invalid request body",
	Status:  http.StatusBadRequest,
}

func init() {
	// Report binding failures with the JSON field names clients send.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// writeError renders err as the shared JSON error body. Unexpected errors
// are logged and reported as a generic 500.
func writeError(c *gin.Context, log *logrus.Entry, err error) {
	e := services.AsError(err)
	if e.Kind == services.KindInternal {
		log.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.GetRequestID(c),
			"path":       c.FullPath(),
		}).Error("Request failed")
	}
	_ = c.Error(err)
	middleware.Abort(c, e)
}

func bindError(err error) *services.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return errInvalidRequest.Detail(fieldMessage(verrs[0]))
	}
	return errInvalidRequest
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " must be a valid email address"
	case "oneof":
		return name + " must be one of: " + fe.Param()
	}
	return name + " is invalid"
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}
