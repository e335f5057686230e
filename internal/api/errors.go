package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"iot-ledger-backend/internal/device"
)

// abortBind answers a request whose body could not be bound. Field
// validation failures are reported per field.
func abortBind(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"errors": fields})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "macaddr":
		return "Invalid MAC address format (e.g. AA:BB:CC:DD:EE:FF)"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// abortForm answers a registration that failed form validation.
func abortForm(c *gin.Context, err error) bool {
	var verr *device.ValidationError
	if errors.As(err, &verr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"errors": verr.Fields})
		return true
	}
	return false
}

func abortParam(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func abortLedger(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
