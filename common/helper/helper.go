package helper

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func GenRequestID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func MessageWithRequestId(message string, id string) string {
	if id == "" {
		return message
	}
	return fmt.Sprintf("%s (request id: %s)", message, id)
}
