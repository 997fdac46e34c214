package common

import (
	"bytes"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
)

const KeyRequestBody = "key_request_body"

// GetRequestBody 读取并缓存请求体，之后的读取复用缓存
func GetRequestBody(c *gin.Context) ([]byte, error) {
	requestBody, _ := c.Get(KeyRequestBody)
	if requestBody != nil {
		return requestBody.([]byte), nil
	}
	if c.Request.Body == nil {
		c.Set(KeyRequestBody, []byte{})
		return []byte{}, nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	_ = c.Request.Body.Close()
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	c.Set(KeyRequestBody, body)
	return body, nil
}

func IsJSONContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}
