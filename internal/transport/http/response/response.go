package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                    = 0
	CodeBadRequest            = 40000
	CodePromptEmpty           = 40001
	CodeBriefUnreadable       = 40002
	CodeUnauthorized          = 40100
	CodeSessionNotFound       = 40401
	CodeStageNotAllowed       = 40901
	CodeBriefTooLarge         = 41301
	CodeInternalServer        = 50000
	CodeUpstream              = 50201
	CodeDiagram               = 50202
	CodeEndpointNotConfigured = 50301
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
