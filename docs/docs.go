package docs

import (
	_ "embed"

	"github.com/swaggo/swag"
)

//go:embed swagger.json
var swaggerTemplate string

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Title:            "fal-studio API",
	Description:      "fal.ai 凭证代理与模型目录",
	BasePath:         "/api",
	Schemes:          []string{},
	InfoInstanceName: "swagger",
	SwaggerTemplate:  swaggerTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
