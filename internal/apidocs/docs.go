// Package apidocs holds the swagger document for the HTTP API. It is
// regenerated from the handler annotations with `make swagger-gen`.
package apidocs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "visionchat maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/describe": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["api"],
                "summary": "Describe an image",
                "parameters": [
                    {
                        "description": "Prompt and optional image",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.DescribeRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.DescribeResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/hello": {
            "get": {
                "produces": ["application/json"],
                "tags": ["api"],
                "summary": "Hello",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.MessageResponse"}}
                }
            }
        },
        "/api/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["api"],
                "summary": "Model and queue status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Log in",
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.Credentials"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.LoginResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/types.MessageResponse"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["auth"],
                "summary": "Log out",
                "responses": {
                    "204": {"description": "No Content"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.MeResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Register a user",
                "parameters": [
                    {
                        "description": "New account",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.Credentials"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/types.MessageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.MessageResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.Credentials": {
            "type": "object",
            "properties": {
                "password": {"type": "string", "example": "s3cret"},
                "username": {"type": "string", "example": "alice"}
            }
        },
        "types.DescribeRequest": {
            "type": "object",
            "properties": {
                "image_base64": {"description": "Base64 image bytes, optionally as a data: URL.", "type": "string"},
                "image_url": {"description": "http(s) URL of the image. Local paths are rejected.", "type": "string"},
                "prompt": {"description": "Text of the turn.", "type": "string", "example": "What is in this picture?"}
            }
        },
        "types.DescribeResponse": {
            "type": "object",
            "properties": {
                "response": {"type": "string", "example": "A cat sitting on a windowsill."}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"description": "HTTP status code.", "type": "integer", "example": 400},
                "error": {"description": "Error message.", "type": "string", "example": "invalid JSON body"},
                "kind": {"description": "Machine readable kind when known.", "type": "string", "example": "fetch-error"}
            }
        },
        "types.LoginResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Login successful"},
                "token": {"description": "Opaque bearer token for authenticated endpoints.", "type": "string"}
            }
        },
        "types.MeResponse": {
            "type": "object",
            "properties": {
                "username": {"type": "string", "example": "alice"}
            }
        },
        "types.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "User created successfully"}
            }
        },
        "types.ModelInfo": {
            "type": "object",
            "properties": {
                "backend": {"type": "string"},
                "device": {"type": "string"},
                "id": {"type": "string"},
                "max_new_tokens": {"type": "integer"}
            }
        },
        "types.QueueStatus": {
            "type": "object",
            "properties": {
                "inflight": {"type": "integer", "example": 1},
                "max_queue_depth": {"type": "integer", "example": 32},
                "max_wait_seconds": {"type": "integer", "example": 30},
                "queue_len": {"type": "integer", "example": 1}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "failures_total": {"type": "integer"},
                "last_error": {"type": "string"},
                "model": {"$ref": "#/definitions/types.ModelInfo"},
                "queue": {"$ref": "#/definitions/types.QueueStatus"},
                "rejected_total": {"type": "integer"},
                "requests_total": {"type": "integer"},
                "server_time_unix": {"type": "integer"},
                "state": {"type": "string", "example": "ready"},
                "uptime_seconds": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "visionchat API",
	Description:      "Image conversation and account endpoints backed by a vision-language model.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
