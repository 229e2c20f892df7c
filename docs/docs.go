// Package docs registers the OpenAPI description served at /swagger/*any.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness probe (JSON)",
                "operationId": "health",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        },
        "/health_check": {
            "get": {
                "description": "Always answers 200 with an empty body.",
                "tags": ["Health"],
                "summary": "Liveness probe",
                "operationId": "healthCheck",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}}
                }
            }
        },
        "/newsletters": {
            "post": {
                "security": [{"BasicAuth": []}],
                "description": "Sends the issue to every confirmed subscriber. Retries with the same\nidempotency key get the recorded response and send nothing.",
                "consumes": ["application/json", "application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["Newsletters"],
                "summary": "Publish a newsletter issue",
                "operationId": "publishNewsletter",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Idempotency key (or idempotency_key in the body)",
                        "name": "Idempotency-Key",
                        "in": "header"
                    },
                    {
                        "description": "Issue",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.PublishRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.PublishResponse"}},
                    "400": {"description": "Invalid issue or idempotency key", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Missing or wrong credentials", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Same key still being published", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/subscriptions": {
            "post": {
                "description": "Stores a pending subscriber and emails a confirmation link.",
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["Subscriptions"],
                "summary": "Subscribe to the newsletter",
                "operationId": "subscribe",
                "parameters": [
                    {"type": "string", "description": "Subscriber name", "name": "name", "in": "formData", "required": true},
                    {"type": "string", "description": "Subscriber email", "name": "email", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}},
                    "400": {"description": "Invalid name or email", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Storage or email failure", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/subscriptions/confirm": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Subscriptions"],
                "summary": "Confirm a subscription",
                "operationId": "confirmSubscription",
                "parameters": [
                    {"type": "string", "description": "Token from the confirmation email", "name": "subscription_token", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}},
                    "400": {"description": "Missing token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unknown token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Storage failure", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "invalid_subscriber"},
                "message": {"type": "string", "example": "name or email is invalid"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.IssueContent": {
            "type": "object",
            "properties": {
                "html": {"type": "string", "example": "<p>Hello</p>"},
                "text": {"type": "string", "example": "Hello"}
            }
        },
        "handlers.PublishRequest": {
            "type": "object",
            "properties": {
                "content": {"$ref": "#/definitions/handlers.IssueContent"},
                "html_content": {"type": "string", "example": "<p>Hello</p>"},
                "idempotency_key": {"type": "string", "example": "4b0f6a0e-6a55-4a63-9c16-0a43b7a6c1c2"},
                "text_content": {"type": "string", "example": "Hello"},
                "title": {"type": "string", "example": "Issue #1"}
            }
        },
        "handlers.PublishResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "published"},
                "recipients": {"type": "integer"},
                "delivered": {"type": "integer"},
                "failed": {"type": "integer"},
                "skipped": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BasicAuth": {"type": "basic"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Newsletter API",
	Description:      "Subscriptions with email confirmation and idempotent newsletter publishing.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
