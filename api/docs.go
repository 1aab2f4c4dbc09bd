// Package api registers the OpenAPI document served at /swagger/. The
// document mirrors the swag annotations on internal/api/http; regenerate
// with `swag init -g internal/api/http/router.go -o api` after changing them.
package api

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
        "/livez": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health Check Endpoint",
                "responses": {
                    "200": {"description": "status, uptime, version", "schema": {"$ref": "#/definitions/http.HealthResponse"}}
                }
            }
        },
        "/readyz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness Check Endpoint",
                "responses": {
                    "200": {"description": "status, uptime, version, checks", "schema": {"$ref": "#/definitions/http.HealthResponse"}},
                    "503": {"description": "service not ready", "schema": {"$ref": "#/definitions/http.HealthResponse"}}
                }
            }
        },
        "/v1/users/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Register a password account",
                "parameters": [
                    {"description": "fullName, email, username, password", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "data: user", "schema": {"$ref": "#/definitions/httpx.Success"}},
                    "400": {"description": "missing fields, validation failure or duplicate user", "schema": {"$ref": "#/definitions/httpx.Failure"}},
                    "429": {"description": "rate limited", "schema": {"$ref": "#/definitions/httpx.Failure"}}
                }
            }
        },
        "/v1/users/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Log in with a password",
                "parameters": [
                    {"description": "email or username, password", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "data: user, accessToken, refreshToken", "schema": {"$ref": "#/definitions/httpx.Success"}},
                    "401": {"description": "invalid user credentials", "schema": {"$ref": "#/definitions/httpx.Failure"}}
                }
            }
        },
        "/v1/users/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Log out",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpx.Success"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.Failure"}}
                }
            }
        },
        "/v1/users/refresh-token": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Rotate the session",
                "parameters": [
                    {"description": "refreshToken, when not sent as a cookie", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/http.RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "data: accessToken, refreshToken", "schema": {"$ref": "#/definitions/httpx.Success"}},
                    "401": {"description": "refresh token is expired or used", "schema": {"$ref": "#/definitions/httpx.Failure"}}
                }
            }
        },
        "/v1/users/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "data: user", "schema": {"$ref": "#/definitions/httpx.Success"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.Failure"}}
                }
            }
        },
        "/v1/data/stats": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Data"],
                "summary": "Coin market stats",
                "parameters": [
                    {"description": "coins (array or comma separated), currency", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.StatsRequest"}}
                ],
                "responses": {
                    "200": {"description": "data: coin market rows", "schema": {"$ref": "#/definitions/httpx.Success"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpx.Failure"}},
                    "502": {"description": "market data provider failure", "schema": {"$ref": "#/definitions/httpx.Failure"}}
                }
            }
        },
        "/v1/auth/{provider}": {
            "get": {
                "tags": ["Federated"],
                "summary": "Start federated sign-in",
                "parameters": [
                    {"type": "string", "description": "identity provider, e.g. google", "name": "provider", "in": "path", "required": true},
                    {"type": "string", "description": "login (default) or register", "name": "method", "in": "query"}
                ],
                "responses": {
                    "302": {"description": "Found"},
                    "400": {"description": "unsupported provider or method", "schema": {"$ref": "#/definitions/httpx.Failure"}}
                }
            }
        },
        "/v1/auth/{provider}/callback": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Federated"],
                "summary": "Complete federated sign-in",
                "parameters": [
                    {"type": "string", "description": "identity provider", "name": "provider", "in": "path", "required": true},
                    {"type": "string", "description": "authorization code", "name": "code", "in": "query", "required": true},
                    {"type": "string", "description": "state issued by the start endpoint", "name": "state", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "data: user, accessToken, refreshToken", "schema": {"$ref": "#/definitions/httpx.Success"}},
                    "400": {"description": "missing, invalid or expired state or nonce", "schema": {"$ref": "#/definitions/httpx.Failure"}},
                    "401": {"description": "invalid identity token or no linked account", "schema": {"$ref": "#/definitions/httpx.Failure"}},
                    "502": {"description": "identity provider failure", "schema": {"$ref": "#/definitions/httpx.Failure"}}
                }
            }
        }
    },
    "definitions": {
        "http.HealthResponse": {
            "type": "object",
            "properties": {
                "checks": {"type": "object", "additionalProperties": {"type": "string"}},
                "status": {"type": "string"},
                "uptime": {"type": "string"},
                "version": {"type": "string"}
            }
        },
        "http.LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "http.RefreshRequest": {
            "type": "object",
            "properties": {
                "refreshToken": {"type": "string"}
            }
        },
        "http.RegisterRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "fullName": {"type": "string"},
                "password": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "http.StatsRequest": {
            "type": "object",
            "properties": {
                "coins": {"type": "array", "items": {"type": "string"}},
                "currency": {"type": "string"}
            }
        },
        "httpx.Failure": {
            "type": "object",
            "properties": {
                "details": {},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "httpx.Success": {
            "type": "object",
            "properties": {
                "data": {},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT access token. Format: \"Bearer {token}\". The accessToken cookie takes precedence.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Coinpulse API",
	Description:      "Crypto price tracking backend: password and federated sign-in, rotating refresh tokens and cached market data.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
