// Package docs registers the OpenAPI document served at /swagger.
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
        "/api/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Login",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Invalid credentials"}}
            }
        },
        "/api/me": {
            "get": {
                "tags": ["auth"],
                "summary": "Current user and effective permissions",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/roles": {
            "get": {
                "tags": ["roles"],
                "summary": "List roles",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["roles"],
                "summary": "Create role",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/roles/resync": {
            "post": {
                "tags": ["roles"],
                "summary": "Republish every role to the broadcast store",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}, "502": {"description": "Bad Gateway"}}
            }
        },
        "/api/roles/{name}": {
            "get": {
                "tags": ["roles"],
                "summary": "Get role",
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "delete": {
                "tags": ["roles"],
                "summary": "Delete role",
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/roles/{name}/permissions": {
            "put": {
                "tags": ["roles"],
                "summary": "Replace role permissions",
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "502": {"description": "Bad Gateway"}}
            }
        },
        "/api/roles/{name}/permissions/toggle": {
            "post": {
                "tags": ["roles"],
                "summary": "Grant or revoke one permission",
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/api/roles/{name}/snapshot": {
            "get": {
                "tags": ["roles"],
                "summary": "Broadcast snapshot of a role",
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/ws/permissions": {
            "get": {
                "tags": ["realtime"],
                "summary": "Live permission feed over websocket",
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        },
        "/api/cron/reconcile": {
            "post": {
                "tags": ["cron"],
                "summary": "Run permission reconcile",
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/cron/reconcile/runs": {
            "get": {
                "tags": ["cron"],
                "summary": "List reconcile runs",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/health": {
            "get": {
                "tags": ["system"],
                "summary": "Service health",
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Knock Off Dues Admin API",
	Description:      "Role permissions and realtime authorization for Knock Off Dues.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
