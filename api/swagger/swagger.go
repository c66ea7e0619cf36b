package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "GraceTrack API",
        "description": "Church records with dual-approval edit requests and a live change feed.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Records", "description": "Members, attendance, finance and groups"},
        {"name": "EditRequests", "description": "Dual-approval workflow for record changes"},
        {"name": "Church", "description": "Approver roles and display preferences"},
        {"name": "Notifications", "description": "Workflow notifications"},
        {"name": "Dashboard", "description": "Stat cards"}
    ],
    "paths": {
        "/records/{entity}": {
            "parameters": [{"name": "entity", "in": "path", "required": true, "type": "string", "enum": ["members", "attendance", "finance", "groups"]}],
            "get": {
                "tags": ["Records"],
                "summary": "List records of an entity",
                "parameters": [
                    {"name": "orderBy", "in": "query", "type": "string"},
                    {"name": "direction", "in": "query", "type": "string", "enum": ["asc", "desc"]},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Records"],
                "summary": "Create a record",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/records/{entity}/{id}": {
            "parameters": [
                {"name": "entity", "in": "path", "required": true, "type": "string"},
                {"name": "id", "in": "path", "required": true, "type": "string"}
            ],
            "get": {
                "tags": ["Records"],
                "summary": "Get a record",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Records"],
                "summary": "Propose deleting a record",
                "responses": {"202": {"description": "Edit request queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/records/{entity}/{id}/edit-requests": {
            "post": {
                "tags": ["Records"],
                "summary": "Propose an update to a record",
                "parameters": [
                    {"name": "entity", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"payload": {"type": "object"}}}}
                ],
                "responses": {"202": {"description": "Edit request queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/edit-requests": {
            "get": {
                "tags": ["EditRequests"],
                "summary": "List edit requests",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"},
                    {"name": "entity", "in": "query", "type": "string"},
                    {"name": "recordId", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["EditRequests"],
                "summary": "Submit an edit request",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateEditRequest"}}],
                "responses": {"202": {"description": "Edit request queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/edit-requests/{id}": {
            "get": {
                "tags": ["EditRequests"],
                "summary": "Get an edit request",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/edit-requests/{id}/decision": {
            "post": {
                "tags": ["EditRequests"],
                "summary": "Approve or reject an edit request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Decision processed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not an assigned approver", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate decision or busy request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Store unavailable, retry", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/church": {
            "get": {
                "tags": ["Church"],
                "summary": "Current church profile, roles and preferences",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/church/roles": {
            "put": {
                "tags": ["Church"],
                "summary": "Assign manager and sub-manager",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateRolesRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Only the church owner may assign roles", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/church/preferences": {
            "put": {
                "tags": ["Church"],
                "summary": "Update currency and theme preferences",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdatePreferencesRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "Recent notifications, newest first",
                "parameters": [{"name": "limit", "in": "query", "type": "integer"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/dashboard/summary": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Church dashboard summary",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "CreateEditRequest": {
            "type": "object",
            "required": ["entity", "action", "recordId"],
            "properties": {
                "entity": {"type": "string", "enum": ["members", "attendance", "finance", "groups"]},
                "action": {"type": "string", "enum": ["update", "delete"]},
                "recordId": {"type": "string"},
                "payload": {"type": "object"}
            }
        },
        "DecisionRequest": {
            "type": "object",
            "required": ["decision"],
            "properties": {"decision": {"type": "string", "enum": ["approve", "reject"]}}
        },
        "UpdateRolesRequest": {
            "type": "object",
            "required": ["managerEmail", "subManagerEmail"],
            "properties": {
                "managerEmail": {"type": "string"},
                "subManagerEmail": {"type": "string"}
            }
        },
        "UpdatePreferencesRequest": {
            "type": "object",
            "required": ["currency", "theme"],
            "properties": {
                "currency": {"type": "string", "enum": ["GHS", "USD", "EUR", "GBP"]},
                "theme": {"type": "string", "enum": ["light", "dark"]},
                "conversions": {"type": "object", "additionalProperties": {"type": "number"}}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
