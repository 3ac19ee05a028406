package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Wellness Engagement Analytics API",
        "description": "Engagement rollups, risk classification, leaderboards and drill-down navigation for wellness dashboards.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Engagement", "description": "Windowed engagement views"},
        {"name": "Navigation", "description": "Per-user drill-down session"},
        {"name": "Exports", "description": "CSV and PDF exports behind signed links"},
        {"name": "Ops", "description": "Health, readiness and metrics"}
    ],
    "parameters": {
        "schoolId": {"name": "schoolId", "in": "path", "required": true, "type": "string"},
        "period": {"name": "period", "in": "query", "type": "string", "enum": ["today", "week", "month", "year", "custom"]},
        "from": {"name": "from", "in": "query", "type": "string", "format": "date"},
        "to": {"name": "to", "in": "query", "type": "string", "format": "date", "description": "Inclusive end day"},
        "search": {"name": "search", "in": "query", "type": "string"},
        "status": {"name": "status", "in": "query", "type": "string"},
        "risk": {"name": "risk", "in": "query", "type": "string", "description": "Comma separated: high, medium, low"},
        "sort": {"name": "sort", "in": "query", "type": "string"},
        "order": {"name": "order", "in": "query", "type": "string", "enum": ["asc", "desc"]},
        "page": {"name": "page", "in": "query", "type": "integer", "minimum": 1},
        "pageSize": {"name": "pageSize", "in": "query", "type": "integer", "minimum": 1, "maximum": 200}
    },
    "paths": {
        "/schools/{schoolId}/overview": {
            "get": {
                "tags": ["Engagement"],
                "summary": "School engagement overview",
                "parameters": [
                    {"$ref": "#/parameters/schoolId"},
                    {"$ref": "#/parameters/period"},
                    {"$ref": "#/parameters/from"},
                    {"$ref": "#/parameters/to"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid window", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Record store unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schools/{schoolId}/classes": {
            "get": {
                "tags": ["Engagement"],
                "summary": "Class rollups",
                "parameters": [
                    {"$ref": "#/parameters/schoolId"},
                    {"$ref": "#/parameters/period"},
                    {"$ref": "#/parameters/search"},
                    {"name": "grade", "in": "query", "type": "string", "description": "Comma separated grades"},
                    {"$ref": "#/parameters/status"},
                    {"$ref": "#/parameters/sort"},
                    {"$ref": "#/parameters/order"},
                    {"$ref": "#/parameters/page"},
                    {"$ref": "#/parameters/pageSize"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schools/{schoolId}/students": {
            "get": {
                "tags": ["Engagement"],
                "summary": "Student standings",
                "parameters": [
                    {"$ref": "#/parameters/schoolId"},
                    {"$ref": "#/parameters/period"},
                    {"$ref": "#/parameters/search"},
                    {"name": "class", "in": "query", "type": "string", "description": "Comma separated class IDs"},
                    {"$ref": "#/parameters/risk"},
                    {"$ref": "#/parameters/status"},
                    {"$ref": "#/parameters/sort"},
                    {"$ref": "#/parameters/order"},
                    {"$ref": "#/parameters/page"},
                    {"$ref": "#/parameters/pageSize"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schools/{schoolId}/leaderboard": {
            "get": {
                "tags": ["Engagement"],
                "summary": "Top performers, at-risk and non-submitters",
                "parameters": [
                    {"$ref": "#/parameters/schoolId"},
                    {"$ref": "#/parameters/period"},
                    {"name": "limit", "in": "query", "type": "integer", "minimum": 1, "maximum": 100}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schools/{schoolId}/trend": {
            "get": {
                "tags": ["Engagement"],
                "summary": "Fixed length trend series",
                "parameters": [
                    {"$ref": "#/parameters/schoolId"},
                    {"$ref": "#/parameters/period"},
                    {"name": "bucket", "in": "query", "type": "string", "enum": ["week", "month"]},
                    {"name": "metric", "in": "query", "type": "string", "enum": ["assessment_rate", "activity_rate", "webinar_rate", "overall_rate", "app_openings", "avg_wellbeing", "at_risk_count", "active_students"]},
                    {"name": "classId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schools/{schoolId}/refresh": {
            "post": {
                "tags": ["Engagement"],
                "summary": "Drop cached records of a school",
                "parameters": [
                    {"$ref": "#/parameters/schoolId"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Cache unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{classId}": {
            "get": {
                "tags": ["Engagement"],
                "summary": "Class detail with member standings",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"$ref": "#/parameters/period"},
                    {"$ref": "#/parameters/search"},
                    {"$ref": "#/parameters/risk"},
                    {"$ref": "#/parameters/status"},
                    {"$ref": "#/parameters/sort"},
                    {"$ref": "#/parameters/order"},
                    {"$ref": "#/parameters/page"},
                    {"$ref": "#/parameters/pageSize"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown class", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}": {
            "get": {
                "tags": ["Engagement"],
                "summary": "Student history",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"$ref": "#/parameters/period"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/navigation": {
            "get": {
                "tags": ["Navigation"],
                "summary": "Current drill-down state",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No session", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Navigation"],
                "summary": "Open a session at the school overview",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/NavigationStartRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Navigation"],
                "summary": "Discard the session",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/navigation/push": {
            "post": {
                "tags": ["Navigation"],
                "summary": "Drill into a child level",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/NavigationPushRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Transition not allowed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/navigation/pop": {
            "post": {
                "tags": ["Navigation"],
                "summary": "Return to the parent level",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already at overview", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/navigation/reset": {
            "post": {
                "tags": ["Navigation"],
                "summary": "Return to the overview",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/navigation/filters": {
            "put": {
                "tags": ["Navigation"],
                "summary": "Replace the filters of the current level",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FilterRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/navigation/context": {
            "put": {
                "tags": ["Navigation"],
                "summary": "Store selection context on the current level",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/NavigationContextRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schools/{schoolId}/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export an engagement view",
                "parameters": [
                    {"$ref": "#/parameters/schoolId"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportCreateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an export through its signed token",
                "security": [],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Invalid or expired link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Ops"],
                "summary": "Engine and HTTP metrics summary",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "NavigationStartRequest": {
            "type": "object",
            "required": ["schoolId"],
            "properties": {
                "schoolId": {"type": "string"},
                "period": {"type": "string"},
                "from": {"type": "string", "format": "date"},
                "to": {"type": "string", "format": "date"}
            }
        },
        "NavigationPushRequest": {
            "type": "object",
            "required": ["level", "id"],
            "properties": {
                "level": {"type": "string", "enum": ["class", "student", "item", "response"]},
                "id": {"type": "string"}
            }
        },
        "NavigationContextRequest": {
            "type": "object",
            "properties": {
                "scrollOffset": {"type": "integer", "minimum": 0},
                "highlightedId": {"type": "string"}
            }
        },
        "FilterRequest": {
            "type": "object",
            "properties": {
                "search": {"type": "string"},
                "grade": {"type": "string"},
                "class": {"type": "string"},
                "status": {"type": "string"},
                "risk": {"type": "string"},
                "sort": {"type": "string"},
                "order": {"type": "string"},
                "page": {"type": "integer"},
                "pageSize": {"type": "integer"}
            }
        },
        "ExportCreateRequest": {
            "type": "object",
            "required": ["dataset"],
            "properties": {
                "dataset": {"type": "string", "enum": ["classes", "students", "leaderboard"]},
                "format": {"type": "string", "enum": ["csv", "pdf"]},
                "limit": {"type": "integer"},
                "period": {"type": "string"},
                "risk": {"type": "string"},
                "search": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "retryable": {"type": "boolean"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
