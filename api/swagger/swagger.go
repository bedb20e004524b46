package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Timetable API",
        "description": "Genetic-algorithm timetable generation for school cohorts, faculty and classrooms.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Timetables", "description": "Generation, feasibility and run history"},
        {"name": "Exports", "description": "CSV and PDF renderings of finished timetables"},
        {"name": "Operations", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Operations"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Operations"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unreachable"}
                }
            }
        },
        "/timetables/generate": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Generate a timetable",
                "description": "Runs the genetic search synchronously and returns the best schedule found within the time limit.",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid catalog", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Demand exceeds capacity", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/feasibility": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Check timetable feasibility",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/jobs": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Queue a timetable generation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Queue full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/jobs/{id}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Get job status and progress",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables": {
            "get": {
                "tags": ["Timetables"],
                "summary": "List timetable runs",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["QUEUED", "PROCESSING", "FINISHED", "FAILED"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{id}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Get a timetable run",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{id}/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export a finished timetable",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Run not finished", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an exported timetable via signed token",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "403": {"description": "Expired or invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Course": {
            "type": "object",
            "required": ["id", "name"],
            "properties": {
                "id": {"type": "string"},
                "code": {"type": "string"},
                "name": {"type": "string"}
            }
        },
        "Cohort": {
            "type": "object",
            "required": ["id", "name", "courses"],
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "courses": {"type": "array", "items": {"$ref": "#/definitions/Course"}}
            }
        },
        "Faculty": {
            "type": "object",
            "required": ["id", "name"],
            "properties": {
                "id": {"type": "string"},
                "code": {"type": "string"},
                "name": {"type": "string"}
            }
        },
        "Classroom": {
            "type": "object",
            "required": ["name"],
            "properties": {
                "name": {"type": "string"}
            }
        },
        "TimeSlot": {
            "type": "object",
            "required": ["label"],
            "properties": {
                "label": {"type": "string"},
                "start": {"type": "string", "example": "07:00"},
                "end": {"type": "string", "example": "07:45"}
            }
        },
        "Assignment": {
            "type": "object",
            "required": ["id", "courseId", "facultyId", "timesPerWeek"],
            "properties": {
                "id": {"type": "string"},
                "courseId": {"type": "string"},
                "facultyId": {"type": "string"},
                "timesPerWeek": {"type": "integer", "minimum": 1}
            }
        },
        "GenerationOptions": {
            "type": "object",
            "properties": {
                "seed": {"type": "integer", "format": "int64"},
                "generations": {"type": "integer"},
                "populationSize": {"type": "integer"},
                "mutationRate": {"type": "number"},
                "crossoverRate": {"type": "number"}
            }
        },
        "GenerateTimetableRequest": {
            "type": "object",
            "required": ["cohorts", "faculty", "classrooms", "days", "timeSlots", "assignments"],
            "properties": {
                "cohorts": {"type": "array", "items": {"$ref": "#/definitions/Cohort"}},
                "faculty": {"type": "array", "items": {"$ref": "#/definitions/Faculty"}},
                "classrooms": {"type": "array", "items": {"$ref": "#/definitions/Classroom"}},
                "days": {"type": "array", "items": {"type": "string"}},
                "timeSlots": {"type": "array", "items": {"$ref": "#/definitions/TimeSlot"}},
                "assignments": {"type": "array", "items": {"$ref": "#/definitions/Assignment"}},
                "options": {"$ref": "#/definitions/GenerationOptions"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
