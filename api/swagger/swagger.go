package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Timetabling Core API",
        "description": "Conflict-aware academic timetabling: schedules, sessions, clash detection, bulk import and export.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Schedules", "description": "Schedule lifecycle and session management"},
        {"name": "Clashes", "description": "Conflict detection reports"},
        {"name": "Imports", "description": "Bulk session import jobs"},
        {"name": "Exports", "description": "Timetable export files"},
        {"name": "Reference", "description": "Reference data cache"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A backing store is unreachable"}
                }
            }
        },
        "/schedules": {
            "get": {
                "tags": ["Schedules"],
                "summary": "List schedules",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "academicPeriod", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"},
                    {"name": "sortBy", "in": "query", "type": "string"},
                    {"name": "sortOrder", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Paginated schedules", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Schedules"],
                "summary": "Create a draft schedule",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateScheduleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Schedule"}},
                    "400": {"description": "Validation failure", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/schedules/{id}": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Get a schedule with its sessions",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Schedule", "schema": {"$ref": "#/definitions/Schedule"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/schedules/{id}/sessions": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Add a session to a draft schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ScheduledSession"}},
                    "409": {"description": "Blocking clashes, listed in meta.clashes", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/schedules/{id}/sessions/{sessionId}": {
            "put": {
                "tags": ["Schedules"],
                "summary": "Update a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "sessionId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Updated", "schema": {"$ref": "#/definitions/ScheduledSession"}},
                    "409": {"description": "Blocking clashes, listed in meta.clashes", "schema": {"$ref": "#/definitions/APIError"}}
                }
            },
            "delete": {
                "tags": ["Schedules"],
                "summary": "Remove a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "sessionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Removed"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/schedules/{id}/publish": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Publish a schedule",
                "description": "Runs full clash detection first; any blocking clash rejects the publish.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/PublishRequest"}}
                ],
                "responses": {
                    "200": {"description": "Published", "schema": {"$ref": "#/definitions/Schedule"}},
                    "409": {"description": "Blocking clashes, listed in meta.clashes", "schema": {"$ref": "#/definitions/APIError"}},
                    "412": {"description": "Stale version", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/schedules/{id}/archive": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Archive a schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Archived", "schema": {"$ref": "#/definitions/Schedule"}}
                }
            }
        },
        "/schedules/{id}/review": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Mark a published schedule as under review",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Under review", "schema": {"$ref": "#/definitions/Schedule"}}
                }
            }
        },
        "/schedules/{id}/reopen": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Reopen an under-review schedule as a draft",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Draft", "schema": {"$ref": "#/definitions/Schedule"}}
                }
            }
        },
        "/schedules/{id}/clashes": {
            "get": {
                "tags": ["Clashes"],
                "summary": "Run full clash detection on a schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Detection report", "schema": {"$ref": "#/definitions/DetectionReport"}}
                }
            }
        },
        "/schedules/{id}/audit": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Audit trail for a schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Audit entries, newest first", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/{id}/import": {
            "post": {
                "tags": ["Imports"],
                "summary": "Enqueue a bulk session import",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ImportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ImportJobResponse"}},
                    "400": {"description": "Validation failure", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/imports/{id}": {
            "get": {
                "tags": ["Imports"],
                "summary": "Import job status and result",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Job", "schema": {"$ref": "#/definitions/ImportJob"}},
                    "404": {"description": "Unknown or expired job", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/schedules/{id}/export": {
            "get": {
                "tags": ["Exports"],
                "summary": "Generate a timetable export",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Signed download link", "schema": {"$ref": "#/definitions/ExportLinkResponse"}}
                }
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an exported timetable",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "401": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/APIError"}},
                    "404": {"description": "File expired", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/reference/refresh": {
            "post": {
                "tags": ["Reference"],
                "summary": "Reload the reference data cache",
                "responses": {
                    "200": {"description": "Counts per entity kind"}
                }
            }
        }
    },
    "definitions": {
        "CreateScheduleRequest": {
            "type": "object",
            "required": ["name", "academicPeriod", "startDate", "endDate"],
            "properties": {
                "name": {"type": "string"},
                "academicPeriod": {"type": "string"},
                "startDate": {"type": "string", "format": "date-time"},
                "endDate": {"type": "string", "format": "date-time"}
            }
        },
        "SessionRequest": {
            "type": "object",
            "required": ["courseId", "lecturerId", "venueId", "studentGroupIds", "startTime", "endTime", "dayOfWeek"],
            "properties": {
                "courseId": {"type": "string"},
                "lecturerId": {"type": "string"},
                "venueId": {"type": "string"},
                "studentGroupIds": {"type": "array", "items": {"type": "string"}},
                "startTime": {"type": "string", "format": "date-time"},
                "endTime": {"type": "string", "format": "date-time"},
                "dayOfWeek": {"type": "string"},
                "weekNumber": {"type": "integer"},
                "notes": {"type": "string"}
            }
        },
        "PublishRequest": {
            "type": "object",
            "properties": {
                "publishedBy": {"type": "string"}
            }
        },
        "Schedule": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "academic_period": {"type": "string"},
                "status": {"type": "string", "enum": ["DRAFT", "UNDER_REVIEW", "PUBLISHED", "ARCHIVED"]},
                "version": {"type": "integer"},
                "start_date": {"type": "string", "format": "date-time"},
                "end_date": {"type": "string", "format": "date-time"},
                "published_at": {"type": "string", "format": "date-time"},
                "published_by": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"},
                "sessions": {"type": "array", "items": {"$ref": "#/definitions/ScheduledSession"}}
            }
        },
        "ScheduledSession": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "schedule_id": {"type": "string"},
                "course_id": {"type": "string"},
                "lecturer_id": {"type": "string"},
                "venue_id": {"type": "string"},
                "student_group_ids": {"type": "array", "items": {"type": "string"}},
                "start_time": {"type": "string", "format": "date-time"},
                "end_time": {"type": "string", "format": "date-time"},
                "day_of_week": {"type": "string"},
                "week_number": {"type": "integer"},
                "notes": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "Clash": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string"},
                "severity": {"type": "string", "enum": ["info", "warning", "error", "critical"]},
                "schedule_id": {"type": "string"},
                "session_ids": {"type": "array", "items": {"type": "string"}},
                "entity_ids": {"type": "array", "items": {"type": "string"}},
                "description": {"type": "string"},
                "resolutions": {"type": "array", "items": {"$ref": "#/definitions/Resolution"}},
                "resolved": {"type": "boolean"}
            }
        },
        "Resolution": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string"},
                "description": {"type": "string"},
                "parameters": {"type": "object"},
                "impact": {"type": "string"},
                "score": {"type": "number"},
                "effort": {"type": "string"}
            }
        },
        "DetectionReport": {
            "type": "object",
            "properties": {
                "clashes": {"type": "array", "items": {"$ref": "#/definitions/Clash"}},
                "is_valid": {"type": "boolean"},
                "summary": {"$ref": "#/definitions/DetectionSummary"}
            }
        },
        "DetectionSummary": {
            "type": "object",
            "properties": {
                "total_clashes": {"type": "integer"},
                "by_type": {"type": "object"},
                "critical_clashes": {"type": "integer"},
                "warning_clashes": {"type": "integer"}
            }
        },
        "ImportRequest": {
            "type": "object",
            "required": ["strategy", "candidates"],
            "properties": {
                "scheduleId": {"type": "string"},
                "strategy": {"type": "string", "enum": ["strict", "automatic", "skip", "manual_review"]},
                "allowPartialImport": {"type": "boolean"},
                "validateOnly": {"type": "boolean"},
                "batchSize": {"type": "integer"},
                "candidates": {"type": "array", "items": {"$ref": "#/definitions/SessionCandidate"}}
            }
        },
        "SessionCandidate": {
            "type": "object",
            "properties": {
                "course_id": {"type": "string"},
                "lecturer_id": {"type": "string"},
                "venue_id": {"type": "string"},
                "student_group_ids": {"type": "array", "items": {"type": "string"}},
                "start_time": {"type": "string", "format": "date-time"},
                "end_time": {"type": "string", "format": "date-time"},
                "day_of_week": {"type": "string"},
                "week_number": {"type": "integer"},
                "notes": {"type": "string"}
            }
        },
        "ImportJobResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "scheduleId": {"type": "string"},
                "status": {"type": "string"},
                "totalRows": {"type": "integer"}
            }
        },
        "ImportJob": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "schedule_id": {"type": "string"},
                "status": {"type": "string", "enum": ["QUEUED", "PROCESSING", "FINISHED", "FAILED"]},
                "total_rows": {"type": "integer"},
                "result": {"$ref": "#/definitions/ImportResult"},
                "error_message": {"type": "string"},
                "created_by": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "started_at": {"type": "string", "format": "date-time"},
                "finished_at": {"type": "string", "format": "date-time"}
            }
        },
        "ImportResult": {
            "type": "object",
            "properties": {
                "schedule_id": {"type": "string"},
                "total_rows": {"type": "integer"},
                "created": {"type": "integer"},
                "updated": {"type": "integer"},
                "failed": {"type": "integer"},
                "skipped": {"type": "integer"},
                "flagged": {"type": "integer"},
                "created_session_ids": {"type": "array", "items": {"type": "string"}},
                "conflicts": {"type": "array", "items": {"$ref": "#/definitions/Clash"}},
                "row_errors": {"type": "array", "items": {"type": "object"}},
                "resolution_attempts": {"type": "array", "items": {"type": "object"}},
                "validate_only": {"type": "boolean"}
            }
        },
        "ExportLinkResponse": {
            "type": "object",
            "properties": {
                "url": {"type": "string"},
                "format": {"type": "string"},
                "expiresAt": {"type": "string", "format": "date-time"}
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
