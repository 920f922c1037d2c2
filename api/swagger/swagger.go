package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Risk & Governance Engine",
        "description": "Student risk cases, interventions, approvals and marking fan-out",
        "version": "0.1.0"
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
        {"name": "RiskCases", "description": "Student risk detection and case lifecycle"},
        {"name": "Interventions", "description": "Remediation tasks attached to risk cases"},
        {"name": "Approvals", "description": "Request, decide and resubmit approvals"},
        {"name": "MarkingRequests", "description": "Marking requests fanned out to teachers"},
        {"name": "Notifications", "description": "Per-user inbox"},
        {"name": "Audit", "description": "Append-only audit trail"},
        {"name": "Observability", "description": "Engine counters"}
    ],
    "paths": {
        "/risk-cases": {
            "get": {
                "tags": ["RiskCases"],
                "summary": "List risk cases",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "risk_type", "in": "query", "type": "string", "enum": ["attendance", "academic", "financial", "behavior", "multi"]},
                    {"name": "status", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["RiskCases"],
                "summary": "Open a risk case manually",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OpenRiskCaseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "An active case of this type already exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/risk-cases/{id}": {
            "get": {
                "tags": ["RiskCases"],
                "summary": "Get a risk case",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/risk-cases/{id}/start": {
            "post": {
                "tags": ["RiskCases"],
                "summary": "Move an open case to in_progress",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/risk-cases/{id}/close": {
            "post": {
                "tags": ["RiskCases"],
                "summary": "Close a case manually",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/NotesRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/risk-cases/{id}/severity": {
            "put": {
                "tags": ["RiskCases"],
                "summary": "Override the severity of an active case",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OverrideSeverityRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/risk-cases/{id}/interventions": {
            "get": {
                "tags": ["Interventions"],
                "summary": "List interventions of a case",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Interventions"],
                "summary": "Create an intervention",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateInterventionRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/interventions/{id}": {
            "patch": {
                "tags": ["Interventions"],
                "summary": "Transition an intervention",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/InterventionTransitionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/students/{studentId}/risk/evaluate": {
            "post": {
                "tags": ["RiskCases"],
                "summary": "Evaluate one student and reconcile their cases",
                "parameters": [{"name": "studentId", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Fact source unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/risk-cases": {
            "get": {
                "tags": ["RiskCases"],
                "summary": "Active cases of a student",
                "parameters": [{"name": "studentId", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/risk/sweeps": {
            "post": {
                "tags": ["RiskCases"],
                "summary": "Sweep every active student of the caller's tenant",
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"type": "object", "properties": {"async": {"type": "boolean"}}}}
                ],
                "responses": {
                    "200": {"description": "Summary", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Sweep already running", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/approvals": {
            "get": {
                "tags": ["Approvals"],
                "summary": "List approval requests",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Approvals"],
                "summary": "Submit an approval request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitApprovalRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/approvals/{id}": {
            "get": {
                "tags": ["Approvals"],
                "summary": "Get an approval request",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/approvals/{id}/decision": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Decide a pending approval request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApprovalDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already decided", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/approvals/{id}/resubmit": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Return a request awaiting more information to pending",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/approvals/{id}/decisions": {
            "get": {
                "tags": ["Approvals"],
                "summary": "Decision history of a request",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/marking-requests": {
            "post": {
                "tags": ["MarkingRequests"],
                "summary": "Create a marking request and notify its audience",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateMarkingRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/marking-requests/{id}": {
            "get": {
                "tags": ["MarkingRequests"],
                "summary": "Get a marking request",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/marking-requests/{id}/fanout": {
            "post": {
                "tags": ["MarkingRequests"],
                "summary": "Deliver to teachers added since creation",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/marking-requests/{id}/status": {
            "patch": {
                "tags": ["MarkingRequests"],
                "summary": "Move a marking request along its lifecycle",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"status": {"type": "string", "enum": ["acknowledged", "completed", "cancelled"]}}}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List the caller's notifications",
                "parameters": [
                    {"name": "unread", "in": "query", "type": "boolean"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Mark a notification read",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/audit-logs": {
            "get": {
                "tags": ["Audit"],
                "summary": "List audit entries",
                "parameters": [
                    {"name": "resource_type", "in": "query", "type": "string"},
                    {"name": "resource_id", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/audit-logs/export": {
            "get": {
                "tags": ["Audit"],
                "summary": "Download audit entries as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "resource_type", "in": "query", "type": "string"},
                    {"name": "resource_id", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "CSV", "schema": {"type": "string"}}}
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Engine counters",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "OpenRiskCaseRequest": {
            "type": "object",
            "required": ["student_id", "risk_type", "severity", "reason"],
            "properties": {
                "student_id": {"type": "string"},
                "risk_type": {"type": "string"},
                "severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
                "reason": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "NotesRequest": {
            "type": "object",
            "required": ["notes"],
            "properties": {"notes": {"type": "string"}}
        },
        "OverrideSeverityRequest": {
            "type": "object",
            "required": ["severity", "notes"],
            "properties": {
                "severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
                "notes": {"type": "string"}
            }
        },
        "CreateInterventionRequest": {
            "type": "object",
            "required": ["type", "assigned_to"],
            "properties": {
                "type": {"type": "string"},
                "assigned_to": {"type": "string"},
                "due_date": {"type": "string", "format": "date-time"},
                "notes": {"type": "string"}
            }
        },
        "InterventionTransitionRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["in_progress", "completed", "cancelled"]},
                "notes": {"type": "string"}
            }
        },
        "SubmitApprovalRequest": {
            "type": "object",
            "required": ["type", "entity_type", "entity_id"],
            "properties": {
                "type": {"type": "string", "enum": ["write_off", "transfer", "admission_override", "role_change"]},
                "entity_type": {"type": "string"},
                "entity_id": {"type": "string"},
                "priority": {"type": "string", "enum": ["low", "medium", "high"]}
            }
        },
        "ApprovalDecisionRequest": {
            "type": "object",
            "required": ["decision", "notes"],
            "properties": {
                "decision": {"type": "string", "enum": ["approve", "reject", "request_info", "escalate"]},
                "notes": {"type": "string"}
            }
        },
        "CreateMarkingRequest": {
            "type": "object",
            "required": ["target_scope", "scope_reference_id", "message"],
            "properties": {
                "target_scope": {"type": "string", "enum": ["teacher", "class", "grade", "subject"]},
                "scope_reference_id": {"type": "string"},
                "message": {"type": "string"},
                "due_at": {"type": "string", "format": "date-time"}
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
