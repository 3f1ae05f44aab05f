// Package docs holds the swagger document served at /docs. Regenerate with swag init -g cmd/worker/main.go.
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
        "/": {"get": {"tags": ["health"], "summary": "Worker information", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WorkerInfoResponse"}}}}},
        "/health": {"get": {"tags": ["health"], "summary": "Health check", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}, "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}}}},
        "/cameras": {
            "get": {"tags": ["cameras"], "summary": "List cameras", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Camera"}}}}},
            "post": {"tags": ["cameras"], "summary": "Register a camera", "consumes": ["application/json"], "produces": ["application/json"], "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handlers.CameraRequest"}}], "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/models.Camera"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}
        },
        "/cameras/{id}": {
            "get": {"tags": ["cameras"], "summary": "Get a camera", "parameters": [{"$ref": "#/parameters/cameraID"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Camera"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}},
            "put": {"tags": ["cameras"], "summary": "Update a camera", "parameters": [{"$ref": "#/parameters/cameraID"}, {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handlers.CameraRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Camera"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}},
            "delete": {"tags": ["cameras"], "summary": "Delete a camera", "parameters": [{"$ref": "#/parameters/cameraID"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SuccessResponse"}}}}
        },
        "/cameras/{id}/activate": {"post": {"tags": ["cameras"], "summary": "Activate a camera", "parameters": [{"$ref": "#/parameters/cameraID"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.CameraStatusResponse"}}, "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/cameras/{id}/deactivate": {"post": {"tags": ["cameras"], "summary": "Deactivate a camera", "parameters": [{"$ref": "#/parameters/cameraID"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.CameraStatusResponse"}}}}},
        "/cameras/{id}/status": {"get": {"tags": ["cameras"], "summary": "Camera session status", "parameters": [{"$ref": "#/parameters/cameraID"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.CameraStatusResponse"}}}}},
        "/cameras/{id}/reachable": {"get": {"tags": ["cameras"], "summary": "Probe camera reachability", "parameters": [{"$ref": "#/parameters/cameraID"}], "responses": {"200": {"description": "OK"}}}},
        "/cameras/{id}/run-once": {"post": {"tags": ["detection"], "summary": "Capture and analyze one frame", "parameters": [{"$ref": "#/parameters/cameraID"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.DetectionResponse"}}, "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/cameras/{id}/process": {"post": {"tags": ["detection"], "summary": "Analyze an uploaded image", "consumes": ["multipart/form-data"], "parameters": [{"$ref": "#/parameters/cameraID"}, {"in": "formData", "name": "image", "type": "file", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.DetectionResponse"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/cameras/{id}/frame": {"get": {"tags": ["preview"], "summary": "Latest annotated frame", "produces": ["image/jpeg"], "parameters": [{"$ref": "#/parameters/cameraID"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/cameras/{id}/stream": {"get": {"tags": ["preview"], "summary": "MJPEG preview stream", "produces": ["multipart/x-mixed-replace"], "parameters": [{"$ref": "#/parameters/cameraID"}], "responses": {"200": {"description": "OK"}}}},
        "/cameras/{id}/schedule": {
            "get": {"tags": ["schedules"], "summary": "Schedule status of a camera", "parameters": [{"$ref": "#/parameters/cameraID"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ScheduleStatus"}}}},
            "put": {"tags": ["schedules"], "summary": "Set the capture schedule of a camera", "parameters": [{"$ref": "#/parameters/cameraID"}, {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handlers.ScheduleRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ScheduleStatus"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}},
            "delete": {"tags": ["schedules"], "summary": "Remove the capture schedule of a camera", "parameters": [{"$ref": "#/parameters/cameraID"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SuccessResponse"}}}}
        },
        "/schedules": {"get": {"tags": ["schedules"], "summary": "All live schedules", "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.ScheduleStatus"}}}}}},
        "/history": {
            "get": {"tags": ["history"], "summary": "Detection history", "parameters": [{"in": "query", "name": "camera_id", "type": "integer"}, {"in": "query", "name": "limit", "type": "integer", "default": 10}, {"in": "query", "name": "offset", "type": "integer", "default": 0}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HistoryResponse"}}}},
            "delete": {"tags": ["history"], "summary": "Clear detection history", "parameters": [{"in": "query", "name": "camera_id", "type": "integer"}, {"in": "query", "name": "confirm", "type": "boolean", "required": true}, {"in": "query", "name": "delete_files", "type": "boolean"}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}
        },
        "/artifacts/{key}": {"get": {"tags": ["history"], "summary": "Fetch a stored artifact", "parameters": [{"in": "path", "name": "key", "type": "string", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/ws/results": {"get": {"tags": ["stream"], "summary": "Live detection results", "parameters": [{"in": "query", "name": "camera_id", "type": "integer"}], "responses": {"101": {"description": "Switching Protocols"}}}},
        "/system/stats": {"get": {"tags": ["system"], "summary": "Get system stats", "responses": {"200": {"description": "OK"}}}},
        "/system/sessions": {"get": {"tags": ["system"], "summary": "List capture sessions", "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/handlers.SessionSummary"}}}}}}
    },
    "parameters": {
        "cameraID": {"in": "path", "name": "id", "type": "integer", "required": true, "description": "Camera ID"}
    },
    "definitions": {
        "handlers.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "request_id": {"type": "string"}}},
        "handlers.SuccessResponse": {"type": "object", "properties": {"success": {"type": "boolean"}, "message": {"type": "string"}}},
        "handlers.HealthResponse": {"type": "object", "properties": {"status": {"type": "string"}, "worker_id": {"type": "string"}, "components": {"type": "object", "additionalProperties": {"type": "string"}}}},
        "handlers.WorkerInfoResponse": {"type": "object", "properties": {"worker_id": {"type": "string"}, "status": {"type": "string"}, "version": {"type": "string"}, "environment": {"type": "string"}, "start_time": {"type": "string"}, "capabilities": {"type": "array", "items": {"type": "string"}}}},
        "handlers.CameraRequest": {"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}, "location": {"type": "string"}, "transport": {"type": "string"}, "address": {"type": "string"}, "port": {"type": "integer"}, "stream_url": {"type": "string"}, "device_index": {"type": "integer"}, "sampling_interval_ms": {"type": "integer"}}},
        "handlers.DetectionResponse": {"type": "object", "properties": {"success": {"type": "boolean"}, "result": {"type": "object"}, "paths": {"$ref": "#/definitions/models.ArtifactPaths"}, "warning": {"type": "string"}}},
        "handlers.ScheduleRequest": {"type": "object", "required": ["kind"], "properties": {"kind": {"type": "string"}, "interval_minutes": {"type": "integer"}, "hour": {"type": "string"}, "minute": {"type": "string"}}},
        "handlers.HistoryResponse": {"type": "object", "properties": {"records": {"type": "array", "items": {"type": "object"}}, "total": {"type": "integer"}, "limit": {"type": "integer"}, "offset": {"type": "integer"}}},
        "handlers.SessionSummary": {"type": "object", "properties": {"camera_id": {"type": "integer"}, "state": {"type": "string"}, "connection": {"type": "string"}, "frames_captured": {"type": "integer"}, "read_errors": {"type": "integer"}, "reconnects": {"type": "integer"}, "last_frame_time": {"type": "string"}}},
        "models.Camera": {"type": "object", "properties": {"id": {"type": "integer"}, "name": {"type": "string"}, "location": {"type": "string"}, "transport": {"type": "string"}, "address": {"type": "string"}, "port": {"type": "integer"}, "stream_url": {"type": "string"}, "device_index": {"type": "integer"}, "active": {"type": "boolean"}, "connection_state": {"type": "string"}}},
        "models.CameraStatusResponse": {"type": "object", "properties": {"camera_id": {"type": "integer"}, "session_state": {"type": "string"}, "connection_state": {"type": "string"}, "frames_captured": {"type": "integer"}, "read_errors": {"type": "integer"}, "reconnects": {"type": "integer"}, "sampling": {"type": "boolean"}, "cycles_run": {"type": "integer"}, "ticks_skipped": {"type": "integer"}}},
        "models.ArtifactPaths": {"type": "object", "properties": {"image_path": {"type": "string"}, "processed_image_path": {"type": "string"}, "result_path": {"type": "string"}}},
        "models.ScheduleStatus": {"type": "object", "properties": {"camera_id": {"type": "integer"}, "active": {"type": "boolean"}, "next_fire": {"type": "string"}, "last_fire": {"type": "string"}, "fire_count": {"type": "integer"}, "trigger": {"type": "object"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:5000",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Emotion Worker API",
	Description:      "Samples camera frames, runs facial emotion analysis and persists the results.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
