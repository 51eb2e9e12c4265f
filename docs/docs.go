// Package docs registers the Swagger document of the report API.
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
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/reports": {
            "get": {
                "produces": ["application/json"],
                "tags": ["reports"],
                "summary": "List report runs",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Start a pipeline run in the background. The body is optional and overrides the configured forecast country, horizon and chart settings.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["reports"],
                "summary": "Start a report run",
                "parameters": [
                    {
                        "description": "Run overrides",
                        "name": "request",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/handler.CreateReportRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handler.CreateReportResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/reports/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["reports"],
                "summary": "Get a report run",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Job"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/reports/{id}/errors": {
            "get": {
                "produces": ["application/json"],
                "tags": ["reports"],
                "summary": "Get run errors",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/reports/{id}/progress": {
            "get": {
                "produces": ["application/json"],
                "tags": ["reports"],
                "summary": "Get run progress",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/reports/{id}/logs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["reports"],
                "summary": "Get run logs",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/reports/{id}/files": {
            "get": {
                "produces": ["application/json"],
                "tags": ["files"],
                "summary": "List run output files",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/reports/{id}/totals": {
            "get": {
                "produces": ["application/json"],
                "tags": ["countries"],
                "summary": "Get country totals",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Number of countries, all when omitted", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/reports/{id}/countries/{country}/daily": {
            "get": {
                "produces": ["application/json"],
                "tags": ["countries"],
                "summary": "Get daily country metrics",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Country name", "name": "country", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/reports/{id}/countries/{country}/monthly": {
            "get": {
                "produces": ["application/json"],
                "tags": ["countries"],
                "summary": "Get monthly country metrics",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Country name", "name": "country", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/reports/{id}/countries/{country}/forecast": {
            "get": {
                "produces": ["application/json"],
                "tags": ["countries"],
                "summary": "Get a country forecast",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Country name", "name": "country", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.ForecastResult"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/download/{id}/{file}": {
            "get": {
                "description": "Download a specific output file of a run",
                "produces": ["application/octet-stream"],
                "tags": ["files"],
                "summary": "Download file",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "File name", "name": "file", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "File download", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handler.CreateReportRequest": {
            "type": "object",
            "properties": {
                "country": {"type": "string", "example": "Italy"},
                "forecast": {"type": "boolean"},
                "highlight": {"type": "string", "example": "Italy"},
                "horizon": {"type": "integer", "maximum": 3650, "minimum": 1, "example": 365},
                "top_n": {"type": "integer", "maximum": 100, "minimum": 1, "example": 10}
            }
        },
        "handler.CreateReportResponse": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "job_id": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "handler.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "message": {"type": "string"}
            }
        },
        "model.Job": {
            "type": "object",
            "properties": {
                "createdAt": {"type": "string"},
                "id": {"type": "string"},
                "spec": {"type": "object", "additionalProperties": true},
                "status": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "model.ForecastInterval": {
            "type": "object",
            "properties": {
                "level": {"type": "integer"},
                "lower": {"type": "number"},
                "upper": {"type": "number"}
            }
        },
        "model.ForecastPoint": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "intervals": {"type": "array", "items": {"$ref": "#/definitions/model.ForecastInterval"}},
                "mean": {"type": "number"},
                "step": {"type": "integer"}
            }
        },
        "model.ForecastResult": {
            "type": "object",
            "properties": {
                "aicc": {"type": "number"},
                "ar": {"type": "array", "items": {"type": "number"}},
                "constant": {"type": "number"},
                "country": {"type": "string"},
                "d": {"type": "integer"},
                "first_date": {"type": "string"},
                "include_constant": {"type": "boolean"},
                "last_date": {"type": "string"},
                "ma": {"type": "array", "items": {"type": "number"}},
                "n_obs": {"type": "integer"},
                "p": {"type": "integer"},
                "points": {"type": "array", "items": {"$ref": "#/definitions/model.ForecastPoint"}},
                "q": {"type": "integer"},
                "sigma2": {"type": "number"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "COVID-19 report pipeline API",
	Description:      "Start report runs over the JHU CSSE time series and query their derived tables, forecasts and files.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
