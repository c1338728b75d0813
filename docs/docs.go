// Package docs publica a descrição OpenAPI do nó para o Swagger UI
// servido em /searsia/swagger/index.html.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/searsia/search": {
            "get": {
                "produces": ["application/searsia+json"],
                "tags": ["search"],
                "summary": "Busca federada",
                "parameters": [
                    {"type": "string", "description": "Consulta", "name": "q", "in": "query"},
                    {"type": "string", "description": "Identificador do resource", "name": "r", "in": "query"},
                    {"type": "integer", "description": "Página, a partir de 1", "name": "page", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Envelope com hits e resource"},
                    "404": {"description": "Resource desconhecido"},
                    "503": {"description": "Resource indisponível"}
                }
            }
        },
        "/searsia/update/{id}": {
            "put": {
                "consumes": ["application/searsia+json", "application/json"],
                "produces": ["application/searsia+json"],
                "tags": ["update"],
                "summary": "Cria ou atualiza um resource",
                "parameters": [
                    {"type": "string", "description": "Identificador do resource", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Resource registrado"},
                    "400": {"description": "Descritor inválido"},
                    "401": {"description": "Updates fechados"},
                    "405": {"description": "Consulta de teste sem resultados"},
                    "409": {"description": "Id reservado"}
                }
            },
            "delete": {
                "produces": ["application/searsia+json"],
                "tags": ["update"],
                "summary": "Remove um resource",
                "parameters": [
                    {"type": "string", "description": "Identificador do resource", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Resource removido"},
                    "401": {"description": "Updates fechados"},
                    "404": {"description": "Resource desconhecido"}
                }
            }
        },
        "/searsia/opensearch/{id}": {
            "get": {
                "produces": ["application/opensearchdescription+xml"],
                "tags": ["opensearch"],
                "summary": "Descrição OpenSearch de um resource",
                "parameters": [
                    {"type": "string", "description": "Identificador, com .xml opcional", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Descrição OpenSearch"},
                    "404": {"description": "Resource desconhecido"}
                }
            }
        },
        "/searsia/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Comprehensive health check endpoint",
                "responses": {
                    "200": {"description": "Saudável"},
                    "503": {"description": "Alguma verificação falhou"}
                }
            }
        },
        "/searsia/health/live": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness check endpoint",
                "responses": {"200": {"description": "Processo ativo"}}
            }
        },
        "/searsia/health/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Readiness check endpoint",
                "responses": {
                    "200": {"description": "Pronto"},
                    "503": {"description": "Dependência indisponível"}
                }
            }
        }
    }
}`

// SwaggerInfo guarda os metadados exportados da API
var SwaggerInfo = &swag.Spec{
	Version:          "v1.1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Searsia Node API",
	Description:      "Nó de busca federada: responde do próprio cache, repassa consultas a resources e amostra a federação.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
