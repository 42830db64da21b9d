// Package docs holds the OpenAPI description served under /swagger.
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
		"/projects/{project_id}": {
			"put": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Directory"
				],
				"summary": "Register or update a project membership projection",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "project_id",
						"in": "path",
						"required": true
					}
				]
			},
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Directory"
				],
				"summary": "Get a project",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "project_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/accounts/{user_id}": {
			"put": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Directory"
				],
				"summary": "Register or update an account",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "user_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/projects/{project_id}/milestones": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Milestones"
				],
				"summary": "Create a milestone",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "project_id",
						"in": "path",
						"required": true
					}
				]
			},
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Milestones"
				],
				"summary": "List milestones of a project",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "project_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/milestones/{milestone_id}": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Milestones"
				],
				"summary": "Get a milestone",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "milestone_id",
						"in": "path",
						"required": true
					}
				]
			},
			"patch": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Milestones"
				],
				"summary": "Update a milestone",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "milestone_id",
						"in": "path",
						"required": true
					}
				]
			},
			"delete": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Milestones"
				],
				"summary": "Delete a pending milestone",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "milestone_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/milestones/{milestone_id}/start": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Milestones"
				],
				"summary": "Start a milestone",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "milestone_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/milestones/{milestone_id}/escrow": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Escrow"
				],
				"summary": "Create the escrow payment for a milestone",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "milestone_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/milestones/{milestone_id}/release": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Escrow"
				],
				"summary": "Release the escrowed payment",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "milestone_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/payments/{payment_id}/confirm": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Escrow"
				],
				"summary": "Confirm funding of a payment",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "payment_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/payments/{payment_id}": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Escrow"
				],
				"summary": "Get a payment",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "payment_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/payments": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Escrow"
				],
				"summary": "List payments visible to the caller",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				}
			}
		},
		"/wallet": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Escrow"
				],
				"summary": "Get the caller's wallet balances",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				}
			}
		},
		"/milestones/{milestone_id}/submissions": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Submissions"
				],
				"summary": "Submit work for a milestone",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "milestone_id",
						"in": "path",
						"required": true
					}
				]
			},
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Submissions"
				],
				"summary": "List submissions of a milestone",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "milestone_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/submissions/{submission_id}": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Submissions"
				],
				"summary": "Get a submission",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "submission_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/milestones/{milestone_id}/submissions/{submission_id}/review": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Submissions"
				],
				"summary": "Approve or reject a submission",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "milestone_id",
						"in": "path",
						"required": true
					},
					{
						"type": "string",
						"name": "submission_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/attachments": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Submissions"
				],
				"summary": "Upload an attachment",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				}
			}
		},
		"/disputes": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Disputes"
				],
				"summary": "Open a dispute",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				}
			},
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Disputes"
				],
				"summary": "List disputes",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				}
			}
		},
		"/disputes/{dispute_id}": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Disputes"
				],
				"summary": "Get a dispute",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "dispute_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/disputes/{dispute_id}/messages": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Disputes"
				],
				"summary": "Append a message to a dispute",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "dispute_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/disputes/{dispute_id}/review": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Disputes"
				],
				"summary": "Start admin review of a dispute",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "dispute_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/disputes/{dispute_id}/resolve": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Disputes"
				],
				"summary": "Resolve a dispute",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "dispute_id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/disputes/{dispute_id}/close": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"Disputes"
				],
				"summary": "Close a dispute without a ruling",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Bad Request"
					},
					"401": {
						"description": "Unauthorized"
					},
					"403": {
						"description": "Forbidden"
					},
					"404": {
						"description": "Not Found"
					},
					"409": {
						"description": "Conflict"
					},
					"502": {
						"description": "Bad Gateway"
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "dispute_id",
						"in": "path",
						"required": true
					}
				]
			}
		}
	},
	"securityDefinitions": {
		"BearerAuth": {
			"type": "apiKey",
			"name": "Authorization",
			"in": "header"
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:		  "1.0",
	Host:			 "",
	BasePath:		 "/v1",
	Schemes:		  []string{},
	Title:			"Milestone escrow API",
	Description:	  "Milestone lifecycle, escrowed payments, verified submissions and disputes.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:		"{{",
	RightDelim:	   "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
