// Package openapi generates the OpenAPI 3.1 document for Foyer's HTTP API.
// Unlike a schema-introspecting gateway, the route set here is fixed, so the
// document is assembled once from hand-described operations.
package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Generate builds the OpenAPI 3.1 document for the full API surface.
func Generate() *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Foyer API",
			Description: "Meeting control plane: join tokens, admin credentials, and webhook subscriptions over an external media server.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: "/"},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Key",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:   "http",
			Scheme: "bearer",
		},
	}

	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
		{"bearerAuth": {}},
	}

	registerComponentSchemas(doc)

	doc.Paths = openapi3.NewPaths()

	doc.Paths.Set("/healthz", &openapi3.PathItem{Get: healthzOperation()})
	doc.Paths.Set("/readyz", &openapi3.PathItem{Get: readyzOperation()})

	doc.Paths.Set("/api/token", &openapi3.PathItem{Post: issueTokenOperation()})
	doc.Paths.Set("/api/end-meeting", &openapi3.PathItem{Post: endMeetingOperation()})

	doc.Paths.Set("/api/admin/login", &openapi3.PathItem{Post: loginOperation()})
	doc.Paths.Set("/api/admin/logout", &openapi3.PathItem{Post: logoutOperation()})

	doc.Paths.Set("/api/admin/stats", &openapi3.PathItem{Get: statsOperation()})
	doc.Paths.Set("/api/admin/rooms", &openapi3.PathItem{Get: listRoomsOperation()})
	doc.Paths.Set("/api/admin/rooms/{roomName}", &openapi3.PathItem{
		Put: updateRoomOperation(),
	})

	doc.Paths.Set("/api/admin/api-keys", &openapi3.PathItem{
		Get:  listAPIKeysOperation(),
		Post: createAPIKeyOperation(),
	})
	doc.Paths.Set("/api/admin/api-keys/{keyID}", &openapi3.PathItem{
		Delete: revokeAPIKeyOperation(),
	})

	doc.Paths.Set("/api/admin/webhooks", &openapi3.PathItem{
		Get:  listWebhooksOperation(),
		Post: createWebhookOperation(),
	})
	doc.Paths.Set("/api/admin/webhooks/{webhookID}", &openapi3.PathItem{
		Get:    getWebhookOperation(),
		Put:    updateWebhookOperation(),
		Delete: deleteWebhookOperation(),
	})
	doc.Paths.Set("/api/admin/webhooks/{webhookID}/test", &openapi3.PathItem{
		Post: testWebhookOperation(),
	})

	return doc
}

// ─── Component Schemas ──────────────────────────────────────────────────────

func registerComponentSchemas(doc *openapi3.T) {
	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": {
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    intSchema("int32"),
							"message": strSchema(""),
							"context": {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}

	doc.Components.Schemas["SuccessResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"success": boolSchema(),
				"message": strSchema(""),
			},
		},
	}

	doc.Components.Schemas["APIKey"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":           strSchema(""),
				"name":         strSchema(""),
				"key_mask":     strSchema("Masked key for identification; the full key is shown only at creation."),
				"permissions":  strArraySchema(),
				"created_at":   timeSchema(),
				"last_used_at": timeSchema(),
			},
		},
	}

	doc.Components.Schemas["Webhook"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":                strSchema(""),
				"name":              strSchema(""),
				"url":               strSchema("Absolute URL receiving signed POST deliveries."),
				"events":            strArraySchema(),
				"enabled":           boolSchema(),
				"secret_mask":       strSchema("Masked signing secret; the full secret is shown only at creation."),
				"created_at":        timeSchema(),
				"last_triggered_at": timeSchema(),
				"failure_count":     intSchema("int32"),
			},
		},
	}

	doc.Components.Schemas["DeliveryResult"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"success":     boolSchema(),
				"status_code": intSchema("int32"),
				"latency_ms":  {Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "double"}},
				"error":       strSchema(""),
			},
		},
	}

	doc.Components.Schemas["RoomInfo"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"name":             strSchema("Technical room code."),
				"display_name":     strSchema("Admin-set label, when one exists."),
				"num_participants": intSchema("int32"),
				"created_at":       intSchema("int64"),
			},
		},
	}

	doc.Components.Schemas["RoomMetadata"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"room_name":    strSchema(""),
				"display_name": strSchema(""),
				"created_at":   timeSchema(),
				"updated_at":   timeSchema(),
			},
		},
	}

	doc.Components.Schemas["Stats"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"rooms":        intSchema("int32"),
				"participants": intSchema("int32"),
				"api_keys":     intSchema("int32"),
				"webhooks":     intSchema("int32"),
			},
		},
	}
}

// ─── Health Operations ──────────────────────────────────────────────────────

func healthzOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"health"},
		Summary:     "Liveness probe",
		OperationID: "healthz",
		Security:    noSecurity(),
		Responses: newResponses("200", "Process is running", &openapi3.SchemaRef{
			Value: &openapi3.Schema{Type: &openapi3.Types{"object"}},
		}),
	}
}

func readyzOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"health"},
		Summary:     "Readiness probe",
		Description: "Reports 503 when the config store is unreachable. The media server is checked but does not gate readiness.",
		OperationID: "readyz",
		Security:    noSecurity(),
		Responses: newResponses("200", "Ready to serve", &openapi3.SchemaRef{
			Value: &openapi3.Schema{Type: &openapi3.Types{"object"}},
		}),
	}
}

// ─── Meeting Operations ─────────────────────────────────────────────────────

func issueTokenOperation() *openapi3.Operation {
	reqSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"room_name":        strSchema("Room to join; sanitized to letters, digits, '-' and '_', at most 50 characters."),
				"participant_name": strSchema(""),
				"device_id":        strSchema("Stable device identifier used to derive the participant identity."),
			},
			Required: []string{"room_name", "participant_name"},
		},
	}

	return &openapi3.Operation{
		Tags:        []string{"meetings"},
		Summary:     "Issue a join token",
		Description: "Grants a signed join token. The first participant of a new or empty room is elected host.",
		OperationID: "issue_token",
		Security:    noSecurity(),
		RequestBody: &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(reqSchema),
			},
		},
		Responses: newResponses("200", "Join grant", &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type: &openapi3.Types{"object"},
				Properties: openapi3.Schemas{
					"token":     strSchema("Signed media server access token."),
					"identity":  strSchema(""),
					"room_name": strSchema(""),
					"is_host":   boolSchema(),
				},
			},
		}),
	}
}

func endMeetingOperation() *openapi3.Operation {
	reqSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"room_name": strSchema(""),
				"identity":  strSchema("Identity of the participant ending the meeting."),
			},
			Required: []string{"room_name"},
		},
	}

	return &openapi3.Operation{
		Tags:        []string{"meetings"},
		Summary:     "End a meeting",
		Description: "Tears the room down for all participants on the media server.",
		OperationID: "end_meeting",
		Security:    noSecurity(),
		RequestBody: &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(reqSchema),
			},
		},
		Responses: newResponses("200", "Meeting ended",
			openapi3.NewSchemaRef("#/components/schemas/SuccessResponse", nil)),
	}
}

// ─── Session Operations ─────────────────────────────────────────────────────

func loginOperation() *openapi3.Operation {
	reqSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"password": strSchema(""),
			},
			Required: []string{"password"},
		},
	}

	return &openapi3.Operation{
		Tags:        []string{"admin"},
		Summary:     "Log in",
		Description: "Verifies the admin password and returns a 24h bearer token. The first successful login fixes the password.",
		OperationID: "login",
		Security:    noSecurity(),
		RequestBody: &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(reqSchema),
			},
		},
		Responses: newResponses("200", "Session token", &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type: &openapi3.Types{"object"},
				Properties: openapi3.Schemas{
					"token":      strSchema("Bearer token; shown only here."),
					"token_type": strSchema(""),
					"expires_at": timeSchema(),
				},
			},
		}),
	}
}

func logoutOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"admin"},
		Summary:     "Log out",
		Description: "Revokes the presented session token. Revoking a token that is already gone is not an error.",
		OperationID: "logout",
		Responses: newResponses("200", "Logged out",
			openapi3.NewSchemaRef("#/components/schemas/SuccessResponse", nil)),
	}
}

// ─── Dashboard Operations ───────────────────────────────────────────────────

func statsOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"admin"},
		Summary:     "Dashboard counters",
		Description: "Room and participant figures read as zero when the media server is unreachable.",
		OperationID: "stats",
		Responses: newResponses("200", "Counter set",
			openapi3.NewSchemaRef("#/components/schemas/Stats", nil)),
	}
}

func listRoomsOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"admin"},
		Summary:     "List live rooms",
		Description: "Live rooms from the media server, decorated with stored display names. An unreachable media server yields an empty list.",
		OperationID: "list_rooms",
		Responses: newResponses("200", "Live rooms",
			listResponseSchema("#/components/schemas/RoomInfo")),
	}
}

func updateRoomOperation() *openapi3.Operation {
	reqSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"display_name": strSchema(""),
			},
			Required: []string{"display_name"},
		},
	}

	return &openapi3.Operation{
		Tags:        []string{"admin"},
		Summary:     "Set a room's display name",
		OperationID: "update_room",
		Parameters: openapi3.Parameters{
			&openapi3.ParameterRef{
				Value: openapi3.NewPathParameter("roomName").
					WithDescription("Technical room code.").
					WithSchema(openapi3.NewStringSchema()),
			},
		},
		RequestBody: &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(reqSchema),
			},
		},
		Responses: newResponses("200", "Stored metadata",
			openapi3.NewSchemaRef("#/components/schemas/RoomMetadata", nil)),
	}
}

// ─── API Key Operations ─────────────────────────────────────────────────────

func listAPIKeysOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"api-keys"},
		Summary:     "List API keys",
		OperationID: "list_api_keys",
		Responses: newResponses("200", "API keys with masked key material",
			listResponseSchema("#/components/schemas/APIKey")),
	}
}

func createAPIKeyOperation() *openapi3.Operation {
	reqSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"name":        strSchema("Label, at most 100 characters."),
				"permissions": strArraySchema(),
			},
			Required: []string{"name"},
		},
	}

	respSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":          strSchema(""),
				"api_key":     strSchema("Plaintext key. Shown once; store it now."),
				"key_mask":    strSchema(""),
				"name":        strSchema(""),
				"permissions": strArraySchema(),
				"created_at":  timeSchema(),
			},
		},
	}

	return &openapi3.Operation{
		Tags:        []string{"api-keys"},
		Summary:     "Create an API key",
		Description: "Unknown permissions are dropped silently; a request with none left defaults to read-only.",
		OperationID: "create_api_key",
		RequestBody: &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(reqSchema),
			},
		},
		Responses: newResponses("201", "Created key including its plaintext", respSchema),
	}
}

func revokeAPIKeyOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"api-keys"},
		Summary:     "Revoke an API key",
		OperationID: "revoke_api_key",
		Parameters: openapi3.Parameters{
			&openapi3.ParameterRef{
				Value: openapi3.NewPathParameter("keyID").
					WithSchema(openapi3.NewStringSchema()),
			},
		},
		Responses: newResponses("200", "Key revoked",
			openapi3.NewSchemaRef("#/components/schemas/SuccessResponse", nil)),
	}
}

// ─── Webhook Operations ─────────────────────────────────────────────────────

func listWebhooksOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"webhooks"},
		Summary:     "List webhooks",
		OperationID: "list_webhooks",
		Responses: newResponses("200", "Webhooks with masked secrets",
			listResponseSchema("#/components/schemas/Webhook")),
	}
}

func createWebhookOperation() *openapi3.Operation {
	reqSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"name":    strSchema("Label, at most 100 characters."),
				"url":     strSchema("Absolute URL receiving signed POST deliveries."),
				"events":  strArraySchema(),
				"enabled": boolSchema(),
			},
			Required: []string{"name", "url", "events"},
		},
	}

	respSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":         strSchema(""),
				"name":       strSchema(""),
				"url":        strSchema(""),
				"events":     strArraySchema(),
				"enabled":    boolSchema(),
				"secret":     strSchema("Plaintext signing secret. Shown once; store it now."),
				"created_at": timeSchema(),
			},
		},
	}

	return &openapi3.Operation{
		Tags:        []string{"webhooks"},
		Summary:     "Create a webhook",
		Description: "Unknown event types are filtered out; at least one valid event must remain. enabled defaults to true.",
		OperationID: "create_webhook",
		RequestBody: &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(reqSchema),
			},
		},
		Responses: newResponses("201", "Created webhook including its signing secret", respSchema),
	}
}

func getWebhookOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"webhooks"},
		Summary:     "Get a webhook",
		OperationID: "get_webhook",
		Parameters:  webhookIDParameter(),
		Responses: newResponses("200", "Webhook with masked secret",
			openapi3.NewSchemaRef("#/components/schemas/Webhook", nil)),
	}
}

func updateWebhookOperation() *openapi3.Operation {
	reqSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"name":    strSchema(""),
				"url":     strSchema(""),
				"events":  strArraySchema(),
				"enabled": boolSchema(),
			},
		},
	}

	return &openapi3.Operation{
		Tags:        []string{"webhooks"},
		Summary:     "Update a webhook",
		Description: "Partial update: omitted fields keep their current values. Supplied fields are validated like at creation.",
		OperationID: "update_webhook",
		Parameters:  webhookIDParameter(),
		RequestBody: &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(reqSchema),
			},
		},
		Responses: newResponses("200", "Updated webhook",
			openapi3.NewSchemaRef("#/components/schemas/Webhook", nil)),
	}
}

func deleteWebhookOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"webhooks"},
		Summary:     "Delete a webhook",
		OperationID: "delete_webhook",
		Parameters:  webhookIDParameter(),
		Responses: newResponses("200", "Webhook deleted",
			openapi3.NewSchemaRef("#/components/schemas/SuccessResponse", nil)),
	}
}

func testWebhookOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"webhooks"},
		Summary:     "Send a test delivery",
		Description: "Signs and POSTs a synthetic payload exactly like a real dispatch and reports the outcome synchronously.",
		OperationID: "test_webhook",
		Parameters:  webhookIDParameter(),
		Responses: newResponses("200", "Delivery outcome",
			openapi3.NewSchemaRef("#/components/schemas/DeliveryResult", nil)),
	}
}

func webhookIDParameter() openapi3.Parameters {
	return openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewPathParameter("webhookID").
				WithSchema(openapi3.NewStringSchema()),
		},
	}
}

// ─── Response Helpers ───────────────────────────────────────────────────────

// newResponses builds a Responses map with a success response and standard
// error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)

	badReqDesc := "Bad request"
	responses.Set("400", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &badReqDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	unauthDesc := "Unauthorized"
	responses.Set("401", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &unauthDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	notFoundDesc := "Not found"
	responses.Set("404", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &notFoundDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	serverErrDesc := "Internal server error"
	responses.Set("500", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &serverErrDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	return responses
}

// listResponseSchema wraps an item reference in the standard list envelope.
func listResponseSchema(itemRef string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": {
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: openapi3.NewSchemaRef(itemRef, nil),
					},
				},
				"meta": {
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"count": intSchema("int32"),
						},
					},
				},
			},
		},
	}
}

// noSecurity marks an operation as public, overriding the document default.
func noSecurity() *openapi3.SecurityRequirements {
	reqs := openapi3.SecurityRequirements{}
	return &reqs
}

// ─── Schema Shorthands ──────────────────────────────────────────────────────

func strSchema(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:        &openapi3.Types{"string"},
			Description: description,
		},
	}
}

func timeSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:   &openapi3.Types{"string"},
			Format: "date-time",
		},
	}
}

func intSchema(format string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:   &openapi3.Types{"integer"},
			Format: format,
		},
	}
}

func boolSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"boolean"},
		},
	}
}

func strArraySchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"array"},
			Items: &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
			},
		},
	}
}
