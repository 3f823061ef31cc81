// Package openapi generates the portal's OpenAPI 3.1 document.
package openapi

import (
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
)

// Generate builds the OpenAPI 3.1 spec for the portal's HTTP surface.
// sessionCookie names the portal session cookie used as the cookie security
// scheme.
func Generate(baseURL, version, sessionCookie string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Chat API Key Portal",
			Description: "Self-serve API key provisioning for the AI chat gateway.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["sessionCookie"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "cookie",
			Name: sessionCookie,
		},
	}
	doc.Components.SecuritySchemes["oauthCookie"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "cookie",
			Name: "appSession",
		},
	}

	doc.Components.Schemas["ErrorResponse"] = objectSchema(map[string]*openapi3.SchemaRef{
		"message":        stringSchema(""),
		"missingConsent": arraySchema(stringSchema("")),
		"consentDetails": consentDetailSchema(),
		"retryAfter":     intSchema(),
	})
	doc.Components.Schemas["APIKey"] = objectSchema(map[string]*openapi3.SchemaRef{
		"_id":        stringSchema(""),
		"keyId":      stringSchema(""),
		"keyPreview": stringSchema(""),
		"name":       stringSchema(""),
		"createdAt":  stringSchema("date-time"),
		"lastUsed":   stringSchema("date-time"),
		"isActive":   boolSchema(),
		"expiresAt":  stringSchema("date-time"),
	})
	doc.Components.Schemas["Account"] = objectSchema(map[string]*openapi3.SchemaRef{
		"_id":           stringSchema(""),
		"name":          stringSchema(""),
		"description":   stringSchema(""),
		"authType":      stringSchema(""),
		"createdAt":     stringSchema(""),
		"verifiedEmail": boolSchema(),
		"apiKeys":       arraySchema(ref("APIKey")),
	})
	doc.Components.Schemas["KeyResponse"] = objectSchema(map[string]*openapi3.SchemaRef{
		"apikey":    stringSchema(""),
		"sessionId": stringSchema(""),
		"message":   stringSchema(""),
	})
	doc.Components.Schemas["ConsentUpdateResponse"] = objectSchema(map[string]*openapi3.SchemaRef{
		"message": stringSchema(""),
		"updated": arraySchema(stringSchema("")),
	})
	doc.Components.Schemas["LogoutResponse"] = objectSchema(map[string]*openapi3.SchemaRef{
		"message":        stringSchema(""),
		"crossTabLogout": boolSchema(),
	})

	doc.Paths = openapi3.NewPaths()

	doc.Paths.Set("/account/me", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "getAccount",
			Summary:     "Get the caller's account and API keys",
			Tags:        []string{"account"},
			Security:    cookieSecurity(),
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: jsonResponse("The caller's account", ref("Account")),
				401: errorResponse("Not authenticated"),
				429: errorResponse("Rate limit exceeded"),
			}),
		},
	})

	doc.Paths.Set("/users/claim-api-key", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "claimAPIKey",
			Summary:     "Claim an API key without an account",
			Tags:        []string{"keys"},
			Parameters:  openapi3.Parameters{captchaHeader()},
			RequestBody: jsonRequest(objectSchema(map[string]*openapi3.SchemaRef{
				"email":                stringSchema(""),
				"name":                 stringSchema(""),
				"description":          stringSchema(""),
				"acceptToS":            boolSchema(),
				"acceptCommunications": boolSchema(),
			})),
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: jsonResponse("The raw key and a portal session", ref("KeyResponse")),
				401: errorResponse("Consent or CAPTCHA not satisfied"),
				500: errorResponse("Enrollment failed"),
			}),
		},
	})

	doc.Paths.Set("/users/generate-key", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "generateKey",
			Summary:     "Generate a key for the authenticated user",
			Tags:        []string{"keys"},
			Security:    cookieSecurity(),
			Parameters:  openapi3.Parameters{captchaHeader()},
			RequestBody: jsonRequest(objectSchema(map[string]*openapi3.SchemaRef{
				"keyName": stringSchema(""),
			})),
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: jsonResponse("The raw key, shown once", ref("KeyResponse")),
				400: errorResponse("Key name missing"),
				401: errorResponse("Not authenticated or CAPTCHA not satisfied"),
				403: errorResponse("Email unverified or consent missing"),
				409: errorResponse("An active key already exists"),
				500: errorResponse("Generation failed"),
			}),
		},
	})

	doc.Paths.Set("/users/regenerate-key", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "regenerateKey",
			Summary:     "Replace an existing key",
			Tags:        []string{"keys"},
			Security:    cookieSecurity(),
			Parameters:  openapi3.Parameters{captchaHeader()},
			RequestBody: jsonRequest(objectSchema(map[string]*openapi3.SchemaRef{
				"keyId":   stringSchema(""),
				"keyName": stringSchema(""),
			})),
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: jsonResponse("The replacement key, shown once", ref("KeyResponse")),
				400: errorResponse("Key id or name missing"),
				401: errorResponse("Not authenticated or CAPTCHA not satisfied"),
				403: errorResponse("Email unverified or consent missing"),
				500: errorResponse("Deactivation or generation failed"),
			}),
		},
	})

	doc.Paths.Set("/users/update-consent", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "updateConsent",
			Summary:     "Update consent flags",
			Tags:        []string{"account"},
			Security:    cookieSecurity(),
			RequestBody: jsonRequest(objectSchema(map[string]*openapi3.SchemaRef{
				"acceptedToS":            boolSchema(),
				"acceptedCommunications": boolSchema(),
			})),
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: jsonResponse("Which consents changed", ref("ConsentUpdateResponse")),
				400: errorResponse("No consent field present"),
				401: errorResponse("Not authenticated"),
				500: errorResponse("Update failed"),
			}),
		},
	})

	doc.Paths.Set("/auth/logout", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "logout",
			Summary:     "End the portal session",
			Tags:        []string{"account"},
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: jsonResponse("Session cleared", ref("LogoutResponse")),
			}),
		},
	})

	doc.Paths.Set("/models", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listModels",
			Summary:     "List the gateway's available models",
			Tags:        []string{"models"},
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: jsonResponse("The gateway model list", objectSchema(nil)),
				502: errorResponse("Gateway unreachable"),
			}),
		},
	})

	return doc
}

// ---------------------------------------------------------------------------
// schema helpers
// ---------------------------------------------------------------------------

func objectSchema(props map[string]*openapi3.SchemaRef) *openapi3.SchemaRef {
	s := &openapi3.Schema{Type: &openapi3.Types{"object"}}
	if props != nil {
		s.Properties = openapi3.Schemas{}
		for name, prop := range props {
			s.Properties[name] = prop
		}
	}
	return &openapi3.SchemaRef{Value: s}
}

func stringSchema(format string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: format}}
}

func boolSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
}

func intSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}
}

func arraySchema(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: items}}
}

func ref(name string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Ref: "#/components/schemas/" + name}
}

func consentDetailSchema() *openapi3.SchemaRef {
	return objectSchema(map[string]*openapi3.SchemaRef{
		"tosAccepted":              boolSchema(),
		"tosAcceptedAt":            stringSchema("date-time"),
		"communicationsAccepted":   boolSchema(),
		"communicationsAcceptedAt": stringSchema("date-time"),
	})
}

func cookieSecurity() *openapi3.SecurityRequirements {
	return &openapi3.SecurityRequirements{
		{"oauthCookie": {}},
		{"sessionCookie": {}},
	}
}

func captchaHeader() *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:     "X-Recaptcha-Token",
			In:       "header",
			Required: true,
			Schema:   stringSchema(""),
		},
	}
}

func jsonRequest(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(schema),
	}
}

func jsonResponse(description string, schema *openapi3.SchemaRef) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(description).
			WithJSONSchemaRef(schema),
	}
}

func errorResponse(description string) *openapi3.ResponseRef {
	return jsonResponse(description, ref("ErrorResponse"))
}

func responses(byStatus map[int]*openapi3.ResponseRef) *openapi3.Responses {
	out := openapi3.NewResponses()
	for status, resp := range byStatus {
		out.Set(strconv.Itoa(status), resp)
	}
	return out
}
