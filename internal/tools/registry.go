// Package tools holds the fixed tool catalogue, capability resolution
// and the executor that performs tool calls on behalf of the model.
package tools

import "github.com/modelrelay/modelrelay/gateway/pkg/models"

// Canonical tool names.
const (
	ToolWebSearch    = "web_search"
	ToolScrape       = "scrape_website"
	ToolGeocode      = "geocode_address"
	ToolDirections   = "get_directions"
	ToolSendEmail    = "send_email"
	ToolDNSLookup    = "dns_lookup"
	ToolExecuteCode  = "execute_code"
	ToolAnalyzeImage = "analyze_image"
)

// definitions is the fixed catalogue, in canonical order.
var definitions = []models.ToolDefinition{
	{
		Type: "function",
		Function: models.ToolFunction{
			Name:        ToolWebSearch,
			Description: "Search the web for current information. Returns search results with titles, snippets and links.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The search query",
					},
				},
				"required": []interface{}{"query"},
			},
		},
	},
	{
		Type: "function",
		Function: models.ToolFunction{
			Name:        ToolScrape,
			Description: "Fetch a web page and return its content as markdown.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{
						"type":        "string",
						"description": "The URL of the page to scrape",
					},
				},
				"required": []interface{}{"url"},
			},
		},
	},
	{
		Type: "function",
		Function: models.ToolFunction{
			Name:        ToolGeocode,
			Description: "Convert a street address or place name into geographic coordinates.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"address": map[string]interface{}{
						"type":        "string",
						"description": "The address or place to geocode",
					},
				},
				"required": []interface{}{"address"},
			},
		},
	},
	{
		Type: "function",
		Function: models.ToolFunction{
			Name:        ToolDirections,
			Description: "Get turn-by-turn directions between two locations.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"origin": map[string]interface{}{
						"type":        "string",
						"description": "Starting address or place",
					},
					"destination": map[string]interface{}{
						"type":        "string",
						"description": "Destination address or place",
					},
					"mode": map[string]interface{}{
						"type":        "string",
						"description": "Travel mode: driving, walking, bicycling or transit",
						"enum":        []interface{}{"driving", "walking", "bicycling", "transit"},
					},
				},
				"required": []interface{}{"origin", "destination"},
			},
		},
	},
	{
		Type: "function",
		Function: models.ToolFunction{
			Name:        ToolSendEmail,
			Description: "Send an email on the user's behalf using their configured SMTP account.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"to": map[string]interface{}{
						"type":        "string",
						"description": "Recipient email address",
					},
					"subject": map[string]interface{}{
						"type":        "string",
						"description": "Email subject line",
					},
					"body": map[string]interface{}{
						"type":        "string",
						"description": "Plain-text email body",
					},
				},
				"required": []interface{}{"to", "subject", "body"},
			},
		},
	},
	{
		Type: "function",
		Function: models.ToolFunction{
			Name:        ToolDNSLookup,
			Description: "Look up DNS records for a domain.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"domain": map[string]interface{}{
						"type":        "string",
						"description": "The domain name to query",
					},
					"type": map[string]interface{}{
						"type":        "string",
						"description": "DNS record type (A, AAAA, MX, TXT, NS, CNAME)",
					},
				},
				"required": []interface{}{"domain"},
			},
		},
	},
	{
		Type: "function",
		Function: models.ToolFunction{
			Name:        ToolExecuteCode,
			Description: "Run a short code snippet in an isolated sandbox and return its output.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"language": map[string]interface{}{
						"type":        "string",
						"description": "Language of the snippet (default python)",
					},
					"code": map[string]interface{}{
						"type":        "string",
						"description": "The code to run",
					},
				},
				"required": []interface{}{"code"},
			},
		},
	},
	{
		Type: "function",
		Function: models.ToolFunction{
			Name:        ToolAnalyzeImage,
			Description: "Analyze an image at a URL and describe its contents.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image_url": map[string]interface{}{
						"type":        "string",
						"description": "URL of the image to analyze",
					},
					"prompt": map[string]interface{}{
						"type":        "string",
						"description": "What to look for (default: describe the image)",
					},
				},
				"required": []interface{}{"image_url"},
			},
		},
	},
}

// capabilityTools maps human-facing capability labels to tool names.
// Labels with no tools (plain chat) resolve to nothing.
var capabilityTools = map[string][]string{
	"AI Chat":        {},
	"Deep Research":  {ToolWebSearch, ToolScrape},
	"Web Search":     {ToolWebSearch},
	"Web Scraper":    {ToolScrape},
	"Google Maps":    {ToolGeocode, ToolDirections},
	"Email":          {ToolSendEmail},
	"DNS Tools":      {ToolDNSLookup},
	"Code Runner":    {ToolExecuteCode},
	"Image Analysis": {ToolAnalyzeImage},
}

// Definitions returns the full catalogue in canonical order.
func Definitions() []models.ToolDefinition {
	out := make([]models.ToolDefinition, len(definitions))
	copy(out, definitions)
	return out
}

// Capabilities returns the capability table (label → tool names).
func Capabilities() map[string][]string {
	out := make(map[string][]string, len(capabilityTools))
	for k, v := range capabilityTools {
		names := make([]string, len(v))
		copy(names, v)
		out[k] = names
	}
	return out
}

// Lookup returns the definition of one tool by name.
func Lookup(name string) (models.ToolDefinition, bool) {
	for _, d := range definitions {
		if d.Function.Name == name {
			return d, true
		}
	}
	return models.ToolDefinition{}, false
}

// Resolve maps capability labels to tool definitions, deduplicated,
// first-match insertion order preserved. Unknown labels contribute
// nothing. An empty result means the provider call must omit the tools
// field entirely.
func Resolve(capabilities []string) []models.ToolDefinition {
	var out []models.ToolDefinition
	seen := make(map[string]bool)

	for _, cap := range capabilities {
		for _, name := range capabilityTools[cap] {
			if seen[name] {
				continue
			}
			if def, ok := Lookup(name); ok {
				out = append(out, def)
				seen[name] = true
			}
		}
	}
	return out
}
