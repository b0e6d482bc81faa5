package tools_test

import (
	"reflect"
	"testing"

	"github.com/modelrelay/modelrelay/gateway/internal/tools"
	"github.com/modelrelay/modelrelay/gateway/pkg/models"
)

func names(defs []models.ToolDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Function.Name
	}
	return out
}

func TestDefinitions_CanonicalOrder(t *testing.T) {
	want := []string{
		tools.ToolWebSearch,
		tools.ToolScrape,
		tools.ToolGeocode,
		tools.ToolDirections,
		tools.ToolSendEmail,
		tools.ToolDNSLookup,
		tools.ToolExecuteCode,
		tools.ToolAnalyzeImage,
	}
	got := names(tools.Definitions())
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Definitions() order = %v, want %v", got, want)
	}
}

func TestLookup(t *testing.T) {
	def, ok := tools.Lookup(tools.ToolGeocode)
	if !ok {
		t.Fatalf("Lookup(%q) not found", tools.ToolGeocode)
	}
	if def.Type != "function" {
		t.Errorf("Type = %q, want %q", def.Type, "function")
	}
	if def.Function.Name != tools.ToolGeocode {
		t.Errorf("Name = %q, want %q", def.Function.Name, tools.ToolGeocode)
	}

	if _, ok := tools.Lookup("time_travel"); ok {
		t.Error("Lookup(time_travel) = ok, want not found")
	}
}

func TestResolve_Dedup(t *testing.T) {
	// Deep Research already includes web_search; asking for Web Search
	// again must not duplicate it.
	got := names(tools.Resolve([]string{"Deep Research", "Web Search"}))
	want := []string{tools.ToolWebSearch, tools.ToolScrape}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolve_InsertionOrder(t *testing.T) {
	got := names(tools.Resolve([]string{"Google Maps", "Web Search", "Email"}))
	want := []string{tools.ToolGeocode, tools.ToolDirections, tools.ToolWebSearch, tools.ToolSendEmail}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolve_PlainChatYieldsNothing(t *testing.T) {
	if got := tools.Resolve([]string{"AI Chat"}); len(got) != 0 {
		t.Errorf("Resolve(AI Chat) = %v, want empty", names(got))
	}
	if got := tools.Resolve(nil); len(got) != 0 {
		t.Errorf("Resolve(nil) = %v, want empty", names(got))
	}
}

func TestResolve_UnknownCapabilityIgnored(t *testing.T) {
	got := names(tools.Resolve([]string{"Time Machine", "Email"}))
	want := []string{tools.ToolSendEmail}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestCapabilities_ReturnsCopy(t *testing.T) {
	caps := tools.Capabilities()
	caps["Web Search"] = append(caps["Web Search"], "injected")
	delete(caps, "Email")

	fresh := tools.Capabilities()
	if got, want := fresh["Web Search"], []string{tools.ToolWebSearch}; !reflect.DeepEqual(got, want) {
		t.Errorf("Capabilities()[Web Search] = %v, want %v", got, want)
	}
	if _, ok := fresh["Email"]; !ok {
		t.Error("Capabilities() missing Email after caller mutation")
	}
}
