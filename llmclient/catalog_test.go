package llmclient

import "testing"

func TestGetModelInfo(t *testing.T) {
	info := GetModelInfo("claude-opus-4-6")
	if info == nil {
		t.Fatal("expected catalog entry")
	}
	if info.Provider != "anthropic" {
		t.Errorf("expected provider anthropic, got %s", info.Provider)
	}
	if !info.SupportsTools {
		t.Error("expected tool support")
	}
}

func TestGetModelInfoAlias(t *testing.T) {
	info := GetModelInfo("sonnet")
	if info == nil {
		t.Fatal("expected catalog entry for alias")
	}
	if info.ID != "claude-sonnet-4-5" {
		t.Errorf("expected canonical ID, got %s", info.ID)
	}
}

func TestGetModelInfoCaseInsensitive(t *testing.T) {
	if GetModelInfo("GPT-5.2") == nil {
		t.Error("expected case-insensitive lookup")
	}
}

func TestGetModelInfoUnknown(t *testing.T) {
	if GetModelInfo("no-such-model") != nil {
		t.Error("expected nil for unknown model")
	}
	if GetModelInfo("") != nil {
		t.Error("expected nil for empty model")
	}
}

func TestResolveModel(t *testing.T) {
	if got := ResolveModel("haiku"); got != "claude-3-5-haiku-latest" {
		t.Errorf("expected alias resolution, got %s", got)
	}
	// Unknown identifiers pass through so new models need no catalog change.
	if got := ResolveModel("future-model-9"); got != "future-model-9" {
		t.Errorf("expected passthrough, got %s", got)
	}
}

func TestListModels(t *testing.T) {
	all := ListModels("")
	if len(all) != len(Models) {
		t.Errorf("expected %d models, got %d", len(Models), len(all))
	}

	anthropic := ListModels("anthropic")
	for _, m := range anthropic {
		if m.Provider != "anthropic" {
			t.Errorf("unexpected provider %s in filtered list", m.Provider)
		}
	}
	if len(anthropic) == 0 {
		t.Error("expected anthropic models")
	}
}
