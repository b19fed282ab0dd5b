package camera

import (
	"fmt"
	"testing"
)

type neverMatch struct{}

func (neverMatch) Match(Enumerator) bool { return false }

func TestRegisterPipelineHandler(t *testing.T) {
	f := PipelineHandlerFactory{
		Name:   "registry-test",
		Create: func(*Manager) PipelineHandler { return neverMatch{} },
	}
	RegisterPipelineHandler(f)

	found := false
	for _, got := range PipelineHandlerFactories() {
		if got.Name == f.Name {
			found = true
		}
	}
	if !found {
		t.Fatal("registered factory not listed")
	}

	defer func() {
		if recover() == nil {
			t.Error("registering a name twice did not panic")
		}
	}()
	RegisterPipelineHandler(f)
}

func TestRegisterPipelineHandlerWithoutCreate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("registering a factory without Create did not panic")
		}
	}()
	RegisterPipelineHandler(PipelineHandlerFactory{Name: "no-create"})
}

func TestOrderFactories(t *testing.T) {
	all := []PipelineHandlerFactory{
		testFactory("a", "", nil),
		testFactory("b", "", nil),
		testFactory("c", "", nil),
	}

	tests := []struct {
		name        string
		order       []string
		wantNames   string
		wantUnknown string
	}{
		{"empty keeps all", nil, "[a b c]", "[]"},
		{"reorders", []string{"c", "a"}, "[c a]", "[]"},
		{"reports unknown", []string{"b", "x"}, "[b]", "[x]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, unknown := orderFactories(all, tt.order)
			names := make([]string, len(selected))
			for i, f := range selected {
				names[i] = f.Name
			}
			if got := fmt.Sprint(names); got != tt.wantNames {
				t.Errorf("selected = %s, want %s", got, tt.wantNames)
			}
			if got := fmt.Sprint(append([]string{}, unknown...)); got != tt.wantUnknown {
				t.Errorf("unknown = %s, want %s", got, tt.wantUnknown)
			}
		})
	}
}
