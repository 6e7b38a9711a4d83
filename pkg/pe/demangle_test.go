package pe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDemangleSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want Symbol
	}{
		{"", Symbol{}},
		{"ExitProcess", Symbol{Name: "ExitProcess"}},
		{"?", Symbol{Name: "?"}},
		{"_Start@8", Symbol{Name: "Start"}},
		{"_main", Symbol{Name: "main"}},
		{"_odd@x1", Symbol{Name: "odd@x1"}},
		{"__imp__Sleep@4", Symbol{Name: "Sleep [import]"}},
		{"?Run@Engine@@QAEHH@Z", Symbol{
			Name:      "Engine::Run",
			Prototype: "public: int __thiscall(int)",
		}},
		{"?Run@Engine@@QEAAHH@Z", Symbol{
			Name:      "Engine::Run",
			Prototype: "public: int __cdecl(int)",
		}},
		{"?Get@Box@@QBEHXZ", Symbol{
			Name:      "Box::Get",
			Prototype: "public: int __thiscall(void) const",
		}},
		{"?Add@Math@@SAHHH@Z", Symbol{
			Name:      "Math::Add",
			Prototype: "public: static int __cdecl(int, int)",
		}},
		{"?Reset@Engine@@UAEXXZ", Symbol{
			Name:      "Engine::Reset",
			Prototype: "public: virtual void __thiscall(void)",
		}},
		{"?func@@YAXPBDH@Z", Symbol{
			Name:      "func",
			Prototype: "void __cdecl(const char*, int)",
		}},
		{"?cmp@@YAHPBD0@Z", Symbol{
			Name:      "cmp",
			Prototype: "int __cdecl(const char*, const char*)",
		}},
		{"?log@@YAHPBDZZ", Symbol{
			Name:      "log",
			Prototype: "int __cdecl(const char*, ...)",
		}},
		{"?set@util@@YGXVName@ns@@_N@Z", Symbol{
			Name:      "util::set",
			Prototype: "void __stdcall(ns::Name, bool)",
		}},
		{"?g_count@@3HA", Symbol{Name: "g_count", Prototype: "int"}},
		{"??1Engine@@UAE@XZ", Symbol{
			Name:      "Engine::~Engine",
			Prototype: "public: virtual __thiscall(void)",
		}},
		{"??0Engine@@QAE@XZ", Symbol{
			Name:      "Engine::Engine",
			Prototype: "public: __thiscall(void)",
		}},
		{"??HVec@@QBE?AV0@ABV0@@Z", Symbol{
			Name:      "Vec::operator+",
			Prototype: "public: Vec __thiscall(const Vec&) const",
		}},
		{"__imp_?Run@Engine@@QAEHH@Z", Symbol{
			Name:      "Engine::Run [import]",
			Prototype: "public: int __thiscall(int)",
		}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, DemangleSymbol(tc.in), "DemangleSymbol(%q)", tc.in)
	}
}

func TestDemangle(t *testing.T) {
	assert.Equal(t, "Engine::Run", Demangle("?Run@Engine@@QAEHH@Z"))
	assert.Equal(t, "GetProcAddress", Demangle("GetProcAddress"))
	assert.Equal(t, "", Demangle(""))
}

func TestDemangleTruncatedInput(t *testing.T) {
	for _, in := range []string{
		"?Run@Engine",
		"?Run@Engine@@",
		"?Run@Engine@@Q",
		"?Run@Engine@@QAEPB",
		"?f@@YAXVNoEnd",
		"??_",
		"??",
		"?x@@YAX0123456789",
	} {
		assert.NotPanics(t, func() { DemangleSymbol(in) }, in)
	}
}
