package pe

import (
	"strings"
)

// Symbol is an export or import name split into its demangled parts.
type Symbol struct {
	Name      string
	Prototype string
}

// maxDemangleArgs bounds the argument list of a decoded prototype.
const maxDemangleArgs = 20

// DemangleSymbol decodes an MSVC decorated name. Names that are not
// decorated come back unchanged in Name.
func DemangleSymbol(name string) Symbol {
	switch {
	case name == "":
		return Symbol{}
	case strings.HasPrefix(name, "?"):
		if len(name) < 2 {
			return Symbol{Name: name}
		}
		d := &demangler{in: name, pos: 1}
		return d.symbol()
	case strings.HasPrefix(name, "__imp_"):
		if inner := DemangleSymbol(name[len("__imp_"):]); inner.Name != "" {
			inner.Name += " [import]"
			return inner
		}
	case strings.HasPrefix(name, "_"):
		return Symbol{Name: stripStdcallSuffix(name[1:])}
	}
	return Symbol{Name: name}
}

// Demangle returns the demangled name of an MSVC decorated symbol, or name
// itself when it cannot be decoded.
func Demangle(name string) string {
	if s := DemangleSymbol(name); s.Name != "" {
		return s.Name
	}
	return name
}

// stripStdcallSuffix removes the @N argument size of __stdcall and
// __fastcall names.
func stripStdcallSuffix(name string) string {
	at := strings.LastIndexByte(name, '@')
	if at <= 0 || at == len(name)-1 {
		return name
	}
	for _, c := range name[at+1:] {
		if c < '0' || c > '9' {
			return name
		}
	}
	return name[:at]
}

var (
	operatorNames = map[byte]string{
		'2': "operator new", '3': "operator delete", '4': "operator=",
		'5': "operator>>", '6': "operator<<", '7': "operator!",
		'8': "operator==", '9': "operator!=", 'A': "operator[]",
		'B': "operator (cast)", 'C': "operator->", 'D': "operator*",
		'E': "operator++", 'F': "operator--", 'G': "operator-",
		'H': "operator+", 'I': "operator&", 'J': "operator->*",
		'K': "operator/", 'L': "operator%", 'M': "operator<",
		'N': "operator<=", 'O': "operator>", 'P': "operator>=",
		'Q': "operator,", 'R': "operator()", 'S': "operator~",
		'T': "operator^", 'U': "operator|", 'V': "operator&&",
		'W': "operator||", 'X': "operator*=", 'Y': "operator+=",
		'Z': "operator-=",
	}

	// names introduced by ?_
	extendedOperatorNames = map[byte]string{
		'0': "operator/=", '1': "operator%=", '2': "operator>>=",
		'3': "operator<<=", '4': "operator&=", '5': "operator|=",
		'6': "operator^=", 'E': "dynamic initializer",
		'F': "dynamic atexit destructor",
	}

	// member function classes; the remaining codes up to Z are thunks and
	// globals
	accessModifiers = map[byte]string{
		'A': "private:", 'B': "private:",
		'C': "private: static", 'D': "private: static",
		'E': "private: virtual", 'F': "private: virtual",
		'I': "protected:", 'J': "protected:",
		'K': "protected: static", 'L': "protected: static",
		'M': "protected: virtual", 'N': "protected: virtual",
		'Q': "public:", 'R': "public:",
		'S': "public: static", 'T': "public: static",
		'U': "public: virtual", 'V': "public: virtual",
	}

	cvQualifiers = map[byte]string{
		'A': "", 'B': "const ", 'C': "volatile ", 'D': "const volatile ",
	}

	callingConventions = map[byte]string{
		'A': "__cdecl", 'B': "__cdecl __export",
		'C': "__pascal", 'D': "__pascal __export",
		'E': "__thiscall", 'F': "__thiscall __export",
		'G': "__stdcall", 'H': "__stdcall __export",
		'I': "__fastcall", 'J': "__fastcall __export",
		'K': "", 'L': "",
		'M': "__clrcall", 'Q': "__vectorcall",
	}

	primitiveTypes = map[byte]string{
		'X': "void", 'C': "signed char", 'D': "char", 'E': "unsigned char",
		'F': "short", 'G': "unsigned short", 'H': "int", 'I': "unsigned int",
		'J': "long", 'K': "unsigned long", 'M': "float", 'N': "double",
		'O': "long double",
	}

	// types introduced by _
	extendedTypes = map[byte]string{
		'J': "__int64", 'K': "unsigned __int64", 'N': "bool",
		'W': "wchar_t", 'S': "char16_t", 'U': "char32_t",
	}
)

type demangler struct {
	in    string
	pos   int
	names []string // name back-references
	args  []string // argument type back-references
}

func (d *demangler) done() bool {
	return d.pos >= len(d.in)
}

func (d *demangler) peek() byte {
	return d.in[d.pos]
}

func (d *demangler) next() byte {
	c := d.in[d.pos]
	d.pos++
	return c
}

func (d *demangler) symbol() Symbol {
	name := d.qualifiedName()
	if name == "" {
		return Symbol{}
	}
	if d.done() {
		return Symbol{Name: name}
	}
	return Symbol{Name: name, Prototype: d.encoding()}
}

// Placeholders for constructor and destructor names, replaced by the class
// name once the qualified name is complete.
const (
	ctorName = "\x00ctor"
	dtorName = "\x00dtor"
)

// qualifiedName reads @-terminated fragments and back-references up to the
// terminating @. Fragments are stored innermost first.
func (d *demangler) qualifiedName() string {
	var parts []string
	for !d.done() {
		c := d.peek()
		switch {
		case c == '@':
			d.pos++
			return joinReversed(parts)
		case c >= '0' && c <= '9':
			d.pos++
			if idx := int(c - '0'); idx < len(d.names) {
				parts = append(parts, d.names[idx])
			}
		case c == '?':
			d.pos++
			if special := d.specialName(); special != "" {
				parts = append(parts, special)
			}
		default:
			n := d.fragment()
			if len(d.names) < 10 {
				d.names = append(d.names, n)
			}
			parts = append(parts, n)
		}
	}
	return joinReversed(parts)
}

func joinReversed(parts []string) string {
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	if n := len(parts); n > 0 && (parts[n-1] == ctorName || parts[n-1] == dtorName) {
		class := ""
		if n > 1 {
			class = parts[n-2]
		}
		if parts[n-1] == dtorName {
			class = "~" + class
		}
		parts[n-1] = class
	}
	return strings.Join(parts, "::")
}

// fragment reads a name up to and including its @ terminator.
func (d *demangler) fragment() string {
	start := d.pos
	for !d.done() && d.peek() != '@' {
		d.pos++
	}
	n := d.in[start:d.pos]
	if !d.done() {
		d.pos++
	}
	return n
}

func (d *demangler) specialName() string {
	if d.done() {
		return ""
	}
	c := d.next()
	switch c {
	case '0':
		return ctorName
	case '1':
		return dtorName
	case '_':
		if d.done() {
			return ""
		}
		c2 := d.next()
		if c2 == 'K' {
			return "operator \"\" " + d.fragment()
		}
		return extendedOperatorNames[c2]
	}
	return operatorNames[c]
}

// encoding decodes what follows the qualified name. Functions produce a
// prototype and variables their type.
func (d *demangler) encoding() string {
	c := d.next()
	switch {
	case c == 'Y' || c == 'Z':
		return d.function("", false)
	case c >= '0' && c <= '4':
		return d.typ()
	}
	access, ok := accessModifiers[c]
	if !ok {
		return ""
	}
	static := strings.HasSuffix(access, "static")
	return d.function(access, !static)
}

// function decodes a function type. Non-static members carry a this
// qualifier before the calling convention.
func (d *demangler) function(access string, member bool) string {
	var this string
	if member {
		d.skipPtr64()
		if !d.done() {
			this = strings.TrimSpace(cvQualifiers[d.next()])
		}
	}
	conv := d.callingConvention()
	ret := d.returnType()
	args := d.arguments()

	var parts []string
	for _, p := range []string{access, ret, conv} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	proto := strings.Join(parts, " ") + "(" + args + ")"
	if this != "" {
		proto += " " + this
	}
	return proto
}

func (d *demangler) callingConvention() string {
	if d.done() {
		return ""
	}
	if conv, ok := callingConventions[d.peek()]; ok {
		d.pos++
		return conv
	}
	return ""
}

// returnType handles the @ of constructors and destructors and the ?A
// prefix of class values.
func (d *demangler) returnType() string {
	if d.done() {
		return ""
	}
	if d.peek() == '@' {
		d.pos++
		return ""
	}
	return d.typ()
}

func (d *demangler) skipPtr64() {
	if !d.done() && d.peek() == 'E' {
		d.pos++
	}
}

func (d *demangler) typ() string {
	if d.done() {
		return ""
	}
	c := d.next()
	if t, ok := primitiveTypes[c]; ok {
		return t
	}
	switch c {
	case '_':
		if !d.done() {
			if t, ok := extendedTypes[d.next()]; ok {
				return t
			}
		}
		return ""
	case 'P', 'Q', 'R', 'S':
		return d.pointer("*")
	case 'A', 'B':
		return d.pointer("&")
	case '?':
		// by-value class with a cv qualifier
		if d.done() {
			return ""
		}
		cv := cvQualifiers[d.next()]
		return cv + d.typ()
	case 'U', 'V', 'T':
		return d.className()
	case 'W':
		if !d.done() {
			d.pos++
		}
		return "enum " + d.className()
	}
	d.pos--
	return ""
}

// pointer decodes the pointee of a pointer or reference type.
func (d *demangler) pointer(suffix string) string {
	d.skipPtr64()
	if d.done() {
		return ""
	}
	cv := cvQualifiers[d.next()]
	inner := d.typ()
	if inner == "" {
		return ""
	}
	return cv + inner + suffix
}

// className reads a class, struct or union name, which shares the name
// back-reference table.
func (d *demangler) className() string {
	return d.qualifiedName()
}

// arguments reads the parameter list up to its @ terminator. A lone void or
// an ellipsis ends the list without one.
func (d *demangler) arguments() string {
	var args []string
	for !d.done() && len(args) < maxDemangleArgs {
		c := d.peek()
		switch {
		case c == '@':
			d.pos++
			return strings.Join(args, ", ")
		case c == 'Z':
			d.pos++
			return strings.Join(append(args, "..."), ", ")
		case c == 'X' && len(args) == 0:
			d.pos++
			return "void"
		case c >= '0' && c <= '9':
			d.pos++
			if idx := int(c - '0'); idx < len(d.args) {
				args = append(args, d.args[idx])
			}
			continue
		}

		start := d.pos
		arg := d.typ()
		if arg == "" {
			break
		}
		if d.pos-start > 1 {
			d.args = append(d.args, arg)
		}
		args = append(args, arg)
	}
	return strings.Join(args, ", ")
}
