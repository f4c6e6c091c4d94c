package ir

// LibFunc is a function of the SysY runtime library. Programs call these but
// never define them; the back end emits no body for them.
type LibFunc struct {
	Name   string
	Params []*Type
	Ret    *Type
}

var Library = []LibFunc{
	{"getint", nil, I32},
	{"getch", nil, I32},
	{"getarray", []*Type{PtrTo(I32)}, I32},
	{"putint", []*Type{I32}, Unit},
	{"putch", []*Type{I32}, Unit},
	{"putarray", []*Type{I32, PtrTo(I32)}, Unit},
	{"starttime", nil, Unit},
	{"stoptime", nil, Unit},
}

// IsLibrary reports whether name is provided by the runtime library.
func IsLibrary(name string) bool {
	for _, lf := range Library {
		if lf.Name == name {
			return true
		}
	}
	return false
}

// DeclareLibrary adds a decl for every runtime function to prog.
func DeclareLibrary(prog *Program) {
	for _, lf := range Library {
		prog.NewDecl(lf.Name, lf.Params, lf.Ret)
	}
}
