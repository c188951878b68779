package models

// Platform tags carried on frames.
const (
	PlatformJava   = "java"
	PlatformCocoa  = "cocoa"
	PlatformNative = "native"
)

// MechanismGeneric is the mechanism type stamped by the manual capture API.
// An unhandled flag on a generic mechanism was set by application code, not
// detected by a runtime handler.
const MechanismGeneric = "generic"

type Exception struct {
	Type       string      `json:"type,omitempty"`
	Value      string      `json:"value,omitempty"`
	Module     string      `json:"module,omitempty"`
	Mechanism  *Mechanism  `json:"mechanism,omitempty"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

type Mechanism struct {
	Type      string         `json:"type,omitempty"`
	Handled   *bool          `json:"handled,omitempty"`
	Synthetic bool           `json:"synthetic,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type Stacktrace struct {
	Frames []Frame `json:"frames"`
}

// Frame is one stack frame. Pointer fields distinguish "absent" from zero.
type Frame struct {
	Platform        string `json:"platform,omitempty"`
	Module          string `json:"module,omitempty"`
	Filename        string `json:"filename,omitempty"`
	AbsPath         string `json:"abs_path,omitempty"`
	Function        string `json:"function,omitempty"`
	Lineno          *int   `json:"lineno,omitempty"`
	Colno           *int   `json:"colno,omitempty"`
	Package         string `json:"package,omitempty"`
	InstructionAddr string `json:"instruction_addr,omitempty"`
	ImageAddr       string `json:"image_addr,omitempty"`
	SymbolAddr      string `json:"symbol_addr,omitempty"`
	InApp           *bool  `json:"in_app,omitempty"`
}

// DebugImage describes a native binary image used to symbolicate frames later.
type DebugImage struct {
	Type        string `json:"type,omitempty" mapstructure:"type"`
	Name        string `json:"name,omitempty" mapstructure:"name"`
	UUID        string `json:"uuid,omitempty" mapstructure:"uuid"`
	DebugID     string `json:"debug_id,omitempty" mapstructure:"debug_id"`
	ImageAddr   string `json:"image_addr,omitempty" mapstructure:"image_addr"`
	ImageSize   int64  `json:"image_size,omitempty" mapstructure:"image_size"`
	CodeFile    string `json:"code_file,omitempty" mapstructure:"code_file"`
	ImageVMAddr string `json:"image_vmaddr,omitempty" mapstructure:"image_vmaddr"`
}

// IsHardCrash reports whether the exception is an unhandled, runtime-detected fault.
func (e Exception) IsHardCrash() bool {
	m := e.Mechanism
	if m == nil || m.Handled == nil || *m.Handled {
		return false
	}
	return m.Type != MechanismGeneric
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// Int returns a pointer to i.
func Int(i int) *int {
	return &i
}

// NativeStackFrames is what the native symbol resolver returns for a set of
// return addresses.
type NativeStackFrames struct {
	Frames          []Frame      `json:"frames"`
	DebugMetaImages []DebugImage `json:"debugMetaImages,omitempty"`
}
