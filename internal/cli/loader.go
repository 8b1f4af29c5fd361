package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dampen/internal/compiler"
	"github.com/roach88/dampen/internal/ir"
)

// LoadMode controls how errors are handled during policy loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the definitions loaded from a policies directory.
type LoadResult struct {
	Dampenings []ir.Dampening
	Triggers   []ir.Trigger
	FileCount  int // Number of CUE files found
}

// LoadError represents an error that occurred during policy loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadPolicies loads and compiles CUE dampening and trigger definitions from
// a directory. Definitions are compiled in declaration order.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadPolicies(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("policies directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing policies directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{FileCount: len(cueFiles)}

	errs := eachDefinition(value, "dampening", mode, func(v cue.Value) error {
		d, err := compiler.CompileDampening(v)
		if err != nil {
			return err
		}
		result.Dampenings = append(result.Dampenings, d)
		return nil
	})
	if len(errs) > 0 && mode == LoadModeFailFast {
		return result, errs
	}

	errs = append(errs, eachDefinition(value, "trigger", mode, func(v cue.Value) error {
		t, err := compiler.CompileTrigger(v)
		if err != nil {
			return err
		}
		result.Triggers = append(result.Triggers, t)
		return nil
	})...)
	if len(errs) > 0 && mode == LoadModeFailFast {
		return result, errs
	}

	if len(result.Dampenings) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoPolicies, Message: "no dampening definitions found"})
	}

	return result, errs
}

// eachDefinition compiles every field of the top-level struct section with fn.
func eachDefinition(value cue.Value, section string, mode LoadMode, fn func(cue.Value) error) []error {
	sectionVal := value.LookupPath(cue.ParsePath(section))
	if !sectionVal.Exists() {
		return nil
	}

	iter, err := sectionVal.Fields()
	if err != nil {
		return []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating %s definitions: %v", section, err)}}
	}

	var errs []error
	for iter.Next() {
		if err := fn(iter.Value()); err != nil {
			errs = append(errs, convertCompileError(err, section+"."+iter.Label()))
			if mode == LoadModeFailFast {
				return errs
			}
		}
	}
	return errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeJournal     = "E007" // Journal open/read/write error
	ErrCodeNoPolicies  = "E008" // No dampening definitions found

	// Definition errors
	ErrCodeIdentity       = "E101" // Missing or invalid tenant, trigger or id
	ErrCodeInvalidType    = "E102" // Unknown dampening type
	ErrCodeInvalidMode    = "E103" // Unknown trigger mode
	ErrCodeInvalidSetting = "E104" // eval_true, eval_total or eval_time out of range
	ErrCodeInvalidMatch   = "E105" // Unknown firing or auto-resolve match
	ErrCodeInvalidField   = "E106" // Field of the wrong kind (source, enabled)

	// Runtime errors
	ErrCodeTestFailed       = "E201" // One or more scenarios failed
	ErrCodeNonDeterministic = "E202" // Replay diverged from the recording
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "tenant", "trigger", "id":
		return ErrCodeIdentity
	case "type":
		return ErrCodeInvalidType
	case "mode":
		return ErrCodeInvalidMode
	case "eval_true", "eval_total", "eval_time":
		return ErrCodeInvalidSetting
	case "firing_match", "auto_resolve_match":
		return ErrCodeInvalidMatch
	case "source", "enabled":
		return ErrCodeInvalidField
	default:
		return ErrCodeGeneric
	}
}
