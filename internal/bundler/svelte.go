package bundler

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

//go:embed scripts/svelte.mjs
var svelteScript string

// ComponentCompiler turns a .svelte file into JavaScript.
type ComponentCompiler interface {
	CompileComponent(ctx context.Context, path string) (*CompiledComponent, error)
}

// CompiledComponent is the JavaScript produced for one component.
type CompiledComponent struct {
	Code     string
	Warnings []ComponentDiagnostic
}

// ComponentDiagnostic is a message reported by the component compiler.
type ComponentDiagnostic struct {
	Message string `json:"message"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Frame   string `json:"frame,omitempty"`
}

// ComponentError is a component compilation failure with its location.
type ComponentError struct {
	File string
	ComponentDiagnostic
}

func (e *ComponentError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// NodeCompiler compiles components with svelte/compiler through a Node.js
// subprocess. Component styles are injected by the generated code.
type NodeCompiler struct {
	// Node is the JavaScript runtime executable.
	Node string
	// Preprocess runs svelte-preprocess when it is installed.
	Preprocess bool
}

type nodeOutput struct {
	Code     string                `json:"code"`
	Warnings []ComponentDiagnostic `json:"warnings"`
	Error    *ComponentDiagnostic  `json:"error"`
}

// CompileComponent implements ComponentCompiler.
func (n *NodeCompiler) CompileComponent(ctx context.Context, path string) (*CompiledComponent, error) {
	node := n.Node
	if node == "" {
		node = "node"
	}

	cmd := exec.CommandContext(ctx, node, "--input-type=module", "-e", svelteScript)
	// bare imports resolve from the working directory upwards
	cmd.Dir = filepath.Dir(path)
	cmd.Env = append(os.Environ(), "LAVENDER_COMPONENT="+path)
	if n.Preprocess {
		cmd.Env = append(cmd.Env, "LAVENDER_PREPROCESS=1")
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	var out nodeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" && runErr != nil {
			msg = runErr.Error()
		}
		if msg == "" {
			msg = "component compiler produced no output"
		}
		return nil, &ComponentError{File: path, ComponentDiagnostic: ComponentDiagnostic{Message: msg}}
	}
	if out.Error != nil {
		return nil, &ComponentError{File: path, ComponentDiagnostic: *out.Error}
	}

	return &CompiledComponent{Code: out.Code, Warnings: out.Warnings}, nil
}

// sveltePlugin routes .svelte files through compiler.
func sveltePlugin(ctx context.Context, compiler ComponentCompiler) api.Plugin {
	return api.Plugin{
		Name: "svelte",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.svelte$`}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				compiled, err := compiler.CompileComponent(ctx, args.Path)
				if err != nil {
					return api.OnLoadResult{Errors: []api.Message{componentMessage(args.Path, err)}}, nil
				}

				warnings := make([]api.Message, 0, len(compiled.Warnings))
				for _, w := range compiled.Warnings {
					warnings = append(warnings, diagnosticMessage(args.Path, w))
				}

				return api.OnLoadResult{
					Contents:   &compiled.Code,
					ResolveDir: filepath.Dir(args.Path),
					Loader:     api.LoaderJS,
					Warnings:   warnings,
				}, nil
			})
		},
	}
}

func componentMessage(path string, err error) api.Message {
	if ce, ok := err.(*ComponentError); ok {
		return diagnosticMessage(ce.File, ce.ComponentDiagnostic)
	}
	return api.Message{Text: err.Error(), Location: &api.Location{File: path}}
}

func diagnosticMessage(path string, d ComponentDiagnostic) api.Message {
	return api.Message{
		Text: d.Message,
		Location: &api.Location{
			File:     path,
			Line:     d.Line,
			Column:   d.Column,
			LineText: frameLine(d.Frame, d.Line),
		},
	}
}

// frameLine picks the numbered source line out of a compiler code frame such as
// "2:   let x = ;".
func frameLine(frame string, line int) string {
	if line <= 0 {
		return ""
	}
	prefix := strconv.Itoa(line) + ": "
	for _, l := range strings.Split(frame, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimLeft(l, " "), prefix); ok {
			return rest
		}
	}
	return ""
}
