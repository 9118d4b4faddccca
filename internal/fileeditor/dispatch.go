package fileeditor

import (
	"encoding/json"

	"github.com/ajaxzhan/shellbridge/pkg/types"
)

// The operations below are a closed set of tagged request variants, one
// struct per command, each declaring exactly the fields it accepts.
// Dispatch decodes the incoming parameter bag into the variant named by
// command; unrecognized keys are silently dropped by json.Unmarshal
// rather than rejected, matching the distillation's permissive parameter
// filtering without reflecting over method signatures.

type readParams struct {
	Path        string `json:"path"`
	Mode        string `json:"mode"`
	LineNumbers *bool  `json:"line_numbers"`
}

type writeParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

type deleteParams struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

type pathParams struct {
	Path string `json:"path"`
}

type moveCopyParams struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

type viewParams struct {
	Path        string `json:"path"`
	ViewRange   []int  `json:"view_range"`
	LineNumbers *bool  `json:"line_numbers"`
}

type replaceParams struct {
	Path string `json:"path"`
	Old  string `json:"old_str"`
	New  string `json:"new_str"`
	All  bool   `json:"all_occurrences"`
}

type insertParams struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

type deleteLinesParams struct {
	Path  string `json:"path"`
	Lines []int  `json:"lines"`
}

type grepParams struct {
	Pattern       string `json:"pattern"`
	Path          string `json:"path"`
	CaseSensitive *bool  `json:"case_sensitive"`
	Recursive     bool   `json:"recursive"`
	LineNumbers   *bool  `json:"line_numbers"`
}

func decode(params map[string]any, target any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func boolDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func modeOrDefault(mode string) types.FileMode {
	if mode == "" {
		return types.ModeText
	}
	return types.FileMode(mode)
}

// Dispatch routes command to the corresponding Editor method using only
// the fields that operation's tagged variant declares.
func (e *Editor) Dispatch(command string, params map[string]any) (types.Result, error) {
	switch command {
	case "read":
		var p readParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Read(p.Path, modeOrDefault(p.Mode), boolDefault(p.LineNumbers, true))

	case "write":
		var p writeParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Write(p.Path, p.Content, modeOrDefault(p.Mode))

	case "append":
		var p writeParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Append(p.Path, p.Content, modeOrDefault(p.Mode))

	case "create":
		var p writeParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Create(p.Path, p.Content, modeOrDefault(p.Mode))

	case "delete":
		var p deleteParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Delete(p.Path, p.Recursive)

	case "exists":
		var p pathParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Exists(p.Path)

	case "list":
		var p pathParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.List(p.Path)

	case "mkdir":
		var p pathParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Mkdir(p.Path)

	case "rmdir":
		var p pathParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Rmdir(p.Path)

	case "move":
		var p moveCopyParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Move(p.Src, p.Dst)

	case "copy":
		var p moveCopyParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Copy(p.Src, p.Dst)

	case "view":
		var p viewParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		var start, end *int
		if len(p.ViewRange) == 2 {
			start, end = &p.ViewRange[0], &p.ViewRange[1]
		}
		return e.View(p.Path, start, end, boolDefault(p.LineNumbers, true))

	case "replace":
		var p replaceParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Replace(p.Path, p.Old, p.New, p.All)

	case "insert":
		var p insertParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Insert(p.Path, p.Line, p.Text)

	case "delete_lines":
		var p deleteLinesParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.DeleteLines(p.Path, p.Lines)

	case "undo":
		var p pathParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Undo(p.Path)

	case "grep":
		var p grepParams
		if err := decode(params, &p); err != nil {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", err)
		}
		return e.Grep(p.Pattern, p.Path, boolDefault(p.CaseSensitive, true), p.Recursive, boolDefault(p.LineNumbers, true))

	default:
		return types.Result{}, types.NewToolError(types.ErrInvalidArguments, command, "", nil)
	}
}
