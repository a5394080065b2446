package translator

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// applyToolDeclarations folds OpenAI function tools into a single Gemini
// tools entry carrying all function declarations.
func applyToolDeclarations(out string, rawJSON []byte) string {
	tools := gjson.GetBytes(rawJSON, "tools")
	if !tools.Exists() {
		return out
	}

	decls := "[]"
	count := 0
	for _, tool := range tools.Array() {
		if tool.Get("type").String() != "function" {
			continue
		}
		fn := tool.Get("function")
		decl, _ := sjson.Set("{}", "name", fn.Get("name").String())
		if desc := fn.Get("description").String(); desc != "" {
			decl, _ = sjson.Set(decl, "description", desc)
		}
		if params := fn.Get("parameters"); params.Exists() {
			decl, _ = sjson.SetRaw(decl, "parameters", params.Raw)
		}
		decls, _ = sjson.SetRaw(decls, "-1", decl)
		count++
	}
	if count == 0 {
		return out
	}

	entry, _ := sjson.SetRaw("{}", "functionDeclarations", decls)
	out, _ = sjson.SetRaw(out, "tools", "["+entry+"]")
	return out
}

// applyResponseFormat maps response_format onto generationConfig. Both JSON
// modes force the MIME type; json_schema also carries the schema over.
func applyResponseFormat(out string, rawJSON []byte) string {
	format := gjson.GetBytes(rawJSON, "response_format")
	if !format.Exists() {
		return out
	}
	switch format.Get("type").String() {
	case "json_object":
		out, _ = sjson.Set(out, "generationConfig.responseMimeType", "application/json")
	case "json_schema":
		out, _ = sjson.Set(out, "generationConfig.responseMimeType", "application/json")
		if schema := format.Get("json_schema.schema"); schema.Exists() {
			out, _ = sjson.SetRaw(out, "generationConfig.responseSchema", schema.Raw)
		}
	}
	return out
}
