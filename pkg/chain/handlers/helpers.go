package handlers

import (
	"bytes"
	"text/template"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
)

// templateData exposes context attributes plus, for every recorded result,
// "<handler>.success" and "<handler>.code".
func templateData(pctx *chain.Context) map[string]any {
	data := pctx.Snapshot()
	for name, r := range pctx.Results() {
		if r == nil {
			continue
		}
		data[name+".success"] = r.Success
		data[name+".code"] = r.Code
	}
	return data
}

// renderTemplate executes a Go template string against a data map.
func renderTemplate(tplStr string, data map[string]any) (string, error) {
	tpl, err := template.New("").Parse(tplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
