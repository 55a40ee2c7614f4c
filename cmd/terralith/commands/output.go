package commands

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// formatValue renders a resolved value for terminal output. Strings print
// bare; everything else prints as JSON.
func formatValue(v cty.Value) string {
	if v.Type() == cty.String && !v.IsNull() {
		return v.AsString()
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return fmt.Sprintf("<unprintable: %v>", err)
	}
	return string(raw)
}
