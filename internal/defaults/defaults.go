// Package defaults provides the embedded starter configuration for
// the remora init subcommand.
package defaults

import _ "embed"

//go:embed config.example.yaml
var ConfigYAML []byte
