// Package defaults provides embedded default assets (config and page template).
package defaults

import _ "embed"

//go:embed default_config.toml
var DefaultConfigTOML []byte

//go:embed index.html.tmpl
var IndexTemplate string
