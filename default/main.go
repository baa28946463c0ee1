// Package defaults provides embedded default assets (system instruction, config and scenario table).
package defaults

import _ "embed"

//go:embed default_prompt.md
var DefaultPrompt string

//go:embed default_config.json
var DefaultConfigJSON []byte

//go:embed default_scenarios.toml
var DefaultScenariosTOML []byte
