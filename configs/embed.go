// Package configs provides embedded configuration templates for amanrag.
//
// Templates are embedded at build time so they ship with every binary.
// They are used by:
//   - cmd/amanrag/cmd/init.go → writes .amanrag.yaml in the project root
//   - cmd/amanrag/cmd/config.go → writes the user config at ~/.config/amanrag/config.yaml
//
// Configuration hierarchy (see internal/config Load()):
//  1. Hardcoded defaults (config.NewConfig())
//  2. User config (~/.config/amanrag/config.yaml)
//  3. Project config (.amanrag.yaml)
//  4. .env in the project root
//  5. Environment variables (AMANRAG_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for machine-level configuration:
// provider endpoints and models shared by every project.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration:
// corpus selection, storage and retrieval tuning.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
