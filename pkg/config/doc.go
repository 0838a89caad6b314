// Package config provides configuration loading, validation, and defaults
// for the Themis decision service.
//
// Configuration is loaded from a YAML file, defaults are applied to unset
// fields, and environment variables of the form THEMIS_SECTION_FIELD override
// file values. The engine fallback mode (fail-open vs fail-closed) has no
// default and must be set explicitly; validation rejects configs that omit it.
package config
