// Package config provides configuration loading and validation for the live
// translator service. Configuration is read from YAML on top of built-in
// defaults, so a partial file only needs the settings it changes.
package config
