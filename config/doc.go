// Package config loads the YAML runtime configuration of a flock run:
// scheduler sizing and split parameters, logging level, and the
// population snapshot output. Every field has a working default, so a
// config file is optional and overrides selectively.
package config
