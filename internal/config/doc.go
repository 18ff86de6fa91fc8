// Package config provides the configuration of a localization run: where
// the source tree lives, where the rewritten tree and the mirror go, how
// references are rewritten and how assets are downloaded.
//
// Values come from three layers, later layers winning: the defaults of
// NewConfig, the YAML configuration file and explicitly set CLI flags.
package config
