// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the bridge's configuration.
//
// Configuration comes from at most one file: the path given with
// --config (via [LoadFile]) or the KELIVO_BRIDGE_CONFIG environment
// variable (via [Load]). Without either, [Default] applies unchanged.
// There is no search path and no per-field environment overrides.
//
// Files are YAML. A file ending in .json or .jsonc is first stripped
// of comments and trailing commas, then parsed the same way.
//
// ${HOME} and ${VAR:-default} patterns are expanded in path fields
// after loading.
//
// This package depends on no other bridge packages.
package config
