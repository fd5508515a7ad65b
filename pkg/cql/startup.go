package cql

import "github.com/cuemby/ringdb/pkg/wireerr"

// acceptedCompression mirrors the original node's startup_parser.rs, which
// enumerates accepted STARTUP options explicitly instead of accepting any
// string (spec §6, SUPPLEMENTED FEATURES).
var acceptedCompression = map[string]bool{
	"iz4": true,
}

const requiredCQLVersion = "3.0.0"

// ValidateStartup checks a decoded STARTUP string-map against the CQL
// subset's accepted options: CQL_VERSION=3.0.0 is required, COMPRESSION=iz4
// is the only accepted value if present.
func ValidateStartup(options map[string]string) error {
	version, ok := options["CQL_VERSION"]
	if !ok {
		return wireerr.New(wireerr.ConfigError, "STARTUP missing CQL_VERSION")
	}
	if version != requiredCQLVersion {
		return wireerr.Newf(wireerr.ConfigError, "unsupported CQL_VERSION %q", version)
	}
	if compression, ok := options["COMPRESSION"]; ok && !acceptedCompression[compression] {
		return wireerr.Newf(wireerr.ConfigError, "unsupported COMPRESSION %q", compression)
	}
	return nil
}
