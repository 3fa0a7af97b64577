// Package props reads the client service's .properties configuration file.
// Only two fields matter for key recovery: the secure data key envelope and
// its checksum.
package props

import (
	"github.com/magiconair/properties"

	"plango/internal/errors"
)

// Field names consumed from the service configuration.
const (
	secureDataKeyField   = "secureDataKey"
	dataKeyChecksumField = "dataKeyChecksum"
)

// ServiceConfig is the subset of a service .properties file this tool uses.
type ServiceConfig struct {
	// SecureDataKey is the base64 secure-data-key envelope, still encoded.
	SecureDataKey string

	// DataKeyChecksum is the recorded checksum of the unwrapped key, empty
	// when the file does not carry one.
	DataKeyChecksum string
}

// Load parses the .properties file at path. Standard java-style comment and
// escape conventions apply.
func Load(path string) (*ServiceConfig, error) {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, errors.NewFileError("open", path, err)
	}

	cfg := &ServiceConfig{
		SecureDataKey:   p.GetString(secureDataKeyField, ""),
		DataKeyChecksum: p.GetString(dataKeyChecksumField, ""),
	}
	if cfg.SecureDataKey == "" {
		return nil, errors.Wrap(errors.ErrMalformed, "properties file has no secureDataKey")
	}
	return cfg, nil
}
