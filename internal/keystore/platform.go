package keystore

import (
	"os"

	"plango/internal/crypto"
	"plango/internal/log"
)

// Machine identity sources consulted on Linux when no serial override is
// given. Both files are read and their contents concatenated.
var linuxMachineIDPaths = []string{
	"/var/lib/dbus/machine-id",
	"/etc/machine-id",
}

// MacIdentityFromSerial builds the platform identity string a macOS client
// derives from its hardware serial number.
func MacIdentityFromSerial(serial string) string {
	return serial + serial + serial + serial + "\n"
}

// LinuxIdentityFromSerial builds the platform identity for a Linux machine
// id string.
func LinuxIdentityFromSerial(serial string) string {
	return serial
}

func discoverLinuxIdentity() string {
	var serial string
	for _, path := range linuxMachineIDPaths {
		contents, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		serial += string(contents)
	}
	return LinuxIdentityFromSerial(serial)
}

// platformKeys assembles the candidate obfuscation keys in trial order: the
// baked-in primary key first, then a key derived from the machine identity
// when one is available. Identities shorter than 32 characters cannot seed
// the derivation and are skipped.
func platformKeys(macSerial, linuxSerial string) [][]byte {
	keys := [][]byte{[]byte(ObfuscationKey)}

	var identity string
	switch {
	case macSerial != "":
		identity = MacIdentityFromSerial(macSerial)
	case linuxSerial != "":
		identity = LinuxIdentityFromSerial(linuxSerial)
	default:
		identity = discoverLinuxIdentity()
	}

	if len(identity) < 32 {
		if identity != "" {
			log.Warn("machine identity too short to derive a platform key",
				log.Int("length", len(identity)))
		}
		return keys
	}

	return append(keys, crypto.GenerateSmallBusinessKeyV2(identity, identity[:32]))
}
