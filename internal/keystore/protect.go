//go:build !windows

package keystore

// defaultProtector returns nil on platforms without a host credential API;
// deobfuscation goes straight to the platform-key trial.
func defaultProtector() Protector {
	return nil
}
