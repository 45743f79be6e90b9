package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunnelcore/tunnelcore/iface/device"
)

func validServerFlags() ServerFlags {
	return ServerFlags{
		ManagementAddr: defaultManagementAddr,
		MetricsPort:    9090,
		DeviceDriver:   device.DriverExec,
		CommandTimeout: device.DefaultCommandTimeout,
		DevicePoolSize: device.DefaultPoolSize,
	}
}

func TestServerFlagsValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(f *ServerFlags)
		wantErr bool
	}{
		{name: "defaults", modify: func(f *ServerFlags) {}},
		{name: "tls pair", modify: func(f *ServerFlags) { f.TLSCertFile, f.TLSKeyFile = "cert.pem", "key.pem" }},
		{name: "cert without key", modify: func(f *ServerFlags) { f.TLSCertFile = "cert.pem" }, wantErr: true},
		{name: "zero timeout", modify: func(f *ServerFlags) { f.CommandTimeout = 0 }, wantErr: true},
		{name: "empty pool", modify: func(f *ServerFlags) { f.DevicePoolSize = 0 }, wantErr: true},
		{name: "metrics port out of range", modify: func(f *ServerFlags) { f.MetricsPort = 70000 }, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := validServerFlags()
			tc.modify(&f)
			err := f.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestServiceArguments_CreateTUN(t *testing.T) {
	f := validServerFlags()
	f.CreateTUN = true

	args, err := serviceArguments("server.toml", f)
	require.NoError(t, err)
	assert.Contains(t, args, "--create-tun")
}

func TestServiceArguments(t *testing.T) {
	f := validServerFlags()
	f.CommandTimeout = 3 * time.Second
	f.NoRollback = true

	args, err := serviceArguments("server.toml", f)
	require.NoError(t, err)

	assert.Equal(t, []string{"service", "run"}, args[:2])
	assert.Contains(t, args, "--no-rollback")
	assert.Contains(t, args, "3s")
	assert.NotContains(t, args, "--tls-cert-file")
	assert.NotContains(t, args, "--create-tun")

	for i, a := range args {
		if a == "--config" {
			require.Less(t, i+1, len(args))
			assert.True(t, filepath.IsAbs(args[i+1]), "config path must be absolute")
		}
	}
}
