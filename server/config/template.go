package config

import (
	"bytes"
	"text/template"
)

var serverTemplate = template.Must(template.New("server").Parse(`# tunnelcore server configuration

[interface]
name = "{{ .Name }}"
private_key = "{{ .PrivateKey }}"
address = "{{ .Address }}"
listen_port = {{ .ListenPort }}

# Example peer configuration
[[peers]]
public_key = "REPLACE_WITH_CLIENT_PUBLIC_KEY"
allowed_ips = "10.8.0.2/32"
endpoint = "client.example.com:51820"  # Optional

# Add more peers as needed
# [[peers]]
# public_key = "ANOTHER_CLIENT_PUBLIC_KEY"
# allowed_ips = "10.8.0.3/32"
`))

// GenerateServerTemplate renders a commented server configuration with one placeholder peer
func GenerateServerTemplate(privateKey string) ([]byte, error) {
	var buf bytes.Buffer
	err := serverTemplate.Execute(&buf, InterfaceConfig{
		Name:       DefaultInterfaceName,
		PrivateKey: privateKey,
		Address:    DefaultAddress,
		ListenPort: DefaultListenPort,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
