package services

import (
	"net/url"
	"strings"
	"text/template"

	"github.com/benmeehan/kitchen-simulator/internal/models"
)

var snippetTemplate = template.Must(template.New("snippet").Parse(`# {{.Device}} Configuration
THINGSBOARD_HOST = "{{.Host}}"
{{if .MQTT}}MQTT_PORT{{else}}THINGSBOARD_PORT{{end}} = {{.Port}}
DEVICE_ACCESS_TOKEN = "{{.Token}}"
{{if .MQTT}}
# MQTT Settings
TOPIC = "{{.Topic}}"
{{end}}
# Simulation settings
INTERVAL_SECONDS = {{.IntervalSeconds}}
{{.Flag}}_ENABLED = {{if .Running}}True{{else}}False{{end}}
`))

type snippetData struct {
	Device          string
	Host            string
	Port            string
	Token           string
	MQTT            bool
	Topic           string
	IntervalSeconds int64
	Flag            string
	Running         bool
}

// renderSnippet writes the device-side configuration matching an emitter's
// current state. For MQTT the access token is the broker username.
func renderSnippet(state models.EmitterState, mqttToken string) (string, error) {
	data := snippetData{
		Device:          state.Device,
		IntervalSeconds: state.IntervalMs / 1000,
		Flag:            strings.ToUpper(state.Name),
		Running:         state.Running,
	}

	switch {
	case state.Target.HTTP != nil:
		data.Host, data.Port = hostPort(state.Target.HTTP.Endpoint, "80")
		data.Token = tokenFromPath(state.Target.HTTP.Endpoint)
	case state.Target.MQTT != nil:
		data.MQTT = true
		data.Host, data.Port = hostPort(state.Target.MQTT.Broker, "1883")
		data.Token = mqttToken
		data.Topic = state.Target.MQTT.Topic
	}

	var b strings.Builder
	if err := snippetTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func hostPort(raw, defaultPort string) (string, string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, defaultPort
	}
	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	return u.Hostname(), port
}

// tokenFromPath extracts {token} from a /api/v1/{token}/telemetry endpoint.
func tokenFromPath(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "api" && parts[i+1] == "v1" {
			return parts[i+2]
		}
	}
	return ""
}
