package llm

import "encoding/json"

// displayTextKeys are checked in order when extracting the human-facing
// string from a structured payload.
var displayTextKeys = []string{"answer", "response", "text", "content", "message"}

// mqttValueKeys are checked in order when extracting the value to publish.
var mqttValueKeys = []string{"MQTT_value", "MQTT_values", "values"}

// DisplayText extracts the string to render for a payload: the first of
// answer/response/text/content/message that holds a string, else the whole
// payload stringified.
func DisplayText(payload map[string]any, raw json.RawMessage) string {
	for _, key := range displayTextKeys {
		if v, ok := payload[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	if len(raw) > 0 {
		return string(raw)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(b)
}

// MQTTValue extracts the value destined for the broker: the first of
// MQTT_value/MQTT_values/values present, else the whole payload.
func MQTTValue(payload map[string]any) any {
	for _, key := range mqttValueKeys {
		if v, ok := payload[key]; ok {
			return v
		}
	}
	return payload
}
