package device

// Discovery payload shapes follow the Home Assistant MQTT discovery
// convention: one JSON config per entity under
// <discovery_prefix>/<entity_kind>/<sanitized_id>/<entity_name>/config.

// deviceInfo groups every entity of one bed under a single hub device.
type deviceInfo struct {
	// Connections may strictly not hold a MAC on platforms where the
	// wireless stack hides it; the address is still the stable key.
	Name          string      `json:"name"`
	Connections   [][2]string `json:"connections"`
	Model         string      `json:"model"`
	Manufacturer  string      `json:"manufacturer"`
	SuggestedArea string      `json:"suggested_area"`
}

// buttonConfig describes a stateless trigger entity.
type buttonConfig struct {
	Name                 string     `json:"name"`
	UniqueID             string     `json:"unique_id"`
	Icon                 string     `json:"icon,omitempty"`
	CommandTopic         string     `json:"command_topic"`
	AvailabilityTopic    string     `json:"availability_topic,omitempty"`
	AvailabilityTemplate string     `json:"availability_template,omitempty"`
	Device               deviceInfo `json:"device"`
}

// numberConfig describes a numeric control entity with state feedback.
type numberConfig struct {
	Name                 string     `json:"name"`
	UniqueID             string     `json:"unique_id"`
	CommandTopic         string     `json:"command_topic"`
	StateTopic           string     `json:"state_topic"`
	ValueTemplate        string     `json:"value_template"`
	AvailabilityTopic    string     `json:"availability_topic"`
	AvailabilityTemplate string     `json:"availability_template"`
	Min                  int        `json:"min"`
	Max                  int        `json:"max"`
	Step                 int        `json:"step"`
	Device               deviceInfo `json:"device"`
}

// availabilityTemplate extracts the availability field from the retained
// state payload so every entity follows the device online/offline state.
const availabilityTemplate = "{{ value_json.availability }}"

// Entity kinds in discovery topics.
const (
	kindButton = "button"
	kindNumber = "number"
)
