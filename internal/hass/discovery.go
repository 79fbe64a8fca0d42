// Package hass builds the MQTT discovery documents and payloads that make
// the winter road sensors appear in Home Assistant without manual setup.
// One device carries seven sensors: the overall status, the total road
// count and one count per salting bucket.
package hass

import (
	"fmt"
	"time"

	"vintervej/internal/modules/winter/types"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"

	DeviceName         = "Vejdirektoratet Winter Roads"
	DeviceManufacturer = "Vejdirektoratet"
	DeviceModel        = "Winter Road Status"
)

// Topics derives every topic the integration uses from the configured
// prefixes. All sensor states share one state topic; discovery configs go
// under the Home Assistant discovery prefix.
type Topics struct {
	Prefix          string
	DiscoveryPrefix string
	NodeID          string
}

func (t Topics) State() string        { return t.Prefix + "/state" }
func (t Topics) Attributes() string   { return t.Prefix + "/attributes" }
func (t Topics) Availability() string { return t.Prefix + "/availability" }

func (t Topics) Config(objectID string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", t.DiscoveryPrefix, t.NodeID, objectID)
}

type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// SensorConfig is one MQTT discovery document, shaped after Home
// Assistant's MQTT sensor schema.
type SensorConfig struct {
	Name                string `json:"name"`
	UniqueID            string `json:"unique_id"`
	StateTopic          string `json:"state_topic"`
	ValueTemplate       string `json:"value_template"`
	AvailabilityTopic   string `json:"availability_topic"`
	JSONAttributesTopic string `json:"json_attributes_topic,omitempty"`
	UnitOfMeasurement   string `json:"unit_of_measurement,omitempty"`
	StateClass          string `json:"state_class,omitempty"`
	Icon                string `json:"icon,omitempty"`
	Device              Device `json:"device"`
}

// Sensor pairs a discovery object ID with its config document.
type Sensor struct {
	ObjectID string
	Config   SensorConfig
}

// Sensors returns the seven sensor definitions for the given topics.
func Sensors(topics Topics) []Sensor {
	device := Device{
		Identifiers:  []string{topics.NodeID},
		Name:         DeviceName,
		Manufacturer: DeviceManufacturer,
		Model:        DeviceModel,
	}

	base := func(objectID, name, template string) SensorConfig {
		return SensorConfig{
			Name:              name,
			UniqueID:          topics.NodeID + "_" + objectID,
			StateTopic:        topics.State(),
			ValueTemplate:     template,
			AvailabilityTopic: topics.Availability(),
			Device:            device,
		}
	}

	overall := base("overall", "Winter Roads Overall Status", "{{ value_json.overall }}")
	overall.JSONAttributesTopic = topics.Attributes()
	overall.Icon = types.DefaultIcon

	total := base("total", "Winter Roads Total Roads", "{{ value_json.total }}")
	total.UnitOfMeasurement = "roads"
	total.StateClass = "measurement"
	total.Icon = "mdi:road"

	count := func(objectID, name string, status types.SaltingStatus) SensorConfig {
		cfg := base(objectID, name, fmt.Sprintf("{{ value_json.%s }}", objectID))
		cfg.UnitOfMeasurement = "roads"
		cfg.StateClass = "measurement"
		cfg.Icon = status.Icon()
		return cfg
	}

	return []Sensor{
		{ObjectID: "overall", Config: overall},
		{ObjectID: "total", Config: total},
		{ObjectID: "salting_now", Config: count("salting_now", "Winter Roads Salting Now", types.StatusSaltingNow)},
		{ObjectID: "less_than_12h", Config: count("less_than_12h", "Winter Roads Salted < 12h", types.StatusLessThan12h)},
		{ObjectID: "between_12h_48h", Config: count("between_12h_48h", "Winter Roads Salted 12-48h", types.StatusBetween12h48h)},
		{ObjectID: "more_than_48h", Config: count("more_than_48h", "Winter Roads Salted > 48h", types.StatusMoreThan48h)},
		{ObjectID: "unknown", Config: count("unknown", "Winter Roads Unknown Status", types.StatusUnknown)},
	}
}

// StatePayload is published to the shared state topic; every sensor picks
// its field via its value template.
type StatePayload struct {
	Overall       string `json:"overall"`
	OverallCode   string `json:"overall_code"`
	Total         int    `json:"total"`
	SaltingNow    int    `json:"salting_now"`
	LessThan12h   int    `json:"less_than_12h"`
	Between12h48h int    `json:"between_12h_48h"`
	MoreThan48h   int    `json:"more_than_48h"`
	Unknown       int    `json:"unknown"`
}

func NewStatePayload(sum types.Summary) StatePayload {
	return StatePayload{
		Overall:       sum.OverallStatus.Label(),
		OverallCode:   string(sum.OverallStatus),
		Total:         sum.TotalRoads,
		SaltingNow:    sum.SaltingNow,
		LessThan12h:   sum.LessThan12h,
		Between12h48h: sum.Between12h48h,
		MoreThan48h:   sum.MoreThan48h,
		Unknown:       sum.Unknown,
	}
}

// AttributesPayload feeds the overall sensor's extra attributes.
type AttributesPayload struct {
	StatusCode string  `json:"status_code"`
	TotalRoads int     `json:"total_roads"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	FetchedAt  string  `json:"fetched_at"`
}

func NewAttributesPayload(sum types.Summary) AttributesPayload {
	return AttributesPayload{
		StatusCode: string(sum.OverallStatus),
		TotalRoads: sum.TotalRoads,
		Latitude:   sum.Latitude,
		Longitude:  sum.Longitude,
		FetchedAt:  sum.FetchedAt.UTC().Format(time.RFC3339),
	}
}
