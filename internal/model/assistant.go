// Package model defines data structures for the Prompting Realities backend.
package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Provider identifies the model provider an assistant is configured for.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Assistant is a named bundle of prompt, response schema, MQTT target and
// encrypted API key. Assistants are soft deleted so their chat history
// stays addressable.
type Assistant struct {
	ID                string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            string         `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Name              string         `gorm:"type:varchar(255);not null" json:"name"`
	PromptInstruction string         `gorm:"type:text" json:"prompt_instruction"`
	JSONSchema        datatypes.JSON `gorm:"type:text" json:"json_schema,omitempty"`
	ModelProvider     Provider       `gorm:"type:varchar(32);default:openai" json:"model_provider"`
	MQTTHost          string         `gorm:"type:varchar(255)" json:"mqtt_host"`
	MQTTPort          int            `gorm:"default:1883" json:"mqtt_port"`
	MQTTUser          *string        `gorm:"type:varchar(255)" json:"mqtt_user,omitempty"`
	MQTTPass          *string        `gorm:"type:varchar(255)" json:"-"`
	MQTTTopic         string         `gorm:"type:varchar(255)" json:"mqtt_topic"`
	APIKey            string         `gorm:"type:text" json:"-"` // encrypted at rest
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	// Decorations populated on list/get, not stored.
	LatestSessionID  *string `gorm:"-" json:"latest_session_id,omitempty"`
	LatestShareToken *string `gorm:"-" json:"latest_share_token,omitempty"`
	HasAPIKey        bool    `gorm:"-" json:"has_api_key"`
}

func (Assistant) TableName() string { return "assistants" }

// MQTTConfigured reports whether the assistant has enough configuration for
// a publish attempt.
func (a *Assistant) MQTTConfigured() bool {
	return a.MQTTHost != "" && a.MQTTTopic != ""
}

// CreateAssistantRequest is the request to create a new assistant.
type CreateAssistantRequest struct {
	Name              string         `json:"name"`
	PromptInstruction string         `json:"prompt_instruction"`
	JSONSchema        datatypes.JSON `json:"json_schema,omitempty"`
	ModelProvider     Provider       `json:"model_provider,omitempty"`
	MQTTHost          string         `json:"mqtt_host"`
	MQTTPort          int            `json:"mqtt_port"`
	MQTTUser          *string        `json:"mqtt_user,omitempty"`
	MQTTPass          *string        `json:"mqtt_pass,omitempty"`
	MQTTTopic         string         `json:"mqtt_topic"`
	APIKey            string         `json:"api_key,omitempty"`
}

// UpdateAssistantRequest is the request to update an assistant. Nil fields
// are left unchanged.
type UpdateAssistantRequest struct {
	Name              *string         `json:"name,omitempty"`
	PromptInstruction *string         `json:"prompt_instruction,omitempty"`
	JSONSchema        *datatypes.JSON `json:"json_schema,omitempty"`
	ModelProvider     *Provider       `json:"model_provider,omitempty"`
	MQTTHost          *string         `json:"mqtt_host,omitempty"`
	MQTTPort          *int            `json:"mqtt_port,omitempty"`
	MQTTUser          *string         `json:"mqtt_user,omitempty"`
	MQTTPass          *string         `json:"mqtt_pass,omitempty"`
	MQTTTopic         *string         `json:"mqtt_topic,omitempty"`
	APIKey            *string         `json:"api_key,omitempty"`
}
