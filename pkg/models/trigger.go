package models

import "time"

type TriggerType string

const (
	TriggerTypeWebhook  TriggerType = "webhook"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypeQueue    TriggerType = "queue"
	TriggerTypeTelegram TriggerType = "telegram"
	TriggerTypeManual   TriggerType = "manual"
)

// Trigger is the event definition that starts a workflow. ChannelID binds it
// to an external channel such as a bot identity.
type Trigger struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	Type       TriggerType    `json:"type"                 validate:"required,oneof=webhook schedule queue telegram manual"`
	Config     map[string]any `json:"config"`
	ChannelID  string         `json:"channel_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
