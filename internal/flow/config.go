package flow

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/chatdesk-app/chatdesk-backend/internal/models"
)

// Typed config shapes, one per node variant. Nodes persist a free-form
// config map (the editor writes whatever the registry declares); the
// interpreter decodes it into one of these before evaluating, so a missing
// or mistyped field fails in one place instead of panicking mid-walk.

type MessageConfig struct {
	Text  string `mapstructure:"text"`
	Delay int    `mapstructure:"delay"`
}

type ButtonsConfig struct {
	Text     string          `mapstructure:"text"`
	Buttons  []models.Button `mapstructure:"buttons"`
	Variable string          `mapstructure:"variable"`
}

type ListConfig struct {
	Text       string               `mapstructure:"text"`
	ButtonText string               `mapstructure:"button_text"`
	Sections   []models.ListSection `mapstructure:"sections"`
	Variable   string               `mapstructure:"variable"`
}

type ImageConfig struct {
	URL     string `mapstructure:"url"`
	Caption string `mapstructure:"caption"`
}

type DocumentConfig struct {
	URL      string `mapstructure:"url"`
	Filename string `mapstructure:"filename"`
	Caption  string `mapstructure:"caption"`
}

type WaitInputConfig struct {
	Variable string `mapstructure:"variable"`
}

type DelayConfig struct {
	Seconds int `mapstructure:"seconds"`
}

type SetVariableConfig struct {
	Variable string `mapstructure:"variable"`
	Value    string `mapstructure:"value"`
}

type ConditionConfig struct {
	Variable string `mapstructure:"variable"`
	Operator string `mapstructure:"operator"`
	Value    string `mapstructure:"value"`
}

type APICallConfig struct {
	Method         string            `mapstructure:"method"`
	URL            string            `mapstructure:"url"`
	Headers        map[string]string `mapstructure:"headers"`
	Body           string            `mapstructure:"body"`
	ResultVariable string            `mapstructure:"result_variable"`
	ResponsePath   string            `mapstructure:"response_path"`
}

type AIResponseConfig struct {
	Prompt         string `mapstructure:"prompt"`
	ResultVariable string `mapstructure:"result_variable"`
	Fallback       string `mapstructure:"fallback"`
}

type AssignAgentConfig struct {
	AgentID string `mapstructure:"agent_id"`
	Message string `mapstructure:"message"`
}

type AddTagConfig struct {
	Tag string `mapstructure:"tag"`
}

// decodeConfig fills a typed config struct from a node's stored config map.
// Weak typing so editor payloads like "5" decode into int fields.
func decodeConfig(node *models.Node, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(node.Config); err != nil {
		return fmt.Errorf("node %s (%s): bad config: %w", node.ID, node.Type, err)
	}
	return nil
}
