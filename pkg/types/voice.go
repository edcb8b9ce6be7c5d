package types

// VoiceWebhookConfig is the routable webhook configuration of a phone number
// at the telephony provider. A snapshot of it is kept in number metadata so a
// blocked number can be restored verbatim.
type VoiceWebhookConfig struct {
	WebhookURL           string `json:"webhook_url"`
	WebhookFailoverURL   string `json:"webhook_failover_url,omitempty"`
	WebhookRequestMethod string `json:"webhook_request_method,omitempty"`
}

// VoiceAction is one step of the ordered response to an inbound call event.
type VoiceAction struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

func VoiceAnswer() VoiceAction { return VoiceAction{Type: "answer"} }
func VoiceHangup() VoiceAction { return VoiceAction{Type: "hangup"} }

func VoiceSpeak(text string) VoiceAction {
	return VoiceAction{Type: "speak", Text: text, Voice: "female", Language: "fr-FR"}
}
