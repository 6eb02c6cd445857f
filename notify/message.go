package notify

import (
	"fmt"
	"time"

	"github.com/MrEthical07/otpauth"
)

// Subject is the subject line for code emails.
const Subject = "Your KIMIRO verification code"

// Message is the JSON payload published for each code.
type Message struct {
	Channel    string    `json:"channel"`
	Recipient  string    `json:"recipient"`
	Name       string    `json:"name,omitempty"`
	Purpose    string    `json:"purpose"`
	Code       string    `json:"code"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	TTLMinutes int       `json:"ttlMinutes"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// NewMessage renders n into a Message.
func NewMessage(n otpauth.Notification) Message {
	minutes := ttlMinutes(n.TTL)
	return Message{
		Channel:    string(n.Channel),
		Recipient:  n.Recipient,
		Name:       n.Name,
		Purpose:    string(n.Purpose),
		Code:       n.Code,
		Subject:    Subject,
		Body:       renderBody(n.Name, n.Purpose, n.Code, minutes),
		TTLMinutes: minutes,
		ExpiresAt:  n.ExpiresAt.UTC(),
	}
}

func renderBody(name string, purpose otpauth.Purpose, code string, minutes int) string {
	greeting := "Hi"
	if name != "" {
		greeting = "Hi " + name
	}

	action := "sign in to"
	if purpose == otpauth.PurposeSignup {
		action = "finish creating"
	}

	return fmt.Sprintf("%s,\n\nUse %s to %s your KIMIRO account. The code expires in %d minutes.\n\nIf you did not ask for this code you can ignore this email.\n",
		greeting, code, action, minutes)
}

func ttlMinutes(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	return int((ttl + time.Minute - 1) / time.Minute)
}

// RoutingKey is the topic key for a delivery, e.g. "otp.email.signup".
func RoutingKey(channel otpauth.Channel, purpose otpauth.Purpose) string {
	return "otp." + string(channel) + "." + string(purpose)
}
