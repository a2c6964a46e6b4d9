package utils

import (
	"fmt"

	"bidflow/config"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSClient sends sequence SMS messages through Twilio. It satisfies the
// engine's SMSSender contract.
type SMSClient struct {
	client *twilio.RestClient
	from   string
}

func NewSMSClient(cfg config.TwilioConfig) *SMSClient {
	return &SMSClient{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		from: cfg.FromNumber,
	}
}

func (s *SMSClient) Send(to, body string) error {
	if s.from == "" {
		return fmt.Errorf("twilio is not configured")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("error sending SMS: %w", err)
	}
	return nil
}
